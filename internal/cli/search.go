package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

var (
	searchProject string
	searchLimit   int
	searchSources []string
	searchServer  string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search a running fusebox server",
	Long:  "Send a fused search to a running fusebox server and print the ranked results.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchProject, "project", "p", "default", "Project id to search")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")
	searchCmd.Flags().StringSliceVarP(&searchSources, "source", "s", nil, "Restrict to specific source ids (repeatable)")
	searchCmd.Flags().StringVar(&searchServer, "server", "", "Server base URL (default http://127.0.0.1:38111, or FUSEBOX_SERVER)")
}

func serverBase() string {
	if searchServer != "" {
		return strings.TrimRight(searchServer, "/")
	}
	if env := os.Getenv("FUSEBOX_SERVER"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return "http://127.0.0.1:38111"
}

func runSearch(cmd *cobra.Command, args []string) error {
	req := domain.SearchRequest{
		Query:     strings.Join(args, " "),
		ProjectID: searchProject,
		Sources:   searchSources,
		Limit:     searchLimit,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(serverBase()+"/api/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("is the server running? (%w)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("search failed (%d): %s", resp.StatusCode, apiErr.Error)
	}

	var out domain.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(out.FusedResults) == 0 {
		fmt.Println("no results")
		return nil
	}

	for i, r := range out.FusedResults {
		content := r.Content
		if len(content) > 120 {
			content = content[:120] + "..."
		}
		fmt.Printf("%2d. [%.3f] (%s/%s) %s\n", i+1, r.Score, r.Kind, r.Source, content)
		for _, rel := range r.Related {
			fmt.Printf("      ~ [%.3f] (%s) near-duplicate\n", rel.Score, rel.Source)
		}
	}
	fmt.Printf("\n%d results from %d sources (%d failed, %d timed out, %d skipped)\n",
		len(out.FusedResults), out.Stats.SourcesQueried,
		out.Stats.SourcesFailed, out.Stats.SourcesTimedOut, out.Stats.SourcesSkipped)
	return nil
}
