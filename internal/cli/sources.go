package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fusebox-ai/fusebox/internal/store"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured knowledge sources",
	RunE:  runSources,
}

// openDB is a helper that opens the database for CLI commands.
func openDB() (*store.DB, error) {
	dbPath := os.Getenv("FUSEBOX_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

func runSources(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	sources, err := db.ListSources()
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Println("no sources configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tPRIORITY\tENABLED\tPROJECT")
	for _, src := range sources {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n",
			src.ID, src.Name, src.Kind, src.Priority, src.Enabled, src.ProjectID)
	}
	return w.Flush()
}
