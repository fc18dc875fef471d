package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fusebox",
	Short: "Fusion retrieval engine for agent memory and knowledge sources",
	Long:  "Fusebox fans a query out to internal memory and configured knowledge sources, then fuses the results into one ranked, deduplicated list. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(sourcesCmd)
}
