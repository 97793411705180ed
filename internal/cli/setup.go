package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the search index schema",
	Long: `Idempotently creates the search index schema (text field, vector
field, metadata fields). Safe to run more than once.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline("")
	if err != nil {
		return err
	}
	if err := p.Setup(cmd.Context()); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	cmd.Printf("Index %q is ready.\n", indexName())
	return nil
}

func indexName() string {
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant != nil {
		return cfg.Index.Qdrant.Collection
	}
	return cfg.Index.Type
}
