package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest documents from a directory or file",
	Long: `Loads every supported document (.txt, .md, .pdf) at the given path,
splits it into chunks, embeds the chunks and writes them to the search
index. Re-ingesting a document replaces its previous chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	warnIfEphemeral(cmd)
	p, err := buildPipeline(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := p.Setup(ctx); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	report, err := p.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	cmd.Printf("Ingested %d chunks from %d documents.\n", report.Chunks, report.Documents)
	if len(report.Failures) > 0 {
		cmd.PrintErrln("Failed documents:")
		for _, f := range report.Failures {
			cmd.PrintErrf("  %s: %v\n", f.Document, f.Err)
		}
		return fmt.Errorf("%d of %d documents failed", len(report.Failures), report.Documents+len(report.Failures))
	}
	return nil
}
