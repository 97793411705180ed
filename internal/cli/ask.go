package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"
)

var (
	askTopK   int
	askStream bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the ingested documents",
	Long: `Retrieves the most relevant chunks for the question and asks the
generation model to answer using only that context. The sources placed
in the prompt are listed after the answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	warnIfEphemeral(cmd)
	if askTopK > 0 {
		cfg.Query.TopK = askTopK
	}
	p, err := buildPipeline("")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	question := args[0]

	if askStream {
		stream, sources, err := p.QueryStream(ctx, question)
		if err != nil {
			return err
		}
		defer stream.Close()
		for {
			token, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			cmd.Print(token)
		}
		cmd.Println()
		printSources(cmd, sources)
		return nil
	}

	ans, err := p.Query(ctx, question)
	if err != nil {
		return err
	}
	cmd.Println(ans.Text)
	printSources(cmd, ans.Sources)
	return nil
}

func printSources(cmd *cobra.Command, sources []string) {
	if len(sources) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, s := range sources {
		cmd.Printf("  [%d] %s\n", i+1, s)
	}
}
