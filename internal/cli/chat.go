package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragpipe/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question answering",
	Long:  `Opens a terminal UI for asking questions against the index.`,
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	warnIfEphemeral(cmd)
	p, err := buildPipeline("")
	if err != nil {
		return err
	}
	m := tui.New(p)
	_, err = tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
	return err
}
