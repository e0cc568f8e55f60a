package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragchat/internal/tui"
)

var chatLoad []string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat",
	Long: `Starts the terminal chat. Plain input goes to the model; lines starting
with / are commands (type /help inside the chat).`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringSliceVarP(&chatLoad, "load", "l", nil, "documents to load before the chat starts")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	summary := fmt.Sprintf("llm=%s embedding=%s", a.cfg.LLM.Model, a.cfg.Embedder.Model)
	if len(chatLoad) > 0 {
		rep, err := a.bot.LoadDocuments(ctx, chatLoad...)
		if err != nil {
			return err
		}
		summary += fmt.Sprintf(" | %d chunks from %d documents", rep.Total, rep.Documents)
	}
	p := tea.NewProgram(tui.New(ctx, a.bot, summary), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
