package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askLoad []string
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var directCmd = &cobra.Command{
	Use:   "direct [text]",
	Short: "Send text straight to the model, without memory or documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDirect,
}

func init() {
	askCmd.Flags().StringSliceVarP(&askLoad, "load", "l", nil, "documents to load before asking")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd, directCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()
	if len(askLoad) > 0 {
		if _, err := a.bot.LoadDocuments(ctx, askLoad...); err != nil {
			return err
		}
	}
	res := a.bot.Ask(ctx, strings.Join(args, " "))
	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Answer   string `json:"answer"`
			Grounded bool   `json:"rag_enabled"`
			Sources  any    `json:"sources,omitempty"`
		}{res.Text, res.Grounded, res.Provenance}); err != nil {
			return err
		}
		return res.Err
	}
	fmt.Fprintln(out, res.Text)
	if res.Provenance != nil {
		for _, s := range res.Provenance.Sources {
			if s.Page > 0 {
				fmt.Fprintf(out, "  source: %s#page=%d\n", s.Path, s.Page)
			} else {
				fmt.Fprintf(out, "  source: %s\n", s.Path)
			}
		}
	}
	return res.Err
}

func runDirect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()
	reply, err := a.bot.Direct(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}
