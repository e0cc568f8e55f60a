package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestOut string

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Index documents and save the index",
	Long: `Loads .txt files, OCR-extracted PDFs and directories of .txt files,
adds them to the saved index (if any) and writes the result back.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestOut, "out", "o", "", "save the index here instead of the configured directory")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()
	rep, err := a.bot.LoadDocuments(ctx, args...)
	for _, s := range rep.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", s.Path, s.Reason)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents, %d chunks (total %d)\n", rep.Documents, rep.Chunks, rep.Total)
	if ingestOut != "" {
		dir, err := a.bot.SaveIndex(ctx, ingestOut)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", dir)
		return nil
	}
	if rep.SaveErr != nil {
		return fmt.Errorf("save index: %w", rep.SaveErr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", rep.SavedTo)
	return nil
}
