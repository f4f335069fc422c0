package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	outputDir   string
	concurrency int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write every sitemap document to a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if concurrency < 1 {
			return fmt.Errorf("concurrency must be at least 1")
		}
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		stats, err := app.Generator.WriteAll(cmd.Context(), outputDir, concurrency)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d documents (%d urls) to %s\n", stats.Documents, stats.URLs, outputDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&outputDir, "output", "o", "public", "output directory")
	generateCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "documents rendered in parallel")
}
