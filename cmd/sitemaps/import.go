package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load users, terms, posts and images from a YAML file",
	Long: `Import upserts content into the store. Running the same file twice
leaves the store unchanged. Use "-" to read from standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		stats, err := app.Store.Import(cmd.Context(), in)
		if err != nil {
			return err
		}
		// A shared cache would otherwise keep serving the old dates.
		if err := app.Cache.Purge(cmd.Context()); err != nil {
			logger.Warn("cache purge failed", slog.String("error", err.Error()))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
