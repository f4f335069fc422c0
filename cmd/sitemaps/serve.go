package main

import (
	"github.com/spf13/cobra"

	"github.com/eringen/sitemaps"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sitemaps over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}
		app := sitemaps.New(cfg, sitemaps.WithLogger(logger))
		defer app.Close()
		return app.Start(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}
