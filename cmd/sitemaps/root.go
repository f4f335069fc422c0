package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eringen/sitemaps"
)

var (
	cfgFile string
	verbose bool
	cfg     sitemaps.SiteConfig
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sitemaps",
	Short: "Scalable XML sitemaps for a content site",
	Long: `sitemaps renders an XML sitemap index plus pages, tags, categories,
users, custom taxonomies, news and one document per publishing day from a
SQLite content store.

Example usage:
  sitemaps serve                      # serve sitemaps over HTTP
  sitemaps import content.yaml        # load posts, terms and users
  sitemaps generate -o public         # write every document to disk`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", sitemaps.EnvOr("SITEMAPS_CONFIG", ""), "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func initConfig() error {
	var err error
	cfg, err = sitemaps.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	logger = sitemaps.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return nil
}

// newApp builds an initialised App from the loaded configuration.
func newApp(cmd *cobra.Command) (*sitemaps.App, error) {
	app := sitemaps.New(cfg, sitemaps.WithLogger(logger))
	if err := app.Init(cmd.Context()); err != nil {
		return nil, err
	}
	return app, nil
}
