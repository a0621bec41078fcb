// Ecolite widget host: serves the chat widget and runs its conversations.
package main

import (
	"os"
	"strings"
	"time"

	"github.com/ashureev/ecolite-widget/internal/config"
	"github.com/ashureev/ecolite-widget/internal/handoff"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
)

func main() {
	root := &cobra.Command{
		Use:           "widget",
		Short:         "Ecolite product-search chat widget host",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				log.Debug().Msg("No .env file found, using environment variables")
			}

			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return errors.Wrap(err, "load configuration")
			}
			setupLogging(cfg.Log, cfg.IsDevelopment())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	root.AddCommand(newServeCommand(), newLinksCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogging(lc config.LogConfig, dev bool) {
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if lc.Format == "console" || (dev && lc.Format != "json") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func handoffConfig(c *config.Config) handoff.Config {
	return handoff.Config{
		Host:       c.Handoff.Host,
		AppScheme:  c.Handoff.AppScheme,
		AppPackage: c.Handoff.AppPackage,
		Timeout:    c.Handoff.Timeout,
	}
}
