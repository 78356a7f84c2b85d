package main

import (
	"os"

	"github.com/spf13/cobra"

	"svg2png/internal/config"
	"svg2png/internal/infra/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "svg2png",
		Short:         "Convert SVG documents to PNG over HTTP or from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.AddCommand(newServeCmd(), newConvertCmd())
	return root
}

// loadConfig reads the config and applies environment overrides.
func loadConfig() config.Config {
	cfg := config.Load()
	// Allow common container env var to override chrome.path.
	if cfg.Chrome.Path == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.Chrome.Path = v
		}
	}
	return cfg
}

func initLogging(cfg config.Config) {
	if err := ensureLogDir(cfg.Logger.File); err != nil {
		logging.Warn("Cannot create log directory, logging to stdout only", "file", cfg.Logger.File, "error", err)
		cfg.Logger.File = ""
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
}
