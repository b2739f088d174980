package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"adorable/internal/app"
	"adorable/internal/config"
	"adorable/internal/logging"
	"adorable/internal/server"

	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	cfgFile  string
	model    string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "adorable",
		Short: "Generate and edit web apps from natural language",
		Long: `Adorable turns an instruction into a runnable React project. An agent writes
the files, a sandbox builds them, failing builds are repaired automatically and
every result is kept as a version of the project.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/adorable/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model to use")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newVersionsCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newExportCmd())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("adorable version %s\n", version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Close()
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration, applies global flags and sets up
// logging. Interactive commands log to the configured file only, so the
// terminal output stays readable.
func loadConfig(interactive bool) (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version

	if model != "" {
		cfg.Model.Name = model
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	switch {
	case cfg.Logging.File != "":
		logging.EnableFileLogging(level, logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
	case interactive:
		logging.DisableLogging()
	default:
		logging.Configure(level, os.Stderr)
	}
	return cfg, nil
}

// buildApp loads the configuration and wires the pipeline.
func buildApp(ctx context.Context, interactive bool) (*app.App, *config.Config, error) {
	cfg, err := loadConfig(interactive)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.NewBuilder(cfg).Build(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create application: %w", err)
	}
	return a, cfg, nil
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generation and edit API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := buildApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			return server.New(a.Orchestrator).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
