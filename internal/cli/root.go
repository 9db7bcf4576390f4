// Package cli provides the command-line interface for the analysis application.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chanlun/internal/config"
	"chanlun/internal/engine"
	"chanlun/internal/logging"
	"chanlun/internal/metrics"
	"chanlun/internal/source"
	"chanlun/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   store.DataStore
	Metrics *metrics.Metrics
	Engine  *engine.Engine
}

// open wires the store, source and engine on first use so that commands
// which only read configuration never touch the database.
func (app *App) open() error {
	if app.Engine != nil {
		return nil
	}

	dataStore, err := store.NewSQLiteStore(app.Config.Data.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	app.Store = dataStore
	app.Logger.Debug().Str("path", app.Config.Data.DBPath).Msg("SQLite store initialized")

	fetcher, err := source.New(app.Config)
	if err != nil {
		dataStore.Close()
		app.Store = nil
		return err
	}
	app.Logger.Debug().Str("provider", fetcher.Name()).Msg("Bar source initialized")

	app.Metrics = metrics.New()
	app.Engine = engine.New(app.Config, app.Store, fetcher, app.Metrics, app.Logger)
	return nil
}

func (app *App) close() {
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to close store")
		}
	}
}

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// from --config before any subcommand runs.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "chanlun",
		Short: "Chan theory structural analysis of price bars",
		Long: `chanlun fetches OHLC bars and derives their Chan theory structure:
merged bars, fractals, strokes, segments and pivots.

Results are stored locally and can be inspected on the command line,
exported as CSV or Parquet, rendered as charts or served over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg

			jsonLogs, _ := cmd.Flags().GetBool("json")
			app.Logger = logging.NewLoggerWithConfig(logging.LogConfig{
				Level:      cfg.Logging.Level,
				Console:    true,
				JSON:       cfg.Logging.JSON || jsonLogs,
				File:       cfg.Logging.File,
				FilePath:   cfg.Logging.FilePath,
				MaxSize:    100,
				MaxBackups: 7,
				MaxAge:     30,
			})

			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/chanlun)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addOutputCommands(rootCmd, app)

	return rootCmd
}

// Execute runs the root command and reports a failure on stderr.
func Execute(ctx context.Context, logger zerolog.Logger) int {
	cmd := NewRootCmd(logger)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("chanlun v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.Path(app.Config.Dir())
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg without secrets.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.Credentials = config.Credentials{}
	return out
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Analysis")
	output.Printf("  Intervals:        %v\n", cfg.Analysis.Intervals)
	output.Printf("  Min Stroke Gap:   %d\n", cfg.Analysis.MinStrokeGap)
	output.Printf("  Min Pivot Ends:   %d\n", cfg.Analysis.MinPivotEndpoints)
	output.Printf("  Workers:          %d\n", cfg.Analysis.Workers)
	output.Println()

	output.Bold("Data")
	output.Printf("  Database:         %s\n", cfg.Data.DBPath)
	output.Printf("  CSV Directory:    %s\n", cfg.Data.CSVDir)
	output.Println()

	output.Bold("Source")
	output.Printf("  Provider:         %s\n", cfg.Source.Provider)
	output.Printf("  Rate Limit:       %.1f/s (burst %d)\n", cfg.Source.RatePerSec, cfg.Source.Burst)
	output.Printf("  Retries:          %d\n", cfg.Source.Retries)
	output.Printf("  Session Filter:   %v\n", cfg.Source.SessionFilter)
	output.Println()

	output.Bold("Symbols")
	for _, s := range cfg.Symbols {
		output.Printf("  %-16s  %s\n", s.Symbol, s.Name)
	}
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:          %s\n", cfg.Server.Addr)
	output.Printf("  Schedule:         %v (%s)\n", cfg.Schedule.Enabled, cfg.Schedule.RefreshCron)
	output.Println()

	output.Bold("Export")
	output.Printf("  Directory:        %s\n", cfg.Export.Dir)
	output.Printf("  Format:           %s\n", cfg.Export.Format)
	output.Printf("  S3 Upload:        %v\n", cfg.Export.S3.Enabled)

	return nil
}
