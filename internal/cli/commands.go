package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"chanlun/internal/api"
	"chanlun/internal/chart"
	"chanlun/internal/export"
	"chanlun/internal/models"
	"chanlun/internal/scheduler"
)

// addOutputCommands adds commands that present results outside the terminal.
func addOutputCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newChartCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and charts",
		Long: `Serve stored analysis over HTTP until interrupted.

When schedule.enabled is set, every configured symbol is also refreshed on
schedule.refresh_cron.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(); err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				app.Config.Server.Addr = addr
			}
			ctx := cmd.Context()

			if app.Config.Schedule.Enabled {
				sched, err := scheduler.New(ctx, app.Config.Schedule, app.Engine, app.Config.SymbolList, app.Logger)
				if err != nil {
					return err
				}
				if _, err := sched.Register(app.Config.Schedule.RefreshCron); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			output.Info("Listening on http://%s", app.Config.Server.Addr)
			server := api.NewServer(app.Config, app.Engine, app.Metrics, app.Logger)
			return server.Start(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default: server.addr)")
	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <symbol>",
		Short: "Export bars and stage tables to files",
		Long: `Write the bar history and every stage table of a symbol to
<export.dir>/<symbol>/, one file per layer and interval (e.g. stroke_1d.csv).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ivs, err := intervals(cmd, app)
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				format = app.Config.Export.Format
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = app.Config.Export.Dir
			}

			var uploader export.Uploader
			if upload, _ := cmd.Flags().GetBool("upload"); upload {
				s3, err := export.NewS3Uploader(cmd.Context(), app.Config.Export.S3, app.Config.Credentials.S3)
				if err != nil {
					return err
				}
				uploader = s3
			}

			exporter, err := export.New(dir, format, uploader, app.Logger)
			if err != nil {
				return err
			}
			if err := app.open(); err != nil {
				return err
			}

			symbol := strings.ToUpper(args[0])
			var written []string
			for _, iv := range ivs {
				view, err := app.Engine.Load(cmd.Context(), symbol, iv)
				if err != nil {
					return err
				}
				paths, err := exporter.Export(cmd.Context(), view)
				if err != nil {
					return err
				}
				written = append(written, paths...)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"files": written})
			}
			for _, p := range written {
				output.Println(p)
			}
			output.Success("✓ Exported %d files", len(written))
			return nil
		},
	}
	cmd.Flags().String("interval", "", "interval to export (default: all configured)")
	cmd.Flags().String("format", "", "csv or parquet (default: export.format)")
	cmd.Flags().String("dir", "", "output directory (default: export.dir)")
	cmd.Flags().Bool("upload", false, "upload exported files to S3")
	return cmd
}

func newChartCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart <symbol>",
		Short: "Render an HTML chart of bars and structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			id, _ := cmd.Flags().GetString("interval")
			if id == "" {
				id = app.Config.Analysis.Intervals[0]
			}
			interval := models.Interval(id)
			ic, err := app.Config.Interval(interval)
			if err != nil {
				return err
			}
			if err := app.open(); err != nil {
				return err
			}

			symbol := strings.ToUpper(args[0])
			view, err := app.Engine.Load(cmd.Context(), symbol, interval)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			err = chart.Render(&buf, chart.Input{
				Symbol:     view.Symbol,
				Interval:   view.Interval,
				DateFormat: ic.DateFormat,
				Bars:       view.Bars,
				Tables:     view.Tables,
				AssetsHost: app.Config.Server.AssetsHost,
			})
			if err != nil {
				return fmt.Errorf("render chart: %w", err)
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = filepath.Join(app.Config.Export.Dir, symbol, fmt.Sprintf("chart_%s.html", interval))
			}
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"path": out})
			}
			output.Success("✓ Chart written to %s", out)
			return nil
		},
	}
	cmd.Flags().String("interval", "", "interval to chart (default: first configured)")
	cmd.Flags().String("out", "", "output HTML file (default: <export.dir>/<symbol>/chart_<interval>.html)")
	return cmd
}
