package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/errors"
	"chanlun/internal/models"
	"chanlun/internal/store"
	"chanlun/pkg/utils"
)

// addDataCommands adds fetch, analysis and inspection commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newFetchCmd(app))
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newShowCmd(app))
	rootCmd.AddCommand(newBatchCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))
	rootCmd.AddCommand(newSymbolsCmd(app))
}

func newFetchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <symbol>",
		Short: "Fetch bars for every configured interval and analyze them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(); err != nil {
				return err
			}

			symbol := strings.ToUpper(args[0])
			runs, err := app.Engine.Refresh(cmd.Context(), symbol)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			renderRuns(output, runs)
			return runsError(runs)
		},
	}
}

// runsError fails the command when every run failed.
func runsError(runs []models.Run) error {
	for _, r := range runs {
		if r.Error == "" {
			return nil
		}
	}
	if len(runs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: all intervals failed", errors.ErrFetchFailed)
}

func renderRuns(output *Output, runs []models.Run) {
	table := NewTable(output, "Symbol", "Interval", "Status", "Bars", "Strokes", "Segments", "Pivots", "Took")
	for _, r := range runs {
		table.AddRow(
			r.Symbol,
			string(r.Interval),
			output.Status(r.Error),
			utils.FormatCompact(float64(r.Bars)),
			fmt.Sprintf("%d", r.Strokes),
			fmt.Sprintf("%d", r.Segments),
			fmt.Sprintf("%d", r.Pivots),
			utils.FormatDuration(r.Duration),
		)
	}
	table.Render()

	for _, r := range runs {
		if r.Error != "" {
			output.Warning("%s %s: %s", r.Symbol, r.Interval, r.Error)
		}
	}
}

// intervals resolves the --interval flag, defaulting to every configured
// interval.
func intervals(cmd *cobra.Command, app *App) ([]models.Interval, error) {
	id, _ := cmd.Flags().GetString("interval")
	if id == "" {
		return app.Config.IntervalList(), nil
	}
	if _, err := app.Config.Interval(models.Interval(id)); err != nil {
		return nil, err
	}
	return []models.Interval{models.Interval(id)}, nil
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Recompute stage tables from stored bars",
		Long: `Recompute merged bars, fractals, strokes, segments and pivots from the
bars already stored for a symbol, without contacting the provider.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ivs, err := intervals(cmd, app)
			if err != nil {
				return err
			}
			if err := app.open(); err != nil {
				return err
			}

			symbol := strings.ToUpper(args[0])
			var runs []models.Run
			for _, iv := range ivs {
				_, run, err := app.Engine.Reanalyze(cmd.Context(), symbol, iv)
				if errors.Is(err, errors.ErrDataNotFound) {
					app.Logger.Debug().Str("interval", string(iv)).Msg("No stored bars, skipping")
					continue
				}
				if err != nil {
					return err
				}
				runs = append(runs, *run)
			}
			if len(runs) == 0 {
				return fmt.Errorf("%w: no stored bars for %s, run 'chanlun fetch %s' first", errors.ErrDataNotFound, symbol, symbol)
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			renderRuns(output, runs)
			return nil
		},
	}
	cmd.Flags().String("interval", "", "interval to analyze (default: all configured)")
	return cmd
}

// layerRow is the JSON form of one stage table row.
type layerRow struct {
	Date string   `json:"date"`
	High *float64 `json:"high"`
	Low  *float64 `json:"low"`
}

func newShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <symbol> <layer>",
		Short: "Show one stage table",
		Long: fmt.Sprintf(`Show a stored stage table for a symbol.

Layers: %s`, layerNames()),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			layer, ok := analysis.ParseLayer(args[1])
			if !ok {
				return fmt.Errorf("%w: %s (want one of %s)", errors.ErrUnknownLayer, args[1], layerNames())
			}

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
			rows := view.Tables[layer]

			if output.IsJSON() {
				out := make([]layerRow, 0, len(rows))
				for _, r := range rows {
					out = append(out, layerRow{Date: FormatBarTime(r.Timestamp, ic.DateFormat), High: r.High.Ptr(), Low: r.Low.Ptr()})
				}
				return output.JSON(out)
			}

			output.Bold("%s %s %s (%d rows)", symbol, interval, layer, len(rows))
			renderLayer(output, layer, rows, ic.DateFormat)
			return nil
		},
	}
	cmd.Flags().String("interval", "", "interval to show (default: first configured)")
	return cmd
}

func layerNames() string {
	names := make([]string, 0, len(analysis.Layers))
	for _, l := range analysis.Layers {
		names = append(names, string(l))
	}
	return strings.Join(names, ", ")
}

func renderLayer(output *Output, layer analysis.Layer, rows chanlun.Table, layout string) {
	if layer.IsPivot() {
		table := NewTable(output, "Start", "End", "Zone Low", "Zone High")
		for _, p := range chanlun.PivotsFromTable(rows) {
			table.AddRow(
				FormatBarTime(p.Start, layout),
				FormatBarTime(p.End, layout),
				utils.FormatPrice(p.ZoneLow),
				utils.FormatPrice(p.ZoneHigh),
			)
		}
		table.Render()
		return
	}

	table := NewTable(output, "Date", "High", "Low")
	for _, r := range rows {
		high, low := FormatNullPrice(r.High), FormatNullPrice(r.Low)
		if layer != analysis.LayerStick {
			high = output.Polarity(true, high)
			low = output.Polarity(false, low)
		}
		table.AddRow(FormatBarTime(r.Timestamp, layout), high, low)
	}
	table.Render()
}

func newBatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Refresh every configured symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(); err != nil {
				return err
			}

			symbols := app.Config.SymbolList()
			start := time.Now()
			result := app.Engine.RunBatch(cmd.Context(), symbols)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"runs":   result.Runs,
					"failed": result.Failed(),
				})
			}

			var runs []models.Run
			for _, s := range symbols {
				runs = append(runs, result.Runs[s]...)
			}
			renderRuns(output, runs)
			for s, err := range result.Errors {
				output.Error("%s: %v", s, err)
			}

			failed := result.Failed()
			output.Println()
			output.Info("%d symbols in %s, %d failed", len(symbols), utils.FormatDuration(time.Since(start)), len(failed))
			if len(failed) > 0 {
				return fmt.Errorf("%w: %s", errors.ErrFetchFailed, strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

func newRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [symbol]",
		Short: "List recorded pipeline runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(); err != nil {
				return err
			}

			filter := store.RunFilter{}
			if len(args) == 1 {
				filter.Symbol = strings.ToUpper(args[0])
			}
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if id, _ := cmd.Flags().GetString("interval"); id != "" {
				filter.Interval = models.Interval(id)
			}
			if days, _ := cmd.Flags().GetInt("days"); days > 0 {
				filter.StartDate = time.Now().AddDate(0, 0, -days)
			}

			runs, err := app.Store.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No runs recorded")
				return nil
			}

			now := time.Now()
			table := NewTable(output, "Started", "Symbol", "Interval", "Source", "Status", "Summary")
			for _, r := range runs {
				table.AddRow(
					FormatAge(r.StartedAt, now),
					r.Symbol,
					string(r.Interval),
					r.Source,
					output.Status(r.Error),
					FormatRunCounts(r),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of runs")
	cmd.Flags().String("interval", "", "only runs for this interval")
	cmd.Flags().Int("days", 0, "only runs from the last N days")
	return cmd
}

func newSymbolsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List configured and stored symbols with data freshness",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.open(); err != nil {
				return err
			}

			symbols, err := app.Engine.Symbols(cmd.Context())
			if err != nil {
				return err
			}

			type entry struct {
				Symbol    string                     `json:"symbol"`
				Name      string                     `json:"name"`
				Freshness map[models.Interval]string `json:"freshness"`
			}
			entries := make([]entry, 0, len(symbols))
			for _, s := range symbols {
				e := entry{Symbol: s, Freshness: make(map[models.Interval]string)}
				if cfgSym, err := app.Config.Symbol(s); err == nil {
					e.Name = cfgSym.Name
				}
				for _, iv := range app.Config.IntervalList() {
					last, err := app.Store.GetBarsFreshness(cmd.Context(), s, iv)
					if err != nil {
						return err
					}
					if !last.IsZero() {
						e.Freshness[iv] = last.UTC().Format(time.RFC3339)
					}
				}
				entries = append(entries, e)
			}

			if output.IsJSON() {
				return output.JSON(entries)
			}

			headers := []string{"Symbol", "Name"}
			for _, iv := range app.Config.IntervalList() {
				headers = append(headers, string(iv))
			}
			now := time.Now()
			table := NewTable(output, headers...)
			for _, e := range entries {
				cells := []string{e.Symbol, e.Name}
				for _, iv := range app.Config.IntervalList() {
					var last time.Time
					if v, ok := e.Freshness[iv]; ok {
						last, _ = time.Parse(time.RFC3339, v)
					}
					cells = append(cells, FormatAge(last, now))
				}
				table.AddRow(cells...)
			}
			table.Render()
			return nil
		},
	}
}
