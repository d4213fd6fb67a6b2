package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fii-monitor/internal/analysis"
	"fii-monitor/internal/datasource"
	"fii-monitor/internal/models"
	"fii-monitor/internal/screener"
	"fii-monitor/internal/sector"
	"fii-monitor/pkg/utils"
)

// addMarketDataCommands adds fund data commands.
func addMarketDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newFundsCmd(app))
	rootCmd.AddCommand(newFundCmd(app))
	rootCmd.AddCommand(newScreenCmd(app))
	rootCmd.AddCommand(newSectorsCmd(app))
}

// snapshot initializes the app and returns the current fund list.
func snapshot(ctx context.Context, app *App, force bool) ([]*models.FundSnapshot, error) {
	if err := app.Init(ctx); err != nil {
		return nil, err
	}
	return app.Source.FetchWith(ctx, datasource.FetchOptions{Force: force})
}

func newFundsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "funds",
		Short: "List every tracked fund",
		Long: `Fetch the fund list and print it as a table.

Results are served from cache while it is fresh; --force refetches.
The sort column defaults to the saved preference (score, best first).`,
		Example: `  fiimonitor funds
  fiimonitor funds --sort dy
  fiimonitor funds --sort -pvp --limit 10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			force, _ := cmd.Flags().GetBool("force")
			funds, err := snapshot(ctx, app, force)
			if err != nil {
				return err
			}

			sortSpec, _ := cmd.Flags().GetString("sort")
			if sortSpec == "" {
				prefs, err := app.Preferences.Get(ctx)
				if err != nil {
					return err
				}
				sortSpec = prefs.DefaultSort
			}
			column, desc, err := screener.ParseSort(sortSpec)
			if err != nil {
				return err
			}
			sorted, err := screener.Sort(funds, column, desc)
			if err != nil {
				return err
			}
			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && limit < len(sorted) {
				sorted = sorted[:limit]
			}

			if output.IsJSON() {
				return output.JSON(sorted)
			}

			table := NewTable(output, fundHeaders...)
			for i, f := range sorted {
				table.AddRow(fundRow(output, i+1, f)...)
			}
			table.Render()
			stats := app.Source.Stats()
			output.Dim("%d funds · updated %s · cache hits %d", len(sorted), FormatDateTime(stats.FetchedAt), stats.Hits)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "bypass the cache")
	cmd.Flags().String("sort", "", "sort column, prefix with - for descending")
	cmd.Flags().Int("limit", 0, "maximum rows (0 = all)")
	return cmd
}

func newFundCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund <ticker>",
		Short: "Show one fund with history and dividends",
		Example: `  fiimonitor fund HGLG11
  fiimonitor fund MXRF11 --days 60 --ma 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := app.Init(ctx); err != nil {
				return err
			}

			ticker := strings.ToUpper(args[0])
			fund, err := app.Source.Lookup(ctx, ticker)
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			candles, err := app.Source.History(ctx, ticker, days)
			if err != nil {
				return err
			}
			dividends, err := app.Source.Dividends(ctx, ticker)
			if err != nil {
				return err
			}
			period, _ := cmd.Flags().GetInt("ma")
			var average []analysis.Point
			if period > 0 {
				average, err = analysis.MovingAverage(candles, period)
				if err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"fund":           fund,
					"candles":        candles,
					"moving_average": average,
					"dividends":      dividends,
				})
			}
			displayFund(output, fund, candles, average, dividends)
			return nil
		},
	}

	cmd.Flags().Int("days", 30, "days of price history")
	cmd.Flags().Int("ma", 0, "moving average period (0 = none)")
	return cmd
}

func displayFund(output *Output, f *models.FundSnapshot, candles []models.Candle, average []analysis.Point, dividends []models.Dividend) {
	output.Box(fmt.Sprintf("%s · %s", f.Ticker, f.Sector), []string{
		fmt.Sprintf("Preço:         %s", utils.FormatBRL(f.Price)),
		fmt.Sprintf("Preço justo:   %s (%s)", utils.FormatBRL(f.FairPrice), output.Signed(f.Upside, utils.FormatPercent(f.Upside))),
		fmt.Sprintf("VP/cota:       %s", utils.FormatBRL(f.BookValuePerShare)),
		fmt.Sprintf("P/VP:          %s", utils.FormatRatio(f.PriceToBook)),
		fmt.Sprintf("DY (12m):      %s", FormatYield(f.AnnualYield)),
		fmt.Sprintf("Último rend.:  %s", utils.FormatBRL(f.LastDividend)),
		fmt.Sprintf("Vacância:      %s", FormatVacancy(f)),
		fmt.Sprintf("Liquidez:      %s", utils.FormatCompact(f.DailyLiquidity)),
		fmt.Sprintf("Cap rate:      %s", FormatYield(f.CapRate)),
		fmt.Sprintf("Gestora:       %s", f.Manager),
		fmt.Sprintf("Score:         %d", f.Score),
	})

	if len(candles) > 0 {
		first, last := candles[0], candles[len(candles)-1]
		change := 0.0
		if first.Close > 0 {
			change = (last.Close - first.Close) / first.Close * 100
		}
		output.Println()
		output.Printf("%d pregões: %s → %s (%s)\n", len(candles),
			utils.FormatBRL(first.Close), utils.FormatBRL(last.Close),
			output.Signed(change, utils.FormatPercent(change)))
		if len(average) > 0 {
			p := average[len(average)-1]
			output.Printf("Média móvel em %s: %s\n", FormatDate(p.Date), utils.FormatBRL(p.Value))
		}
	}

	if len(dividends) > 0 {
		output.Println()
		table := NewTable(output, "DATA BASE", "PAGAMENTO", "VALOR")
		for _, d := range dividends {
			table.AddRow(FormatDate(d.BaseDate), FormatDate(d.PaymentDate), utils.FormatBRL(d.Value))
		}
		table.Render()
	}
}

func newScreenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Filter and rank funds",
		Long: `Apply the monitoring filters and rank the matches by score.

Unset flags fall back to the saved default filters.`,
		Example: `  fiimonitor screen
  fiimonitor screen --sector Logístico --sector Shopping --max-pb 1
  fiimonitor screen --min-yield 11 --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			funds, err := snapshot(ctx, app, false)
			if err != nil {
				return err
			}
			prefs, err := app.Preferences.Get(ctx)
			if err != nil {
				return err
			}
			filter := prefs.DefaultFilters
			flags := cmd.Flags()
			if flags.Changed("sector") {
				names, _ := flags.GetStringSlice("sector")
				filter.Sectors = nil
				for _, n := range names {
					filter.Sectors = append(filter.Sectors, models.Sector(n))
				}
			}
			if flags.Changed("min-yield") {
				filter.MinYield, _ = flags.GetFloat64("min-yield")
			}
			if flags.Changed("max-pb") {
				filter.MaxPB, _ = flags.GetFloat64("max-pb")
			}
			if flags.Changed("max-price") {
				filter.MaxPrice, _ = flags.GetFloat64("max-price")
			}
			if flags.Changed("min-score") {
				filter.MinScore, _ = flags.GetInt("min-score")
			}
			if flags.Changed("limit") {
				filter.Limit, _ = flags.GetInt("limit")
			}

			ranked := screener.Apply(funds, filter)
			if output.IsJSON() {
				return output.JSON(ranked)
			}
			if len(ranked) == 0 {
				output.Warning("No fund matches the filters")
				return nil
			}
			table := NewTable(output, fundHeaders...)
			for _, r := range ranked {
				table.AddRow(fundRow(output, r.Rank, r.Fund)...)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringSlice("sector", nil, "restrict to sectors (repeatable)")
	cmd.Flags().Float64("min-yield", 0, "minimum annual yield (%)")
	cmd.Flags().Float64("max-pb", 0, "maximum P/VP")
	cmd.Flags().Float64("max-price", 0, "maximum price")
	cmd.Flags().Int("min-score", 0, "minimum score")
	cmd.Flags().Int("limit", 0, "maximum rows")
	return cmd
}

func newSectorsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sectors",
		Short: "Per-sector averages",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			funds, err := snapshot(ctx, app, false)
			if err != nil {
				return err
			}
			summaries := sector.Analyze(funds)
			corr := sector.YieldPBCorrelation(funds)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"sectors":              summaries,
					"yield_pb_correlation": corr,
				})
			}

			renderSectors(output, summaries)
			output.Dim("Correlação DY × P/VP: %s", utils.FormatRatio(corr))
			return nil
		},
	}
}

func renderSectors(output *Output, summaries []sector.Summary) {
	table := NewTable(output, "SETOR", "FUNDOS", "DY MÉDIO", "DESVIO", "P/VP", "VACÂNCIA", "SCORE", "DESTAQUE")
	for _, s := range summaries {
		vacancy := "-"
		if s.HasVacancy {
			vacancy = FormatYield(s.AvgVacancy)
		}
		best := "-"
		if len(s.Funds) > 0 {
			best = s.Funds[0].Ticker
		}
		table.AddRow(
			string(s.Sector),
			fmt.Sprintf("%d", s.Count),
			FormatYield(s.AvgYield),
			utils.FormatRatio(s.YieldStdDev),
			utils.FormatRatio(s.AvgPB),
			vacancy,
			fmt.Sprintf("%.1f", s.AvgScore),
			best,
		)
	}
	table.Render()
}
