package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/export"
	"fii-monitor/internal/models"
	"fii-monitor/internal/scheduler"
	"fii-monitor/internal/server"
	"fii-monitor/internal/stream"
)

// addUtilityCommands adds export, preference and server commands.
func addUtilityCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newPrefsCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "export <funds|portfolio|notifications>",
		Short:     "Export data to CSV or XLSX",
		Long:      "Export the fund list, valued positions or the notification history.",
		ValidArgs: []string{"funds", "portfolio", "notifications"},
		Example: `  fiimonitor export funds
  fiimonitor export portfolio --format xlsx --output carteira.xlsx
  fiimonitor export notifications --output -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			rawFormat, _ := cmd.Flags().GetString("format")
			format, err := export.ParseFormat(rawFormat)
			if err != nil {
				return err
			}
			what := strings.ToLower(args[0])
			switch what {
			case "funds", "portfolio", "notifications":
			default:
				return errors.NewValidationError("dataset", args[0], "expected funds, portfolio or notifications")
			}
			if err := app.Init(ctx); err != nil {
				return err
			}

			outFile, _ := cmd.Flags().GetString("output")
			if outFile == "" {
				outFile = fmt.Sprintf("%s.%s", what, format)
			}

			var w io.Writer = cmd.OutOrStdout()
			if outFile != "-" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			rows, err := writeExport(ctx, app, w, what, format)
			if err != nil {
				return err
			}
			if outFile == "-" {
				return nil
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"file": outFile, "rows": rows})
			}
			output.Success("✓ Exported %d rows to %s", rows, outFile)
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "csv", "file format (csv, xlsx)")
	cmd.Flags().StringP("output", "o", "", "output file, - for stdout (default <dataset>.<format>)")
	return cmd
}

func writeExport(ctx context.Context, app *App, w io.Writer, what string, format export.Format) (int, error) {
	switch what {
	case "funds":
		funds, err := app.Source.Fetch(ctx)
		if err != nil {
			return 0, err
		}
		return len(funds), export.Funds(w, format, funds)
	case "portfolio":
		funds, err := app.Source.Fetch(ctx)
		if err != nil {
			app.Logger.Warn().Err(err).Msg("Exporting positions without quotes")
		}
		sum := app.Portfolio.Summary(funds)
		return len(sum.Positions), export.Positions(w, format, sum)
	default:
		history := app.Alerts.History(app.Config.Alerts.HistoryLimit)
		return len(history), export.Notifications(w, format, history)
	}
}

func newPrefsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Display preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the saved preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			p, err := app.Preferences.Get(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			displayPrefs(output, p)
			return nil
		},
	})

	set := &cobra.Command{
		Use:   "set",
		Short: "Change preferences",
		Example: `  fiimonitor prefs set --sort -dy
  fiimonitor prefs set --color Logístico=#123abc --dark
  fiimonitor prefs set --min-yield 10 --max-pb 1.05`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			p, err := app.Preferences.Get(ctx)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("sort") {
				p.DefaultSort, _ = flags.GetString("sort")
			}
			if flags.Changed("dark") {
				p.DarkMode, _ = flags.GetBool("dark")
			}
			if flags.Changed("columns") {
				p.TableColumns, _ = flags.GetStringSlice("columns")
			}
			if flags.Changed("color") {
				pairs, _ := flags.GetStringSlice("color")
				for _, pair := range pairs {
					name, hex, ok := strings.Cut(pair, "=")
					if !ok {
						return errors.NewValidationError("color", pair, "expected SECTOR=#rrggbb")
					}
					p.SegmentColors[models.Sector(name)] = hex
				}
			}
			if flags.Changed("min-yield") {
				p.DefaultFilters.MinYield, _ = flags.GetFloat64("min-yield")
			}
			if flags.Changed("max-pb") {
				p.DefaultFilters.MaxPB, _ = flags.GetFloat64("max-pb")
			}
			if flags.Changed("min-score") {
				p.DefaultFilters.MinScore, _ = flags.GetInt("min-score")
			}

			saved, err := app.Preferences.Set(ctx, p)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(saved)
			}
			output.Success("✓ Preferences saved")
			return nil
		},
	}
	set.Flags().String("sort", "", "default sort column, - prefix for descending")
	set.Flags().Bool("dark", false, "dark mode")
	set.Flags().StringSlice("columns", nil, "table columns")
	set.Flags().StringSlice("color", nil, "sector color as SECTOR=#rrggbb (repeatable)")
	set.Flags().Float64("min-yield", 0, "default minimum yield filter")
	set.Flags().Float64("max-pb", 0, "default maximum P/VP filter")
	set.Flags().Int("min-score", 0, "default minimum score filter")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the default preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			if err := app.Preferences.Reset(ctx); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"reset": true})
			}
			output.Success("✓ Preferences reset")
			return nil
		},
	})

	return cmd
}

func displayPrefs(output *Output, p models.Preferences) {
	output.Bold("Display")
	output.Printf("  Dark mode:    %v\n", p.DarkMode)
	output.Printf("  Sort:         %s\n", p.DefaultSort)
	output.Printf("  Columns:      %s\n", strings.Join(p.TableColumns, ", "))
	output.Println()

	output.Bold("Default filters")
	f := p.DefaultFilters
	sectors := "todos"
	if len(f.Sectors) > 0 {
		names := make([]string, len(f.Sectors))
		for i, s := range f.Sectors {
			names[i] = string(s)
		}
		sectors = strings.Join(names, ", ")
	}
	output.Printf("  Sectors:      %s\n", sectors)
	output.Printf("  Min yield:    %s\n", FormatYield(f.MinYield))
	output.Printf("  Max P/VP:     %.2f\n", f.MaxPB)
	output.Printf("  Min score:    %d\n", f.MinScore)
	output.Println()

	output.Bold("Sector colors")
	names := make([]string, 0, len(p.SegmentColors))
	for s := range p.SegmentColors {
		names = append(names, string(s))
	}
	sort.Strings(names)
	for _, n := range names {
		output.Printf("  %-16s %s\n", n, p.SegmentColors[models.Sector(n)])
	}
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Long: `Serve the REST API, the /ws live stream and the maintenance jobs.

Endpoints:
  GET    /api/funds                    fund list (?sort=, ?force=1)
  GET    /api/funds/{ticker}/history   price history (?days=, ?ma=, ?bands=)
  GET    /api/screener                 filtered ranking
  GET    /api/sectors                  per-sector averages
  *      /api/alerts                   alert rules
  *      /api/portfolio                transactions and plans
  *      /api/preferences              display preferences
  GET    /api/export/{name}.{csv|xlsx} downloads
  GET    /ws                           snapshots, status and notifications`,
		Example: `  fiimonitor serve
  fiimonitor serve --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, app)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	return cmd
}

// serve runs the server until ctx is cancelled.
func serve(ctx context.Context, cmd *cobra.Command, app *App) error {
	output := NewOutput(cmd)
	if err := app.Init(ctx); err != nil {
		return err
	}

	hub := stream.NewHub(stream.DefaultHubConfig(), app.Logger)
	hub.Start(ctx)
	defer hub.Stop()
	app.Notifier.AddChannel(stream.NewNotificationChannel(hub))

	mon := app.NewMonitor()
	defer mon.Close()

	jobs := scheduler.New(app.Logger)
	jobs.SetPublisher(hub)
	if err := jobs.RegisterDefaults(app.Config.Schedule, app.Source, app.Alerts, app.Portfolio); err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = app.Config.Server.Addr
	}
	srv := server.New(server.Config{
		Addr:         addr,
		DevMode:      app.Config.Server.DevMode,
		Log:          app.Logger,
		RefreshLimit: app.Config.Server.RefreshLimit,
		Clock:        app.Clock,
		Source:       app.Source,
		Monitor:      mon,
		Hub:          hub,
		Alerts:       app.Alerts,
		Portfolio:    app.Portfolio,
		Preferences:  app.Preferences,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	output.Info("Listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
