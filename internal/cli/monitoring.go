package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"fii-monitor/internal/models"
	"fii-monitor/internal/page"
	"fii-monitor/internal/screener"
	"fii-monitor/internal/stream"
	"fii-monitor/pkg/utils"
)

// addMonitoringCommands adds live monitoring commands.
func addMonitoringCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newTailCmd(app))
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live page in the terminal",
		Long: `Enter a page and redraw it on every monitor tick until interrupted.

Pages: dashboard, monitoramento, carteira, alertas, analise-setorial.
Active alert rules are evaluated on every tick.`,
		Example: `  fiimonitor watch
  fiimonitor watch --page monitoramento
  fiimonitor watch --page alertas --duration 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			name, _ := cmd.Flags().GetString("page")
			return watch(ctx, cmd, app, name)
		},
	}
	cmd.Flags().StringP("page", "p", string(page.Dashboard), "page to watch")
	cmd.Flags().Duration("duration", 0, "stop after this long (0 = until interrupted)")
	return cmd
}

// watch renders one page until ctx is done.
func watch(ctx context.Context, cmd *cobra.Command, app *App, name string) error {
	output := NewOutput(cmd)
	kind, err := page.ParseKind(name)
	if err != nil {
		return err
	}
	if err := app.Init(ctx); err != nil {
		return err
	}

	mon := app.NewMonitor()
	defer mon.Close()
	renderer := app.NewRenderScheduler()
	defer renderer.Close()

	var mu sync.Mutex
	closed := false
	clearScreen := output.colorEnabled

	p, err := page.New(kind, page.Deps{
		Source:    app.Source,
		Monitor:   mon,
		Scheduler: renderer,
		Alerts:    app.Alerts,
		Portfolio: app.Portfolio,
		Clock:     app.Clock,
		Debounce:  app.Config.Render.Debounce,
		Filter: func() models.ScreenFilter {
			prefs, err := app.Preferences.Get(context.Background())
			if err != nil {
				return screener.DefaultFilter()
			}
			return prefs.DefaultFilters
		},
		OnRender: func(v page.View) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			if output.IsJSON() {
				_ = output.JSON(v)
				return
			}
			if clearScreen {
				output.Printf("\033[H\033[2J")
			}
			drawView(output, v)
		},
	}, app.Logger)
	if err != nil {
		return err
	}

	if err := p.Enter(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	mu.Lock()
	closed = true
	mu.Unlock()
	p.Leave()
	return nil
}

var pageTitles = map[page.Kind]string{
	page.Dashboard:  "Dashboard",
	page.Monitoring: "Monitoramento",
	page.Portfolio:  "Carteira",
	page.Alerts:     "Alertas",
	page.Sectors:    "Análise setorial",
}

func drawView(output *Output, v page.View) {
	output.Bold("%s", pageTitles[v.Page])
	output.Println()

	switch v.Page {
	case page.Dashboard:
		d := v.Dashboard
		output.Box("Resumo", []string{
			fmt.Sprintf("Fundos:        %d", d.Funds),
			fmt.Sprintf("DY médio:      %s", FormatYield(d.AvgYield)),
			fmt.Sprintf("P/VP médio:    %s", utils.FormatRatio(d.AvgPB)),
			fmt.Sprintf("Descontados:   %d", d.Undervalue),
		})
		output.Println()
		output.Bold("Maiores scores")
		drawRanked(output, d.TopScore)
		output.Println()
		output.Bold("Maior potencial")
		drawRanked(output, d.TopUpside)
	case page.Monitoring:
		drawRanked(output, v.Ranked)
	case page.Portfolio:
		if len(v.Portfolio.Positions) == 0 {
			output.Info("Portfolio is empty")
		} else {
			displaySummary(output, *v.Portfolio)
		}
		for _, plan := range v.Plans {
			output.Println()
			displayPlan(output, plan)
		}
	case page.Alerts:
		table := NewTable(output, "ID", "TICKER", "TIPO", "LIMITE", "STATUS")
		for _, r := range v.Rules {
			status := output.Yellow(r.Status)
			if !r.Active {
				status = output.DimText("inativo")
			}
			table.AddRow(fmt.Sprintf("%d", r.ID), r.Ticker, string(r.Kind), FormatThreshold(r.Kind, r.Threshold), status)
		}
		table.Render()
		if len(v.Notifications) > 0 {
			output.Println()
			for _, n := range v.Notifications {
				output.Println(alertLine(output, n))
			}
		}
	case page.Sectors:
		renderSectors(output, v.Sectors)
	}

	output.Println()
	output.Dim("v%d · %s · %s", v.Version, FormatDateTime(v.UpdatedAt), utils.MarketStatusAt(v.UpdatedAt))
}

func drawRanked(output *Output, ranked []models.RankedFund) {
	table := NewTable(output, fundHeaders...)
	for _, r := range ranked {
		table.AddRow(fundRow(output, r.Rank, r.Fund)...)
	}
	table.Render()
}

func newTailCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a running server's live stream",
		Long: `Connect to the /ws endpoint of 'fiimonitor serve' and print
snapshots, monitor status and notifications as they arrive.`,
		Example: `  fiimonitor tail
  fiimonitor tail --url ws://nas.local:8080/ws --refresh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			url, _ := cmd.Flags().GetString("url")
			if url == "" {
				addr := app.Config.Server.Addr
				if strings.HasPrefix(addr, ":") {
					addr = "localhost" + addr
				}
				url = "ws://" + addr + "/ws"
			}
			refresh, _ := cmd.Flags().GetBool("refresh")
			return tail(ctx, NewOutput(cmd), url, refresh)
		},
	}
	cmd.Flags().String("url", "", "stream URL (default from server.addr)")
	cmd.Flags().Bool("refresh", false, "ask the server for an immediate refresh")
	return cmd
}

// tail prints stream events until ctx is done or the server goes away.
func tail(ctx context.Context, output *Output, url string, refresh bool) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	if refresh {
		if err := wsjson.Write(ctx, conn, map[string]string{"action": "refresh"}); err != nil {
			return err
		}
	}
	if !output.IsJSON() {
		output.Dim("Connected to %s", url)
	}

	for {
		var ev stream.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		if output.IsJSON() {
			if err := output.JSON(ev); err != nil {
				return err
			}
			continue
		}
		printEvent(output, ev)
	}
}

func printEvent(output *Output, ev stream.Event) {
	stamp := output.DimText(FormatDateTime(ev.Timestamp))
	switch ev.Topic {
	case stream.TopicFunds:
		byScore, _ := screener.Sort(ev.Funds, "score", true)
		best := "-"
		if len(byScore) > 0 {
			f := byScore[0]
			best = fmt.Sprintf("%s (score %d, DY %s)", f.Ticker, f.Score, FormatYield(f.AnnualYield))
		}
		output.Printf("%s %s %d funds · best %s\n", stamp, output.Cyan("FUNDS"), len(ev.Funds), best)
	case stream.TopicNotifications:
		if ev.Notification != nil {
			output.Println(alertLine(output, *ev.Notification))
		}
	case stream.TopicStatus:
		output.Printf("%s %s %s\n", stamp, output.DimText("STATUS"), describeStatus(ev.Status))
	}
}

// describeStatus renders a monitor or job status decoded as a JSON object.
func describeStatus(status interface{}) string {
	m, ok := status.(map[string]interface{})
	if !ok {
		return fmt.Sprint(status)
	}
	if job, ok := m["job"]; ok {
		result := "ok"
		if e, _ := m["error"].(string); e != "" {
			result = "failed: " + e
		}
		return fmt.Sprintf("job %v %s", job, result)
	}
	return fmt.Sprintf("monitor running=%v subscribers=%v retries=%v", m["running"], m["subscribers"], m["retry_count"])
}
