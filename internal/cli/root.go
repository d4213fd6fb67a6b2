package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fii-monitor/internal/alerts"
	"fii-monitor/internal/clock"
	"fii-monitor/internal/config"
	"fii-monitor/internal/datasource"
	"fii-monitor/internal/logging"
	"fii-monitor/internal/monitor"
	"fii-monitor/internal/notify"
	"fii-monitor/internal/portfolio"
	"fii-monitor/internal/preferences"
	"fii-monitor/internal/render"
	"fii-monitor/internal/security"
	"fii-monitor/internal/store"
	"fii-monitor/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. Services are built on first use
// so that commands like version and config never touch the store.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	ConfigDir string
	Clock     clock.Clock

	// Provider overrides the configured quote provider when set.
	Provider datasource.Provider

	once      sync.Once
	closeOnce sync.Once
	initErr   error

	kv          store.KV
	State       *store.State
	Source      *datasource.Adapter
	Notifier    *notify.MultiNotifier
	Alerts      *alerts.Service
	Portfolio   *portfolio.Service
	Preferences *preferences.Store
}

// NewApp creates an App for cfg.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger, Clock: clock.New()}
}

// Init builds the store and the services on top of it.
func (a *App) Init(ctx context.Context) error {
	a.once.Do(func() {
		a.initErr = a.init(ctx)
	})
	return a.initErr
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	if a.Clock == nil {
		a.Clock = clock.New()
	}

	kv, err := store.Open(strings.ToLower(cfg.Store.Backend), cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	var codec store.Codec = store.ObfuscatedCodec{}
	if cfg.Store.Sealed {
		sealed, err := store.NewSealedCodec(cfg.Store.Passphrase)
		if err != nil {
			kv.Close()
			return fmt.Errorf("preparing sealed store: %w", err)
		}
		codec = sealed
	}
	a.kv = kv
	a.State = store.NewState(kv, codec)
	a.Logger.Debug().Str("backend", cfg.Store.Backend).Str("codec", codec.Name()).Msg("Store opened")

	provider := a.Provider
	if provider == nil {
		provider = a.newProvider()
	}
	a.Source = datasource.NewAdapter(provider, datasource.AdapterConfig{
		TTL:        cfg.Cache.TTL,
		BatchSize:  cfg.Cache.BatchSize,
		BatchPause: cfg.Cache.BatchPause,
	}, a.Clock, a.Logger)
	if cfg.Cache.Persist {
		a.Source.WithPersistence(a.State)
		if warmed, err := a.Source.Warm(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Ignoring unreadable persisted cache")
		} else if warmed {
			a.Logger.Debug().Msg("Cache warmed from store")
		}
	}

	a.Notifier = notify.NewMultiNotifier(cfg.Notifications, a.Logger)
	if cfg.Notifications.NATS.Enabled {
		nc, err := notify.NewNATSChannel(cfg.Notifications.NATS, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("NATS notifications unavailable")
		} else {
			a.Notifier.AddChannel(nc)
		}
	}

	a.Alerts = alerts.NewService(a.State, a.Notifier, alerts.Config{
		DedupWindow:  cfg.Alerts.DedupWindow,
		HistoryLimit: cfg.Alerts.HistoryLimit,
		DisplayLimit: cfg.Alerts.DisplayLimit,
	}, a.Clock, a.Logger)
	if err := a.Alerts.Load(ctx); err != nil {
		return err
	}

	a.Portfolio = portfolio.NewService(a.State, a.Clock, a.Logger)
	if err := a.Portfolio.Load(ctx); err != nil {
		return err
	}

	a.Preferences = preferences.NewStore(a.State, a.Logger)
	return nil
}

func (a *App) newProvider() datasource.Provider {
	p := a.Config.Provider
	if strings.ToLower(p.Kind) != "brapi" {
		return datasource.NewMockProvider(datasource.DefaultMockConfig())
	}
	bc := datasource.DefaultBrapiConfig()
	if p.BaseURL != "" {
		bc.BaseURL = p.BaseURL
	}
	if p.Timeout > 0 {
		bc.Timeout = p.Timeout
	}
	if p.RateLimit > 0 {
		bc.RequestsPerSecond = p.RateLimit
	}
	bc.Token = p.Token
	return datasource.NewBrapiProvider(bc, a.Clock, a.Logger)
}

// NewMonitor builds a realtime monitor over the app's data source.
func (a *App) NewMonitor() *monitor.Monitor {
	m := monitor.New(a.Source, monitor.Config{
		Interval:   a.Config.Monitor.Interval,
		RetryDelay: a.Config.Monitor.RetryDelay,
		MaxRetries: a.Config.Monitor.MaxRetries,
	}, a.Clock, a.Logger)
	m.SetAlertChecker(a.Alerts)
	m.SetWarner(a.Notifier)
	return m
}

// NewRenderScheduler builds a frame-driven render scheduler.
func (a *App) NewRenderScheduler() *render.Scheduler {
	rc := a.Config.Render
	cfg := render.DefaultConfig()
	if rc.FrameInterval > 0 {
		cfg.FrameInterval = rc.FrameInterval
	}
	if rc.SlowThreshold > 0 {
		cfg.SlowThreshold = rc.SlowThreshold
	}
	cfg.MaxChainedPasses = rc.MaxChainedPasses
	frames := render.NewTimerFrames(a.Clock, cfg.FrameInterval)
	return render.NewScheduler(cfg, frames, a.Clock, a.Notifier, a.Logger)
}

// Close releases the store and notification connections. It is safe to call
// more than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.Notifier != nil {
			a.Notifier.Close()
		}
		if a.kv != nil {
			err = a.kv.Close()
		}
	})
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fiimonitor",
		Short: "FII monitor - Brazilian real estate fund dashboard",
		Long: `FII monitor tracks Brazilian real estate investment funds (FIIs).

It fetches quotes and indicators, ranks funds by score, evaluates price,
yield and P/VP alerts, and tracks a personal portfolio with monthly
purchase plans. 'fiimonitor serve' exposes everything over HTTP and
WebSocket; 'fiimonitor watch' renders a live page in the terminal.

Use 'fiimonitor examples' to see common workflows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" && dir != app.ConfigDir {
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.ConfigDir = dir
			}
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/fii-monitor)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addMarketDataCommands(rootCmd, app)
	addAlertCommands(rootCmd, app)
	addPlanningCommands(rootCmd, app)
	addMonitoringCommands(rootCmd, app)
	addUtilityCommands(rootCmd, app)
	addHelpCommands(rootCmd, app)

	return rootCmd
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
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("FII monitor v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func (a *App) configDir() string {
	if a.ConfigDir != "" {
		return a.ConfigDir
	}
	return config.DefaultConfigDir()
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
			showConfig(output, app.Config, app.Clock.Now())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigPath(app.configDir())
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg without secrets.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	c.Provider.Token = security.MaskCredential(c.Provider.Token)
	c.Store.Passphrase = security.MaskCredential(c.Store.Passphrase)
	c.Notifications.Webhook.URL = security.RedactURL(c.Notifications.Webhook.URL)
	c.Notifications.NATS.URL = security.RedactURL(c.Notifications.NATS.URL)
	return c
}

func showConfig(output *Output, cfg *config.Config, now time.Time) {
	output.Bold("Data Source")
	output.Printf("  Provider:        %s\n", cfg.Provider.Kind)
	output.Printf("  Cache TTL:       %s\n", FormatDuration(cfg.Cache.TTL))
	output.Printf("  Batch Size:      %d\n", cfg.Cache.BatchSize)
	output.Printf("  Persist Cache:   %v\n", cfg.Cache.Persist)
	output.Println()

	output.Bold("Monitor")
	output.Printf("  Interval:        %s\n", FormatDuration(cfg.Monitor.Interval))
	output.Printf("  Retry Delay:     %s\n", FormatDuration(cfg.Monitor.RetryDelay))
	output.Printf("  Max Retries:     %d\n", cfg.Monitor.MaxRetries)
	output.Println()

	output.Bold("Alerts")
	output.Printf("  Dedup Window:    %s\n", FormatDuration(cfg.Alerts.DedupWindow))
	output.Printf("  History Limit:   %d\n", cfg.Alerts.HistoryLimit)
	output.Println()

	output.Bold("Store")
	output.Printf("  Backend:         %s\n", cfg.Store.Backend)
	output.Printf("  Path:            %s\n", cfg.Store.Path)
	output.Printf("  Sealed:          %v\n", cfg.Store.Sealed)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Refresh Limit:   %s\n", FormatDuration(cfg.Server.RefreshLimit))
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Terminal:        %v\n", cfg.Notifications.Terminal)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  NATS:            %v\n", cfg.Notifications.NATS.Enabled)
	output.Println()

	status := utils.MarketStatusAt(now)
	output.Dim("B3 market: %s", status)
}
