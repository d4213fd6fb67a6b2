package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fii-monitor/internal/alerts"
	"fii-monitor/internal/models"
)

// addAlertCommands adds alert rule and notification history commands.
func addAlertCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAlertsCmd(app))
}

func newAlertsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alerts",
		Aliases: []string{"alert"},
		Short:   "Alert rule management",
		Long: `Create, list, toggle and delete alert rules, and inspect the
notification history.

Kinds: price-above, price-below, yield-above, yield-below, pb-above, pb-below.`,
	}

	cmd.AddCommand(newAlertsListCmd(app))
	cmd.AddCommand(newAlertsAddCmd(app))
	cmd.AddCommand(newAlertsToggleCmd(app))
	cmd.AddCommand(newAlertsRemoveCmd(app))
	cmd.AddCommand(newAlertsImportCmd(app))
	cmd.AddCommand(newAlertsCheckCmd(app))
	cmd.AddCommand(newAlertsHistoryCmd(app))
	return cmd
}

func newAlertsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List alert rules with their current status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if err := app.Init(ctx); err != nil {
				return err
			}

			rules := app.Alerts.List()
			funds, err := app.Source.Fetch(ctx)
			if err != nil {
				output.Warning("Quotes unavailable, statuses may be stale: %v", err)
			}

			type ruleStatus struct {
				models.AlertRule
				Status string `json:"status"`
			}
			list := make([]ruleStatus, 0, len(rules))
			for _, r := range rules {
				list = append(list, ruleStatus{AlertRule: r, Status: alerts.Status(r, funds)})
			}

			if output.IsJSON() {
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Info("No alert rules. Add one with 'fiimonitor alerts add'.")
				return nil
			}

			table := NewTable(output, "ID", "TICKER", "TIPO", "LIMITE", "ATIVO", "STATUS")
			for _, r := range list {
				active := output.Green("sim")
				if !r.Active {
					active = output.DimText("não")
				}
				status := output.Yellow(r.Status)
				if r.Status == alerts.StatusTriggered {
					status = output.Green(r.Status)
				}
				table.AddRow(
					fmt.Sprintf("%d", r.ID),
					r.Ticker,
					string(r.Kind),
					FormatThreshold(r.Kind, r.Threshold),
					active,
					status,
				)
			}
			table.Render()

			summary, _ := app.Alerts.Summarize(funds)
			output.Dim("%d rules · %d active · %d triggered", summary.Total, summary.Active, summary.Triggered)
			return nil
		},
	}
}

func newAlertsAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <ticker> <kind> <threshold>",
		Short: "Add an alert rule",
		Example: `  fiimonitor alerts add HGLG11 price-below 150
  fiimonitor alerts add MXRF11 yield-above 12,5
  fiimonitor alerts add XPML11 pb-below 0.95`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}

			threshold, err := parseAmount("threshold", args[2])
			if err != nil {
				return err
			}
			rule, err := app.Alerts.Create(ctx, args[0], models.AlertKind(strings.ToLower(args[1])), threshold)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(rule)
			}
			output.Success("✓ Alert %d created", rule.ID)
			output.Printf("  Ticker:    %s\n", rule.Ticker)
			output.Printf("  Condition: %s %s\n", rule.Kind, FormatThreshold(rule.Kind, rule.Threshold))
			return nil
		},
	}
}

func newAlertsToggleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Activate or deactivate a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rule, err := app.Alerts.Toggle(ctx, id)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rule)
			}
			state := "deactivated"
			if rule.Active {
				state = "activated"
			}
			output.Success("✓ Alert %d %s", rule.ID, state)
			return nil
		},
	}
}

func newAlertsRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a rule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := app.Alerts.Delete(ctx, id); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"deleted": id})
			}
			output.Success("✓ Alert %d deleted", id)
			return nil
		},
	}
}

func newAlertsImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import rules from a YAML file",
		Long: `Import a list of rules. Either every rule is valid and all are
added, or nothing is.

  - ticker: HGLG11
    kind: price-below
    threshold: 150
  - ticker: MXRF11
    kind: yield-above
    threshold: 12
    active: false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rules, err := app.Alerts.Import(ctx, f)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rules)
			}
			output.Success("✓ Imported %d rules", len(rules))
			return nil
		},
	}
}

func newAlertsCheckCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate every active rule once",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			force, _ := cmd.Flags().GetBool("force")
			funds, err := snapshot(ctx, app, force)
			if err != nil {
				return err
			}
			fired, err := app.Alerts.Check(ctx, funds)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(fired)
			}
			if len(fired) == 0 {
				output.Info("No alert fired")
				return nil
			}
			for _, n := range fired {
				output.Printf("%s %s\n", output.Level(n.Level), n.Message)
			}
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "bypass the cache")
	return cmd
}

func newAlertsHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the notification history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}

			if clear, _ := cmd.Flags().GetBool("clear"); clear {
				if err := app.Alerts.ClearHistory(ctx); err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]bool{"cleared": true})
				}
				output.Success("✓ Notification history cleared")
				return nil
			}

			limit, _ := cmd.Flags().GetInt("limit")
			history := app.Alerts.History(limit)
			if output.IsJSON() {
				if history == nil {
					history = []models.Notification{}
				}
				return output.JSON(history)
			}
			if len(history) == 0 {
				output.Info("No notifications yet")
				return nil
			}
			table := NewTable(output, "QUANDO", "NÍVEL", "TICKER", "MENSAGEM")
			for _, n := range history {
				table.AddRow(FormatDateTime(n.Timestamp), output.Level(n.Level), n.Ticker, n.Message)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "maximum entries (0 = display limit)")
	cmd.Flags().Bool("clear", false, "delete the whole history")
	return cmd
}

// alertLine renders a notification for streaming output.
func alertLine(output *Output, n models.Notification) string {
	ticker := n.Ticker
	if ticker == "" {
		ticker = "-"
	}
	return fmt.Sprintf("%s %s %-7s %s", output.DimText(FormatDateTime(n.Timestamp)), output.Level(n.Level), ticker, n.Message)
}
