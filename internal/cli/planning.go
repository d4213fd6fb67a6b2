package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fii-monitor/internal/models"
	"fii-monitor/internal/portfolio"
	"fii-monitor/pkg/utils"
)

// addPlanningCommands adds portfolio and purchase plan commands.
func addPlanningCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPortfolioCmd(app))
}

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portfolio",
		Aliases: []string{"carteira"},
		Short:   "Portfolio and purchase plans",
		Long: `Record buys and sells, show valued positions, and manage monthly
purchase plans. Positions are always derived from the transaction log.`,
	}

	cmd.AddCommand(newPortfolioShowCmd(app))
	cmd.AddCommand(newTransactionCmd(app, models.TransactionBuy))
	cmd.AddCommand(newTransactionCmd(app, models.TransactionSell))
	cmd.AddCommand(newTransactionsCmd(app))
	cmd.AddCommand(newTransactionRemoveCmd(app))
	cmd.AddCommand(newPlanCmd(app))
	return cmd
}

func newPortfolioShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show valued positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			funds, err := snapshot(ctx, app, false)
			if err != nil {
				output.Warning("Quotes unavailable, positions valued at cost: %v", err)
			}
			sum := app.Portfolio.Summary(funds)

			if output.IsJSON() {
				return output.JSON(sum)
			}
			if len(sum.Positions) == 0 {
				output.Info("Portfolio is empty. Record a purchase with 'fiimonitor portfolio buy'.")
				return nil
			}
			displaySummary(output, sum)
			return nil
		},
	}
}

func displaySummary(output *Output, sum portfolio.Summary) {
	table := NewTable(output, "TICKER", "SETOR", "QTD", "PM", "ATUAL", "VALOR", "RETORNO", "REND./MÊS", "ALOC.")
	for _, p := range sum.Positions {
		current := utils.FormatBRL(p.CurrentPrice)
		if !p.Quoted {
			current = output.DimText(current + "*")
		}
		table.AddRow(
			output.BoldText(p.Ticker),
			string(p.Sector),
			utils.FormatQuantity(int64(p.Quantity)),
			utils.FormatBRL(p.AveragePrice),
			current,
			utils.FormatBRL(p.Value),
			output.Signed(p.Return, utils.FormatPercent(p.Return)),
			utils.FormatBRL(p.MonthlyDividends),
			FormatYield(p.Allocation),
		)
	}
	table.Render()
	output.Println()
	output.Printf("Patrimônio:        %s\n", output.BoldText(utils.FormatBRL(sum.TotalValue)))
	output.Printf("Custo:             %s\n", utils.FormatBRL(sum.TotalCost))
	output.Printf("Resultado:         %s\n", output.Signed(sum.Return, utils.FormatGain(sum.TotalValue-sum.TotalCost)+" ("+utils.FormatPercent(sum.Return)+")"))
	output.Printf("Rendimento mensal: %s\n", utils.FormatBRL(sum.MonthlyDividends))
	output.Printf("DY médio:          %s\n", FormatYield(sum.AverageYield))
}

func newTransactionCmd(app *App, kind models.TransactionType) *cobra.Command {
	verb := "Record a purchase"
	if kind == models.TransactionSell {
		verb = "Record a sale"
	}
	cmd := &cobra.Command{
		Use:   string(kind) + " <ticker> <quantity> <price>",
		Short: verb,
		Example: fmt.Sprintf(`  fiimonitor portfolio %s HGLG11 10 158,40
  fiimonitor portfolio %s MXRF11 100 10.05 --date 2024-02-15 --notes "aporte"`, kind, kind),
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}

			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			price, err := parseAmount("price", args[2])
			if err != nil {
				return err
			}
			tx := models.Transaction{
				Ticker:   strings.ToUpper(args[0]),
				Type:     kind,
				Quantity: qty,
				Price:    price,
			}
			tx.Date = app.Clock.Now()
			if raw, _ := cmd.Flags().GetString("date"); raw != "" {
				if tx.Date, err = parseDate(raw); err != nil {
					return err
				}
			}
			tx.Notes, _ = cmd.Flags().GetString("notes")

			saved, err := app.Portfolio.AddTransaction(ctx, tx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(saved)
			}
			output.Success("✓ %s %s × %s at %s", strings.ToUpper(string(kind)), utils.FormatQuantity(int64(saved.Quantity)), saved.Ticker, utils.FormatBRL(saved.Price))
			output.Dim("Transaction %s on %s", saved.ID, FormatDate(saved.Date))
			return nil
		},
	}
	cmd.Flags().String("date", "", "trade date (YYYY-MM-DD or DD/MM/YYYY, default today)")
	cmd.Flags().String("notes", "", "free-form notes")
	return cmd
}

func newTransactionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "transactions",
		Short: "List the transaction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Init(cmd.Context()); err != nil {
				return err
			}
			txs := app.Portfolio.Transactions()
			if output.IsJSON() {
				if txs == nil {
					txs = []models.Transaction{}
				}
				return output.JSON(txs)
			}
			if len(txs) == 0 {
				output.Info("No transactions recorded")
				return nil
			}
			table := NewTable(output, "ID", "DATA", "TIPO", "TICKER", "QTD", "PREÇO", "TOTAL", "NOTAS")
			for _, tx := range txs {
				kind := output.Green(string(tx.Type))
				if tx.Type == models.TransactionSell {
					kind = output.Red(string(tx.Type))
				}
				table.AddRow(
					tx.ID,
					FormatDate(tx.Date),
					kind,
					tx.Ticker,
					utils.FormatQuantity(int64(tx.Quantity)),
					utils.FormatBRL(tx.Price),
					utils.FormatBRL(tx.Price*float64(tx.Quantity)),
					tx.Notes,
				)
			}
			table.Render()
			return nil
		},
	}
}

func newTransactionRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <transaction-id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			if err := app.Portfolio.RemoveTransaction(ctx, args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("✓ Transaction %s deleted", args[0])
			return nil
		},
	}
}

func newPlanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Monthly purchase plans",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List plans with their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Init(cmd.Context()); err != nil {
				return err
			}
			plans := app.Portfolio.Plans()
			if output.IsJSON() {
				if plans == nil {
					plans = []portfolio.PlanView{}
				}
				return output.JSON(plans)
			}
			if len(plans) == 0 {
				output.Info("No purchase plans")
				return nil
			}
			for _, p := range plans {
				displayPlan(output, p)
			}
			return nil
		},
	})

	set := &cobra.Command{
		Use:   "set <YYYY-MM> <budget> <TICKER:QTY:PRICE>...",
		Short: "Create or replace the plan for a month",
		Example: `  fiimonitor portfolio plan set 2024-03 1500 HGLG11:5:155 MXRF11:50:10`,
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			budget, err := parseAmount("budget", args[1])
			if err != nil {
				return err
			}
			plan := models.PurchasePlan{Month: args[0], Budget: budget}
			for _, raw := range args[2:] {
				item, err := parsePlanItem(raw)
				if err != nil {
					return err
				}
				plan.Items = append(plan.Items, item)
			}
			saved, err := app.Portfolio.SavePlan(ctx, plan)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(saved)
			}
			output.Success("✓ Plan for %s saved", saved.Month)
			return nil
		},
	}
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <YYYY-MM>",
		Short: "Delete the plan for a month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if err := app.Init(ctx); err != nil {
				return err
			}
			if err := app.Portfolio.DeletePlan(ctx, args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("✓ Plan for %s deleted", args[0])
			return nil
		},
	})

	return cmd
}

func displayPlan(output *Output, p portfolio.PlanView) {
	status := output.Yellow(string(p.Status))
	switch p.Status {
	case models.PlanDone:
		status = output.Green(string(p.Status))
	case models.PlanPending:
		status = output.Red(string(p.Status))
	}

	var planned float64
	lines := make([]string, 0, len(p.Items)+1)
	for _, it := range p.Items {
		cost := it.TargetPrice * float64(it.Quantity)
		planned += cost
		lines = append(lines, fmt.Sprintf("%-7s %5d × %-12s = %s", it.Ticker, it.Quantity, utils.FormatBRL(it.TargetPrice), utils.FormatBRL(cost)))
	}
	lines = append(lines, fmt.Sprintf("Orçamento %s · planejado %s · %s", utils.FormatBRL(p.Budget), utils.FormatBRL(planned), status))
	output.Box("Plano "+p.Month, lines)
}
