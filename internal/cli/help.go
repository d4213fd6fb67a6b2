package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"fii-monitor/internal/config"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newExamplesCmd())
	rootCmd.AddCommand(newQuickstartCmd(app))
}

type example struct {
	title    string
	commands []string
}

var examples = []example{
	{
		title: "Daily Check",
		commands: []string{
			"fiimonitor funds --limit 10         # Top funds by score",
			"fiimonitor screen --max-pb 1        # Funds trading below book value",
			"fiimonitor sectors                  # Averages per sector",
			"fiimonitor fund HGLG11 --ma 20      # One fund with a 20-day average",
		},
	},
	{
		title: "Alerts",
		commands: []string{
			"fiimonitor alerts add HGLG11 price-below 150",
			"fiimonitor alerts add MXRF11 yield-above 12",
			"fiimonitor alerts import rules.yaml # Bulk import, all or nothing",
			"fiimonitor alerts check             # Evaluate once",
			"fiimonitor alerts history           # What fired",
		},
	},
	{
		title: "Portfolio",
		commands: []string{
			"fiimonitor portfolio buy HGLG11 10 158,40 --date 2024-02-15",
			"fiimonitor portfolio sell MXRF11 50 10,20",
			"fiimonitor portfolio show           # Valued positions",
			"fiimonitor portfolio plan set 2024-03 1500 HGLG11:5:155 MXRF11:50:10",
			"fiimonitor portfolio plan list      # Plans with status",
		},
	},
	{
		title: "Live",
		commands: []string{
			"fiimonitor watch                    # Live dashboard",
			"fiimonitor watch --page alertas     # Live alert statuses",
			"fiimonitor serve                    # HTTP API and /ws stream",
			"fiimonitor tail --refresh           # Follow a running server",
		},
	},
	{
		title: "Export",
		commands: []string{
			"fiimonitor export funds             # funds.csv",
			"fiimonitor export portfolio -f xlsx # portfolio.xlsx",
			"fiimonitor export notifications -o - # CSV to stdout",
		},
	},
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}
			return nil
		},
	}
}

func newQuickstartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("FII monitor - Quick Start")
			output.Println()

			steps := []struct {
				title string
				body  []string
			}{
				{"1. Configuration", []string{
					"Settings live in " + config.ConfigPath(app.configDir()) + ".",
					"A template is written on first run. Check it with 'fiimonitor config validate'.",
				}},
				{"2. Data source", []string{
					"The default provider is a built-in mock. For live quotes set",
					"provider.kind = \"brapi\" and export FII_BRAPI_TOKEN.",
				}},
				{"3. First look", []string{
					"fiimonitor funds",
					"fiimonitor watch",
				}},
				{"4. Alerts and portfolio", []string{
					"fiimonitor alerts add HGLG11 price-below 150",
					"fiimonitor portfolio buy HGLG11 10 158,40",
				}},
			}
			for _, s := range steps {
				output.Bold(s.title)
				for _, line := range s.body {
					output.Printf("  %s\n", line)
				}
				output.Println()
			}
			output.Dim("Run 'fiimonitor examples' for more workflows.")
			return nil
		},
	}
}
