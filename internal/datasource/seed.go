package datasource

import "fii-monitor/internal/models"

// seedFund holds the reference fundamentals the mock provider perturbs and
// the brapi provider enriches with live prices.
type seedFund struct {
	Ticker         string
	Sector         models.Sector
	Price          float64
	BookValue      float64
	LastDividend   float64
	AnnualYield    float64
	Vacancy        float64
	NumAssets      int
	DailyLiquidity float64
	CapRate        float64
	FFOYield       float64
	Manager        string
}

var seedFunds = []seedFund{
	{"MXRF11", models.SectorReceivables, 9.80, 10.32, 0.09, 12.6, 0, 45, 3190000, 11.2, 13.1, "Maxi Renda"},
	{"KNCR11", models.SectorReceivables, 10.12, 10.33, 0.11, 13.1, 0, 32, 2870000, 12.5, 13.8, "Kinea"},
	{"HGLG11", models.SectorLogistics, 15.80, 19.27, 0.12, 9.2, 3.2, 18, 1950000, 8.7, 9.5, "CSHG"},
	{"VISC11", models.SectorShopping, 11.15, 12.67, 0.08, 8.7, 5.1, 12, 1820000, 7.9, 9.1, "Vinci"},
	{"XPLG11", models.SectorLogistics, 10.45, 12.29, 0.08, 9.3, 2.9, 15, 2150000, 8.5, 9.8, "XP Asset"},
	{"HGRE11", models.SectorOffices, 12.50, 15.63, 0.09, 8.5, 12.8, 8, 1650000, 7.8, 8.9, "CSHG"},
	{"XPML11", models.SectorShopping, 10.80, 13.01, 0.07, 8.4, 4.8, 10, 1740000, 7.6, 8.7, "XP Asset"},
	{"RECT11", models.SectorReceivables, 17.20, 17.73, 0.17, 12.2, 0, 28, 1320000, 11.5, 12.8, "Riza"},
	{"BCFF11", models.SectorFundOfFunds, 7.40, 8.13, 0.06, 10.5, 0, 22, 1280000, 9.8, 11.2, "BTG Pactual"},
	{"IRDM11", models.SectorReceivables, 10.30, 10.40, 0.12, 14.2, 0, 38, 2450000, 13.8, 14.5, "Iridium"},
	{"HFOF11", models.SectorFundOfFunds, 7.25, 7.80, 0.06, 9.8, 0, 25, 1150000, 9.2, 10.3, "Hedge"},
	{"RZTR11", models.SectorReceivables, 8.70, 9.06, 0.11, 15.1, 0, 42, 1920000, 14.2, 15.5, "Riza"},
	{"VGIP11", models.SectorReceivables, 9.95, 10.26, 0.11, 13.7, 0, 30, 1680000, 12.9, 14.1, "Valora"},
	{"KNRI11", models.SectorHybrid, 17.10, 21.11, 0.12, 8.4, 7.2, 20, 2250000, 7.8, 8.9, "Kinea"},
	{"RBRR11", models.SectorReceivables, 9.45, 9.84, 0.10, 12.8, 0, 35, 1480000, 12.1, 13.2, "RBR Asset"},
	{"HCTR11", models.SectorHybrid, 11.25, 13.07, 0.09, 9.6, 5.8, 15, 1350000, 8.9, 10.1, "Hectare"},
	{"HSML11", models.SectorShopping, 9.75, 11.47, 0.07, 8.6, 4.5, 8, 1280000, 7.9, 9.0, "CSHG"},
	{"XPIN11", models.SectorLogistics, 8.90, 10.47, 0.07, 9.5, 3.1, 12, 1180000, 8.7, 9.9, "XP Asset"},
	{"RBRF11", models.SectorFundOfFunds, 7.85, 8.63, 0.07, 10.7, 0, 28, 1420000, 10.0, 11.3, "RBR Asset"},
	{"VINO11", models.SectorHybrid, 8.15, 9.59, 0.06, 8.8, 6.2, 14, 980000, 8.1, 9.2, "Vinci"},
	{"HGRU11", models.SectorShopping, 14.20, 16.90, 0.10, 8.5, 4.2, 10, 1680000, 7.8, 8.9, "CSHG"},
	{"BTLG11", models.SectorLogistics, 11.50, 13.37, 0.09, 9.4, 2.5, 9, 1580000, 8.6, 9.8, "BTG Pactual"},
	{"RECR11", models.SectorReceivables, 10.05, 10.26, 0.12, 14.3, 0, 32, 1380000, 13.5, 14.8, "REC Gestão"},
	{"HGBS11", models.SectorShopping, 16.80, 19.54, 0.12, 8.6, 3.8, 7, 1520000, 7.9, 9.0, "CSHG"},
	{"VILG11", models.SectorLogistics, 10.20, 11.85, 0.08, 9.4, 3.0, 12, 1650000, 8.7, 9.9, "Vinci"},
	{"BRCR11", models.SectorOffices, 8.95, 11.19, 0.06, 8.0, 14.5, 12, 1280000, 7.3, 8.4, "BTG Pactual"},
	{"HGFF11", models.SectorFundOfFunds, 8.10, 8.82, 0.07, 10.4, 0, 30, 1350000, 9.7, 11.0, "CSHG"},
	{"XPCI11", models.SectorReceivables, 9.65, 9.95, 0.11, 13.7, 0, 36, 1580000, 12.8, 14.0, "XP Asset"},
	{"RBVA11", models.SectorReceivables, 9.85, 10.16, 0.11, 13.4, 0, 28, 1250000, 12.5, 13.8, "RBR Asset"},
}

// SeedTickers returns the tickers of the reference fund list.
func SeedTickers() []string {
	out := make([]string, len(seedFunds))
	for i, s := range seedFunds {
		out[i] = s.Ticker
	}
	return out
}

func findSeed(ticker string) (seedFund, bool) {
	for _, s := range seedFunds {
		if s.Ticker == ticker {
			return s, true
		}
	}
	return seedFund{}, false
}
