package models

// ScreenFilter holds the monitoring table filters.
type ScreenFilter struct {
	Sectors  []Sector `json:"sectors,omitempty"`
	MinYield float64  `json:"min_yield"`
	MaxPB    float64  `json:"max_pb"`
	MinScore int      `json:"min_score"`
	MaxPrice float64  `json:"max_price"`
	Limit    int      `json:"limit"`
}

// Preferences holds user display settings.
type Preferences struct {
	DarkMode       bool              `json:"dark_mode"`
	SegmentColors  map[Sector]string `json:"segment_colors"`
	DefaultFilters ScreenFilter      `json:"default_filters"`
	TableColumns   []string          `json:"table_columns"`
	DefaultSort    string            `json:"default_sort"`
}

// DefaultSegmentColors is the stock sector palette.
func DefaultSegmentColors() map[Sector]string {
	return map[Sector]string{
		SectorReceivables: "#4bc0c0",
		SectorLogistics:   "#36a2eb",
		SectorShopping:    "#9966ff",
		SectorOffices:     "#ff9f40",
		SectorFundOfFunds: "#ff6384",
		SectorHybrid:      "#ffcd56",
	}
}
