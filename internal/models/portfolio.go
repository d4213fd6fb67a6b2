package models

import "time"

// TransactionType is a buy or a sell.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// Transaction is one executed portfolio operation.
type Transaction struct {
	ID       string          `json:"id" csv:"id"`
	Ticker   string          `json:"ticker" csv:"ticker"`
	Type     TransactionType `json:"type" csv:"type"`
	Quantity int             `json:"quantity" csv:"quantity"`
	Price    float64         `json:"price" csv:"price"`
	Date     time.Time       `json:"date" csv:"date"`
	Notes    string          `json:"notes,omitempty" csv:"notes"`
}

// Holding is a current position derived from transactions.
type Holding struct {
	Ticker       string  `json:"ticker"`
	Quantity     int     `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
}

// PlanItem is one fund a monthly purchase plan intends to buy.
type PlanItem struct {
	Ticker      string  `json:"ticker"`
	Quantity    int     `json:"quantity"`
	TargetPrice float64 `json:"target_price"`
}

// PurchasePlan is a monthly buying target.
type PurchasePlan struct {
	ID     string     `json:"id"`
	Month  string     `json:"month"` // YYYY-MM
	Budget float64    `json:"budget"`
	Items  []PlanItem `json:"items"`
}

// PlanStatus is the progress of a purchase plan.
type PlanStatus string

const (
	PlanDone       PlanStatus = "Concluído"
	PlanPartial    PlanStatus = "Parcial"
	PlanPending    PlanStatus = "Pendente"
	PlanInProgress PlanStatus = "Em andamento"
	PlanFuture     PlanStatus = "Futuro"
)
