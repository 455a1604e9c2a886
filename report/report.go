package report

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/project-controls/finance"
)

const (
	// TopItemsLimit caps the most expensive line items listed.
	TopItemsLimit = 5

	// PendingLimit caps the pending purchase requests listed.
	PendingLimit = 5

	// ChartMonths is the number of trailing months in the cashflow series.
	ChartMonths = 6
)

// ProjectReport is the derived financial and operational summary of a project.
// It is a value object; nothing here is persisted.
type ProjectReport struct {
	Project          finance.Project
	Financials       Financials
	CategoryAnalysis []CategoryLine
	TaskStatusCounts map[finance.TaskStatus]int
	TopItems         []TopItem
	PendingPYCs      []finance.PurchaseRequest
	ChartData        []MonthPoint
	GeneratedAt      time.Time
}

// Financials are the scalar aggregates.
//
// INVARIANTS:
//   - NetCashflow     = TotalInflow - TotalOutflow
//   - Profit          = ContractValue - CommittedCost
//   - ActualProfit    = ContractValue - TotalOutflow
//   - RemainingBudget = ContractValue - CommittedCost
type Financials struct {
	ContractValue   decimal.Decimal
	TotalInflow     decimal.Decimal
	TotalOutflow    decimal.Decimal
	CommittedCost   decimal.Decimal
	NetCashflow     decimal.Decimal
	Profit          decimal.Decimal
	ActualProfit    decimal.Decimal
	RemainingBudget decimal.Decimal
}

// CategoryLine breaks costs down by category.
// Committed sums approved purchase line items; Budget comes from budget
// lines and Actual from payment requests in the same category.
type CategoryLine struct {
	Name      string
	Budget    decimal.Decimal
	Committed decimal.Decimal
	Actual    decimal.Decimal
}

// TopItem is a purchase line item tagged with its owning request.
type TopItem struct {
	Name      string
	Category  string
	Total     decimal.Decimal
	RequestID string
	Status    finance.RequestStatus
}

// MonthPoint is one bucket of the monthly cashflow series.
type MonthPoint struct {
	Month   string // "YYYY-MM"
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
}

// Inputs are the records a report is computed from.
type Inputs struct {
	PurchaseRequests []finance.PurchaseRequest
	Tasks            []finance.Task
	Inflows          []finance.Inflow
	PaymentRequests  []finance.PaymentRequest
	BudgetLines      []finance.BudgetLine
}
