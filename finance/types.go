/*
Package finance holds the project-controls data model shared by the report
aggregator, the cache stores and the persistence layer.

PURPOSE:
  A construction contractor tracks projects and the money flowing around
  them: purchase requests (PYC) for materials, payment requests (DNTT) paid
  out to suppliers, inflows received from the client, plus the tasks and
  inventory that go with a project. This file defines those records.

KEY CONCEPTS IN THIS FILE (types.go):
  - Project: carries TotalPlannedBudget, used as the contract value
  - PurchaseRequest + PurchaseLineItem: procurement, committed once approved
  - PaymentRequest: money going out (outflow)
  - Inflow: money coming in from the client
  - Task, Resource, Supplier, Department: operational records

STATUS VALUES:
  Statuses are stored and transmitted as the exact Vietnamese strings the
  business uses ("Chờ duyệt", "Đã duyệt", ...). They are typed strings so
  that unknown values survive a round trip instead of failing to parse.

MONEY:
  All monetary fields are decimal.Decimal. See money.go for the lenient
  coercion used when reading stored amounts.

SEE ALSO:
  - money.go: ParseAmount / Float
  - errors.go: sentinel and structured errors
  - report/aggregator.go: consumer of these types
*/
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS & PRIORITY ENUMERATIONS
// =============================================================================

// RequestStatus is the approval state of a purchase or payment request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "Chờ duyệt"
	StatusApproved RequestStatus = "Đã duyệt"
	StatusRejected RequestStatus = "Từ chối"
)

// Priority is the urgency of a purchase request.
type Priority string

const (
	PriorityUrgent Priority = "Khẩn cấp"
	PriorityHigh   Priority = "Cao"
	PriorityNormal Priority = "Thường"
	PriorityLow    Priority = "Thấp"
)

// PriorityRank orders priorities for the pending queue. Lower is more urgent.
// Unknown priorities rank as PriorityNormal.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// TaskStatus is the progress state of a task.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "Chưa bắt đầu"
	TaskInProgress TaskStatus = "Đang thực hiện"
	TaskDone       TaskStatus = "Hoàn thành"
	TaskOverdue    TaskStatus = "Trễ hạn"

	// TaskOther collects any status outside the four above.
	TaskOther TaskStatus = "Khác"
)

// KnownTaskStatuses lists the closed set of task statuses in display order.
var KnownTaskStatuses = []TaskStatus{TaskNotStarted, TaskInProgress, TaskDone, TaskOverdue}

// IsKnown reports whether s is one of KnownTaskStatuses.
func (s TaskStatus) IsKnown() bool {
	for _, k := range KnownTaskStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// DefaultCategory labels line items and payments that carry no category.
const DefaultCategory = "Khác"

// =============================================================================
// PROJECT
// =============================================================================

// Project is a construction contract being executed.
type Project struct {
	ID                 string
	Name               string
	TotalPlannedBudget decimal.Decimal // contract value
	Status             string
	StartDate          *time.Time
	EndDate            *time.Time
	ProgressPercent    int
	CreatedAt          time.Time
}

// ContractValue is the revenue ceiling used in profit calculations.
func (p Project) ContractValue() decimal.Decimal {
	return p.TotalPlannedBudget
}

// BudgetLine is the planned budget for one cost category of a project.
type BudgetLine struct {
	ID        string
	ProjectID string
	Category  string
	Amount    decimal.Decimal
}

// =============================================================================
// PURCHASE REQUESTS (PYC)
// =============================================================================

// PurchaseRequest is a procurement request raised against a project.
type PurchaseRequest struct {
	ID          string
	ProjectID   string
	Code        string
	Status      RequestStatus
	Priority    Priority
	TotalAmount decimal.Decimal
	RequestedBy string
	SupplierID  string
	Note        string
	CreatedAt   time.Time
	Items       []PurchaseLineItem
}

// IsApproved reports whether the request counts towards committed cost.
func (r PurchaseRequest) IsApproved() bool {
	return r.Status == StatusApproved
}

// PurchaseLineItem is one row of a purchase request.
// LineTotal is computed by the store when the item is written.
type PurchaseLineItem struct {
	ID        string
	RequestID string
	Category  string
	ItemName  string
	Unit      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// ComputeLineTotal returns quantity × unit price.
func (i PurchaseLineItem) ComputeLineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// =============================================================================
// CASH MOVEMENTS
// =============================================================================

// Inflow is a payment received from the client against the contract.
type Inflow struct {
	ID        string
	ProjectID string
	Amount    decimal.Decimal
	Date      time.Time
	Note      string
}

// PaymentRequest (DNTT) is money paid out for a project.
type PaymentRequest struct {
	ID          string
	ProjectID   string
	Code        string
	Category    string
	TotalGross  decimal.Decimal
	RequestDate time.Time
	Status      RequestStatus
	SupplierID  string
	Note        string
}

// =============================================================================
// OPERATIONAL RECORDS
// =============================================================================

// Task is a unit of work on a project.
type Task struct {
	ID        string
	ProjectID string
	Name      string
	Assignee  string
	Status    TaskStatus
	DueDate   *time.Time
}

// Resource is an inventory item (materials, tools).
type Resource struct {
	ID        string
	Code      string
	Name      string
	Category  string
	Unit      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Warehouse string
}

// Supplier provides materials and services.
type Supplier struct {
	ID      string
	Name    string
	TaxCode string
	Phone   string
	Address string
}

// Department groups personnel.
type Department struct {
	ID   string
	Name string
}
