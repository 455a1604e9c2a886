/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Projects:   ProjectDTO, CreateProjectRequest
  Report:     ReportDTO, FinancialsDTO, CategoryLineDTO, TopItemDTO, MonthPointDTO
  PYC:        PurchaseRequestDTO, LineItemDTO, CreatePurchaseRequestRequest
  Cash:       InflowDTO, PaymentRequestDTO (+ Create*Request)
  Operations: TaskDTO, ResourceDTO, SupplierDTO, DepartmentDTO, BudgetLineDTO
  Cached:     CollectionDTO[T]
  Scenarios:  ScenarioDTO, LoadScenarioRequest

MONEY:
  Decimal amounts are converted to float64 at this boundary and nowhere
  else. Request amounts arrive as JSON numbers.

DATES:
  YYYY-MM-DD for business dates, RFC3339 for timestamps.

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  decodeAndValidate before touching the store.

SEE ALSO:
  - handlers.go: Uses these types
  - report/report.go: ProjectReport
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/project-controls/finance"
	"github.com/warp/project-controls/report"
)

const dateLayout = "2006-01-02"

// =============================================================================
// PROJECTS
// =============================================================================

// ProjectDTO represents a project in API responses.
type ProjectDTO struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	TotalPlannedBudget float64 `json:"total_planned_budget"`
	Status             string  `json:"status"`
	StartDate          *string `json:"start_date,omitempty"`
	EndDate            *string `json:"end_date,omitempty"`
	ProgressPercent    int     `json:"progress_percent"`
	CreatedAt          string  `json:"created_at,omitempty"`
}

// CreateProjectRequest creates or updates a project.
type CreateProjectRequest struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name" validate:"required"`
	TotalPlannedBudget float64 `json:"total_planned_budget" validate:"gte=0"`
	Status             string  `json:"status"`
	StartDate          string  `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate            string  `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	ProgressPercent    int     `json:"progress_percent" validate:"gte=0,lte=100"`
}

// BudgetLineDTO is a per-category planned budget.
type BudgetLineDTO struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Category  string  `json:"category"`
	Amount    float64 `json:"amount"`
}

// CreateBudgetLineRequest adds a budget line to a project.
type CreateBudgetLineRequest struct {
	ID       string  `json:"id"`
	Category string  `json:"category" validate:"required"`
	Amount   float64 `json:"amount" validate:"gte=0"`
}

// =============================================================================
// REPORT
// =============================================================================

// ReportDTO is the project dashboard.
type ReportDTO struct {
	Project          ProjectDTO           `json:"project"`
	Financials       FinancialsDTO        `json:"financials"`
	CategoryAnalysis []CategoryLineDTO    `json:"category_analysis"`
	TaskStatusCounts map[string]int       `json:"task_status_counts"`
	TopItems         []TopItemDTO         `json:"top_items"`
	PendingPYCs      []PurchaseRequestDTO `json:"pending_pycs"`
	ChartData        []MonthPointDTO      `json:"chart_data"`
	GeneratedAt      string               `json:"generated_at"`
}

// FinancialsDTO holds the project money summary.
type FinancialsDTO struct {
	ContractValue   float64 `json:"contract_value"`
	TotalInflow     float64 `json:"total_inflow"`
	TotalOutflow    float64 `json:"total_outflow"`
	CommittedCost   float64 `json:"committed_cost"`
	NetCashflow     float64 `json:"net_cashflow"`
	Profit          float64 `json:"profit"`
	ActualProfit    float64 `json:"actual_profit"`
	RemainingBudget float64 `json:"remaining_budget"`
}

// CategoryLineDTO is one row of the category breakdown.
type CategoryLineDTO struct {
	Name      string  `json:"name"`
	Budget    float64 `json:"budget"`
	Committed float64 `json:"committed"`
	Actual    float64 `json:"actual"`
}

// TopItemDTO is one of the largest purchase line items.
type TopItemDTO struct {
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Total     float64 `json:"total"`
	RequestID string  `json:"request_id"`
	Status    string  `json:"status"`
}

// MonthPointDTO is one month of the cash-flow chart.
type MonthPointDTO struct {
	Month   string  `json:"month"`
	Inflow  float64 `json:"inflow"`
	Outflow float64 `json:"outflow"`
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

// PurchaseRequestDTO represents a PYC with its items.
type PurchaseRequestDTO struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	Code        string        `json:"code"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	TotalAmount float64       `json:"total_amount"`
	RequestedBy string        `json:"requested_by,omitempty"`
	SupplierID  string        `json:"supplier_id,omitempty"`
	Note        string        `json:"note,omitempty"`
	CreatedAt   string        `json:"created_at"`
	Items       []LineItemDTO `json:"items"`
}

// LineItemDTO is one PYC row.
type LineItemDTO struct {
	ID        string  `json:"id"`
	Category  string  `json:"category"`
	ItemName  string  `json:"item_name"`
	Unit      string  `json:"unit,omitempty"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// CreatePurchaseRequestRequest raises a PYC. Line totals are computed
// server side.
type CreatePurchaseRequestRequest struct {
	ID          string                  `json:"id"`
	Code        string                  `json:"code"`
	Priority    string                  `json:"priority"`
	RequestedBy string                  `json:"requested_by"`
	SupplierID  string                  `json:"supplier_id"`
	Note        string                  `json:"note"`
	Items       []CreateLineItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateLineItemRequest is one requested row.
type CreateLineItemRequest struct {
	Category  string  `json:"category"`
	ItemName  string  `json:"item_name" validate:"required"`
	Unit      string  `json:"unit"`
	Quantity  float64 `json:"quantity" validate:"gte=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// RejectRequest carries an optional rejection note.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// CASH MOVEMENTS
// =============================================================================

// InflowDTO represents a client payment.
type InflowDTO struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Amount    float64 `json:"amount"`
	Date      string  `json:"date,omitempty"`
	Note      string  `json:"note,omitempty"`
}

// CreateInflowRequest records a client payment.
type CreateInflowRequest struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount" validate:"gt=0"`
	Date   string  `json:"date" validate:"required,datetime=2006-01-02"`
	Note   string  `json:"note"`
}

// PaymentRequestDTO represents a DNTT.
type PaymentRequestDTO struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Code        string  `json:"code"`
	Category    string  `json:"category,omitempty"`
	TotalGross  float64 `json:"total_gross"`
	RequestDate string  `json:"request_date,omitempty"`
	Status      string  `json:"status"`
	SupplierID  string  `json:"supplier_id,omitempty"`
	Note        string  `json:"note,omitempty"`
}

// CreatePaymentRequestRequest records a DNTT.
type CreatePaymentRequestRequest struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Category    string  `json:"category"`
	TotalGross  float64 `json:"total_gross" validate:"gte=0"`
	RequestDate string  `json:"request_date" validate:"required,datetime=2006-01-02"`
	Status      string  `json:"status"`
	SupplierID  string  `json:"supplier_id"`
	Note        string  `json:"note"`
}

// =============================================================================
// OPERATIONAL RECORDS
// =============================================================================

// TaskDTO represents a task.
type TaskDTO struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	Assignee  string  `json:"assignee,omitempty"`
	Status    string  `json:"status"`
	DueDate   *string `json:"due_date,omitempty"`
}

// CreateTaskRequest creates a task on a project.
type CreateTaskRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required"`
	Assignee string `json:"assignee"`
	Status   string `json:"status"`
	DueDate  string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

// ResourceDTO represents an inventory item.
type ResourceDTO struct {
	ID        string  `json:"id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Warehouse string  `json:"warehouse,omitempty"`
}

// CreateResourceRequest creates or updates an inventory item.
type CreateResourceRequest struct {
	ID        string  `json:"id"`
	Code      string  `json:"code" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Category  string  `json:"category"`
	Unit      string  `json:"unit"`
	Quantity  float64 `json:"quantity" validate:"gte=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	Warehouse string  `json:"warehouse"`
}

// SupplierDTO represents a supplier.
type SupplierDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required"`
	TaxCode string `json:"tax_code,omitempty" validate:"omitempty,numeric,min=10,max=14"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// DepartmentDTO represents a department.
type DepartmentDTO struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required"`
}

// CollectionDTO wraps a cached collection with its freshness state.
type CollectionDTO[T any] struct {
	Items       []T    `json:"items"`
	State       string `json:"state"`
	LastUpdated string `json:"last_updated,omitempty"`
	Error       string `json:"error,omitempty"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) float64 {
	return finance.Float(d)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// parseDate parses YYYY-MM-DD; the empty string is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func parseOptionalDate(s string) (*time.Time, error) {
	t, err := parseDate(s)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

func toProjectDTO(p finance.Project) ProjectDTO {
	dto := ProjectDTO{
		ID:                 p.ID,
		Name:               p.Name,
		TotalPlannedBudget: money(p.TotalPlannedBudget),
		Status:             p.Status,
		StartDate:          formatOptionalDate(p.StartDate),
		EndDate:            formatOptionalDate(p.EndDate),
		ProgressPercent:    p.ProgressPercent,
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toPurchaseRequestDTO(r finance.PurchaseRequest) PurchaseRequestDTO {
	items := make([]LineItemDTO, len(r.Items))
	for i, it := range r.Items {
		items[i] = LineItemDTO{
			ID:        it.ID,
			Category:  it.Category,
			ItemName:  it.ItemName,
			Unit:      it.Unit,
			Quantity:  money(it.Quantity),
			UnitPrice: money(it.UnitPrice),
			LineTotal: money(it.LineTotal),
		}
	}
	dto := PurchaseRequestDTO{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Code:        r.Code,
		Status:      string(r.Status),
		Priority:    string(r.Priority),
		TotalAmount: money(r.TotalAmount),
		RequestedBy: r.RequestedBy,
		SupplierID:  r.SupplierID,
		Note:        r.Note,
		Items:       items,
	}
	if !r.CreatedAt.IsZero() {
		dto.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toReportDTO(rep *report.ProjectReport) ReportDTO {
	f := rep.Financials
	dto := ReportDTO{
		Project: toProjectDTO(rep.Project),
		Financials: FinancialsDTO{
			ContractValue:   money(f.ContractValue),
			TotalInflow:     money(f.TotalInflow),
			TotalOutflow:    money(f.TotalOutflow),
			CommittedCost:   money(f.CommittedCost),
			NetCashflow:     money(f.NetCashflow),
			Profit:          money(f.Profit),
			ActualProfit:    money(f.ActualProfit),
			RemainingBudget: money(f.RemainingBudget),
		},
		CategoryAnalysis: make([]CategoryLineDTO, len(rep.CategoryAnalysis)),
		TaskStatusCounts: make(map[string]int, len(rep.TaskStatusCounts)),
		TopItems:         make([]TopItemDTO, len(rep.TopItems)),
		PendingPYCs:      make([]PurchaseRequestDTO, len(rep.PendingPYCs)),
		ChartData:        make([]MonthPointDTO, len(rep.ChartData)),
		GeneratedAt:      rep.GeneratedAt.Format(time.RFC3339),
	}
	for i, c := range rep.CategoryAnalysis {
		dto.CategoryAnalysis[i] = CategoryLineDTO{
			Name:      c.Name,
			Budget:    money(c.Budget),
			Committed: money(c.Committed),
			Actual:    money(c.Actual),
		}
	}
	for status, n := range rep.TaskStatusCounts {
		dto.TaskStatusCounts[string(status)] = n
	}
	for i, it := range rep.TopItems {
		dto.TopItems[i] = TopItemDTO{
			Name:      it.Name,
			Category:  it.Category,
			Total:     money(it.Total),
			RequestID: it.RequestID,
			Status:    string(it.Status),
		}
	}
	for i, r := range rep.PendingPYCs {
		dto.PendingPYCs[i] = toPurchaseRequestDTO(r)
	}
	for i, m := range rep.ChartData {
		dto.ChartData[i] = MonthPointDTO{Month: m.Month, Inflow: money(m.Inflow), Outflow: money(m.Outflow)}
	}
	return dto
}

func toInflowDTO(in finance.Inflow) InflowDTO {
	return InflowDTO{
		ID:        in.ID,
		ProjectID: in.ProjectID,
		Amount:    money(in.Amount),
		Date:      formatDate(in.Date),
		Note:      in.Note,
	}
}

func toPaymentRequestDTO(p finance.PaymentRequest) PaymentRequestDTO {
	return PaymentRequestDTO{
		ID:          p.ID,
		ProjectID:   p.ProjectID,
		Code:        p.Code,
		Category:    p.Category,
		TotalGross:  money(p.TotalGross),
		RequestDate: formatDate(p.RequestDate),
		Status:      string(p.Status),
		SupplierID:  p.SupplierID,
		Note:        p.Note,
	}
}

func toTaskDTO(t finance.Task) TaskDTO {
	return TaskDTO{
		ID:        t.ID,
		ProjectID: t.ProjectID,
		Name:      t.Name,
		Assignee:  t.Assignee,
		Status:    string(t.Status),
		DueDate:   formatOptionalDate(t.DueDate),
	}
}

func toResourceDTO(r finance.Resource) ResourceDTO {
	return ResourceDTO{
		ID:        r.ID,
		Code:      r.Code,
		Name:      r.Name,
		Category:  r.Category,
		Unit:      r.Unit,
		Quantity:  money(r.Quantity),
		UnitPrice: money(r.UnitPrice),
		Warehouse: r.Warehouse,
	}
}

func toBudgetLineDTO(b finance.BudgetLine) BudgetLineDTO {
	return BudgetLineDTO{ID: b.ID, ProjectID: b.ProjectID, Category: b.Category, Amount: money(b.Amount)}
}
