/*
handlers.go - HTTP API handlers for project controls

PURPOSE:
  Exposes the report aggregator, the cached collections and the store via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Projects:
    GET    /api/projects                          List projects
    POST   /api/projects                          Create/update project
    GET    /api/projects/{id}                     Get project
    DELETE /api/projects/{id}                     Delete project and its records
    GET    /api/projects/{id}/report              Project dashboard

  Project records:
    GET    /api/projects/{id}/purchase-requests   List PYCs
    POST   /api/projects/{id}/purchase-requests   Raise PYC
    POST   /api/projects/{id}/tasks               Create task
    POST   /api/projects/{id}/inflows             Record client payment
    POST   /api/projects/{id}/payment-requests    Record DNTT
    POST   /api/projects/{id}/budget-lines        Add category budget

  Approval:
    POST   /api/purchase-requests/{id}/approve
    POST   /api/purchase-requests/{id}/reject

  Cached collections (?refresh=true forces a refetch):
    GET    /api/resources | /api/tasks | /api/payment-requests
    POST   /api/resources

  Configuration:
    GET/POST /api/suppliers, /api/departments

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: persistence (store/sqlite in production)
  - Reports: report.Aggregator
  - Cache: the shared collection stores

  Writes that touch a cached collection force-refresh it before the
  response is written, so the next read sees the change.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Project or record not found
  - 409: PYC is no longer pending
  - 502: A store read failed while building a report
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/project-controls/cache"
	"github.com/warp/project-controls/finance"
	"github.com/warp/project-controls/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the handlers need. *sqlite.Store implements it.
type Store interface {
	SaveProject(ctx context.Context, p finance.Project) error
	GetProject(ctx context.Context, id string) (*finance.Project, error)
	ListProjects(ctx context.Context) ([]finance.Project, error)
	DeleteProject(ctx context.Context, id string) error

	SavePurchaseRequest(ctx context.Context, r finance.PurchaseRequest) (finance.PurchaseRequest, error)
	GetPurchaseRequest(ctx context.Context, id string) (*finance.PurchaseRequest, error)
	FindPurchaseRequestsByProject(ctx context.Context, projectID string) ([]finance.PurchaseRequest, error)
	SetPurchaseRequestStatus(ctx context.Context, id string, status finance.RequestStatus) error

	SaveTask(ctx context.Context, t finance.Task) error
	SaveInflow(ctx context.Context, in finance.Inflow) error
	SavePaymentRequest(ctx context.Context, p finance.PaymentRequest) error
	SaveBudgetLine(ctx context.Context, b finance.BudgetLine) error

	SaveResource(ctx context.Context, r finance.Resource) error
	SaveSupplier(ctx context.Context, s finance.Supplier) error
	ListSuppliers(ctx context.Context) ([]finance.Supplier, error)
	SaveDepartment(ctx context.Context, d finance.Department) error
	ListDepartments(ctx context.Context) ([]finance.Department, error)

	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Store
	Reports *report.Aggregator
	Cache   *cache.Stores

	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(store Store, reports *report.Aggregator, stores *cache.Stores) *Handler {
	return &Handler{
		Store:    store,
		Reports:  reports,
		Cache:    stores,
		validate: validator.New(),
		now:      time.Now,
	}
}

// =============================================================================
// PROJECT ENDPOINTS
// =============================================================================

// ListProjects returns all projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProject returns a single project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(*p))
}

// CreateProject creates or updates a project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	p := finance.Project{
		ID:                 newID(req.ID),
		Name:               req.Name,
		TotalPlannedBudget: decimal.NewFromFloat(req.TotalPlannedBudget),
		Status:             req.Status,
		StartDate:          start,
		EndDate:            end,
		ProgressPercent:    req.ProgressPercent,
		CreatedAt:          h.now().UTC(),
	}
	if err := h.Store.SaveProject(r.Context(), p); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to save project", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(p))
}

// DeleteProject removes a project and everything attached to it.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Store.DeleteProject(ctx, chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, "Failed to delete project", err)
		return
	}
	refresh(ctx, h.Cache.Tasks)
	refresh(ctx, h.Cache.PaymentRequests)
	w.WriteHeader(http.StatusNoContent)
}

// GetProjectReport computes the project dashboard.
// GET /api/projects/{id}/report
func (h *Handler) GetProjectReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.ComputeProjectReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, "Failed to compute project report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(rep))
}

// CreateBudgetLine adds a category budget to a project.
func (h *Handler) CreateBudgetLine(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	var req CreateBudgetLineRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	b := finance.BudgetLine{
		ID:        newID(req.ID),
		ProjectID: p.ID,
		Category:  req.Category,
		Amount:    decimal.NewFromFloat(req.Amount),
	}
	if err := h.Store.SaveBudgetLine(r.Context(), b); err != nil {
		writeStoreError(w, r, "Failed to save budget line", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetLineDTO(b))
}

// =============================================================================
// PURCHASE REQUEST ENDPOINTS
// =============================================================================

// ListPurchaseRequests returns a project's PYCs.
func (h *Handler) ListPurchaseRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	requests, err := h.Store.FindPurchaseRequestsByProject(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to list purchase requests", err)
		return
	}

	dtos := make([]PurchaseRequestDTO, len(requests))
	for i, pr := range requests {
		dtos[i] = toPurchaseRequestDTO(pr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePurchaseRequest raises a PYC in pending state.
func (h *Handler) CreatePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	var req CreatePurchaseRequestRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	pr := finance.PurchaseRequest{
		ID:          newID(req.ID),
		ProjectID:   p.ID,
		Code:        req.Code,
		Status:      finance.StatusPending,
		Priority:    finance.Priority(req.Priority),
		RequestedBy: req.RequestedBy,
		SupplierID:  req.SupplierID,
		Note:        req.Note,
		CreatedAt:   h.now().UTC(),
	}
	if pr.Priority == "" {
		pr.Priority = finance.PriorityNormal
	}
	for _, it := range req.Items {
		pr.Items = append(pr.Items, finance.PurchaseLineItem{
			Category:  it.Category,
			ItemName:  it.ItemName,
			Unit:      it.Unit,
			Quantity:  decimal.NewFromFloat(it.Quantity),
			UnitPrice: decimal.NewFromFloat(it.UnitPrice),
		})
	}

	saved, err := h.Store.SavePurchaseRequest(r.Context(), pr)
	if err != nil {
		writeStoreError(w, r, "Failed to save purchase request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseRequestDTO(saved))
}

// ApprovePurchaseRequest moves a PYC to approved; it now counts as committed cost.
func (h *Handler) ApprovePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	h.setPurchaseRequestStatus(w, r, finance.StatusApproved)
}

// RejectPurchaseRequest moves a PYC to rejected.
func (h *Handler) RejectPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	h.setPurchaseRequestStatus(w, r, finance.StatusRejected)
}

func (h *Handler) setPurchaseRequestStatus(w http.ResponseWriter, r *http.Request, status finance.RequestStatus) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	existing, err := h.Store.GetPurchaseRequest(ctx, id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to get purchase request", err)
		return
	}
	if existing == nil {
		writeError(w, r, http.StatusNotFound, "Purchase request not found", nil)
		return
	}
	if existing.Status != finance.StatusPending {
		writeError(w, r, http.StatusConflict, fmt.Sprintf("Purchase request is already %q", existing.Status), nil)
		return
	}

	// The store re-checks pending atomically; a concurrent decision that
	// landed since the read above comes back as finance.ErrConflict.
	if err := h.Store.SetPurchaseRequestStatus(ctx, id, status); err != nil {
		writeStoreError(w, r, "Failed to update purchase request", err)
		return
	}
	existing.Status = status
	zerolog.Ctx(ctx).Info().Str("request_id", id).Str("status", string(status)).Msg("purchase request updated")
	writeJSON(w, http.StatusOK, toPurchaseRequestDTO(*existing))
}

// =============================================================================
// CASH MOVEMENT ENDPOINTS
// =============================================================================

// CreateInflow records money received from the client.
func (h *Handler) CreateInflow(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	var req CreateInflowRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	in := finance.Inflow{
		ID:        newID(req.ID),
		ProjectID: p.ID,
		Amount:    decimal.NewFromFloat(req.Amount),
		Date:      date,
		Note:      req.Note,
	}
	if err := h.Store.SaveInflow(r.Context(), in); err != nil {
		writeStoreError(w, r, "Failed to save inflow", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInflowDTO(in))
}

// CreatePaymentRequest records a DNTT and refreshes the payment cache.
func (h *Handler) CreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	var req CreatePaymentRequestRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, err := parseDate(req.RequestDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request_date format (use YYYY-MM-DD)", err)
		return
	}

	pay := finance.PaymentRequest{
		ID:          newID(req.ID),
		ProjectID:   p.ID,
		Code:        req.Code,
		Category:    req.Category,
		TotalGross:  decimal.NewFromFloat(req.TotalGross),
		RequestDate: date,
		Status:      finance.RequestStatus(req.Status),
		SupplierID:  req.SupplierID,
		Note:        req.Note,
	}
	if pay.Status == "" {
		pay.Status = finance.StatusPending
	}
	ctx := r.Context()
	if err := h.Store.SavePaymentRequest(ctx, pay); err != nil {
		writeStoreError(w, r, "Failed to save payment request", err)
		return
	}
	refresh(ctx, h.Cache.PaymentRequests)
	writeJSON(w, http.StatusCreated, toPaymentRequestDTO(pay))
}

// =============================================================================
// TASK / RESOURCE ENDPOINTS
// =============================================================================

// CreateTask adds a task to a project and refreshes the task cache.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	due, err := parseOptionalDate(req.DueDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid due_date format (use YYYY-MM-DD)", err)
		return
	}

	t := finance.Task{
		ID:        newID(req.ID),
		ProjectID: p.ID,
		Name:      req.Name,
		Assignee:  req.Assignee,
		Status:    finance.TaskStatus(req.Status),
		DueDate:   due,
	}
	ctx := r.Context()
	if err := h.Store.SaveTask(ctx, t); err != nil {
		writeStoreError(w, r, "Failed to save task", err)
		return
	}
	refresh(ctx, h.Cache.Tasks)
	writeJSON(w, http.StatusCreated, toTaskDTO(t))
}

// CreateResource creates or updates an inventory item.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req CreateResourceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res := finance.Resource{
		ID:        newID(req.ID),
		Code:      req.Code,
		Name:      req.Name,
		Category:  req.Category,
		Unit:      req.Unit,
		Quantity:  decimal.NewFromFloat(req.Quantity),
		UnitPrice: decimal.NewFromFloat(req.UnitPrice),
		Warehouse: req.Warehouse,
	}
	ctx := r.Context()
	if err := h.Store.SaveResource(ctx, res); err != nil {
		writeStoreError(w, r, "Failed to save resource", err)
		return
	}
	refresh(ctx, h.Cache.Resources)
	writeJSON(w, http.StatusCreated, toResourceDTO(res))
}

// ListResources serves the cached inventory.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	serveCollection(w, r, h.Cache.Resources, toResourceDTO)
}

// ListTasks serves the cached task list across all projects.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	serveCollection(w, r, h.Cache.Tasks, toTaskDTO)
}

// ListPaymentRequests serves the cached payment requests across all projects.
func (h *Handler) ListPaymentRequests(w http.ResponseWriter, r *http.Request) {
	serveCollection(w, r, h.Cache.PaymentRequests, toPaymentRequestDTO)
}

// serveCollection answers from the cache. A failed refresh that still has
// data to show is a 200 carrying the error; with nothing to show it is a 502.
func serveCollection[T, D any](w http.ResponseWriter, r *http.Request, c *cache.Collection[T], conv func(T) D) {
	force := r.URL.Query().Get("refresh") == "true"
	items, err := c.Get(r.Context(), force)

	resp := CollectionDTO[D]{
		Items: make([]D, len(items)),
		State: c.State().String(),
	}
	for i, it := range items {
		resp.Items[i] = conv(it)
	}
	if last := c.LastUpdated(); !last.IsZero() {
		resp.LastUpdated = last.Format(time.RFC3339)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if c.LastUpdated().IsZero() {
			writeError(w, r, http.StatusBadGateway, fmt.Sprintf("Failed to load %s", c.Name()), err)
			return
		}
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// refresh force-refreshes c after a write. It invalidates first so the
// refetch cannot join a fetch that read the rows before the write. Failure
// is logged, not returned: the write itself already succeeded.
func refresh[T any](ctx context.Context, c *cache.Collection[T]) {
	if c == nil {
		return
	}
	c.Invalidate()
	if _, err := c.Refresh(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("store", c.Name()).Msg("cache refresh after write failed")
	}
}

// =============================================================================
// SUPPLIER / DEPARTMENT ENDPOINTS
// =============================================================================

// ListSuppliers returns all suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.Store.ListSuppliers(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to list suppliers", err)
		return
	}
	dtos := make([]SupplierDTO, len(suppliers))
	for i, s := range suppliers {
		dtos[i] = SupplierDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSupplier creates or updates a supplier.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req SupplierDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	req.ID = newID(req.ID)
	if err := h.Store.SaveSupplier(r.Context(), finance.Supplier(req)); err != nil {
		writeStoreError(w, r, "Failed to save supplier", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListDepartments returns all departments.
func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.Store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to list departments", err)
		return
	}
	dtos := make([]DepartmentDTO, len(departments))
	for i, d := range departments {
		dtos[i] = DepartmentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDepartment creates or renames a department.
func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req DepartmentDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	req.ID = newID(req.ID)
	if err := h.Store.SaveDepartment(r.Context(), finance.Department(req)); err != nil {
		writeStoreError(w, r, "Failed to save department", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// HELPERS
// =============================================================================

// loadProject resolves the {id} URL parameter, writing 404/500 itself.
func (h *Handler) loadProject(w http.ResponseWriter, r *http.Request) (*finance.Project, bool) {
	p, err := h.Store.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to get project", err)
		return nil, false
	}
	if p == nil {
		writeError(w, r, http.StatusNotFound, "Project not found", nil)
		return nil, false
	}
	return p, true
}

// decodeAndValidate parses the JSON body into dst and runs the validator.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Code:    "invalid_input",
				Details: fields,
			})
			return false
		}
		writeError(w, r, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg(message)
	}
	writeJSON(w, status, resp)
}

// writeStoreError maps domain errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case finance.IsNotFound(err):
		resp := ErrorResponse{Error: "Not found", Code: "not_found", Details: err.Error()}
		writeJSON(w, http.StatusNotFound, resp)
	case errors.Is(err, finance.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: message, Code: "conflict", Details: err.Error()})
	case errors.Is(err, finance.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "invalid_input", Details: err.Error()})
	case finance.IsFetchFailure(err):
		writeError(w, r, http.StatusBadGateway, message, err)
	default:
		writeError(w, r, http.StatusInternalServerError, message, err)
	}
}
