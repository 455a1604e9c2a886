/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Project CRUD and the report endpoint (404 / 502 mapping)
- PYC creation, approval and rejection
- Writes refreshing the cached collections
- Cached collection endpoints, including stale-on-failure
- Request validation
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/warp/project-controls/cache"
	"github.com/warp/project-controls/finance"
	"github.com/warp/project-controls/report"
	"github.com/warp/project-controls/store/memory"
	"github.com/warp/project-controls/store/sqlite"
)

var testNow = time.Date(2025, 6, 18, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	handler *Handler
	router  *chi.Mux
	store   *sqlite.Store
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return testNow }
	h := NewHandler(store,
		report.NewAggregator(store, report.WithClock(clock)),
		cache.NewStores(store, cache.WithClock(clock)),
	)
	h.now = clock

	return &testEnv{
		handler: h,
		router:  NewRouter(h, RouterOptions{Logger: zerolog.New(zerolog.NewTestWriter(t))}),
		store:   store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createProject(t *testing.T, id string, budget float64) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{
		ID: id, Name: "Dự án " + id, TotalPlannedBudget: budget, StartDate: "2025-01-06",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// PROJECTS
// =============================================================================

func TestProjects_CreateGetListDelete(t *testing.T) {
	// GIVEN
	env := setupTestEnv(t)
	env.createProject(t, "p1", 1_000_000)

	// WHEN / THEN: get
	rec := env.do(t, http.MethodGet, "/api/projects/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[ProjectDTO](t, rec)
	assert.Equal(t, "Dự án p1", p.Name)
	assert.Equal(t, 1_000_000.0, p.TotalPlannedBudget)
	require.NotNil(t, p.StartDate)
	assert.Equal(t, "2025-01-06", *p.StartDate)

	// list
	rec = env.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ProjectDTO](t, rec), 1)

	// delete
	rec = env.do(t, http.MethodDelete, "/api/projects/p1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/projects/p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/projects/p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjects_CreateGeneratesID(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{Name: "Không mã"})

	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[ProjectDTO](t, rec)
	assert.Len(t, p.ID, 36, "uuid")
}

func TestProjects_ValidationErrors(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{
		TotalPlannedBudget: -1,
		StartDate:          "06/01/2025",
		ProgressPercent:    120,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_input", resp.Code)
	fields, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "required", fields["Name"])
	assert.Equal(t, "gte", fields["TotalPlannedBudget"])
	assert.Equal(t, "datetime", fields["StartDate"])
	assert.Equal(t, "lte", fields["ProgressPercent"])
}

func TestProjects_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// REPORT
// =============================================================================

func TestReport_EndToEnd(t *testing.T) {
	// GIVEN: a project with one record of each kind, written through the API
	env := setupTestEnv(t)
	env.createProject(t, "p1", 1000)

	rec := env.do(t, http.MethodPost, "/api/projects/p1/purchase-requests", CreatePurchaseRequestRequest{
		ID:       "pr1",
		Priority: string(finance.PriorityHigh),
		Items: []CreateLineItemRequest{
			{Category: "Vật tư thô", ItemName: "Cát", Quantity: 10, UnitPrice: 20},
			{ItemName: "Đinh", Quantity: 5, UnitPrice: 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pr := decode[PurchaseRequestDTO](t, rec)
	assert.Equal(t, 210.0, pr.TotalAmount, "computed server side")
	assert.Equal(t, string(finance.StatusPending), pr.Status)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/projects/p1/inflows",
		CreateInflowRequest{Amount: 500, Date: "2025-05-10"}).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/projects/p1/payment-requests",
		CreatePaymentRequestRequest{Category: "Vật tư thô", TotalGross: 150, RequestDate: "2025-06-02"}).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/projects/p1/tasks",
		CreateTaskRequest{Name: "Đổ bê tông", Status: string(finance.TaskInProgress)}).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/projects/p1/budget-lines",
		CreateBudgetLineRequest{Category: "Vật tư thô", Amount: 400}).Code)

	// WHEN: before approval
	rec = env.do(t, http.MethodGet, "/api/projects/p1/report", nil)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decode[ReportDTO](t, rec)
	assert.Equal(t, 0.0, rep.Financials.CommittedCost)
	assert.Equal(t, 1000.0, rep.Financials.Profit)
	assert.Equal(t, 500.0, rep.Financials.TotalInflow)
	assert.Equal(t, 150.0, rep.Financials.TotalOutflow)
	assert.Equal(t, 350.0, rep.Financials.NetCashflow)
	assert.Equal(t, 850.0, rep.Financials.ActualProfit)
	require.Len(t, rep.PendingPYCs, 1)
	assert.Equal(t, "pr1", rep.PendingPYCs[0].ID)
	assert.Equal(t, 1, rep.TaskStatusCounts[string(finance.TaskInProgress)])
	assert.Equal(t, 0, rep.TaskStatusCounts[string(finance.TaskDone)])
	require.Len(t, rep.TopItems, 2)
	assert.Equal(t, "Cát", rep.TopItems[0].Name)
	require.Len(t, rep.ChartData, 2)
	assert.Equal(t, MonthPointDTO{Month: "2025-05", Inflow: 500}, rep.ChartData[0])
	assert.Equal(t, MonthPointDTO{Month: "2025-06", Outflow: 150}, rep.ChartData[1])
	assert.Equal(t, testNow.Format(time.RFC3339), rep.GeneratedAt)

	// WHEN: the PYC is approved
	rec = env.do(t, http.MethodPost, "/api/purchase-requests/pr1/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: it becomes committed cost and leaves the approval queue
	rep = decode[ReportDTO](t, env.do(t, http.MethodGet, "/api/projects/p1/report", nil))
	assert.Equal(t, 210.0, rep.Financials.CommittedCost)
	assert.Equal(t, 790.0, rep.Financials.Profit)
	assert.Empty(t, rep.PendingPYCs)
	require.Len(t, rep.CategoryAnalysis, 2)
	assert.Equal(t, CategoryLineDTO{Name: "Vật tư thô", Budget: 400, Committed: 200, Actual: 150}, rep.CategoryAnalysis[0])
	assert.Equal(t, CategoryLineDTO{Name: finance.DefaultCategory, Committed: 10}, rep.CategoryAnalysis[1])
}

func TestReport_ProjectNotFound(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/projects/missing/report", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

// mockSource is a report.Source whose reads are scripted per test.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) FindProjectByID(ctx context.Context, id string) (*finance.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.Project), args.Error(1)
}

func (m *mockSource) FindPurchaseRequestsByProject(ctx context.Context, id string) ([]finance.PurchaseRequest, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]finance.PurchaseRequest), args.Error(1)
}

func (m *mockSource) FindTasksByProject(ctx context.Context, id string) ([]finance.Task, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]finance.Task), args.Error(1)
}

func (m *mockSource) FindInflowsByProject(ctx context.Context, id string) ([]finance.Inflow, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]finance.Inflow), args.Error(1)
}

func (m *mockSource) FindPaymentRequestsByProject(ctx context.Context, id string) ([]finance.PaymentRequest, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]finance.PaymentRequest), args.Error(1)
}

func TestReport_FetchFailureIsBadGateway(t *testing.T) {
	// GIVEN: the task read fails
	env := setupTestEnv(t)
	src := new(mockSource)
	src.On("FindProjectByID", mock.Anything, "p1").Return(&finance.Project{ID: "p1"}, nil)
	src.On("FindPurchaseRequestsByProject", mock.Anything, "p1").Return([]finance.PurchaseRequest{}, nil).Maybe()
	src.On("FindInflowsByProject", mock.Anything, "p1").Return([]finance.Inflow{}, nil).Maybe()
	src.On("FindPaymentRequestsByProject", mock.Anything, "p1").Return([]finance.PaymentRequest{}, nil).Maybe()
	src.On("FindTasksByProject", mock.Anything, "p1").Return([]finance.Task(nil), errors.New("connection reset"))
	env.handler.Reports = report.NewAggregator(src)

	// WHEN
	rec := env.do(t, http.MethodGet, "/api/projects/p1/report", nil)

	// THEN
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "connection reset")
	src.AssertExpectations(t)
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

func TestPurchaseRequests_RejectAndConflict(t *testing.T) {
	env := setupTestEnv(t)
	env.createProject(t, "p1", 100)
	rec := env.do(t, http.MethodPost, "/api/projects/p1/purchase-requests", CreatePurchaseRequestRequest{
		ID:    "pr1",
		Items: []CreateLineItemRequest{{ItemName: "Gạch", Quantity: 1, UnitPrice: 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, string(finance.PriorityNormal), decode[PurchaseRequestDTO](t, rec).Priority)

	rec = env.do(t, http.MethodPost, "/api/purchase-requests/pr1/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(finance.StatusRejected), decode[PurchaseRequestDTO](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/api/purchase-requests/pr1/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "only pending requests can change state")

	rec = env.do(t, http.MethodPost, "/api/purchase-requests/missing/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/projects/p1/purchase-requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PurchaseRequestDTO](t, rec), 1)
}

func TestPurchaseRequests_ConcurrentApproveAndReject(t *testing.T) {
	// GIVEN: one pending PYC
	env := setupTestEnv(t)
	env.createProject(t, "p1", 1000)
	rec := env.do(t, http.MethodPost, "/api/projects/p1/purchase-requests", CreatePurchaseRequestRequest{
		ID:    "pr1",
		Items: []CreateLineItemRequest{{ItemName: "Thép", Quantity: 2, UnitPrice: 100}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: approvals and rejections arrive at once
	const deciders = 8
	codes := make([]int, deciders)
	var wg sync.WaitGroup
	for i := 0; i < deciders; i++ {
		action := "approve"
		if i%2 == 1 {
			action = "reject"
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
			codes[i] = w.Code
		}(i, "/api/purchase-requests/pr1/"+action)
	}
	wg.Wait()

	// THEN: exactly one decision is accepted, the others conflict
	accepted := 0
	for _, code := range codes {
		if code == http.StatusOK {
			accepted++
			continue
		}
		assert.Equal(t, http.StatusConflict, code)
	}
	assert.Equal(t, 1, accepted)

	// and the report agrees with the single accepted decision
	got, err := env.store.GetPurchaseRequest(context.Background(), "pr1")
	require.NoError(t, err)
	rep := env.report(t, "p1")
	if got.IsApproved() {
		assert.Equal(t, 200.0, rep.Financials.CommittedCost)
	} else {
		assert.Equal(t, string(finance.StatusRejected), string(got.Status))
		assert.Equal(t, 0.0, rep.Financials.CommittedCost)
	}
}

func TestPurchaseRequests_RequireItems(t *testing.T) {
	env := setupTestEnv(t)
	env.createProject(t, "p1", 100)

	rec := env.do(t, http.MethodPost, "/api/projects/p1/purchase-requests", CreatePurchaseRequestRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectRecords_UnknownProject(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{
		"/api/projects/nope/tasks",
		"/api/projects/nope/inflows",
		"/api/projects/nope/payment-requests",
		"/api/projects/nope/budget-lines",
		"/api/projects/nope/purchase-requests",
	} {
		rec := env.do(t, http.MethodPost, path, map[string]any{})
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

// =============================================================================
// CACHED COLLECTIONS
// =============================================================================

func TestCollections_WritesRefreshCache(t *testing.T) {
	// GIVEN: the task cache is warm and empty
	env := setupTestEnv(t)
	env.createProject(t, "p1", 100)
	rec := env.do(t, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CollectionDTO[TaskDTO]](t, rec).Items)

	// WHEN: a task is created through the API
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/projects/p1/tasks",
		CreateTaskRequest{Name: "Lắp cốp pha", DueDate: "2025-07-01"}).Code)

	// THEN: the next read sees it without ?refresh
	tasks := decode[CollectionDTO[TaskDTO]](t, env.do(t, http.MethodGet, "/api/tasks", nil))
	require.Len(t, tasks.Items, 1)
	assert.Equal(t, "Lắp cốp pha", tasks.Items[0].Name)
	assert.Equal(t, "ready", tasks.State)
	assert.Equal(t, testNow.Format(time.RFC3339), tasks.LastUpdated)
}

func TestCollections_ResourcesAndPayments(t *testing.T) {
	env := setupTestEnv(t)
	env.createProject(t, "p1", 100)

	rec := env.do(t, http.MethodPost, "/api/resources", CreateResourceRequest{Code: "VT-001", Name: "Xi măng", Quantity: 10, UnitPrice: 92000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/api/resources", CreateResourceRequest{Code: "VT-001", Name: "Trùng"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "duplicate code")

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/projects/p1/payment-requests",
		CreatePaymentRequestRequest{Code: "DNTT-1", TotalGross: 42, RequestDate: "2025-06-01"}).Code)

	resources := decode[CollectionDTO[ResourceDTO]](t, env.do(t, http.MethodGet, "/api/resources", nil))
	require.Len(t, resources.Items, 1)
	assert.Equal(t, 92000.0, resources.Items[0].UnitPrice)

	payments := decode[CollectionDTO[PaymentRequestDTO]](t, env.do(t, http.MethodGet, "/api/payment-requests?refresh=true", nil))
	require.Len(t, payments.Items, 1)
	assert.Equal(t, string(finance.StatusPending), payments.Items[0].Status)
}

func TestCollections_StaleOnFailure(t *testing.T) {
	// GIVEN: a cache over a store whose reads can be made to fail
	env := setupTestEnv(t)
	mem := memory.New()
	mem.AddResource(finance.Resource{ID: "r1", Code: "VT-001", Name: "Xi măng"})
	env.handler.Cache = cache.NewStores(mem)

	// Never loaded + failing read: nothing to show
	mem.Fail(memory.OpAllResources, errors.New("timeout"))
	rec := env.do(t, http.MethodGet, "/api/resources", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// Loaded once, then failing: previous data plus the error
	mem.Fail(memory.OpAllResources, nil)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/resources", nil).Code)
	mem.Fail(memory.OpAllResources, errors.New("timeout"))

	rec = env.do(t, http.MethodGet, "/api/resources?refresh=true", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[CollectionDTO[ResourceDTO]](t, rec)
	assert.Len(t, resp.Items, 1)
	assert.Contains(t, resp.Error, "timeout")
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestSuppliersAndDepartments(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/suppliers", SupplierDTO{Name: "Hòa Phát", TaxCode: "0900189284"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/api/suppliers", SupplierDTO{Name: "Sai MST", TaxCode: "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/departments", DepartmentDTO{ID: "d1", Name: "Kế toán"})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Len(t, decode[[]SupplierDTO](t, env.do(t, http.MethodGet, "/api/suppliers", nil)), 1)
	assert.Equal(t, []DepartmentDTO{{ID: "d1", Name: "Kế toán"}},
		decode[[]DepartmentDTO](t, env.do(t, http.MethodGet, "/api/departments", nil)))
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}
