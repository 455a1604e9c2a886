/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:

	Loads each scenario through the API and checks the dashboard it
	produces, so scenarios double as integration tests for the store,
	the report aggregator and the cached collections.

All figures are in VND.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/project-controls/finance"
)

func (e *testEnv) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (e *testEnv) report(t *testing.T, projectID string) ReportDTO {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/projects/"+projectID+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[ReportDTO](t, rec)
}

func TestScenario_ConstructionSite(t *testing.T) {
	// GIVEN
	env := setupTestEnv(t)

	// WHEN
	env.loadScenario(t, "construction-site")
	rep := env.report(t, "prj-binh-duong")

	// THEN: financials
	f := rep.Financials
	assert.Equal(t, 12_000_000_000.0, f.ContractValue)
	assert.Equal(t, 2_825_000_000.0, f.CommittedCost, "PYC-001..003 are approved")
	assert.Equal(t, 7_200_000_000.0, f.TotalInflow)
	assert.Equal(t, 4_185_000_000.0, f.TotalOutflow)
	assert.Equal(t, 3_015_000_000.0, f.NetCashflow)
	assert.Equal(t, 9_175_000_000.0, f.Profit)
	assert.Equal(t, 7_815_000_000.0, f.ActualProfit)
	assert.Equal(t, f.Profit, f.RemainingBudget)

	// approval queue: urgent, high, normal
	require.Len(t, rep.PendingPYCs, 3)
	codes := []string{rep.PendingPYCs[0].Code, rep.PendingPYCs[1].Code, rep.PendingPYCs[2].Code}
	assert.Equal(t, []string{"PYC-005", "PYC-007", "PYC-006"}, codes)

	// task histogram; the task without a status counts as not started
	assert.Equal(t, map[string]int{
		string(finance.TaskNotStarted): 2,
		string(finance.TaskInProgress): 2,
		string(finance.TaskDone):       2,
		string(finance.TaskOverdue):    1,
		string(finance.TaskOther):      0,
	}, rep.TaskStatusCounts)

	// top items cover every status, largest first
	require.Len(t, rep.TopItems, 5)
	assert.Equal(t, "Tôn lợp mái", rep.TopItems[0].Name)
	assert.Equal(t, 1_160_000_000.0, rep.TopItems[0].Total)
	assert.Equal(t, string(finance.StatusPending), rep.TopItems[0].Status)
	assert.Equal(t, "Thép D16", rep.TopItems[1].Name)
	for i := 1; i < len(rep.TopItems); i++ {
		assert.GreaterOrEqual(t, rep.TopItems[i-1].Total, rep.TopItems[i].Total)
	}

	// categories in first-appearance order
	assert.Equal(t, []CategoryLineDTO{
		{Name: "Vật tư thô", Budget: 5_000_000_000, Committed: 2_285_000_000, Actual: 2_340_000_000},
		{Name: "Thiết bị", Budget: 2_500_000_000, Committed: 540_000_000, Actual: 540_000_000},
		{Name: finance.DefaultCategory, Actual: 35_000_000},
		{Name: "Nhân công", Budget: 3_000_000_000, Actual: 1_270_000_000},
	}, rep.CategoryAnalysis)

	// six trailing months, oldest first; testNow is 2025-06-18
	require.Len(t, rep.ChartData, 6)
	assert.Equal(t, MonthPointDTO{Month: "2025-01", Outflow: 600_000_000}, rep.ChartData[0])
	assert.Equal(t, MonthPointDTO{Month: "2025-06", Inflow: 1_200_000_000, Outflow: 390_000_000}, rep.ChartData[5])
}

func TestScenario_ConstructionSiteFillsCaches(t *testing.T) {
	env := setupTestEnv(t)

	env.loadScenario(t, "construction-site")

	// Served from cache without a refetch; the loader refreshed every store.
	resources := decode[CollectionDTO[ResourceDTO]](t, env.do(t, http.MethodGet, "/api/resources", nil))
	assert.Len(t, resources.Items, 4)
	assert.Equal(t, "ready", resources.State)

	tasks := decode[CollectionDTO[TaskDTO]](t, env.do(t, http.MethodGet, "/api/tasks", nil))
	assert.Len(t, tasks.Items, 7)

	payments := decode[CollectionDTO[PaymentRequestDTO]](t, env.do(t, http.MethodGet, "/api/payment-requests", nil))
	assert.Len(t, payments.Items, 10)

	assert.Len(t, decode[[]SupplierDTO](t, env.do(t, http.MethodGet, "/api/suppliers", nil)), 3)
	assert.Len(t, decode[[]DepartmentDTO](t, env.do(t, http.MethodGet, "/api/departments", nil)), 3)
}

func TestScenario_CostOverrun(t *testing.T) {
	env := setupTestEnv(t)

	env.loadScenario(t, "cost-overrun")
	rep := env.report(t, "prj-van-phong")

	f := rep.Financials
	assert.Equal(t, 1_500_000_000.0, f.ContractValue)
	assert.Equal(t, 1_719_000_000.0, f.CommittedCost)
	assert.Equal(t, -219_000_000.0, f.Profit, "approved purchases exceed the contract")
	assert.Equal(t, -219_000_000.0, f.RemainingBudget)
	assert.Equal(t, 1_050_000_000.0, f.TotalInflow)
	assert.Equal(t, 1_719_000_000.0, f.TotalOutflow)
	assert.Equal(t, -669_000_000.0, f.NetCashflow)
	assert.Empty(t, rep.PendingPYCs)
	assert.Equal(t, 2, rep.TaskStatusCounts[string(finance.TaskDone)])
	assert.Equal(t, 1, rep.TaskStatusCounts[string(finance.TaskOverdue)])

	require.Len(t, rep.CategoryAnalysis, 2)
	assert.Equal(t, CategoryLineDTO{Name: "Nội thất", Budget: 900_000_000, Committed: 1_485_000_000, Actual: 1_485_000_000}, rep.CategoryAnalysis[0])
	assert.Equal(t, CategoryLineDTO{Name: "Nhân công", Budget: 400_000_000, Committed: 234_000_000, Actual: 234_000_000}, rep.CategoryAnalysis[1])
}

func TestScenario_EmptyProject(t *testing.T) {
	env := setupTestEnv(t)

	env.loadScenario(t, "empty-project")
	rep := env.report(t, "prj-kho-lanh")

	assert.Equal(t, FinancialsDTO{
		ContractValue:   8_000_000_000,
		Profit:          8_000_000_000,
		ActualProfit:    8_000_000_000,
		RemainingBudget: 8_000_000_000,
	}, rep.Financials)
	assert.Empty(t, rep.CategoryAnalysis)
	assert.Empty(t, rep.TopItems)
	assert.Empty(t, rep.PendingPYCs)
	assert.Empty(t, rep.ChartData)
	assert.Len(t, rep.TaskStatusCounts, 5)
	for status, n := range rep.TaskStatusCounts {
		assert.Zero(t, n, status)
	}
}

func TestScenario_LoadReplacesPrevious(t *testing.T) {
	env := setupTestEnv(t)

	env.loadScenario(t, "construction-site")
	env.loadScenario(t, "cost-overrun")

	projects := decode[[]ProjectDTO](t, env.do(t, http.MethodGet, "/api/projects", nil))
	require.Len(t, projects, 1)
	assert.Equal(t, "prj-van-phong", projects[0].ID)

	tasks := decode[CollectionDTO[TaskDTO]](t, env.do(t, http.MethodGet, "/api/tasks", nil))
	assert.Len(t, tasks.Items, 3)
}

func TestScenario_CurrentAndReset(t *testing.T) {
	// GIVEN: nothing loaded
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[*ScenarioDTO](t, rec))

	// WHEN: a scenario is loaded
	env.loadScenario(t, "empty-project")

	// THEN
	current := decode[*ScenarioDTO](t, env.do(t, http.MethodGet, "/api/scenarios/current", nil))
	require.NotNil(t, current)
	assert.Equal(t, "empty-project", current.ID)
	assert.Equal(t, "Kho lạnh Long An", current.Name)

	// WHEN: the database is reset
	rec = env.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: no scenario, no data, caches emptied
	assert.Nil(t, decode[*ScenarioDTO](t, env.do(t, http.MethodGet, "/api/scenarios/current", nil)))
	assert.Empty(t, decode[[]ProjectDTO](t, env.do(t, http.MethodGet, "/api/projects", nil)))
	resources := decode[CollectionDTO[ResourceDTO]](t, env.do(t, http.MethodGet, "/api/resources", nil))
	assert.Empty(t, resources.Items)
}

func TestScenario_ListAndUnknown(t *testing.T) {
	env := setupTestEnv(t)

	list := decode[[]ScenarioDTO](t, env.do(t, http.MethodGet, "/api/scenarios", nil))
	require.Len(t, list, 3)
	assert.Equal(t, "construction-site", list[0].ID)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "moon-base"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
