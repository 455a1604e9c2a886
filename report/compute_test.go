package report_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/project-controls/finance"
	"github.com/warp/project-controls/report"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func project(contract int64) finance.Project {
	return finance.Project{ID: "p1", Name: "Nhà xưởng Bình Dương", TotalPlannedBudget: d(contract)}
}

func pr(id string, status finance.RequestStatus, priority finance.Priority, total int64, items ...finance.PurchaseLineItem) finance.PurchaseRequest {
	return finance.PurchaseRequest{
		ID: id, ProjectID: "p1", Status: status, Priority: priority,
		TotalAmount: d(total), Items: items,
	}
}

func item(name, category string, total int64) finance.PurchaseLineItem {
	return finance.PurchaseLineItem{ItemName: name, Category: category, LineTotal: d(total)}
}

func assertDec(t *testing.T, want int64, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "%s: want %d, got %s", msg, want, got)
}

// =============================================================================
// FINANCIALS
// =============================================================================

func TestCompute_ReferenceScenario(t *testing.T) {
	// GIVEN: contract 100, approved PYC 30, pending PYC 1000,
	//        inflow 40 and outflow 10 in 2024-01
	in := report.Inputs{
		PurchaseRequests: []finance.PurchaseRequest{
			pr("a", finance.StatusApproved, finance.PriorityNormal, 30),
			pr("b", finance.StatusPending, finance.PriorityNormal, 1000),
		},
		Inflows:         []finance.Inflow{{Amount: d(40), Date: date(2024, 1, 5)}},
		PaymentRequests: []finance.PaymentRequest{{TotalGross: d(10), RequestDate: date(2024, 1, 20)}},
	}

	// WHEN
	rep := report.Compute(project(100), in)

	// THEN
	f := rep.Financials
	assertDec(t, 100, f.ContractValue, "contract")
	assertDec(t, 30, f.CommittedCost, "committed")
	assertDec(t, 70, f.Profit, "profit")
	assertDec(t, 40, f.TotalInflow, "inflow")
	assertDec(t, 10, f.TotalOutflow, "outflow")
	assertDec(t, 30, f.NetCashflow, "net")
	assertDec(t, 90, f.ActualProfit, "actual profit")
	assertDec(t, 70, f.RemainingBudget, "remaining")

	require.Len(t, rep.ChartData, 1)
	assert.Equal(t, "2024-01", rep.ChartData[0].Month)
	assertDec(t, 40, rep.ChartData[0].Inflow, "chart inflow")
	assertDec(t, 10, rep.ChartData[0].Outflow, "chart outflow")
}

func TestCompute_FinancialInvariants(t *testing.T) {
	inputs := []report.Inputs{
		{},
		{
			Inflows:         []finance.Inflow{{Amount: d(5)}, {Amount: d(-2)}},
			PaymentRequests: []finance.PaymentRequest{{TotalGross: d(9)}},
		},
		{
			PurchaseRequests: []finance.PurchaseRequest{
				pr("x", finance.StatusApproved, "", 11),
				pr("y", finance.StatusRejected, "", 500),
				pr("z", "đã duyệt", "", 700), // wrong case: not approved
			},
			PaymentRequests: []finance.PaymentRequest{{TotalGross: d(3)}},
		},
	}

	for i, in := range inputs {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			f := report.Compute(project(1000), in).Financials
			assert.True(t, f.NetCashflow.Equal(f.TotalInflow.Sub(f.TotalOutflow)))
			assert.True(t, f.Profit.Equal(f.ContractValue.Sub(f.CommittedCost)))
			assert.True(t, f.ActualProfit.Equal(f.ContractValue.Sub(f.TotalOutflow)))
			assert.True(t, f.RemainingBudget.Equal(f.ContractValue.Sub(f.CommittedCost)))
		})
	}
}

func TestCompute_CommittedCostOnlyApproved(t *testing.T) {
	in := report.Inputs{PurchaseRequests: []finance.PurchaseRequest{
		pr("pending", finance.StatusPending, finance.PriorityHigh, 1_000_000),
		pr("rejected", finance.StatusRejected, finance.PriorityHigh, 50),
	}}
	rep := report.Compute(project(0), in)
	assert.True(t, rep.Financials.CommittedCost.IsZero())
}

// =============================================================================
// CATEGORY ANALYSIS
// =============================================================================

func TestCompute_CategoryAnalysis(t *testing.T) {
	// GIVEN: items in two categories across approved and pending requests,
	//        one item without category, budget lines and categorized payments
	in := report.Inputs{
		PurchaseRequests: []finance.PurchaseRequest{
			pr("a", finance.StatusApproved, "", 0,
				item("Thép D16", "Vật tư thô", 300),
				item("Xi măng", "Vật tư thô", 200),
				item("Đinh", "", 7),
			),
			pr("b", finance.StatusPending, "", 0,
				item("Máy cắt", "Thiết bị", 900),
			),
		},
		BudgetLines: []finance.BudgetLine{
			{Category: "Vật tư thô", Amount: d(1000)},
			{Category: "Nhân công", Amount: d(400)},
		},
		PaymentRequests: []finance.PaymentRequest{
			{Category: "Vật tư thô", TotalGross: d(120)},
			{TotalGross: d(5)},
		},
	}

	// WHEN
	cats := report.Compute(project(0), in).CategoryAnalysis

	// THEN: first-appearance order, committed only from approved items
	require.Len(t, cats, 4)
	assert.Equal(t, "Vật tư thô", cats[0].Name)
	assertDec(t, 500, cats[0].Committed, "raw committed")
	assertDec(t, 1000, cats[0].Budget, "raw budget")
	assertDec(t, 120, cats[0].Actual, "raw actual")

	assert.Equal(t, finance.DefaultCategory, cats[1].Name)
	assertDec(t, 7, cats[1].Committed, "other committed")
	assertDec(t, 5, cats[1].Actual, "other actual")

	assert.Equal(t, "Thiết bị", cats[2].Name)
	assertDec(t, 0, cats[2].Committed, "pending items contribute nothing")

	assert.Equal(t, "Nhân công", cats[3].Name)
	assertDec(t, 400, cats[3].Budget, "labour budget")
}

func TestCompute_CategoryAnalysisEmpty(t *testing.T) {
	cats := report.Compute(project(0), report.Inputs{}).CategoryAnalysis
	assert.NotNil(t, cats)
	assert.Empty(t, cats)
}

// =============================================================================
// TASK HISTOGRAM
// =============================================================================

func TestCompute_TaskStatusCounts(t *testing.T) {
	tasks := []finance.Task{
		{Status: finance.TaskDone},
		{Status: finance.TaskDone},
		{Status: finance.TaskInProgress},
		{Status: ""}, // defaults to not started
		{Status: finance.TaskOverdue},
		{Status: "Hoan thanh"}, // typo
		{Status: "Tạm dừng"},
	}

	counts := report.Compute(project(0), report.Inputs{Tasks: tasks}).TaskStatusCounts

	assert.Equal(t, 1, counts[finance.TaskNotStarted])
	assert.Equal(t, 1, counts[finance.TaskInProgress])
	assert.Equal(t, 2, counts[finance.TaskDone])
	assert.Equal(t, 1, counts[finance.TaskOverdue])
	assert.Equal(t, 2, counts[finance.TaskOther])

	known := 0
	for _, s := range finance.KnownTaskStatuses {
		known += counts[s]
	}
	assert.Equal(t, 5, known, "unknown statuses never land in the four known buckets")
}

func TestCompute_TaskStatusCountsAlwaysHasAllBuckets(t *testing.T) {
	counts := report.Compute(project(0), report.Inputs{}).TaskStatusCounts
	assert.Len(t, counts, 5)
	for _, s := range append(finance.KnownTaskStatuses, finance.TaskOther) {
		v, ok := counts[s]
		assert.True(t, ok, s)
		assert.Zero(t, v)
	}
}

// =============================================================================
// RANKINGS
// =============================================================================

func TestCompute_TopItemsSortedAndStable(t *testing.T) {
	in := report.Inputs{PurchaseRequests: []finance.PurchaseRequest{
		pr("r1", finance.StatusApproved, "", 0,
			item("A", "", 10), item("B", "", 50), item("C", "", 30)),
		pr("r2", finance.StatusPending, "", 0,
			item("D", "", 50), item("E", "", 5), item("F", "", 30), item("G", "", 1)),
	}}

	top := report.Compute(project(0), in).TopItems

	require.Len(t, top, 5)
	names := []string{}
	for _, it := range top {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"B", "D", "C", "F", "A"}, names, "ties keep input order")
	assert.Equal(t, "r2", top[1].RequestID)
	assert.Equal(t, finance.StatusPending, top[1].Status)
	for i := 1; i < len(top); i++ {
		assert.False(t, top[i].Total.GreaterThan(top[i-1].Total))
	}
}

func TestCompute_TopItemsFewerThanLimit(t *testing.T) {
	in := report.Inputs{PurchaseRequests: []finance.PurchaseRequest{
		pr("r1", finance.StatusApproved, "", 0, item("A", "", 10)),
	}}
	assert.Len(t, report.Compute(project(0), in).TopItems, 1)
	assert.Empty(t, report.Compute(project(0), report.Inputs{}).TopItems)
}

func TestCompute_PendingPYCsByPriority(t *testing.T) {
	in := report.Inputs{PurchaseRequests: []finance.PurchaseRequest{
		pr("low", finance.StatusPending, finance.PriorityLow, 1),
		pr("approved-urgent", finance.StatusApproved, finance.PriorityUrgent, 1),
		pr("normal-1", finance.StatusPending, finance.PriorityNormal, 1),
		pr("unknown", finance.StatusPending, "???", 1),
		pr("high", finance.StatusPending, finance.PriorityHigh, 1),
		pr("urgent", finance.StatusPending, finance.PriorityUrgent, 1),
		pr("normal-2", finance.StatusPending, finance.PriorityNormal, 1),
	}}

	pending := report.Compute(project(0), in).PendingPYCs

	require.Len(t, pending, 5)
	ids := []string{}
	for _, p := range pending {
		assert.Equal(t, finance.StatusPending, p.Status)
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"urgent", "high", "normal-1", "unknown", "normal-2"}, ids)
}

// =============================================================================
// MONTHLY CASHFLOW
// =============================================================================

func TestCompute_ChartDataLastSixMonths(t *testing.T) {
	var inflows []finance.Inflow
	for m := time.January; m <= time.August; m++ {
		inflows = append(inflows, finance.Inflow{Amount: d(int64(m)), Date: date(2024, m, 3)})
	}
	payments := []finance.PaymentRequest{
		{TotalGross: d(7), RequestDate: date(2024, time.August, 30)},
		{TotalGross: d(100), RequestDate: date(2023, time.December, 1)}, // too old to show
		{TotalGross: d(99)}, // undated: totals only
	}

	rep := report.Compute(project(0), report.Inputs{Inflows: inflows, PaymentRequests: payments})

	require.Len(t, rep.ChartData, 6)
	months := []string{}
	for _, p := range rep.ChartData {
		months = append(months, p.Month)
	}
	assert.Equal(t, []string{"2024-03", "2024-04", "2024-05", "2024-06", "2024-07", "2024-08"}, months)
	assertDec(t, 0, rep.ChartData[0].Outflow, "month with inflow only")
	assertDec(t, 8, rep.ChartData[5].Inflow, "august inflow")
	assertDec(t, 7, rep.ChartData[5].Outflow, "august outflow")
	assertDec(t, 206, rep.Financials.TotalOutflow, "undated payments still count")
}

func TestCompute_ChartDataOutflowOnlyMonth(t *testing.T) {
	rep := report.Compute(project(0), report.Inputs{
		PaymentRequests: []finance.PaymentRequest{{TotalGross: d(10), RequestDate: date(2025, 2, 1)}},
	})
	require.Len(t, rep.ChartData, 1)
	assertDec(t, 0, rep.ChartData[0].Inflow, "inflow")
	assertDec(t, 10, rep.ChartData[0].Outflow, "outflow")
}
