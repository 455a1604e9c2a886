package report

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/project-controls/finance"
)

// monthKeyLayout formats a date as its "YYYY-MM" bucket.
const monthKeyLayout = "2006-01"

// Compute derives a ProjectReport from already-loaded records.
// It is pure: no I/O, no clock, and malformed amounts count as zero.
func Compute(project finance.Project, in Inputs) *ProjectReport {
	return &ProjectReport{
		Project:          project,
		Financials:       computeFinancials(project, in),
		CategoryAnalysis: computeCategories(in),
		TaskStatusCounts: countTaskStatuses(in.Tasks),
		TopItems:         topItems(in.PurchaseRequests, TopItemsLimit),
		PendingPYCs:      pendingRequests(in.PurchaseRequests, PendingLimit),
		ChartData:        monthlySeries(in.Inflows, in.PaymentRequests, ChartMonths),
	}
}

// =============================================================================
// FINANCIALS
// =============================================================================

func computeFinancials(project finance.Project, in Inputs) Financials {
	contract := project.ContractValue()

	inflow := decimal.Zero
	for _, i := range in.Inflows {
		inflow = inflow.Add(i.Amount)
	}

	outflow := decimal.Zero
	for _, p := range in.PaymentRequests {
		outflow = outflow.Add(p.TotalGross)
	}

	committed := decimal.Zero
	for _, r := range in.PurchaseRequests {
		if r.IsApproved() {
			committed = committed.Add(r.TotalAmount)
		}
	}

	return Financials{
		ContractValue:   contract,
		TotalInflow:     inflow,
		TotalOutflow:    outflow,
		CommittedCost:   committed,
		NetCashflow:     inflow.Sub(outflow),
		Profit:          contract.Sub(committed),
		ActualProfit:    contract.Sub(outflow),
		RemainingBudget: contract.Sub(committed),
	}
}

// =============================================================================
// CATEGORY ANALYSIS
// =============================================================================

// computeCategories groups costs by category, keeping first-appearance order:
// purchase line items, then budget lines, then payment requests.
func computeCategories(in Inputs) []CategoryLine {
	var lines []CategoryLine
	index := make(map[string]int)

	line := func(category string) *CategoryLine {
		if category == "" {
			category = finance.DefaultCategory
		}
		i, ok := index[category]
		if !ok {
			i = len(lines)
			index[category] = i
			lines = append(lines, CategoryLine{
				Name:      category,
				Budget:    decimal.Zero,
				Committed: decimal.Zero,
				Actual:    decimal.Zero,
			})
		}
		return &lines[i]
	}

	for _, r := range in.PurchaseRequests {
		for _, item := range r.Items {
			l := line(item.Category)
			if r.IsApproved() {
				l.Committed = l.Committed.Add(item.LineTotal)
			}
		}
	}
	for _, b := range in.BudgetLines {
		l := line(b.Category)
		l.Budget = l.Budget.Add(b.Amount)
	}
	for _, p := range in.PaymentRequests {
		l := line(p.Category)
		l.Actual = l.Actual.Add(p.TotalGross)
	}

	if lines == nil {
		return []CategoryLine{}
	}
	return lines
}

// =============================================================================
// TASK HISTOGRAM
// =============================================================================

// countTaskStatuses always returns the four known buckets plus TaskOther.
// A missing status counts as not started.
func countTaskStatuses(tasks []finance.Task) map[finance.TaskStatus]int {
	counts := make(map[finance.TaskStatus]int, len(finance.KnownTaskStatuses)+1)
	for _, s := range finance.KnownTaskStatuses {
		counts[s] = 0
	}
	counts[finance.TaskOther] = 0

	for _, t := range tasks {
		status := t.Status
		if status == "" {
			status = finance.TaskNotStarted
		}
		if !status.IsKnown() {
			status = finance.TaskOther
		}
		counts[status]++
	}
	return counts
}

// =============================================================================
// RANKINGS
// =============================================================================

func topItems(requests []finance.PurchaseRequest, limit int) []TopItem {
	items := make([]TopItem, 0)
	for _, r := range requests {
		for _, it := range r.Items {
			items = append(items, TopItem{
				Name:      it.ItemName,
				Category:  it.Category,
				Total:     it.LineTotal,
				RequestID: r.ID,
				Status:    r.Status,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Total.GreaterThan(items[j].Total)
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func pendingRequests(requests []finance.PurchaseRequest, limit int) []finance.PurchaseRequest {
	pending := make([]finance.PurchaseRequest, 0)
	for _, r := range requests {
		if r.Status == finance.StatusPending {
			pending = append(pending, r)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return finance.PriorityRank(pending[i].Priority) < finance.PriorityRank(pending[j].Priority)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending
}

// =============================================================================
// MONTHLY CASHFLOW
// =============================================================================

// monthlySeries buckets inflows and payment requests by month and keeps the
// last n months present. Records without a date are left out of the chart.
func monthlySeries(inflows []finance.Inflow, payments []finance.PaymentRequest, n int) []MonthPoint {
	buckets := make(map[string]*MonthPoint)
	bucket := func(key string) *MonthPoint {
		p, ok := buckets[key]
		if !ok {
			p = &MonthPoint{Month: key, Inflow: decimal.Zero, Outflow: decimal.Zero}
			buckets[key] = p
		}
		return p
	}

	for _, i := range inflows {
		if i.Date.IsZero() {
			continue
		}
		p := bucket(i.Date.Format(monthKeyLayout))
		p.Inflow = p.Inflow.Add(i.Amount)
	}
	for _, pr := range payments {
		if pr.RequestDate.IsZero() {
			continue
		}
		p := bucket(pr.RequestDate.Format(monthKeyLayout))
		p.Outflow = p.Outflow.Add(pr.TotalGross)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[len(keys)-n:]
	}

	series := make([]MonthPoint, 0, len(keys))
	for _, k := range keys {
		series = append(series, *buckets[k])
	}
	return series
}
