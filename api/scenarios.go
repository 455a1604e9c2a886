/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates a construction
	project with the records the dashboard is built from.

AVAILABLE SCENARIOS:

	construction-site: Factory build mid-way through, every dashboard panel populated
	cost-overrun:      Approved purchases exceed the contract value
	empty-project:     Freshly signed contract, no records yet

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create suppliers, departments and inventory
 3. Create the project and its budget lines
 4. Add purchase requests, tasks, inflows and payment requests
 5. Refresh every cached collection

	Dates are relative to the current month so the six-month chart is
	always populated.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "construction-site"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - report/compute.go: what the dashboard derives from this data
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/project-controls/finance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "construction-site",
		Name:        "Nhà xưởng Bình Dương",
		Description: "Factory build mid-way through: approved and pending PYCs, monthly inflows and payments, tasks in every state",
	},
	{
		ID:          "cost-overrun",
		Name:        "Cải tạo văn phòng",
		Description: "Office renovation where approved purchases exceed the contract value",
	},
	{
		ID:          "empty-project",
		Name:        "Kho lạnh Long An",
		Description: "Freshly signed contract with no records yet",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "construction-site":
		load = h.loadConstructionSiteScenario
	case "cost-overrun":
		load = h.loadCostOverrunScenario
	case "empty-project":
		load = h.loadEmptyProjectScenario
	default:
		writeError(w, r, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.resetAll(ctx); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.refreshAll(ctx)

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	zerolog.Ctx(ctx).Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.resetAll(ctx); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.refreshAll(ctx)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) resetAll(ctx context.Context) error {
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return h.Store.Reset(ctx)
}

func (h *Handler) refreshAll(ctx context.Context) {
	refresh(ctx, h.Cache.Resources)
	refresh(ctx, h.Cache.Tasks)
	refresh(ctx, h.Cache.PaymentRequests)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadConstructionSiteScenario(ctx context.Context) error {
	b := h.newScenarioBuilder(ctx)

	b.companyRecords()

	b.project(finance.Project{
		ID:                 "prj-binh-duong",
		Name:               "Nhà xưởng Bình Dương",
		TotalPlannedBudget: vnd(12_000_000_000),
		Status:             "Đang thi công",
		StartDate:          b.monthStart(7),
		ProgressPercent:    55,
	})
	b.budget("Vật tư thô", 5_000_000_000)
	b.budget("Thiết bị", 2_500_000_000)
	b.budget("Nhân công", 3_000_000_000)

	// Approved PYCs make up committed cost; pending ones feed the approval queue.
	b.purchase("PYC-001", finance.StatusApproved, finance.PriorityHigh, 6,
		item("Vật tư thô", "Xi măng PCB40", "bao", 4_000, 92_000),
		item("Vật tư thô", "Thép D16", "kg", 60_000, 18_500),
	)
	b.purchase("PYC-002", finance.StatusApproved, finance.PriorityNormal, 5,
		item("Thiết bị", "Thuê cẩu tháp 3 tháng", "tháng", 3, 180_000_000),
	)
	b.purchase("PYC-003", finance.StatusApproved, finance.PriorityNormal, 4,
		item("Vật tư thô", "Cát vàng", "m3", 900, 420_000),
		item("Vật tư thô", "Đá 1x2", "m3", 1_100, 390_000),
	)
	b.purchase("PYC-004", finance.StatusRejected, finance.PriorityLow, 3,
		item("Thiết bị", "Máy phát điện dự phòng", "cái", 1, 650_000_000),
	)
	b.purchase("PYC-005", finance.StatusPending, finance.PriorityUrgent, 1,
		item("Vật tư thô", "Tôn lợp mái", "m2", 8_000, 145_000),
	)
	b.purchase("PYC-006", finance.StatusPending, finance.PriorityNormal, 1,
		item("", "Sơn chống gỉ", "thùng", 120, 1_250_000),
	)
	b.purchase("PYC-007", finance.StatusPending, finance.PriorityHigh, 0,
		item("Nhân công", "Tổ đội lắp dựng kèo thép", "công", 900, 550_000),
	)

	// Client pays by milestone, costs go out every month.
	b.inflow(6, 10, 2_400_000_000, "Tạm ứng hợp đồng 20%")
	b.inflow(4, 15, 1_800_000_000, "Nghiệm thu móng")
	b.inflow(2, 15, 1_800_000_000, "Nghiệm thu khung")
	b.inflow(0, 5, 1_200_000_000, "Nghiệm thu mái đợt 1")

	b.payment("DNTT-001", "Vật tư thô", 6, 20, 950_000_000)
	b.payment("DNTT-002", "Thiết bị", 5, 12, 180_000_000)
	b.payment("DNTT-003", "Nhân công", 5, 28, 420_000_000)
	b.payment("DNTT-004", "Vật tư thô", 4, 18, 780_000_000)
	b.payment("DNTT-005", "Thiết bị", 3, 12, 180_000_000)
	b.payment("DNTT-006", "Nhân công", 3, 28, 460_000_000)
	b.payment("DNTT-007", "Vật tư thô", 2, 22, 610_000_000)
	b.payment("DNTT-008", "Thiết bị", 1, 12, 180_000_000)
	b.payment("DNTT-009", "", 1, 25, 35_000_000)
	b.payment("DNTT-010", "Nhân công", 0, 3, 390_000_000)

	b.task("Khảo sát địa chất", "Trần Văn Nam", finance.TaskDone, -150)
	b.task("Thi công móng", "Lê Thị Hoa", finance.TaskDone, -100)
	b.task("Dựng khung thép", "Phạm Quốc Bảo", finance.TaskInProgress, 20)
	b.task("Lợp mái", "Phạm Quốc Bảo", finance.TaskInProgress, 45)
	b.task("Nghiệm thu PCCC", "Lê Thị Hoa", finance.TaskOverdue, -5)
	b.task("Lắp đặt hệ thống điện", "Nguyễn Minh Tú", finance.TaskNotStarted, 60)
	b.task("Hoàn thiện nền epoxy", "", "", 90)

	return b.err
}

func (h *Handler) loadCostOverrunScenario(ctx context.Context) error {
	b := h.newScenarioBuilder(ctx)

	b.companyRecords()

	b.project(finance.Project{
		ID:                 "prj-van-phong",
		Name:               "Cải tạo văn phòng",
		TotalPlannedBudget: vnd(1_500_000_000),
		Status:             "Vượt ngân sách",
		StartDate:          b.monthStart(4),
		ProgressPercent:    80,
	})
	b.budget("Nội thất", 900_000_000)
	b.budget("Nhân công", 400_000_000)

	b.purchase("PYC-101", finance.StatusApproved, finance.PriorityHigh, 3,
		item("Nội thất", "Vách kính cường lực", "m2", 420, 1_650_000),
		item("Nội thất", "Sàn gỗ công nghiệp", "m2", 600, 480_000),
	)
	b.purchase("PYC-102", finance.StatusApproved, finance.PriorityNormal, 2,
		item("Nội thất", "Bàn ghế làm việc", "bộ", 120, 4_200_000),
	)
	b.purchase("PYC-103", finance.StatusApproved, finance.PriorityUrgent, 1,
		item("Nhân công", "Thi công trần thạch cao", "m2", 900, 260_000),
	)

	b.inflow(3, 5, 450_000_000, "Tạm ứng 30%")
	b.inflow(1, 5, 600_000_000, "Thanh toán đợt 2")

	b.payment("DNTT-101", "Nội thất", 3, 15, 693_000_000)
	b.payment("DNTT-102", "Nội thất", 2, 10, 504_000_000)
	b.payment("DNTT-103", "Nhân công", 1, 20, 234_000_000)
	b.payment("DNTT-104", "Nội thất", 0, 2, 288_000_000)

	b.task("Tháo dỡ hiện trạng", "Đỗ Thanh Hải", finance.TaskDone, -90)
	b.task("Lắp vách kính", "Đỗ Thanh Hải", finance.TaskDone, -30)
	b.task("Lắp đặt nội thất", "Vũ Ngọc Anh", finance.TaskOverdue, -7)

	return b.err
}

func (h *Handler) loadEmptyProjectScenario(ctx context.Context) error {
	b := h.newScenarioBuilder(ctx)

	b.companyRecords()
	b.project(finance.Project{
		ID:                 "prj-kho-lanh",
		Name:               "Kho lạnh Long An",
		TotalPlannedBudget: vnd(8_000_000_000),
		Status:             "Chuẩn bị",
	})

	return b.err
}

// =============================================================================
// SCENARIO BUILDER
// =============================================================================

// scenarioBuilder writes records for one project and keeps the first error,
// so loaders read as a flat list of facts.
type scenarioBuilder struct {
	ctx       context.Context
	store     Store
	now       time.Time
	projectID string
	seq       int
	err       error
}

func (h *Handler) newScenarioBuilder(ctx context.Context) *scenarioBuilder {
	return &scenarioBuilder{ctx: ctx, store: h.Store, now: h.now().UTC()}
}

func (b *scenarioBuilder) next(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%s-%03d", b.projectID, prefix, b.seq)
}

// monthStart returns the first day of the month n months ago.
func (b *scenarioBuilder) monthStart(n int) *time.Time {
	t := time.Date(b.now.Year(), b.now.Month()-time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return &t
}

// dayOf returns day d of the month n months ago, clamped to today for n == 0.
func (b *scenarioBuilder) dayOf(n, d int) time.Time {
	t := time.Date(b.now.Year(), b.now.Month()-time.Month(n), d, 0, 0, 0, 0, time.UTC)
	if n == 0 && t.After(b.now) {
		return time.Date(b.now.Year(), b.now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func (b *scenarioBuilder) companyRecords() {
	if b.err != nil {
		return
	}
	suppliers := []finance.Supplier{
		{ID: "sup-hoa-phat", Name: "Công ty CP Tập đoàn Hòa Phát", TaxCode: "0900189284", Phone: "024 6274 8888"},
		{ID: "sup-ha-tien", Name: "Xi măng Hà Tiên", TaxCode: "0302066015"},
		{ID: "sup-an-phat", Name: "Cơ giới An Phát", Phone: "0274 3822 111", Address: "Thủ Dầu Một, Bình Dương"},
	}
	for _, s := range suppliers {
		if b.err = b.store.SaveSupplier(b.ctx, s); b.err != nil {
			return
		}
	}
	for _, d := range []finance.Department{
		{ID: "dep-ky-thuat", Name: "Kỹ thuật"},
		{ID: "dep-vat-tu", Name: "Vật tư"},
		{ID: "dep-ke-toan", Name: "Kế toán"},
	} {
		if b.err = b.store.SaveDepartment(b.ctx, d); b.err != nil {
			return
		}
	}
	resources := []finance.Resource{
		{ID: "res-001", Code: "VT-001", Name: "Xi măng PCB40", Category: "Vật tư thô", Unit: "bao", Quantity: vnd(350), UnitPrice: vnd(92_000), Warehouse: "Kho tổng"},
		{ID: "res-002", Code: "VT-002", Name: "Thép D16", Category: "Vật tư thô", Unit: "kg", Quantity: vnd(4_200), UnitPrice: vnd(18_500), Warehouse: "Kho tổng"},
		{ID: "res-003", Code: "TB-001", Name: "Máy trộn bê tông 350L", Category: "Thiết bị", Unit: "cái", Quantity: vnd(2), UnitPrice: vnd(38_000_000), Warehouse: "Bãi thiết bị"},
		{ID: "res-004", Code: "BH-001", Name: "Mũ bảo hộ", Category: "Bảo hộ lao động", Unit: "cái", Quantity: vnd(80), UnitPrice: vnd(65_000), Warehouse: "Kho tổng"},
	}
	for _, r := range resources {
		if b.err = b.store.SaveResource(b.ctx, r); b.err != nil {
			return
		}
	}
}

func (b *scenarioBuilder) project(p finance.Project) {
	if b.err != nil {
		return
	}
	b.projectID = p.ID
	p.CreatedAt = b.now
	b.err = b.store.SaveProject(b.ctx, p)
}

func (b *scenarioBuilder) budget(category string, amount int64) {
	if b.err != nil {
		return
	}
	b.err = b.store.SaveBudgetLine(b.ctx, finance.BudgetLine{
		ID:        b.next("bl"),
		ProjectID: b.projectID,
		Category:  category,
		Amount:    vnd(amount),
	})
}

func (b *scenarioBuilder) purchase(code string, status finance.RequestStatus, priority finance.Priority, monthsAgo int, items ...finance.PurchaseLineItem) {
	if b.err != nil {
		return
	}
	_, b.err = b.store.SavePurchaseRequest(b.ctx, finance.PurchaseRequest{
		ID:          b.next("pyc"),
		ProjectID:   b.projectID,
		Code:        code,
		Status:      status,
		Priority:    priority,
		RequestedBy: "Phòng Vật tư",
		CreatedAt:   b.dayOf(monthsAgo, 1),
		Items:       items,
	})
}

func (b *scenarioBuilder) inflow(monthsAgo, day int, amount int64, note string) {
	if b.err != nil {
		return
	}
	b.err = b.store.SaveInflow(b.ctx, finance.Inflow{
		ID:        b.next("in"),
		ProjectID: b.projectID,
		Amount:    vnd(amount),
		Date:      b.dayOf(monthsAgo, day),
		Note:      note,
	})
}

func (b *scenarioBuilder) payment(code, category string, monthsAgo, day int, amount int64) {
	if b.err != nil {
		return
	}
	b.err = b.store.SavePaymentRequest(b.ctx, finance.PaymentRequest{
		ID:          b.next("dntt"),
		ProjectID:   b.projectID,
		Code:        code,
		Category:    category,
		TotalGross:  vnd(amount),
		RequestDate: b.dayOf(monthsAgo, day),
		Status:      finance.StatusApproved,
	})
}

// task adds a task due dueInDays from now (negative for the past).
func (b *scenarioBuilder) task(name, assignee string, status finance.TaskStatus, dueInDays int) {
	if b.err != nil {
		return
	}
	due := b.now.AddDate(0, 0, dueInDays).Truncate(24 * time.Hour)
	b.err = b.store.SaveTask(b.ctx, finance.Task{
		ID:        b.next("task"),
		ProjectID: b.projectID,
		Name:      name,
		Assignee:  assignee,
		Status:    status,
		DueDate:   &due,
	})
}

func item(category, name, unit string, qty, price int64) finance.PurchaseLineItem {
	return finance.PurchaseLineItem{
		Category:  category,
		ItemName:  name,
		Unit:      unit,
		Quantity:  decimal.NewFromInt(qty),
		UnitPrice: decimal.NewFromInt(price),
	}
}

func vnd(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
