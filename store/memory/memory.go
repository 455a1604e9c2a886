// Package memory provides an in-memory implementation of the read interfaces
// used by the report aggregator and the cache stores (for testing/dev).
package memory

import (
	"context"
	"sync"

	"github.com/warp/project-controls/finance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps records in insertion order. Failures can be injected per
// operation name to exercise error paths.
type Store struct {
	mu sync.RWMutex

	projects         map[string]finance.Project
	purchaseRequests []finance.PurchaseRequest
	tasks            []finance.Task
	inflows          []finance.Inflow
	paymentRequests  []finance.PaymentRequest
	budgetLines      []finance.BudgetLine
	resources        []finance.Resource

	failures map[string]error
	calls    map[string]int
}

// Operation names accepted by Fail and Calls.
const (
	OpProject          = "project"
	OpPurchaseRequests = "purchase_requests"
	OpTasks            = "tasks"
	OpInflows          = "inflows"
	OpPaymentRequests  = "payment_requests"
	OpBudgetLines      = "budget_lines"
	OpAllResources     = "all_resources"
	OpAllTasks         = "all_tasks"
	OpAllPayments      = "all_payment_requests"
)

func New() *Store {
	return &Store{
		projects: make(map[string]finance.Project),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Fail makes every subsequent call to op return err. A nil err clears it.
func (m *Store) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op has been invoked.
func (m *Store) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// enter records the call and returns the injected failure, if any.
// Must be called without the lock held.
func (m *Store) enter(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	return m.failures[op]
}

// =============================================================================
// WRITES
// =============================================================================

func (m *Store) AddProject(p finance.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
}

func (m *Store) AddPurchaseRequest(r finance.PurchaseRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchaseRequests = append(m.purchaseRequests, r)
}

func (m *Store) AddTask(t finance.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, t)
}

func (m *Store) AddInflow(i finance.Inflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflows = append(m.inflows, i)
}

func (m *Store) AddPaymentRequest(p finance.PaymentRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentRequests = append(m.paymentRequests, p)
}

func (m *Store) AddBudgetLine(b finance.BudgetLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgetLines = append(m.budgetLines, b)
}

func (m *Store) AddResource(r finance.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, r)
}

// =============================================================================
// PROJECT READS (report.Source, report.BudgetSource)
// =============================================================================

func (m *Store) FindProjectByID(_ context.Context, id string) (*finance.Project, error) {
	if err := m.enter(OpProject); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Store) FindPurchaseRequestsByProject(_ context.Context, projectID string) ([]finance.PurchaseRequest, error) {
	if err := m.enter(OpPurchaseRequests); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.purchaseRequests, func(r finance.PurchaseRequest) bool { return r.ProjectID == projectID }), nil
}

func (m *Store) FindTasksByProject(_ context.Context, projectID string) ([]finance.Task, error) {
	if err := m.enter(OpTasks); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.tasks, func(t finance.Task) bool { return t.ProjectID == projectID }), nil
}

func (m *Store) FindInflowsByProject(_ context.Context, projectID string) ([]finance.Inflow, error) {
	if err := m.enter(OpInflows); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.inflows, func(i finance.Inflow) bool { return i.ProjectID == projectID }), nil
}

func (m *Store) FindPaymentRequestsByProject(_ context.Context, projectID string) ([]finance.PaymentRequest, error) {
	if err := m.enter(OpPaymentRequests); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.paymentRequests, func(p finance.PaymentRequest) bool { return p.ProjectID == projectID }), nil
}

func (m *Store) FindBudgetLinesByProject(_ context.Context, projectID string) ([]finance.BudgetLine, error) {
	if err := m.enter(OpBudgetLines); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.budgetLines, func(b finance.BudgetLine) bool { return b.ProjectID == projectID }), nil
}

// =============================================================================
// FULL-COLLECTION READS (cache.CollectionSource)
// =============================================================================

func (m *Store) FindAllResources(_ context.Context) ([]finance.Resource, error) {
	if err := m.enter(OpAllResources); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]finance.Resource{}, m.resources...), nil
}

func (m *Store) FindAllTasks(_ context.Context) ([]finance.Task, error) {
	if err := m.enter(OpAllTasks); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]finance.Task{}, m.tasks...), nil
}

func (m *Store) FindAllPaymentRequests(_ context.Context) ([]finance.PaymentRequest, error) {
	if err := m.enter(OpAllPayments); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]finance.PaymentRequest{}, m.paymentRequests...), nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	result := make([]T, 0)
	for _, it := range items {
		if keep(it) {
			result = append(result, it)
		}
	}
	return result
}
