package cache

import (
	"context"

	"github.com/warp/project-controls/finance"
)

// Collection names, also used as log fields.
const (
	NameResources       = "resources"
	NameTasks           = "tasks"
	NamePaymentRequests = "payment_requests"
)

// CollectionSource is the full-collection read side of the store.
type CollectionSource interface {
	FindAllResources(ctx context.Context) ([]finance.Resource, error)
	FindAllTasks(ctx context.Context) ([]finance.Task, error)
	FindAllPaymentRequests(ctx context.Context) ([]finance.PaymentRequest, error)
}

// Stores is the set of shared collections. Build it once at startup and
// pass it to whatever needs cached reads; there is no package-level instance.
type Stores struct {
	Resources       *Collection[finance.Resource]
	Tasks           *Collection[finance.Task]
	PaymentRequests *Collection[finance.PaymentRequest]
}

// NewStores wires one collection per entity type to src.
func NewStores(src CollectionSource, opts ...Option) *Stores {
	return &Stores{
		Resources:       New(NameResources, src.FindAllResources, opts...),
		Tasks:           New(NameTasks, src.FindAllTasks, opts...),
		PaymentRequests: New(NamePaymentRequests, src.FindAllPaymentRequests, opts...),
	}
}

// All returns every collection as a warm target.
func (s *Stores) All() []Target {
	return []Target{s.Resources, s.Tasks, s.PaymentRequests}
}
