/*
aggregator.go - Project financial report aggregation

PURPOSE:
  Builds a ProjectReport for one project: contract value, inflow/outflow
  totals, profit variants, category breakdown, task histogram, most
  expensive line items, pending purchase requests and a monthly cashflow
  series.

ALGORITHM:
  1. Load the project; missing project -> finance.ErrProjectNotFound
  2. Load purchase requests (with items), tasks, inflows and payment
     requests concurrently (plus budget lines when the source has them)
  3. Compute (see compute.go)

FAILURE SEMANTICS:
  All-or-nothing. The first failed read cancels the others and the call
  returns a *finance.FetchError; no partial report is ever returned.
  No caching, no retries: every call reflects the latest stored data.

SEE ALSO:
  - compute.go: the pure computation
  - store/sqlite/sqlite.go: production Source
*/
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/project-controls/finance"
	"golang.org/x/sync/errgroup"
)

// Source is the read side of the persistence collaborator.
type Source interface {
	// FindProjectByID returns (nil, nil) when the project does not exist.
	FindProjectByID(ctx context.Context, id string) (*finance.Project, error)

	// FindPurchaseRequestsByProject returns requests with their line items.
	FindPurchaseRequestsByProject(ctx context.Context, projectID string) ([]finance.PurchaseRequest, error)
	FindTasksByProject(ctx context.Context, projectID string) ([]finance.Task, error)
	FindInflowsByProject(ctx context.Context, projectID string) ([]finance.Inflow, error)
	FindPaymentRequestsByProject(ctx context.Context, projectID string) ([]finance.PaymentRequest, error)
}

// BudgetSource is implemented by sources that store per-category budgets.
type BudgetSource interface {
	FindBudgetLinesByProject(ctx context.Context, projectID string) ([]finance.BudgetLine, error)
}

// Aggregator computes project reports on demand.
type Aggregator struct {
	src    Source
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock used to stamp GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator reading from src.
func NewAggregator(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:    src,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeProjectReport loads everything for projectID and summarises it.
func (a *Aggregator) ComputeProjectReport(ctx context.Context, projectID string) (*ProjectReport, error) {
	logger := a.loggerFor(ctx).With().Str("project_id", projectID).Logger()

	project, err := a.src.FindProjectByID(ctx, projectID)
	if err != nil {
		return nil, &finance.FetchError{Op: "project", ProjectID: projectID, Err: err}
	}
	if project == nil {
		return nil, fmt.Errorf("project %q: %w", projectID, finance.ErrProjectNotFound)
	}

	in, err := a.load(ctx, projectID)
	if err != nil {
		logger.Error().Err(err).Msg("report inputs could not be loaded")
		return nil, err
	}

	rep := Compute(*project, in)
	rep.GeneratedAt = a.now()

	logger.Debug().
		Int("purchase_requests", len(in.PurchaseRequests)).
		Int("tasks", len(in.Tasks)).
		Int("inflows", len(in.Inflows)).
		Int("payment_requests", len(in.PaymentRequests)).
		Msg("project report computed")

	return rep, nil
}

// load fans out the collection reads. Each goroutine writes a distinct
// field of in, so completion order does not matter.
func (a *Aggregator) load(ctx context.Context, projectID string) (Inputs, error) {
	var in Inputs
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		prs, err := a.src.FindPurchaseRequestsByProject(gctx, projectID)
		if err != nil {
			return &finance.FetchError{Op: "purchase_requests", ProjectID: projectID, Err: err}
		}
		in.PurchaseRequests = prs
		return nil
	})
	g.Go(func() error {
		tasks, err := a.src.FindTasksByProject(gctx, projectID)
		if err != nil {
			return &finance.FetchError{Op: "tasks", ProjectID: projectID, Err: err}
		}
		in.Tasks = tasks
		return nil
	})
	g.Go(func() error {
		inflows, err := a.src.FindInflowsByProject(gctx, projectID)
		if err != nil {
			return &finance.FetchError{Op: "inflows", ProjectID: projectID, Err: err}
		}
		in.Inflows = inflows
		return nil
	})
	g.Go(func() error {
		payments, err := a.src.FindPaymentRequestsByProject(gctx, projectID)
		if err != nil {
			return &finance.FetchError{Op: "payment_requests", ProjectID: projectID, Err: err}
		}
		in.PaymentRequests = payments
		return nil
	})
	if bs, ok := a.src.(BudgetSource); ok {
		g.Go(func() error {
			lines, err := bs.FindBudgetLinesByProject(gctx, projectID)
			if err != nil {
				return &finance.FetchError{Op: "budget_lines", ProjectID: projectID, Err: err}
			}
			in.BudgetLines = lines
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}

func (a *Aggregator) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.logger
}
