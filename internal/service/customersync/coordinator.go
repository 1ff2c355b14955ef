// Package customersync applies a customer's age-bracket tags and profile
// metafields to Shopify.
package customersync

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/manmanrai/limerime-vercel-api/internal/eligibility"
	applog "github.com/manmanrai/limerime-vercel-api/internal/platform/logging"
	"github.com/manmanrai/limerime-vercel-api/internal/profilefields"
	"github.com/manmanrai/limerime-vercel-api/internal/service/shopify"
)

// Operation names used for metrics and audit logs.
const (
	OpSync         = "sync"
	OpSyncDocument = "sync_document"
	OpUpsert       = "upsert"
)

const defaultMaxConcurrency = 8

// Config selects the policies a Coordinator applies.
type Config struct {
	TagPolicy     eligibility.TagPolicy
	SubjectPolicy eligibility.SubjectPolicy
	// MaxConcurrency bounds the writes in flight per request.
	MaxConcurrency int
}

// Observer receives sync outcomes. *metrics.Recorder implements it.
type Observer interface {
	ObserveSync(operation string, err error)
	ObserveMetafieldWrite(kind string, err error)
	ObserveTagWrite(err error)
}

type nopObserver struct{}

func (nopObserver) ObserveSync(string, error)           {}
func (nopObserver) ObserveMetafieldWrite(string, error) {}
func (nopObserver) ObserveTagWrite(error)               {}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver reports sync and write outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// Coordinator reads a customer's current state from Shopify, decides the
// age bracket and fans the resulting writes out concurrently.
type Coordinator struct {
	svc       shopify.Service
	eval      *eligibility.Evaluator
	tagPolicy eligibility.TagPolicy
	subject   eligibility.SubjectPolicy
	limit     int
	observer  Observer
}

// NewCoordinator creates a Coordinator. eval backs both the tag decision and
// the stored age.
func NewCoordinator(svc shopify.Service, eval *eligibility.Evaluator, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		svc:       svc,
		eval:      eval,
		tagPolicy: cmp.Or(cfg.TagPolicy, eligibility.TagPolicyExclusive),
		subject:   cmp.Or(cfg.SubjectPolicy, eligibility.SubjectSelf),
		limit:     cfg.MaxConcurrency,
		observer:  nopObserver{},
	}
	if c.limit <= 0 {
		c.limit = defaultMaxConcurrency
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write is one applied metafield write.
type Write struct {
	Field     string
	Kind      OpKind
	Metafield shopify.Metafield
}

// Result describes what a sync changed.
type Result struct {
	CustomerID string
	// Tags is the customer's tag list after reconciliation.
	Tags        []string
	TagsChanged bool
	// Writes lists the successful metafield writes in slot order.
	Writes []Write
	// Skipped lists input fields left untouched because their value did not parse.
	Skipped []string
}

// Sync applies raw profile fields to the customer. Fields outside the
// whitelist are ignored. The tag write and every metafield write run
// concurrently; when any of them fails the returned error has
// KindAggregate and the Result still describes the writes that were applied.
func (c *Coordinator) Sync(ctx context.Context, customerID string, raw map[string]string) (res *Result, err error) {
	defer func() { c.observer.ObserveSync(OpSync, err) }()

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, validationError("customerId", "customer id is required")
	}
	ctx = applog.WithFields(ctx, zap.String("customerId", customerID))
	record := profilefields.Extract(raw)
	if len(record) == 0 {
		return nil, validationError("fields", "no recognized profile fields")
	}

	customer, existing, err := c.read(ctx, customerID)
	if err != nil {
		c.audit(ctx, OpSync, customerID, nil, err)
		return nil, err
	}

	var inputs []shopify.MetafieldInput
	var fields []string
	var skipped []string
	for _, f := range record.Fields() {
		planned, perr := PlanField(f, record[f.Name], c.eval)
		if perr != nil {
			applog.LogWarn(ctx, "skipping profile field",
				zap.String("field", f.Name),
				zap.Error(perr),
			)
			skipped = append(skipped, f.Name)
			continue
		}
		for _, in := range planned {
			inputs = append(inputs, in)
			fields = append(fields, f.Name)
		}
	}

	dates := record.BirthDates(c.subject == eligibility.SubjectSelf)
	res, err = c.apply(ctx, customer, existing, len(dates) > 0, dates, inputs, fields)
	if res != nil {
		res.Skipped = skipped
	}
	c.audit(ctx, OpSync, customerID, res, err)
	return res, err
}

// read fetches the customer and its metafields concurrently. The first
// failure cancels the other read.
func (c *Coordinator) read(ctx context.Context, customerID string) (*shopify.Customer, []shopify.Metafield, error) {
	var customer *shopify.Customer
	var existing []shopify.Metafield

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cust, err := c.svc.GetCustomer(gctx, customerID)
		if err != nil {
			return &Error{Kind: KindRemoteRead, Op: "get_customer", Err: err}
		}
		customer = cust
		return nil
	})
	g.Go(func() error {
		list, err := c.listMetafields(gctx, customerID)
		if err != nil {
			return err
		}
		existing = list
		return nil
	})
	if err := g.Wait(); err != nil {
		applog.LogError(ctx, "failed to read customer state", err)
		return nil, nil, err
	}
	return customer, existing, nil
}

func (c *Coordinator) listMetafields(ctx context.Context, customerID string) ([]shopify.Metafield, error) {
	list, err := c.svc.ListMetafields(ctx, customerID)
	if err != nil {
		return nil, &Error{Kind: KindRemoteRead, Op: "list_metafields", Err: err}
	}
	return list, nil
}

// apply runs the tag write together with one upsert per input. When
// reconcile is set the tags are reconciled against dates, where no
// parsable date means not under the threshold; otherwise they are left as
// they are.
func (c *Coordinator) apply(
	ctx context.Context,
	customer *shopify.Customer,
	existing []shopify.Metafield,
	reconcile bool,
	dates []string,
	inputs []shopify.MetafieldInput,
	fields []string,
) (*Result, error) {
	current := eligibility.ParseTags(customer.Tags)
	tags := current
	if reconcile {
		tags = eligibility.Reconcile(current, c.eval.IsAnyUnder(dates...), c.tagPolicy)
	}

	res := &Result{
		CustomerID:  customer.ID,
		Tags:        tags,
		TagsChanged: !slices.Equal(tags, current),
	}

	var (
		mu       sync.Mutex
		failures []*Error
	)
	record := func(w *Write, failure *Error) {
		mu.Lock()
		defer mu.Unlock()
		if failure != nil {
			failures = append(failures, failure)
			return
		}
		if w != nil {
			res.Writes = append(res.Writes, *w)
		}
	}

	// Sibling writes keep going when one fails, so the group carries no
	// cancelling context.
	var g errgroup.Group
	g.SetLimit(c.limit)

	attempted := len(inputs)
	if res.TagsChanged {
		attempted++
		g.Go(func() error {
			err := c.svc.PutCustomerTags(ctx, customer.ID, eligibility.JoinTags(tags))
			c.observer.ObserveTagWrite(err)
			if err != nil {
				record(nil, &Error{Kind: KindRemoteWrite, Op: "put_customer_tags", Field: "tags", Err: err})
			}
			return nil
		})
	}

	for i, in := range inputs {
		op := PlanWrite(customer.ID, in, existing)
		op.Field = fields[i]
		g.Go(func() error {
			mf, err := c.execute(ctx, op)
			if err != nil {
				record(nil, err)
				return nil
			}
			record(&Write{Field: op.Field, Kind: op.Kind, Metafield: *mf}, nil)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(res.Writes, func(a, b Write) int {
		return cmp.Or(
			cmp.Compare(a.Metafield.Namespace, b.Metafield.Namespace),
			cmp.Compare(a.Metafield.Key, b.Metafield.Key),
		)
	})
	if len(failures) == 0 {
		return res, nil
	}

	slices.SortFunc(failures, func(a, b *Error) int { return cmp.Compare(a.Field, b.Field) })
	for _, f := range failures {
		applog.LogWarn(ctx, "customer write failed",
			zap.String("field", f.Field),
			zap.String("op", f.Op),
			zap.Error(f.Err),
		)
	}
	return res, newAggregate(failures, attempted)
}

// execute performs one planned write.
func (c *Coordinator) execute(ctx context.Context, op Operation) (*shopify.Metafield, *Error) {
	var (
		mf  *shopify.Metafield
		err error
	)
	switch op.Kind {
	case OpUpdate:
		mf, err = c.svc.UpdateMetafield(ctx, op.MetafieldID, op.Input)
	default:
		mf, err = c.svc.CreateMetafield(ctx, op.CustomerID, op.Input)
	}
	c.observer.ObserveMetafieldWrite(string(op.Kind), err)
	if err != nil {
		return nil, &Error{Kind: KindRemoteWrite, Op: string(op.Kind) + "_metafield", Field: op.Slot().String(), Err: err}
	}
	return mf, nil
}

func (c *Coordinator) audit(ctx context.Context, operation, customerID string, res *Result, err error) {
	ev := applog.SyncEvent{
		Operation:  operation,
		CustomerID: customerID,
		Outcome:    "success",
	}
	if err != nil {
		ev.Outcome = "failure"
		var syncErr *Error
		if errors.As(err, &syncErr) {
			ev.Failures = max(len(syncErr.Failures), 1)
		}
	}
	if res != nil {
		ev.Tags = res.Tags
		ev.Writes = len(res.Writes)
		ev.Skipped = res.Skipped
	}
	applog.LogSyncEvent(ctx, ev)
}
