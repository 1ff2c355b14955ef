package customersync

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	applog "github.com/manmanrai/limerime-vercel-api/internal/platform/logging"
	"github.com/manmanrai/limerime-vercel-api/internal/service/shopify"
)

var errInvalidDocument = errors.New("invalid value format")

// SyncDocument stores a free-form eligibility document (a JSON object) in
// SlotEligibility and reconciles tags from it: the customer is under the
// threshold when any string member whose key ends in "birth" or
// "birth_date" is. A document without such members counts as not under,
// so the tags are always reconciled. A value that is not a JSON object fails with
// KindMalformedInput before any remote call.
func (c *Coordinator) SyncDocument(ctx context.Context, customerID, value string) (res *Result, err error) {
	defer func() { c.observer.ObserveSync(OpSyncDocument, err) }()

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, validationError("customerId", "customer id is required")
	}
	ctx = applog.WithFields(ctx, zap.String("customerId", customerID))
	if strings.TrimSpace(value) == "" {
		return nil, validationError("value", "value is required")
	}
	dates, err := documentBirthDates(value)
	if err != nil {
		return nil, err
	}

	customer, existing, err := c.read(ctx, customerID)
	if err != nil {
		c.audit(ctx, OpSyncDocument, customerID, nil, err)
		return nil, err
	}

	res, err = c.apply(ctx, customer, existing, true, dates,
		[]shopify.MetafieldInput{SlotEligibility.Input(value)},
		[]string{SlotEligibility.String()},
	)
	c.audit(ctx, OpSyncDocument, customerID, res, err)
	return res, err
}

// documentBirthDates parses value as a JSON object and returns its birth date
// members in key order.
func documentBirthDates(value string) ([]string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(value), &doc); err != nil || doc == nil {
		return nil, &Error{Kind: KindMalformedInput, Field: "value", Err: errInvalidDocument}
	}
	var dates []string
	for _, key := range slices.Sorted(maps.Keys(doc)) {
		if !strings.HasSuffix(key, "birth") && !strings.HasSuffix(key, "birth_date") {
			continue
		}
		if s, ok := doc[key].(string); ok {
			dates = append(dates, s)
		}
	}
	return dates, nil
}

// ReadDocument returns the customer's stored eligibility document.
func (c *Coordinator) ReadDocument(ctx context.Context, customerID string) (map[string]any, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, validationError("customerId", "customer id is required")
	}
	ctx = applog.WithFields(ctx, zap.String("customerId", customerID))
	list, err := c.listMetafields(ctx, customerID)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(list, SlotEligibility.Matches)
	if idx < 0 {
		return nil, &Error{Kind: KindRemoteRead, Op: "read_document", Field: SlotEligibility.String(), Err: ErrDocumentNotFound}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(list[idx].Value), &doc); err != nil || doc == nil {
		applog.LogWarn(ctx, "stored eligibility document is not a JSON object",
			zap.String("metafieldId", list[idx].ID),
		)
		return nil, &Error{Kind: KindMalformedInput, Field: SlotEligibility.String(), Err: errInvalidDocument}
	}
	return doc, nil
}

// Upsert writes value into slot, creating the metafield when the customer
// has none there yet. Tags are not touched.
func (c *Coordinator) Upsert(ctx context.Context, customerID string, slot Slot, value string) (mf *shopify.Metafield, err error) {
	defer func() { c.observer.ObserveSync(OpUpsert, err) }()

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, validationError("customerId", "customer id is required")
	}
	ctx = applog.WithFields(ctx, zap.String("customerId", customerID))
	existing, err := c.listMetafields(ctx, customerID)
	if err != nil {
		applog.LogError(ctx, "failed to list metafields", err)
		return nil, err
	}

	op := PlanWrite(customerID, slot.Input(value), existing)
	op.Field = slot.String()
	written, werr := c.execute(ctx, op)
	if werr != nil {
		applog.LogError(ctx, "metafield upsert failed", werr)
		c.audit(ctx, OpUpsert, customerID, nil, werr)
		return nil, werr
	}
	c.audit(ctx, OpUpsert, customerID, &Result{
		CustomerID: customerID,
		Writes:     []Write{{Field: op.Field, Kind: op.Kind, Metafield: *written}},
	}, nil)
	return written, nil
}
