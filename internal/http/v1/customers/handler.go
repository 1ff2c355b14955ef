package customers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/manmanrai/limerime-vercel-api/internal/platform/timeutil"
	"github.com/manmanrai/limerime-vercel-api/internal/service/customersync"
	"github.com/manmanrai/limerime-vercel-api/internal/service/shopify"
)

// Syncer is the part of *customersync.Coordinator the handlers use.
type Syncer interface {
	Sync(ctx context.Context, customerID string, raw map[string]string) (*customersync.Result, error)
	SyncDocument(ctx context.Context, customerID, value string) (*customersync.Result, error)
	ReadDocument(ctx context.Context, customerID string) (map[string]any, error)
	Upsert(ctx context.Context, customerID string, slot customersync.Slot, value string) (*shopify.Metafield, error)
}

// Register wires customer routes into the provided API router.
func Register(api huma.API, svc Syncer) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-customer",
		Method:      http.MethodPost,
		Path:        "/customers/{customerId}/sync",
		Summary:     "Sync customer profile",
		Description: "Stores whitelisted profile fields as metafields and reconciles the under30/above30 tags.",
		Tags:        []string{"Customers"},
	}, func(ctx context.Context, input *SyncInput) (*SyncOutput, error) {
		res, err := svc.Sync(ctx, input.CustomerID, input.Body.Fields)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return &SyncOutput{Body: toHTTPResult(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-customer-eligibility",
		Method:      http.MethodPost,
		Path:        "/customers/{customerId}/eligibility",
		Summary:     "Store eligibility document",
		Description: "Stores a JSON eligibility document and reconciles tags from its birth date members.",
		Tags:        []string{"Customers"},
	}, func(ctx context.Context, input *DocumentPutInput) (*SyncOutput, error) {
		res, err := svc.SyncDocument(ctx, input.CustomerID, input.Body.Value)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return &SyncOutput{Body: toHTTPResult(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-customer-eligibility",
		Method:      http.MethodGet,
		Path:        "/customers/{customerId}/eligibility",
		Summary:     "Get eligibility document",
		Description: "Returns the stored eligibility document.",
		Tags:        []string{"Customers"},
	}, func(ctx context.Context, input *CustomerPath) (*DocumentGetOutput, error) {
		doc, err := svc.ReadDocument(ctx, input.CustomerID)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return &DocumentGetOutput{Body: doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-customer-mzdao",
		Method:      http.MethodPost,
		Path:        "/customers/{customerId}/mzdao",
		Summary:     "Store mzdao value",
		Description: "Creates or updates the custom.mzdao metafield.",
		Tags:        []string{"Customers"},
	}, func(ctx context.Context, input *MzdaoInput) (*MzdaoOutput, error) {
		mf, err := svc.Upsert(ctx, input.CustomerID, customersync.SlotMzdao, input.Body.Value)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return &MzdaoOutput{Body: MzdaoResult{Success: true, Metafield: toHTTPMetafield(mf)}}, nil
	})
}

func mapServiceError(err error) error {
	var syncErr *customersync.Error
	if !errors.As(err, &syncErr) {
		return huma.Error502BadGateway("upstream error")
	}
	details := problemDetails(syncErr)

	switch syncErr.Kind {
	case customersync.KindValidation:
		return huma.Error400BadRequest(syncErr.Error(), details...)
	case customersync.KindMalformedInput:
		return huma.Error400BadRequest("Invalid value format", details...)
	case customersync.KindRemoteRead:
		if errors.Is(err, shopify.ErrNotFound) || errors.Is(err, customersync.ErrDocumentNotFound) {
			return huma.Error404NotFound("resource not found", details...)
		}
		var upstreamErr *shopify.UpstreamError
		if errors.As(err, &upstreamErr) && upstreamErr.Kind == shopify.UpstreamErrorKindRateLimited {
			rateLimitErr := huma.Error429TooManyRequests("rate limit exceeded", details...)
			if upstreamErr.RetryAfter != "" {
				return huma.ErrorWithHeaders(rateLimitErr, http.Header{"Retry-After": {upstreamErr.RetryAfter}})
			}
			return rateLimitErr
		}
	}
	return huma.Error502BadGateway(syncErr.Error(), details...)
}

func problemDetails(e *customersync.Error) []error {
	msg := e.Details()
	if msg == "" {
		return nil
	}
	detail := &huma.ErrorDetail{Message: msg}
	if e.Field != "" {
		detail.Location = e.Field
	}
	return []error{detail}
}

func toHTTPMetafield(m *shopify.Metafield) Metafield {
	return Metafield{
		ID:        m.ID,
		Namespace: m.Namespace,
		Key:       m.Key,
		Value:     m.Value,
		Type:      string(m.Type),
		UpdatedAt: timeutil.Time{Time: m.UpdatedAt},
	}
}

func toHTTPResult(r *customersync.Result) SyncResult {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	skipped := r.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	writes := make([]Write, len(r.Writes))
	for i := range r.Writes {
		writes[i] = Write{
			Field:     r.Writes[i].Field,
			Kind:      string(r.Writes[i].Kind),
			Metafield: toHTTPMetafield(&r.Writes[i].Metafield),
		}
	}
	return SyncResult{
		CustomerID:  r.CustomerID,
		Tags:        tags,
		TagsChanged: r.TagsChanged,
		Writes:      writes,
		Skipped:     skipped,
	}
}
