// Package shopify talks to the Shopify Admin REST API: customer tags and
// customer metafields.
package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service errors
var (
	ErrNotFound     = errors.New("shopify resource not found")
	ErrUnauthorized = errors.New("shopify access denied")
	ErrRateLimited  = errors.New("shopify rate limit exceeded")
	ErrInvalid      = errors.New("shopify rejected the request")
	ErrUpstream     = errors.New("shopify upstream error")
)

// UpstreamErrorKind classifies Shopify upstream failures.
type UpstreamErrorKind string

const (
	UpstreamErrorKindNotFound     UpstreamErrorKind = "not_found"
	UpstreamErrorKindUnauthorized UpstreamErrorKind = "unauthorized"
	UpstreamErrorKindRateLimited  UpstreamErrorKind = "rate_limited"
	UpstreamErrorKindInvalid      UpstreamErrorKind = "invalid"
	UpstreamErrorKindUpstream     UpstreamErrorKind = "upstream"
)

// UpstreamError includes Shopify response metadata for error mapping.
type UpstreamError struct {
	Kind       UpstreamErrorKind
	Status     int
	RetryAfter string
	// Detail is the "errors" member of the response body, when present.
	Detail string
	cause  error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "shopify upstream error"
	}
	msg := fmt.Sprintf("shopify upstream error (kind=%s status=%d)", e.Kind, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap enables errors.Is/As against sentinel service errors.
func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// MetafieldType is the declared value type of a metafield.
type MetafieldType string

const (
	TypeSingleLineText     MetafieldType = "single_line_text_field"
	TypeListSingleLineText MetafieldType = "list.single_line_text_field"
	TypeDate               MetafieldType = "date"
	TypeNumberInteger      MetafieldType = "number_integer"
	TypeJSON               MetafieldType = "json"
)

// IsList reports whether values of this type are JSON encoded lists.
func (t MetafieldType) IsList() bool {
	return strings.HasPrefix(string(t), "list.")
}

// Customer is the part of a Shopify customer record this service touches.
type Customer struct {
	ID string
	// Tags is Shopify's comma separated tag string.
	Tags string
}

// Metafield is a namespaced, typed value attached to a customer.
type Metafield struct {
	ID        string
	Namespace string
	Key       string
	Value     string
	Type      MetafieldType
	UpdatedAt time.Time
}

// MetafieldInput is the payload for creating or updating a metafield.
type MetafieldInput struct {
	Namespace string
	Key       string
	Value     string
	Type      MetafieldType
}

// Service defines the Shopify operations the sync relies on.
type Service interface {
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	PutCustomerTags(ctx context.Context, customerID, tags string) error
	ListMetafields(ctx context.Context, customerID string) ([]Metafield, error)
	CreateMetafield(ctx context.Context, customerID string, in MetafieldInput) (*Metafield, error)
	UpdateMetafield(ctx context.Context, metafieldID string, in MetafieldInput) (*Metafield, error)
}

// RequestObserver receives the outcome of every upstream call.
type RequestObserver interface {
	ObserveUpstream(operation string, status int, duration time.Duration)
}
