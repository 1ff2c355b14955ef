package customers

import (
	"github.com/manmanrai/limerime-vercel-api/internal/platform/timeutil"
)

// Metafield is a customer metafield as written to Shopify.
type Metafield struct {
	ID        string        `json:"id"        doc:"Metafield ID"                    example:"23746582749"`
	Namespace string        `json:"namespace" doc:"Metafield namespace"             example:"custom"`
	Key       string        `json:"key"       doc:"Metafield key"                   example:"age"`
	Value     string        `json:"value"     doc:"Stored value in its string form" example:"29"`
	Type      string        `json:"type"      doc:"Shopify metafield type"          example:"number_integer"`
	UpdatedAt timeutil.Time `json:"updatedAt" doc:"Last write time"                 example:"2026-10-15T09:30:00.000Z"`
}

// Write is one metafield write applied by a sync.
type Write struct {
	Field     string    `json:"field"     doc:"Input field the write came from" example:"self_birth_date"`
	Kind      string    `json:"kind"      doc:"create or update"                example:"create" enum:"create,update"`
	Metafield Metafield `json:"metafield" doc:"Metafield after the write"`
}

// SyncResult summarizes a sync.
type SyncResult struct {
	CustomerID  string   `json:"customerId"  doc:"Shopify customer ID"                         example:"8570264879349"`
	Tags        []string `json:"tags"        doc:"Customer tags after reconciliation"          example:"[\"vip\",\"under30\"]"`
	TagsChanged bool     `json:"tagsChanged" doc:"Whether the tag list was written"            example:"true"`
	Writes      []Write  `json:"writes"      doc:"Applied metafield writes in slot order"`
	Skipped     []string `json:"skipped"     doc:"Fields left untouched because they did not parse"`
}

// MzdaoResult is the response body for an mzdao upsert.
type MzdaoResult struct {
	Success   bool      `json:"success"   doc:"Always true on success" example:"true"`
	Metafield Metafield `json:"metafield" doc:"Stored metafield"`
}
