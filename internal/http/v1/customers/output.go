package customers

// SyncOutput is the response wrapper for the sync and eligibility writes.
type SyncOutput struct {
	Body SyncResult
}

// DocumentGetOutput is the response wrapper for GET /customers/{customerId}/eligibility.
type DocumentGetOutput struct {
	Body map[string]any
}

// MzdaoOutput is the response wrapper for POST /customers/{customerId}/mzdao.
type MzdaoOutput struct {
	Body MzdaoResult
}
