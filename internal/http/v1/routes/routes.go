package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/manmanrai/limerime-vercel-api/internal/http/v1/customers"
)

// Prefix is the path every v1 operation is mounted under.
const Prefix = "/v1"

// Register wires all v1 routes into the provided API.
func Register(api huma.API, syncer customers.Syncer) {
	v1 := huma.NewGroup(api, Prefix)
	customers.Register(v1, syncer)
}
