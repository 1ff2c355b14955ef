package health

import (
	"encoding/json"
	"net/http"
)

// Response is the payload for the health endpoint.
type Response struct {
	Status string `json:"status"`
	// Shopify is "live" when requests reach a shop and "demo" when the
	// in-memory store backs them.
	Shopify string `json:"shopify"`
}

// Handler returns the liveness handler. It never calls Shopify.
func Handler(demo bool) http.HandlerFunc {
	body := Response{Status: "healthy", Shopify: "live"}
	if demo {
		body.Shopify = "demo"
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}
