package customers

// CustomerPath is the path parameter shared by every customer operation.
type CustomerPath struct {
	CustomerID string `path:"customerId" doc:"Shopify customer ID" example:"8570264879349" pattern:"^[0-9]{1,20}$"`
}

// SyncInput is the request for POST /customers/{customerId}/sync.
type SyncInput struct {
	CustomerPath
	Body struct {
		Fields map[string]string `json:"fields" doc:"Profile fields keyed by name; unknown names are ignored"`
	}
}

// DocumentPutInput is the request for POST /customers/{customerId}/eligibility.
type DocumentPutInput struct {
	CustomerPath
	Body struct {
		Value string `json:"value" doc:"Eligibility document as a JSON object string" example:"{\"self_birth\":\"1997-10-15\"}" minLength:"1"`
	}
}

// MzdaoInput is the request for POST /customers/{customerId}/mzdao.
type MzdaoInput struct {
	CustomerPath
	Body struct {
		Value string `json:"value" doc:"Value stored in custom.mzdao" example:"gold" maxLength:"255"`
	}
}
