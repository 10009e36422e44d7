package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Paginated wraps a list response with its total row count so clients can
// page with limit/offset.
type Paginated struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
}
