// Package api defines the wire types exchanged with the ingestion gateway.
package api

// SubmitResponse is returned by POST /submit when a payload has been
// accepted and durably published to the spool.
type SubmitResponse struct {
	// ID is the generated submission identifier, a fixed-length
	// alphanumeric string safe for embedding in file names.
	ID string `json:"id"`
	// Status is "ok" on success.
	Status string `json:"status"`
	// Message is a human-readable confirmation.
	Message string `json:"message,omitempty"`
}

// StatusResponse is returned by GET /status for a submission identifier.
type StatusResponse struct {
	// ID echoes the queried submission identifier.
	ID string `json:"id"`
	// Status is "found" while the submission is still being written.
	// Published entries and unknown identifiers both answer 404.
	Status string `json:"status"`
}

// ErrorResponse is the JSON envelope for all non-2xx responses. It carries
// the same {id, status, message} record as SubmitResponse plus a stable
// machine-readable code.
type ErrorResponse struct {
	// ID is the submission identifier when one is relevant, otherwise "".
	ID string `json:"id"`
	// Status is always "error".
	Status string `json:"status"`
	// Error is a stable machine-readable code, for example
	// "unauthorized" or "invalid_body".
	Error string `json:"error"`
	// Message elaborates on the failure.
	Message string `json:"message,omitempty"`
}

// TokenResponse is emitted by the token minting subcommand.
type TokenResponse struct {
	// Token is a signed bearer token ready for an Authorization header.
	Token string `json:"token"`
	// ExpiresAt is the RFC 3339 expiry, empty for non-expiring tokens.
	ExpiresAt string `json:"expires_at,omitempty"`
}
