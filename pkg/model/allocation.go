package model

// Outcome classifies the state of an allocation or registration.
type Outcome string

const (
	// OutcomeClaimed marks a claimed entry about to be branded. It is the
	// only non-terminal outcome.
	OutcomeClaimed Outcome = "claimed"

	OutcomeCreated        Outcome = "created"
	OutcomeExisting       Outcome = "existing"
	OutcomeInvalidTicker  Outcome = "invalid_ticker"
	OutcomePoolExhausted  Outcome = "pool_exhausted"
	OutcomeBrandingFailed Outcome = "branding_failed"
	OutcomeInternalError  Outcome = "internal_error"
	OutcomeRegistered     Outcome = "registered"
	OutcomeDeclined       Outcome = "declined"
	OutcomeAvatarChanged  Outcome = "avatar_changed"
	OutcomeAvatarFailed   Outcome = "avatar_failed"
	OutcomePoolLow        Outcome = "pool_low"
)

// AllocationResult is the response of a public allocation entry point.
// Exactly one of ClientID or Error is set.
type AllocationResult struct {
	ClientID string  `json:"client_id,omitempty"`
	Existing bool    `json:"existing,omitempty"`
	Error    string  `json:"error,omitempty"`
	Outcome  Outcome `json:"-"`
}

// OK reports whether the request was served by a bot (new or existing).
func (r AllocationResult) OK() bool {
	return r.Error == "" && r.ClientID != ""
}
