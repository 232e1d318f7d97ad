package verify

import "errors"

var (
	// ErrAuthRequired indicates a missing or expired credential. The flow
	// aborts and the user must sign in again.
	ErrAuthRequired = errors.New("verify: authentication required")

	// ErrEvidenceRejected indicates the evidence could not be accepted:
	// unsupported image, failed or empty OCR response, invalid typed
	// amount, or a non-matching attestation. The user stays on intake.
	ErrEvidenceRejected = errors.New("verify: evidence rejected")

	// ErrSubmissionFailed indicates the ledger commit failed. The session
	// and its edits are kept for a retry.
	ErrSubmissionFailed = errors.New("verify: submission failed")

	// ErrSubmitInFlight is returned to a submit attempt made while another
	// is pending for the same session. Callers ignore it.
	ErrSubmitInFlight = errors.New("verify: submission already in flight")

	// ErrNoSession indicates the challenge has no session ready for editing
	// or submission.
	ErrNoSession = errors.New("verify: no ready session")

	// ErrStaleResponse indicates an intake result arrived for a session that
	// was replaced or cleared in the meantime; the result was discarded.
	ErrStaleResponse = errors.New("verify: stale intake response discarded")

	// ErrInvalidAmount indicates an edited amount was not a non-negative integer.
	ErrInvalidAmount = errors.New("verify: invalid amount")

	// ErrUnknownDraft indicates the local id does not name a draft in the session.
	ErrUnknownDraft = errors.New("verify: unknown draft")

	// ErrWrongKind indicates a draft operation on a session without drafts.
	ErrWrongKind = errors.New("verify: operation not valid for evidence kind")

	// ErrLedgerUnknown indicates the remaining budget has not been read yet.
	ErrLedgerUnknown = errors.New("verify: ledger not synced")
)
