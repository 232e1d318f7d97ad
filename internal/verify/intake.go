package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/ocr"
)

// OCRService uploads a receipt photo and returns the raw recognition
// envelope.
type OCRService interface {
	AnalyzeReceipt(ctx context.Context, challengeID, fileName, contentType string, data []byte) ([]byte, error)
}

// Intake accepts the three forms of evidence and opens a Ready session.
type Intake struct {
	store       *Store
	ocr         OCRService
	creds       auth.Provider
	attestation string
	log         *slog.Logger
}

// NewIntake wires an intake. attestation is the exact sentence a no-spend
// declaration must match.
func NewIntake(store *Store, ocrSvc OCRService, creds auth.Provider, attestation string, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		store:       store,
		ocr:         ocrSvc,
		creds:       creds,
		attestation: attestation,
		log:         logger,
	}
}

// Attestation returns the sentence SubmitNoSpend expects.
func (in *Intake) Attestation() string {
	return in.attestation
}

// SubmitReceipt uploads img for recognition and opens a receipt session
// with the normalized drafts, all unselected. A response for a session
// that was replaced in the meantime is discarded with ErrStaleResponse.
func (in *Intake) SubmitReceipt(ctx context.Context, challengeID string, img Image) (Session, error) {
	if !supportedImageTypes[img.ContentType] || len(img.Data) == 0 {
		return Session{}, fmt.Errorf("%w: unsupported image %q", ErrEvidenceRejected, img.ContentType)
	}
	if err := in.checkCredential(ctx); err != nil {
		return Session{}, err
	}

	ticket := in.store.Begin(challengeID, KindReceiptOCR)
	in.log.Debug("receipt intake started", "challenge", challengeID, "session", ticket.SessionID, "bytes", len(img.Data))

	raw, err := in.ocr.AnalyzeReceipt(ctx, challengeID, img.Name, img.ContentType, img.Data)
	if err != nil {
		in.store.Fail(ticket)
		switch {
		case errors.Is(err, context.Canceled):
			return Session{}, err
		case auth.IsAuthError(err):
			return Session{}, fmt.Errorf("%w: %v", ErrAuthRequired, err)
		default:
			in.log.Warn("receipt recognition failed", "challenge", challengeID, "error", err)
			return Session{}, fmt.Errorf("%w: recognition failed: %v", ErrEvidenceRejected, err)
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		in.store.Fail(ticket)
		return Session{}, fmt.Errorf("%w: empty recognition response", ErrEvidenceRejected)
	}

	res := ocr.Normalize(raw)
	if !res.Found {
		in.log.Debug("recognition envelope has no results", "challenge", challengeID)
	}
	if res.Degraded > 0 {
		in.log.Debug("recognition items degraded", "challenge", challengeID, "degraded", res.Degraded, "items", len(res.Drafts))
	}

	sess, err := in.store.Resolve(ticket, res.Drafts, 0)
	if err != nil {
		in.log.Debug("discarding stale recognition result", "challenge", challengeID, "session", ticket.SessionID)
		return Session{}, err
	}
	in.log.Info("receipt session ready", "challenge", challengeID, "session", sess.ID, "drafts", len(sess.Drafts))
	return sess, nil
}

// SubmitTypedAmount opens a typed session from user text such as
// "1,234,000".
func (in *Intake) SubmitTypedAmount(ctx context.Context, challengeID, raw string) (Session, error) {
	amount, err := NormalizeTypedAmount(raw)
	if err != nil {
		return Session{}, err
	}
	if err := in.checkCredential(ctx); err != nil {
		return Session{}, err
	}

	ticket := in.store.Begin(challengeID, KindTypedAmount)
	sess, err := in.store.Resolve(ticket, nil, amount)
	if err != nil {
		return Session{}, err
	}
	in.log.Info("typed session ready", "challenge", challengeID, "session", sess.ID, "amount", amount)
	return sess, nil
}

// SubmitNoSpend opens a no-spend session when text is exactly the
// attestation sentence.
func (in *Intake) SubmitNoSpend(ctx context.Context, challengeID, text string) (Session, error) {
	if !MatchAttestation(in.attestation, text) {
		return Session{}, fmt.Errorf("%w: attestation does not match", ErrEvidenceRejected)
	}
	if err := in.checkCredential(ctx); err != nil {
		return Session{}, err
	}

	ticket := in.store.Begin(challengeID, KindNoSpend)
	sess, err := in.store.Resolve(ticket, nil, 0)
	if err != nil {
		return Session{}, err
	}
	in.log.Info("no-spend session ready", "challenge", challengeID, "session", sess.ID)
	return sess, nil
}

func (in *Intake) checkCredential(ctx context.Context) error {
	if in.creds == nil {
		return fmt.Errorf("%w: %v", ErrAuthRequired, auth.ErrNoCredential)
	}
	if _, err := in.creds.Token(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	return nil
}
