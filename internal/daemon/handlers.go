package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/uubinn0/Challengobi-sub000/internal/verify"
)

const maxJSONBody = 64 << 10

// sessionView is a session plus the editor's derived figures.
type sessionView struct {
	verify.Session
	RunningTotal         int64  `json:"running_total"`
	SelectedCount        int    `json:"selected_count"`
	RemainingAfterSubmit *int64 `json:"remaining_after_submit,omitempty"`
	Overspend            bool   `json:"overspend"`
}

type submitView struct {
	Status       string `json:"status"`
	SessionID    string `json:"session_id,omitempty"`
	Day          string `json:"day,omitempty"`
	ItemCount    int    `json:"item_count"`
	Total        int64  `json:"total"`
	NoSpend      bool   `json:"no_spend,omitempty"`
	Remaining    *int64 `json:"remaining,omitempty"`
	Overspending bool   `json:"overspending,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleLedger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mirror, err := s.syncLedger(r.Context(), id)
	if err != nil {
		if cached, ok := s.wf.Ledger.Snapshot(id); ok {
			w.Header().Set("Warning", `110 - "ledger may be stale"`)
			writeJSON(w, http.StatusOK, cached)
			return
		}
		writeError(w, http.StatusBadGateway, "ledger_unavailable", err)
		return
	}
	if m, ok := s.wf.Ledger.Snapshot(id); ok {
		mirror = m
	}
	writeJSON(w, http.StatusOK, mirror)
}

func (s *Service) handleReceipt(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_upload", err)
		return
	}
	img, err := verify.NewImage(name, data)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}

	// The recognition call outlives a disconnected client; a late result
	// is discarded by the session store if the user has moved on.
	ctx := context.WithoutCancel(r.Context())
	sess, err := s.wf.Intake.SubmitReceipt(ctx, r.PathValue("id"), img)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	s.sessionReady(sess)
	writeJSON(w, http.StatusCreated, s.view(sess))
}

func (s *Service) handleTypedAmount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount json.RawMessage `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	text, err := amountText(req.Amount)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	sess, err := s.wf.Intake.SubmitTypedAmount(r.Context(), r.PathValue("id"), text)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	s.sessionReady(sess)
	writeJSON(w, http.StatusCreated, s.view(sess))
}

func (s *Service) handleNoSpend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sess, err := s.wf.Intake.SubmitNoSpend(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	s.sessionReady(sess)
	writeJSON(w, http.StatusCreated, s.view(sess))
}

func (s *Service) handleAttestation(w http.ResponseWriter, r *http.Request) {
	sentence := s.wf.Intake.Attestation()
	text := r.URL.Query().Get("text")
	writeJSON(w, http.StatusOK, map[string]any{
		"sentence": sentence,
		"progress": verify.AttestationProgress(sentence, text),
		"match":    verify.MatchAttestation(sentence, text),
	})
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.wf.Store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no_session", verify.ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *Service) handleClearSession(w http.ResponseWriter, r *http.Request) {
	s.wf.Store.Clear(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, local, ok := draftRef(w, r)
	if !ok {
		return
	}
	if _, err := s.wf.Editor.ToggleSelect(id, local); err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	s.writeCurrent(w, id)
}

func (s *Service) handleEditAmount(w http.ResponseWriter, r *http.Request) {
	id, local, ok := draftRef(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount json.RawMessage `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	text, err := amountText(req.Amount)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	amount, err := verify.ParseAmountInput(text)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	if _, err := s.wf.Editor.EditAmount(id, local, amount); err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	s.writeCurrent(w, id)
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	id, local, ok := draftRef(w, r)
	if !ok {
		return
	}
	if _, err := s.wf.Editor.ResetAmount(id, local); err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	s.writeCurrent(w, id)
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	out, err := s.wf.Dispatcher.Submit(context.WithoutCancel(r.Context()), r.PathValue("id"))
	if errors.Is(err, verify.ErrSubmitInFlight) {
		writeJSON(w, http.StatusAccepted, submitView{Status: "in_flight"})
		return
	}
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}

	view := submitView{
		Status:    "committed",
		SessionID: out.Session.ID,
		Day:       out.Commit.Day,
		ItemCount: len(out.Commit.Items),
		Total:     out.Commit.Total(),
		NoSpend:   out.Commit.NoSpend,
	}
	if out.LedgerKnown {
		remaining := out.Remaining
		view.Remaining = &remaining
		view.Overspending = remaining < 0
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.wf.History == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	list, err := s.wf.History.ListVerifications(r.Context(), q.Get("challenge"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_unavailable", err)
		return
	}
	if list == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) sessionReady(sess verify.Session) {
	s.log.Append(Event{
		Type:        EventSessionReady,
		ChallengeID: sess.ChallengeID,
		Payload: map[string]any{
			"session_id": sess.ID,
			"kind":       sess.Kind.String(),
			"drafts":     len(sess.Drafts),
		},
	})
}

func (s *Service) view(sess verify.Session) sessionView {
	v := sessionView{
		Session:       sess,
		RunningTotal:  sess.RunningTotal(),
		SelectedCount: sess.SelectedCount(),
	}
	if sess.State == verify.StateReady {
		if after, err := s.wf.Editor.RemainingAfterSubmit(sess.ChallengeID); err == nil {
			v.RemainingAfterSubmit = &after
			v.Overspend = after < 0
		}
	}
	return v
}

func (s *Service) writeCurrent(w http.ResponseWriter, challengeID string) {
	sess, err := s.wf.Editor.Session(challengeID)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *Service) writeWorkflowError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("workflow request failed", "code", code, "error", err)
	}
	writeError(w, status, code, err)
}

// statusFor maps workflow errors to HTTP statuses and stable codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, verify.ErrAuthRequired):
		return http.StatusUnauthorized, "auth_required"
	case errors.Is(err, verify.ErrEvidenceRejected):
		return http.StatusUnprocessableEntity, "evidence_rejected"
	case errors.Is(err, verify.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, verify.ErrNoSession):
		return http.StatusNotFound, "no_session"
	case errors.Is(err, verify.ErrUnknownDraft):
		return http.StatusNotFound, "unknown_draft"
	case errors.Is(err, verify.ErrWrongKind):
		return http.StatusConflict, "wrong_kind"
	case errors.Is(err, verify.ErrStaleResponse):
		return http.StatusConflict, "stale_response"
	case errors.Is(err, verify.ErrSubmitInFlight):
		return http.StatusConflict, "submit_in_flight"
	case errors.Is(err, verify.ErrSubmissionFailed):
		return http.StatusBadGateway, "submission_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func draftRef(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	local, err := strconv.Atoi(r.PathValue("local"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("draft id must be an integer"))
		return "", 0, false
	}
	return r.PathValue("id"), local, true
}

// readUpload accepts a multipart "image" field or a raw image body.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, verify.MaxImageBytes+(1<<20))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, hdr, err := r.FormFile("image")
		if err != nil {
			return "", nil, err
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		return hdr.Filename, data, err
	}

	data, err := io.ReadAll(r.Body)
	return r.URL.Query().Get("name"), data, err
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	return dec.Decode(v)
}

// amountText turns a JSON amount into text for the amount parsers.
// Strings pass through unchanged; numbers must be non-negative integers.
func amountText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: amount must be a string or number", verify.ErrInvalidAmount)
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil || v < 0 {
		return "", fmt.Errorf("%w: %s is not a whole won amount", verify.ErrInvalidAmount, n)
	}
	return n.String(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}
