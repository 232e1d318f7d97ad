package challengeapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", auth.NewStatic("tok-123"), 5*time.Second)
}

func TestAnalyzeReceipt_MultipartUpload(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nrest")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/challenges/7/expenses/ocr/" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		file, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != string(png) {
			t.Errorf("uploaded %d bytes, want %d", len(data), len(png))
		}
		if hdr.Filename != "r.png" || hdr.Header.Get("Content-Type") != "image/png" {
			t.Errorf("part = %q / %q", hdr.Filename, hdr.Header.Get("Content-Type"))
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	})

	body, err := c.AnalyzeReceipt(context.Background(), "7", "r.png", "image/png", png)
	if err != nil {
		t.Fatalf("AnalyzeReceipt: %v", err)
	}
	if string(body) != `{"results":[]}` {
		t.Errorf("body = %s", body)
	}
}

func TestFetchLedger_Aliases(t *testing.T) {
	tests := []struct {
		name string
		body string
		want model.LedgerTotals
	}{
		{"canonical", `{"total_budget":100000,"remaining":30000}`, model.LedgerTotals{TotalBudget: 100000, Remaining: 30000}},
		{"aliases", `{"budget":"50000","balance":"-2000"}`, model.LedgerTotals{TotalBudget: 50000, Remaining: -2000}},
		{"wrapped", `{"data":{"initial_budget":70000,"remaining":69000.4}}`, model.LedgerTotals{TotalBudget: 70000, Remaining: 69000}},
		{"no budget", `{"remaining":10}`, model.LedgerTotals{Remaining: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/challenges/7/ledger/" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.FetchLedger(context.Background(), "7")
			if err != nil {
				t.Fatalf("FetchLedger: %v", err)
			}
			if got != tt.want {
				t.Errorf("totals = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFetchLedger_Malformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total_budget":100}`))
	})
	if _, err := c.FetchLedger(context.Background(), "7"); !errors.Is(err, ErrMalformedLedger) {
		t.Errorf("err = %v, want ErrMalformedLedger", err)
	}
}

func TestCommit_Payloads(t *testing.T) {
	tests := []struct {
		name   string
		commit model.Commit
		want   string
	}{
		{
			"items",
			model.Commit{ChallengeID: "7", Day: "2026-03-14", IdempotencyKey: "sess-1",
				Items: []model.LineItem{{Store: "Cafe A", Amount: 4500, PaymentDate: "2026-03-14"}}},
			`{"day":"2026-03-14","expenses":[{"store":"Cafe A","amount":4500,"payment_date":"2026-03-14"}]}`,
		},
		{
			"empty selection",
			model.Commit{ChallengeID: "7", Day: "2026-03-14", IdempotencyKey: "sess-2", Items: []model.LineItem{}},
			`{"day":"2026-03-14","expenses":[]}`,
		},
		{
			"no spend",
			model.Commit{ChallengeID: "7", Day: "2026-03-14", IdempotencyKey: "sess-3", NoSpend: true},
			`{"day":"2026-03-14","no_spend":true}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/challenges/7/expenses/verify/" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if got := r.Header.Get("Idempotency-Key"); got != tt.commit.IdempotencyKey {
					t.Errorf("Idempotency-Key = %q, want %q", got, tt.commit.IdempotencyKey)
				}
				if got := r.Header.Get("Content-Type"); got != "application/json" {
					t.Errorf("Content-Type = %q", got)
				}
				body, _ := io.ReadAll(r.Body)
				if !jsonEqual(t, body, []byte(tt.want)) {
					t.Errorf("body = %s, want %s", body, tt.want)
				}
				w.WriteHeader(http.StatusCreated)
			})
			totals, err := c.Commit(context.Background(), tt.commit)
			if err != nil {
				t.Fatalf("Commit: %v", err)
			}
			if totals != nil {
				t.Errorf("totals = %+v, want nil for an empty response", totals)
			}
		})
	}
}

func TestCommit_ReturnsTotals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total_budget":100000,"remaining":25500}`))
	})
	totals, err := c.Commit(context.Background(), model.Commit{ChallengeID: "7", Day: "2026-03-14"})
	if err != nil {
		t.Fatal(err)
	}
	if totals == nil || totals.Remaining != 25500 {
		t.Errorf("totals = %+v, want remaining 25500", totals)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusUnauthorized, func(err error) bool { return errors.Is(err, ErrUnauthorized) && auth.IsAuthError(err) }},
		{http.StatusForbidden, func(err error) bool { return errors.Is(err, ErrUnauthorized) }},
		{http.StatusTooManyRequests, func(err error) bool { return errors.Is(err, ErrRateLimited) }},
		{http.StatusBadGateway, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == http.StatusBadGateway && se.Body == "upstream down"
		}},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("upstream down\n"))
		})
		_, err := c.FetchLedger(context.Background(), "7")
		if !tt.check(err) {
			t.Errorf("status %d: err = %v", tt.status, err)
		}
	}
}

func TestClient_MissingCredentialSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	c := NewClient(srv.URL, auth.NewStatic(""), 0)
	_, err := c.FetchLedger(context.Background(), "7")
	if !errors.Is(err, auth.ErrNoCredential) {
		t.Errorf("err = %v, want ErrNoCredential", err)
	}
	if called {
		t.Error("request sent without a credential")
	}
}

func TestChallengePath_Escapes(t *testing.T) {
	if got := challengePath("a/b", "ledger/"); got != "/api/challenges/a%2Fb/ledger/" {
		t.Errorf("challengePath = %q", got)
	}
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		t.Errorf("unmarshal %s: %v", a, err)
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		t.Errorf("unmarshal %s: %v", b, err)
		return false
	}
	ja, _ := json.Marshal(va)
	jb, _ := json.Marshal(vb)
	return string(ja) == string(jb)
}
