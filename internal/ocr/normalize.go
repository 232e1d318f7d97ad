// Package ocr turns the OCR service's loosely typed response into
// expense drafts.
//
// The service's field names and nesting are not guaranteed, so decoding
// never fails: a missing results collection yields no drafts and a bad
// item yields a placeholder draft with amount 0 while its siblings are
// kept intact.
package ocr

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

// UnknownMerchant labels items whose merchant could not be read.
const UnknownMerchant = "알 수 없는 가맹점"

// maxEnvelopeDepth bounds how far nested "data" wrappers are followed.
const maxEnvelopeDepth = 3

var (
	collectionKeys = []string{"results", "items", "expenses"}
	wrapperKeys    = []string{"data", "result", "response"}
	merchantKeys   = []string{"store", "place", "merchant", "merchant_name"}
	amountKeys     = []string{"expense", "amount", "amount_spent", "total"}
	timeKeys       = []string{"time", "payment_date", "usage_time", "occurred_at"}
)

// Result is the outcome of normalizing one OCR response.
type Result struct {
	Drafts []model.ExpenseDraft
	// Found is false when no results collection could be located.
	Found bool
	// Degraded counts items where a merchant or amount fell back to its default.
	Degraded int
}

// Normalize converts a raw OCR response body into drafts. Drafts keep the
// recognition order, start unselected, and get LocalIDs 1..n.
func Normalize(raw []byte) Result {
	items, ok := locateItems(bytes.TrimSpace(raw), 0)
	if !ok {
		return Result{Drafts: []model.ExpenseDraft{}}
	}

	res := Result{
		Drafts: make([]model.ExpenseDraft, 0, len(items)),
		Found:  true,
	}
	for i, item := range items {
		draft, degraded := normalizeItem(i+1, item)
		if degraded {
			res.Degraded++
		}
		res.Drafts = append(res.Drafts, draft)
	}
	return res
}

// locateItems finds the results array inside the envelope.
func locateItems(raw json.RawMessage, depth int) ([]json.RawMessage, bool) {
	if len(raw) == 0 || depth > maxEnvelopeDepth {
		return nil, false
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false
		}
		return items, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		for _, k := range collectionKeys {
			if v, ok := obj[k]; ok {
				if items, ok := locateItems(bytes.TrimSpace(v), depth+1); ok {
					return items, true
				}
			}
		}
		for _, k := range wrapperKeys {
			if v, ok := obj[k]; ok {
				if items, ok := locateItems(bytes.TrimSpace(v), depth+1); ok {
					return items, true
				}
			}
		}
	}
	return nil, false
}

// normalizeItem builds a draft from one raw item. degraded is true when
// the merchant or amount had to be defaulted.
func normalizeItem(localID int, raw json.RawMessage) (model.ExpenseDraft, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.NewDraft(localID, UnknownMerchant, "", 0), true
	}

	degraded := false

	merchant, ok := firstString(obj, merchantKeys)
	if !ok {
		merchant = UnknownMerchant
		degraded = true
	}

	var amount int64
	amountOK := false
	for _, k := range amountKeys {
		if v, present := obj[k]; present {
			amount, amountOK = parseAmount(v)
			break
		}
	}
	if !amountOK {
		amount = 0
		degraded = true
	}

	occurredAt, _ := firstString(obj, timeKeys)

	return model.NewDraft(localID, merchant, occurredAt, amount), degraded
}

// firstString returns the first non-empty string value among keys.
func firstString(obj map[string]json.RawMessage, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// parseAmount defensively parses the polymorphic amount field.
// Handles numbers (4500, 4500.0) and strings ("4,500", "4500원", "₩4,500").
// Negative, non-finite and non-numeric values are rejected.
func parseAmount(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		return parseAmountString(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if v, err := n.Int64(); err == nil {
		return v, model.ValidAmount(v)
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return floatAmount(f)
}

func parseAmountString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₩")
	s = strings.TrimSuffix(s, "원")
	s = strings.TrimSuffix(s, "KRW")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, model.ValidAmount(v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatAmount(f)
}

func floatAmount(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > float64(model.MaxAmount) {
		return 0, false
	}
	return int64(math.Round(f)), true
}
