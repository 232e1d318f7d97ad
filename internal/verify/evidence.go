package verify

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

// EvidenceKind is the form of proof a session was started with.
type EvidenceKind int

const (
	KindReceiptOCR EvidenceKind = iota + 1
	KindTypedAmount
	KindNoSpend
)

func (k EvidenceKind) String() string {
	switch k {
	case KindReceiptOCR:
		return "receipt"
	case KindTypedAmount:
		return "typed"
	case KindNoSpend:
		return "no_spend"
	default:
		return "unknown"
	}
}

// ParseKind maps the String form back to a kind.
func ParseKind(s string) (EvidenceKind, bool) {
	switch s {
	case "receipt":
		return KindReceiptOCR, true
	case "typed":
		return KindTypedAmount, true
	case "no_spend":
		return KindNoSpend, true
	}
	return 0, false
}

// maxTypedDigits caps how many digits of a typed total are kept.
const maxTypedDigits = 20

// MaxImageBytes bounds a receipt upload.
const MaxImageBytes = 10 << 20

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Image is a receipt photo ready for upload.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewImage validates data as a supported image. The content type is
// sniffed from the bytes; the name is only used as the upload file name.
func NewImage(name string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty image", ErrEvidenceRejected)
	}
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("%w: image is %d bytes, limit %d", ErrEvidenceRejected, len(data), MaxImageBytes)
	}
	ct := http.DetectContentType(data)
	if !supportedImageTypes[ct] {
		return Image{}, fmt.Errorf("%w: unsupported content type %q", ErrEvidenceRejected, ct)
	}
	if name == "" {
		name = "receipt" + extensionFor(ct)
	}
	return Image{Name: name, ContentType: ct, Data: data}, nil
}

// LoadImage reads and validates a receipt photo from disk.
func LoadImage(path string) (Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrEvidenceRejected, err)
	}
	if info.Size() > MaxImageBytes {
		return Image{}, fmt.Errorf("%w: image is %d bytes, limit %d", ErrEvidenceRejected, info.Size(), MaxImageBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrEvidenceRejected, err)
	}
	return NewImage(filepath.Base(path), data)
}

func extensionFor(ct string) string {
	switch ct {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// NormalizeTypedAmount turns a typed total such as "1,234,000원" into
// won. Every non-digit is dropped and at most 20 digits are kept.
// Empty, zero, and values above model.MaxAmount are rejected.
func NormalizeTypedAmount(raw string) (int64, error) {
	digits := DigitsOnly(raw)
	if digits == "" {
		return 0, fmt.Errorf("%w: no digits in %q", ErrEvidenceRejected, raw)
	}

	d, err := decimal.NewFromString(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEvidenceRejected, err)
	}
	if d.IsZero() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrEvidenceRejected)
	}
	if d.GreaterThan(decimal.NewFromInt(model.MaxAmount)) {
		return 0, fmt.Errorf("%w: amount %s out of range", ErrEvidenceRejected, digits)
	}
	return d.IntPart(), nil
}

// DigitsOnly keeps the ASCII digits of s, truncated to the typed-amount cap.
func DigitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s) && b.Len() < maxTypedDigits; i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// MatchAttestation reports whether text is exactly the attestation sentence.
func MatchAttestation(sentence, text string) bool {
	return sentence != "" && text == sentence
}

// AttestationProgress returns, per character of sentence, whether text
// has the same character at that position. Characters past the end of
// text are false.
func AttestationProgress(sentence, text string) []bool {
	progress := make([]bool, 0, utf8.RuneCountInString(sentence))
	typed := []rune(text)
	i := 0
	for _, want := range sentence {
		progress = append(progress, i < len(typed) && typed[i] == want)
		i++
	}
	return progress
}
