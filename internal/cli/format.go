// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"strconv"
	"strings"
)

// koreanUnits are the myriad-based place names used when reading amounts aloud.
var koreanUnits = []string{"", "만", "억", "조", "경", "해"}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatWon formats an amount in won with comma grouping.
// e.g., 4500 -> "4,500원", -20000 -> "-20,000원"
func FormatWon(n int64) string {
	return FormatNumber(n) + "원"
}

// FormatKoreanUnits spells an amount in 만/억 groups.
// e.g., 50000 -> "5만", 123456789 -> "1억 2345만 6789". Zero returns "".
func FormatKoreanUnits(n int64) string {
	if n == 0 {
		return ""
	}
	if n < 0 {
		return "-" + FormatKoreanUnits(-n)
	}

	var parts []string
	for unit := 0; n > 0 && unit < len(koreanUnits); unit++ {
		part := n % 10000
		if part > 0 {
			parts = append([]string{strconv.FormatInt(part, 10) + koreanUnits[unit]}, parts...)
		}
		n /= 10000
	}
	return strings.Join(parts, " ")
}

// FormatRemaining formats a remaining balance, prefixing overspend with a sign.
func FormatRemaining(n int64) string {
	if n < 0 {
		return "-" + FormatWon(-n)
	}
	return FormatWon(n)
}

// MaskToken shortens a credential for display.
func MaskToken(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}
