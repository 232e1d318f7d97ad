package cli

import "testing"

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234000, "1,234,000"},
		{-20000, "-20,000"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatKoreanUnits(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, ""},
		{4500, "4500"},
		{50000, "5만"},
		{1234000, "123만 4000"},
		{100000000, "1억"},
		{123456789, "1억 2345만 6789"},
		{-50000, "-5만"},
	}
	for _, tt := range tests {
		if got := FormatKoreanUnits(tt.in); got != tt.want {
			t.Errorf("FormatKoreanUnits(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	if got := FormatRemaining(-20000); got != "-20,000원" {
		t.Errorf("FormatRemaining(-20000) = %q", got)
	}
	if got := FormatRemaining(30000); got != "30,000원" {
		t.Errorf("FormatRemaining(30000) = %q", got)
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcdefghijklmnopqrst", "abcdefgh...qrst"},
		{"abcdefgh", "abcd..."},
		{"abc", "****"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.in); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
