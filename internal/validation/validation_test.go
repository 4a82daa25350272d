package validation

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		valid bool
	}{
		{
			name:  "integer",
			input: "3500",
			want:  "3500",
			valid: true,
		},
		{
			name:  "comma separator",
			input: " 12,5 ",
			want:  "12.5",
			valid: true,
		},
		{
			name:  "zero",
			input: "0",
			valid: false,
		},
		{
			name:  "negative",
			input: "-10",
			valid: false,
		},
		{
			name:  "letters",
			input: "сто юаней",
			valid: false,
		},
		{
			name:  "two decimals",
			input: "12,34",
			want:  "12.34",
			valid: true,
		},
		{
			name:  "max price",
			input: "10000000",
			want:  "10000000",
			valid: true,
		},
		{
			name:  "above max price",
			input: "10000000.01",
			valid: false,
		},
		{
			name:  "three decimals",
			input: "12.345",
			valid: false,
		},
		{
			name:  "exponent",
			input: "1e9",
			valid: false,
		},
		{
			name:  "huge exponent",
			input: "1e30000000",
			valid: false,
		},
		{
			name:  "negative zero",
			input: "-0",
			valid: false,
		},
		{
			name:  "plus sign",
			input: "+10",
			valid: false,
		},
		{
			name:  "empty string",
			input: "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if !tt.valid {
				if err == nil {
					t.Fatalf("ParsePrice(%q) = %s, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrice(%q) error: %v", tt.input, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("ParsePrice(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractLink(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "link inside text",
			input: "вот товар https://dw4.co/t/A/abc123 спасибо",
			want:  "https://dw4.co/t/A/abc123",
		},
		{
			name:  "plain http",
			input: "http://example.com",
			want:  "http://example.com",
		},
		{
			name:  "raw text fallback",
			input: "  артикул 12345  ",
			want:  "артикул 12345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractLink(tt.input); got != tt.want {
				t.Fatalf("ExtractLink(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  summer10 "); got != "SUMMER10" {
		t.Fatalf("NormalizeCode = %q, want SUMMER10", got)
	}
}
