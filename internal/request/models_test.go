package request_test

import (
	"testing"

	"github.com/oblivio/oblivio/internal/request"
)

func TestValidFiscalCode(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"well-formed", "RSSMRA80A01H501U", true},
		{"another well-formed", "VRDGPP99T10F205Z", true},
		{"empty", "", false},
		{"too short", "RSSMRA80A01H501", false},
		{"too long", "RSSMRA80A01H501UX", false},
		{"lowercase", "rssmra80a01h501u", false},
		{"digits in surname block", "RS1MRA80A01H501U", false},
		{"whitespace", "RSSMRA80A01H501U ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := request.ValidFiscalCode(tt.code); got != tt.valid {
				t.Errorf("ValidFiscalCode(%q) = %v, want %v", tt.code, got, tt.valid)
			}
		})
	}
}

func TestValidChoice(t *testing.T) {
	if !request.ValidChoice(request.ChoiceDelete) {
		t.Error("DELETE should be valid")
	}
	if !request.ValidChoice(request.ChoiceDownload) {
		t.Error("DOWNLOAD should be valid")
	}
	if request.ValidChoice("PURGE") {
		t.Error("PURGE should not be valid")
	}
}
