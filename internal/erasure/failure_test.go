package erasure_test

import (
	"errors"
	"testing"

	"github.com/oblivio/oblivio/internal/erasure"
)

func TestFailure_Retryable(t *testing.T) {
	tests := []struct {
		name      string
		failure   *erasure.Failure
		retryable bool
	}{
		{"transient", erasure.Transientf("connection reset"), true},
		{"invalid input", erasure.InvalidInputf("malformed fiscal code"), false},
		{"query", erasure.QueryFailure("messages by fiscal code", errors.New("timeout")), false},
		{"blob", erasure.BlobFailure("folder/messages/m1.json", errors.New("denied")), false},
		{"delete", erasure.DeleteFailure("messages", "m1", errors.New("conflict")), false},
		{"not found", erasure.NotFound("delete request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.failure.Retryable(); got != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestFailure_Error(t *testing.T) {
	f := erasure.QueryFailure("messages by fiscal code", errors.New("timeout"))
	msg := f.Error()
	if msg == "" {
		t.Fatal("expected non-empty error message")
	}
	if f.Kind != erasure.KindQueryFailure {
		t.Errorf("Kind = %v, want %v", f.Kind, erasure.KindQueryFailure)
	}
	if f.Query != "messages by fiscal code" {
		t.Errorf("Query = %q", f.Query)
	}
}
