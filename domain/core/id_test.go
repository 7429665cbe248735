package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

func TestParseRunID(t *testing.T) {
	valid := NewRunID()

	tests := []struct {
		input    string
		expected RunID
		hasError bool
	}{
		{valid.String(), valid, false},
		{"  " + valid.String() + " ", valid, false},
		{"", "", true},
		{"   ", "", true},
		{"run-42", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRunID(tt.input)
		if tt.hasError {
			if err == nil {
				t.Errorf("ParseRunID(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRunID(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("ParseRunID(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsConfigError(ErrDropTooLarge) {
		t.Error("ErrDropTooLarge should be a config error")
	}
	if !IsConfigError(NewConfigError("chunk_size", "must be positive")) {
		t.Error("NewConfigError should be a config error")
	}
	if !IsResourceError(ErrOperandsExhausted) {
		t.Error("ErrOperandsExhausted should be a resource error")
	}
	if !IsDeviceError(ErrSelfCheck) {
		t.Error("ErrSelfCheck should be a device error")
	}
	if !IsNotFoundError(ErrRunNotFound) {
		t.Error("ErrRunNotFound should be a not-found error")
	}
	if IsConfigError(ErrInsufficientData) {
		t.Error("insufficient data is not a config error")
	}
}
