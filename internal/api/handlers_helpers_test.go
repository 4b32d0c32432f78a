// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package api

import (
	"net/http/httptest"
	"testing"
)

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain string", "did:plc:abc123", "did:plc:abc123"},
		{"newline injection", "value\nFAKE LOG LINE", "value\\x0aFAKE LOG LINE"},
		{"carriage return", "a\rb", "a\\x0db"},
		{"tab", "a\tb", "a\\x09b"},
		{"delete char", "a\x7fb", "a\\x7fb"},
		{"unicode preserved", "alice.bsky.social ✓", "alice.bsky.social ✓"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogValue(tt.input); got != tt.want {
				t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerateETag(t *testing.T) {
	a := generateETag([]byte(`{"status":"success"}`))
	b := generateETag([]byte(`{"status":"success"}`))
	c := generateETag([]byte(`{"status":"error"}`))

	if a != b {
		t.Errorf("same input produced different ETags: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different inputs produced identical ETags")
	}
	if a == "" {
		t.Error("ETag should not be empty")
	}
}

func TestGetIntParam(t *testing.T) {
	tests := []struct {
		name string
		url  string
		key  string
		def  int
		want int
	}{
		{"present", "/x?limit=25", "limit", 100, 25},
		{"missing uses default", "/x", "limit", 100, 100},
		{"non-numeric uses default", "/x?limit=abc", "limit", 100, 100},
		{"negative passes through", "/x?offset=-5", "offset", 0, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			if got := getIntParam(r, tt.key, tt.def); got != tt.want {
				t.Errorf("getIntParam(%s) = %d, want %d", tt.url, got, tt.want)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	t.Run("valid passes", func(t *testing.T) {
		if apiErr := validateRequest(&ChangesRequest{Limit: 100, Offset: 0}); apiErr != nil {
			t.Errorf("unexpected validation error: %+v", apiErr)
		}
	})

	t.Run("invalid reports VALIDATION_ERROR", func(t *testing.T) {
		apiErr := validateRequest(&ChangesRequest{Limit: 0})
		if apiErr == nil {
			t.Fatal("expected validation error")
		}
		if apiErr.Code != "VALIDATION_ERROR" {
			t.Errorf("expected VALIDATION_ERROR, got %s", apiErr.Code)
		}
	})
}
