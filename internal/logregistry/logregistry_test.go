package logregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"itko.dev/internal/model"
)

const sampleList = `{
  "operators": [
    {
      "name": "Test Operator",
      "logs": [
        {
          "description": "Test Log 2024 (usable)",
          "url": "https://ct.example.com/usable/",
          "state": {"usable": {"timestamp": "2024-01-01T00:00:00Z"}},
          "temporal_interval": {"start_inclusive": "2000-01-01T00:00:00Z", "end_exclusive": "2100-01-01T00:00:00Z"}
        },
        {
          "description": "Test Log 2020 (frozen)",
          "url": "https://ct.example.com/frozen",
          "state": {"frozen": {"timestamp": "2023-01-01T00:00:00Z"}},
          "temporal_interval": {"start_inclusive": "2000-01-01T00:00:00Z", "end_exclusive": "2100-01-01T00:00:00Z"}
        },
        {
          "description": "Retired Log",
          "url": "https://ct.example.com/retired/",
          "state": {"retired": {"timestamp": "2019-01-01T00:00:00Z"}},
          "temporal_interval": {"start_inclusive": "2000-01-01T00:00:00Z", "end_exclusive": "2100-01-01T00:00:00Z"}
        },
        {
          "description": "Future Log",
          "url": "https://ct.example.com/future/",
          "state": {"usable": {"timestamp": "2024-01-01T00:00:00Z"}},
          "temporal_interval": {"start_inclusive": "2999-01-01T00:00:00Z", "end_exclusive": "3000-01-01T00:00:00Z"}
        }
      ]
    }
  ]
}`

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleList))
	}))
	defer srv.Close()

	r := New(srv.URL)
	descs, err := r.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(descs) != 2 {
		t.Fatalf("got %d descriptors, want 2: %+v", len(descs), descs)
	}

	byName := map[string]model.LogDescriptor{}
	for _, d := range descs {
		byName[d.Name] = d
	}

	usable, ok := byName["Test_Log_2024_(usable)"]
	if !ok {
		t.Fatalf("missing usable log, got names: %v", keys(byName))
	}
	if usable.State != model.StateUsable {
		t.Errorf("state = %v, want usable", usable.State)
	}
	if usable.URL != "https://ct.example.com/usable" {
		t.Errorf("url = %q, trailing slash should be stripped", usable.URL)
	}

	frozen, ok := byName["Test_Log_2020_(frozen)"]
	if !ok {
		t.Fatalf("missing frozen log")
	}
	if frozen.State != model.StateFrozen {
		t.Errorf("state = %v, want frozen", frozen.State)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"Google 'Argon2024'":  "Google_'Argon2024'",
		"a/b\\c":               "abc",
		"  leading   spaces ":  "leading_spaces",
	}
	for in, want := range tests {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInInterval(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !inInterval(now, start, end) {
		t.Error("expected now to be in interval")
	}
	if inInterval(end, start, end) {
		t.Error("end_exclusive boundary should not be included")
	}
	if !inInterval(start, start, end) {
		t.Error("start_inclusive boundary should be included")
	}
}

func keys(m map[string]model.LogDescriptor) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
