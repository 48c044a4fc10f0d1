package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		wantErr bool
	}{
		{"info", "json", false},
		{"DEBUG", "console", false},
		{"warn", "", false},
		{"loud", "json", true},
		{"info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("expected logger")
			}
		})
	}
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	// A second set on another registry must not collide.
	other := NewNopMetrics()

	m.PhotosEnriched.WithLabelValues("enriched").Add(3)
	other.PhotosEnriched.WithLabelValues("enriched").Inc()

	if got := testutil.ToFloat64(m.PhotosEnriched.WithLabelValues("enriched")); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
	if got := testutil.ToFloat64(other.PhotosEnriched.WithLabelValues("enriched")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}

	count, err := testutil.GatherAndCount(reg, "photo_indexer_photos_enriched_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one series, got %d", count)
	}
}
