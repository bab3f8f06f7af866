package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tacklebox-studio/tacklebox/internal/observability"
)

func TestParseSinceDuration(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr string
	}{
		{"empty defaults to 7d", "", now.AddDate(0, 0, -7), ""},
		{"whitespace defaults to 7d", "  ", now.AddDate(0, 0, -7), ""},
		{"days", "30d", now.AddDate(0, 0, -30), ""},
		{"hours", "24h", now.Add(-24 * time.Hour), ""},
		{"zero", "0h", now, ""},
		{"invalid suffix", "abc", time.Time{}, "unsupported duration format"},
		{"invalid number", "xd", time.Time{}, "invalid duration"},
		{"negative", "-5d", time.Time{}, "invalid duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSinceDuration(tt.input, now)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q should contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

type metricsMock struct {
	calcFn func(since time.Time) (*observability.Metrics, error)
}

func (m *metricsMock) Calculate(since time.Time) (*observability.Metrics, error) {
	return m.calcFn(since)
}

func sampleMetrics() *observability.Metrics {
	oldest := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return &observability.Metrics{
		EventCount:           12,
		TransitionsValidated: 6,
		TransitionsRejected:  2,
		RejectedByReason:     map[string]int{"Unauthorized": 2},
		Transitioned:         5,
		TransitionsByStatus:  map[string]int{"review": 3, "approved": 2},
		GuardDenied:          3,
		GuardRedirects:       1,
		DeniedByResource:     map[string]int{"admin-policy": 3},
		DeniedByRole:         map[string]int{"client": 3},
		OldestEvent:          &oldest,
	}
}

func TestMetricsCmd_NilCalculator(t *testing.T) {
	orig := MetricsCalc
	defer func() { MetricsCalc = orig }()
	MetricsCalc = nil

	err := metricsCmd.RunE(metricsCmd, []string{})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestMetricsCmd_Table(t *testing.T) {
	orig := MetricsCalc
	origSince, origJSON := metricsSince, metricsJSON
	defer func() {
		MetricsCalc = orig
		metricsSince, metricsJSON = origSince, origJSON
	}()
	metricsSince, metricsJSON = "7d", false
	MetricsCalc = &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return sampleMetrics(), nil
	}}

	var err error
	out := captureStdout(t, func() {
		err = metricsCmd.RunE(metricsCmd, []string{})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"Transitions rejected:", "25.0%", "Rejections by reason:", "Unauthorized:",
		"Denials by resource:", "admin-policy:", "Oldest event:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "approved:") > strings.Index(out, "review:") {
		t.Errorf("counts should be sorted by key:\n%s", out)
	}
}

func TestMetricsCmd_JSON(t *testing.T) {
	orig := MetricsCalc
	origSince, origJSON := metricsSince, metricsJSON
	defer func() {
		MetricsCalc = orig
		metricsSince, metricsJSON = origSince, origJSON
	}()
	metricsSince, metricsJSON = "24h", true
	MetricsCalc = &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return sampleMetrics(), nil
	}}

	var err error
	out := captureStdout(t, func() {
		err = metricsCmd.RunE(metricsCmd, []string{})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got observability.Metrics
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.GuardDenied != 3 || got.TransitionsRejected != 2 {
		t.Errorf("unexpected metrics %+v", got)
	}
}

func TestMetricsCmd_Errors(t *testing.T) {
	orig := MetricsCalc
	origSince := metricsSince
	defer func() {
		MetricsCalc = orig
		metricsSince = origSince
	}()
	MetricsCalc = &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return nil, fmt.Errorf("log unreadable")
	}}

	metricsSince = "7d"
	if err := metricsCmd.RunE(metricsCmd, []string{}); err == nil || !strings.Contains(err.Error(), "log unreadable") {
		t.Errorf("expected calculator error, got %v", err)
	}

	metricsSince = "7w"
	if err := metricsCmd.RunE(metricsCmd, []string{}); err == nil || !strings.Contains(err.Error(), "--since") {
		t.Errorf("expected --since error, got %v", err)
	}
}
