package ias

import (
	"errors"
	"testing"
	"time"
)

func TestCheckFreshnessRejectsExactly24Hours(t *testing.T) {
	now := time.Now()
	ts := now.Add(-reportFreshness)
	if err := checkFreshness(ts, now); !errors.Is(err, ErrTooOldReportTimestamp) {
		t.Fatalf("checkFreshness() error = %v, want ErrTooOldReportTimestamp for age == 24h", err)
	}
}

func TestCheckFreshnessAcceptsOneNanosecondUnder24Hours(t *testing.T) {
	now := time.Now()
	ts := now.Add(-reportFreshness + time.Nanosecond)
	if err := checkFreshness(ts, now); err != nil {
		t.Fatalf("checkFreshness() error = %v, want nil for age == 24h-1ns", err)
	}
}

func TestCheckFreshnessRejectsReportFromTheFuture(t *testing.T) {
	now := time.Now()
	ts := now.Add(reportFreshness + time.Minute)
	if err := checkFreshness(ts, now); !errors.Is(err, ErrTooOldReportTimestamp) {
		t.Fatalf("checkFreshness() error = %v, want ErrTooOldReportTimestamp for a future timestamp beyond the window", err)
	}
}

func TestCheckFreshnessAcceptsFreshReport(t *testing.T) {
	now := time.Now()
	ts := now.Add(-time.Minute)
	if err := checkFreshness(ts, now); err != nil {
		t.Fatalf("checkFreshness() error = %v, want nil", err)
	}
}
