package domain

import (
	"errors"
	"testing"
)

func TestMapReportedStatus(t *testing.T) {
	tests := []struct {
		in   string
		want RunStatus
		ok   bool
	}{
		{"Initializing", RunStatusPending, true},
		{"Running", RunStatusRunning, true},
		{"Succeeded", RunStatusSuccess, true},
		{"Failed", RunStatusFailure, true},
		{"  running  ", RunStatusRunning, true},
		{"succeeded", RunStatusSuccess, true},
		{"pending", "", false},
		{"Errored", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := MapReportedStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("MapReportedStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValidateStatusChange(t *testing.T) {
	all := []RunStatus{RunStatusPending, RunStatusRunning, RunStatusSuccess, RunStatusFailure, RunStatusError}
	terminal := map[RunStatus]bool{RunStatusSuccess: true, RunStatusFailure: true, RunStatusError: true}

	for _, prev := range all {
		for _, next := range all {
			err := ValidateStatusChange(prev, next)

			var wantOK bool
			switch {
			case prev == next:
				wantOK = true
			case prev == RunStatusPending:
				wantOK = next != RunStatusPending
			case prev == RunStatusRunning:
				wantOK = terminal[next]
			default:
				wantOK = false
			}

			if wantOK && err != nil {
				t.Errorf("ValidateStatusChange(%q, %q) = %v; want nil", prev, next, err)
			}
			if !wantOK {
				if err == nil {
					t.Errorf("ValidateStatusChange(%q, %q) = nil; want error", prev, next)
				} else if !errors.Is(err, ErrInvalidStatusTransition) {
					t.Errorf("ValidateStatusChange(%q, %q) error %v is not ErrInvalidStatusTransition", prev, next, err)
				}
			}
		}
	}
}

func TestValidateStatusChangeUnknownStatus(t *testing.T) {
	if err := ValidateStatusChange("bogus", RunStatusRunning); err == nil {
		t.Fatal("expected error for unknown previous status")
	}
	if err := ValidateStatusChange(RunStatusPending, "bogus"); err == nil {
		t.Fatal("expected error for unknown next status")
	}
}

func TestResolveRunStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []RunStatus
		want     RunStatus
	}{
		{"empty", nil, RunStatusSuccess},
		{"all success", []RunStatus{RunStatusSuccess, RunStatusSuccess}, RunStatusSuccess},
		{"pending dominates everything", []RunStatus{RunStatusSuccess, RunStatusError, RunStatusRunning, RunStatusPending}, RunStatusPending},
		{"running dominates terminal", []RunStatus{RunStatusSuccess, RunStatusFailure, RunStatusRunning}, RunStatusRunning},
		{"error beats failure", []RunStatus{RunStatusFailure, RunStatusError, RunStatusSuccess}, RunStatusError},
		{"failure beats success", []RunStatus{RunStatusSuccess, RunStatusFailure}, RunStatusFailure},
		{"single pending", []RunStatus{RunStatusPending}, RunStatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveRunStatus(tt.statuses); got != tt.want {
				t.Errorf("ResolveRunStatus(%v) = %q; want %q", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestNormalizeRunStatus(t *testing.T) {
	if got := NormalizeRunStatus(" Running "); got != RunStatusRunning {
		t.Errorf("NormalizeRunStatus = %q; want running", got)
	}
	if got := NormalizeRunStatus("unknown"); got != "" {
		t.Errorf("NormalizeRunStatus(unknown) = %q; want empty", got)
	}
}
