package measure

import (
	"strings"
	"testing"
)

func TestValidateEmptyBatch(t *testing.T) {
	report := Validate(nil)
	if report.Valid {
		t.Fatal("empty batch must be invalid")
	}
	if len(report.Issues) != 1 {
		t.Fatalf("expected exactly one issue, got %v", report.Issues)
	}
	if report.Issues[0] != "no measurement data was collected" {
		t.Fatalf("unexpected issue: %q", report.Issues[0])
	}
}

func TestValidateIncompleteRecord(t *testing.T) {
	report := Validate([][]string{{}})
	if report.Valid {
		t.Fatal("batch with empty record must be invalid")
	}
	if len(report.Issues) != 1 {
		t.Fatalf("expected exactly one issue, got %v", report.Issues)
	}
	if !strings.Contains(report.Issues[0], "incomplete measurement data") {
		t.Fatalf("unexpected issue: %q", report.Issues[0])
	}

	// Short rows skip numeric checks entirely.
	report = Validate([][]string{{"2026-08-25 14:30:00", "SampleA", "Ls-Rs", "-1.0"}})
	if len(report.Issues) != 1 || !strings.Contains(report.Issues[0], "incomplete") {
		t.Fatalf("short row should yield only the incomplete issue, got %v", report.Issues)
	}
}

func TestValidatePositivity(t *testing.T) {
	zero := [][]string{
		{"2026-08-25 14:30:00", "SampleA", "Ls-Rs", "0.000e+00", "0.000e+00", "Tester1"},
	}
	report := Validate(zero)
	if report.Valid {
		t.Fatal("zero-sentinel record must be invalid")
	}
	if len(report.Issues) != 2 {
		t.Fatalf("expected inductance and resistance issues, got %v", report.Issues)
	}
	if !strings.Contains(report.Issues[0], "inductance") || !strings.Contains(report.Issues[1], "resistance") {
		t.Fatalf("unexpected issue ordering: %v", report.Issues)
	}

	negative := [][]string{
		{"2026-08-25 14:30:00", "SampleB", "Ls-Rs", "-1.230e-04", "1.520e+01", "Tester1"},
	}
	report = Validate(negative)
	if report.Valid || len(report.Issues) != 1 {
		t.Fatalf("negative inductance should yield one issue, got %v", report.Issues)
	}
}

func TestValidateUnparseableValues(t *testing.T) {
	rows := [][]string{
		{"2026-08-25 14:30:00", "SampleA", "Ls-Rs", "not-a-number", "1.520e+01", "Tester1"},
	}
	report := Validate(rows)
	if report.Valid {
		t.Fatal("unparseable value must be invalid")
	}
	if len(report.Issues) != 1 || !strings.Contains(report.Issues[0], `"not-a-number"`) {
		t.Fatalf("issue should cite the unparseable value, got %v", report.Issues)
	}
}

func TestValidateGoodBatch(t *testing.T) {
	rows := [][]string{
		{"2026-08-25 14:30:00", "SampleA", "Ls-Rs", "1.230e-04", "1.520e+01", "Tester1"},
		{"2026-08-25 14:30:00", "SampleA", "Ls-Rs", "1.500e-04", "2.230e+01", "Tester1", "1.0.0"},
	}
	report := Validate(rows)
	if !report.Valid {
		t.Fatalf("good batch flagged invalid: %v", report.Issues)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", report.Issues)
	}
}

func TestValidateIssuesPerRecord(t *testing.T) {
	rows := [][]string{
		{"2026-08-25 14:30:00", "SampleA", "Ls-Rs", "1.230e-04", "1.520e+01", "Tester1"},
		{"2026-08-25 14:30:00", "SampleB", "Ls-Rs", "0.000e+00", "0.000e+00", "Tester1"},
	}
	report := Validate(rows)
	if report.Valid {
		t.Fatal("mixed batch must be invalid")
	}
	for _, issue := range report.Issues {
		if !strings.HasPrefix(issue, "record 2:") {
			t.Fatalf("issues should name the failing record, got %q", issue)
		}
	}
}
