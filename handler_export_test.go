package main

import (
	"encoding/csv"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExportJobsCSV(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")
	insertTestJob(t, "b", "work_order", "in_progress")

	w := httptest.NewRecorder()
	handleExportJobs(w, newRequest(t, "GET", "/api/export/jobs", nil))
	if w.Code != 200 {
		t.Fatalf("Export failed: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %q", ct)
	}

	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("Invalid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "Job" || records[0][1] != "Company" {
		t.Errorf("Unexpected header: %v", records[0])
	}
}

func TestExportJobsPhaseFilter(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")
	insertTestJob(t, "b", "work_order", "in_progress")

	w := httptest.NewRecorder()
	handleExportJobs(w, newRequest(t, "GET", "/api/export/jobs?phase=work_order", nil))
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("Invalid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected header plus 1 row, got %d", len(records))
	}
}

func TestExportJobsExcel(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")

	w := httptest.NewRecorder()
	handleExportJobs(w, newRequest(t, "GET", "/api/export/jobs?format=xlsx", nil))
	if w.Code != 200 {
		t.Fatalf("Export failed: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Expected xlsx content type, got %q", ct)
	}
	// xlsx files are zip archives.
	body := w.Body.Bytes()
	if len(body) < 4 || body[0] != 'P' || body[1] != 'K' {
		t.Error("Expected a zip-format body")
	}
}
