package main

import (
	"net/http/httptest"
	"testing"
)

func TestCreateJobDefaults(t *testing.T) {
	defer setupTestDB(t)()

	w := httptest.NewRecorder()
	handleCreateJob(w, newRequest(t, "POST", "/api/jobs", map[string]interface{}{
		"company_name": "Smith Residence",
		"address":      "4 Acacia Dr",
	}))
	if w.Code != 200 {
		t.Fatalf("Create failed: %d: %s", w.Code, w.Body.String())
	}
	var j Job
	decodeData(t, w, &j)
	if j.UUID == "" {
		t.Error("Manual job must get a generated UUID")
	}
	if j.JobCode != "J-0001" {
		t.Errorf("Expected job code J-0001, got %q", j.JobCode)
	}
	if j.LifecyclePhase != "quote" || j.Status != "new_lead" {
		t.Errorf("Expected quote/new_lead defaults, got %s/%s", j.LifecyclePhase, j.Status)
	}
	if j.POStatus != "none" {
		t.Errorf("Expected po_status none, got %q", j.POStatus)
	}
}

func TestCreateJobSequentialCodes(t *testing.T) {
	defer setupTestDB(t)()

	for _, want := range []string{"J-0001", "J-0002", "J-0003"} {
		w := httptest.NewRecorder()
		handleCreateJob(w, newRequest(t, "POST", "/api/jobs", map[string]string{"company_name": "x"}))
		if w.Code != 200 {
			t.Fatalf("Create failed: %d", w.Code)
		}
		var j Job
		decodeData(t, w, &j)
		if j.JobCode != want {
			t.Errorf("Expected %s, got %s", want, j.JobCode)
		}
	}
}

func TestCreateWorkOrderStartsPendingPosts(t *testing.T) {
	defer setupTestDB(t)()

	w := httptest.NewRecorder()
	handleCreateJob(w, newRequest(t, "POST", "/api/jobs", map[string]string{
		"company_name": "x", "lifecycle_phase": "work_order", "status": "in_progress",
	}))
	if w.Code != 200 {
		t.Fatalf("Create failed: %d: %s", w.Code, w.Body.String())
	}
	var j Job
	decodeData(t, w, &j)
	if j.InstallStage != "pending_posts" {
		t.Errorf("New work order must start at pending_posts, got %q", j.InstallStage)
	}
}

func TestCreateJobRequiresCompanyName(t *testing.T) {
	defer setupTestDB(t)()
	w := httptest.NewRecorder()
	handleCreateJob(w, newRequest(t, "POST", "/api/jobs", map[string]string{"address": "nowhere"}))
	if w.Code != 400 {
		t.Errorf("Expected 400 for missing company_name, got %d", w.Code)
	}
}

func TestListJobsPipelineFilters(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")
	insertTestJob(t, "b", "quote", "quote_sent")
	insertTestJob(t, "c", "work_order", "in_progress")

	cases := []struct {
		pipeline string
		want     int
	}{
		{"leads", 2},
		{"quotes", 1},
		{"production", 1},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		handleListJobs(w, newRequest(t, "GET", "/api/jobs?pipeline="+tc.pipeline, nil))
		if w.Code != 200 {
			t.Fatalf("%s: expected 200, got %d", tc.pipeline, w.Code)
		}
		var jobs []Job
		decodeData(t, w, &jobs)
		if len(jobs) != tc.want {
			t.Errorf("%s: expected %d jobs, got %d", tc.pipeline, tc.want, len(jobs))
		}
	}
}

func TestListJobsSearch(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")
	db.Exec("UPDATE jobs SET company_name='Henderson Pools', address='12 Beach Rd' WHERE uuid='a'")
	insertTestJob(t, "b", "quote", "new_lead")

	w := httptest.NewRecorder()
	handleListJobs(w, newRequest(t, "GET", "/api/jobs?search=henderson", nil))
	var jobs []Job
	decodeData(t, w, &jobs)
	if len(jobs) != 1 || jobs[0].CompanyName != "Henderson Pools" {
		t.Errorf("Expected the Henderson job only, got %d jobs", len(jobs))
	}
}

func TestPatchJobWhitelist(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")

	w := httptest.NewRecorder()
	handlePatchJob(w, newRequest(t, "PATCH", "/api/jobs/1", map[string]interface{}{
		"quote_value": 4200.50,
		"po_status":   "ordered",
		"status":      "unsuccessful", // sync-owned, must be ignored
	}), "1")
	if w.Code != 200 {
		t.Fatalf("Patch failed: %d: %s", w.Code, w.Body.String())
	}
	var j Job
	decodeData(t, w, &j)
	if j.QuoteValue != 4200.50 || j.POStatus != "ordered" {
		t.Errorf("Expected patched values, got %v / %s", j.QuoteValue, j.POStatus)
	}
	if j.Status != "new_lead" {
		t.Errorf("Patch must not touch sync-owned status, got %q", j.Status)
	}
}

func TestPatchJobNoEditableFields(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")

	w := httptest.NewRecorder()
	handlePatchJob(w, newRequest(t, "PATCH", "/api/jobs/1", map[string]string{"status": "done"}), "1")
	if w.Code != 400 {
		t.Errorf("Expected 400 when only non-editable fields given, got %d", w.Code)
	}
}

func TestPatchJobInvalidPOStatus(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")

	w := httptest.NewRecorder()
	handlePatchJob(w, newRequest(t, "PATCH", "/api/jobs/1", map[string]string{"po_status": "lost_in_transit"}), "1")
	if w.Code != 400 {
		t.Errorf("Expected 400 for invalid po_status, got %d", w.Code)
	}
}

func TestMoveJobAcrossPipelines(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")
	insertTestJob(t, "b", "work_order", "in_progress")

	w := httptest.NewRecorder()
	handleMoveJob(w, newRequest(t, "POST", "/api/jobs/1/move", map[string]string{
		"pipeline": "leads", "column": "quote_sent",
	}), "1")
	if w.Code != 200 {
		t.Fatalf("Move failed: %d: %s", w.Code, w.Body.String())
	}
	var j Job
	decodeData(t, w, &j)
	if j.Status != "quote_sent" {
		t.Errorf("Leads move must set status, got %q", j.Status)
	}

	w = httptest.NewRecorder()
	handleMoveJob(w, newRequest(t, "POST", "/api/jobs/2/move", map[string]string{
		"pipeline": "production", "column": "in_production",
	}), "2")
	if w.Code != 200 {
		t.Fatalf("Production move failed: %d: %s", w.Code, w.Body.String())
	}
	decodeData(t, w, &j)
	if j.SchedulerStage != "in_production" {
		t.Errorf("Production move must set scheduler_stage, got %q", j.SchedulerStage)
	}
}

func TestMoveQuoteJobToProductionRejected(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "a", "quote", "new_lead")

	w := httptest.NewRecorder()
	handleMoveJob(w, newRequest(t, "POST", "/api/jobs/1/move", map[string]string{
		"pipeline": "production", "column": "in_production",
	}), "1")
	if w.Code != 400 {
		t.Errorf("Expected 400 moving a quote into production, got %d", w.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	defer setupTestDB(t)()
	w := httptest.NewRecorder()
	handleGetJob(w, newRequest(t, "GET", "/api/jobs/99", nil), "99")
	if w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
