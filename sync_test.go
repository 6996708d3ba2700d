package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// sm8Stub fakes the ServiceM8 list endpoints for sync tests.
type sm8Stub struct {
	jobs      []sm8Job
	companies []sm8Company
	contacts  []sm8Contact
	notes     []sm8Note
	feedItems []sm8FeedItem
	failJobs  bool
}

func (s *sm8Stub) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/job.json":
			if s.failJobs {
				http.Error(w, "upstream down", 500)
				return
			}
			json.NewEncoder(w).Encode(s.jobs)
		case "/company.json":
			json.NewEncoder(w).Encode(s.companies)
		case "/companycontact.json":
			json.NewEncoder(w).Encode(s.contacts)
		case "/note.json":
			json.NewEncoder(w).Encode(s.notes)
		case "/feeditem.json":
			json.NewEncoder(w).Encode(s.feedItems)
		default:
			http.NotFound(w, r)
		}
	}))
}

// setupSyncStub points the global client at a stub server with a live token.
func setupSyncStub(t *testing.T, stub *sm8Stub) func() {
	t.Helper()
	srv := stub.server()

	expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	if _, err := db.Exec("INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at) VALUES ('servicem8','tok','ref',?)", expires); err != nil {
		t.Fatalf("Failed to seed token: %v", err)
	}

	oldClient := sm8
	sm8 = newServiceM8Client("app", "secret", db)
	sm8.apiBase = srv.URL
	return func() {
		sm8 = oldClient
		srv.Close()
	}
}

func TestSyncUpsertsJobs(t *testing.T) {
	defer setupTestDB(t)()
	defer setupSyncStub(t, &sm8Stub{
		jobs: []sm8Job{
			{UUID: "u1", GeneratedJobID: "1041", Status: "Work Order", JobAddress: "4 Acacia Dr",
				TotalInvoice: "8200.00", CompanyUUID: "c1", Active: 1},
			{UUID: "u2", GeneratedJobID: "1042", Status: "Quote", CompanyUUID: "c2", Active: 1},
		},
		companies: []sm8Company{{UUID: "c1", Name: "Henderson Pools"}, {UUID: "c2", Name: "Smith"}},
		contacts:  []sm8Contact{{UUID: "ct1", CompanyUUID: "c1", FirstName: "Jo", LastName: "Henderson", Mobile: "0400000000"}},
	})()

	processed, err := runSync("manual")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if processed != 2 {
		t.Errorf("Expected 2 jobs processed, got %d", processed)
	}

	j, err := getJobByID("1")
	if err != nil {
		t.Fatalf("Job not upserted: %v", err)
	}
	if j.UUID != "u1" || j.JobCode != "1041" || j.CompanyName != "Henderson Pools" {
		t.Errorf("Unexpected job fields: %+v", j)
	}
	if j.LifecyclePhase != "work_order" || j.InstallStage != "pending_posts" {
		t.Errorf("Work order mapping wrong: phase %s install %s", j.LifecyclePhase, j.InstallStage)
	}
	if j.ContactName != "Jo Henderson" || j.QuoteValue != 8200 {
		t.Errorf("Contact/value mapping wrong: %q %v", j.ContactName, j.QuoteValue)
	}

	var status string
	var jobsProcessed int
	db.QueryRow("SELECT status, jobs_processed FROM sync_logs ORDER BY id DESC LIMIT 1").Scan(&status, &jobsProcessed)
	if status != "success" || jobsProcessed != 2 {
		t.Errorf("Expected success log with 2 jobs, got %s/%d", status, jobsProcessed)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	defer setupTestDB(t)()
	defer setupSyncStub(t, &sm8Stub{
		jobs: []sm8Job{{UUID: "u1", GeneratedJobID: "1041", Status: "Quote", Active: 1}},
	})()

	for i := 0; i < 2; i++ {
		if _, err := runSync("manual"); err != nil {
			t.Fatalf("Sync %d failed: %v", i+1, err)
		}
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&n)
	if n != 1 {
		t.Errorf("Repeated sync must upsert, not duplicate: got %d jobs", n)
	}
}

func TestSyncPreservesLocalFields(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "u1", "work_order", "work order")
	db.Exec(`UPDATE jobs SET scheduler_stage='waiting_supplier', install_stage='posts_scheduled',
		post_install_date='2026-09-10', post_duration_hours=6, po_status='ordered' WHERE uuid='u1'`)

	defer setupSyncStub(t, &sm8Stub{
		jobs: []sm8Job{{UUID: "u1", GeneratedJobID: "1041", Status: "Work Order", Active: 1}},
	})()

	if _, err := runSync("manual"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	j, _ := getJobByID("1")
	if j.SchedulerStage != "waiting_supplier" {
		t.Errorf("Sync must not overwrite a manual scheduler column, got %q", j.SchedulerStage)
	}
	if j.InstallStage != "posts_scheduled" || j.PostInstallDate != "2026-09-10" {
		t.Errorf("Sync must not touch install scheduling: stage %q date %q", j.InstallStage, j.PostInstallDate)
	}
	if j.POStatus != "ordered" {
		t.Errorf("Sync must not touch po_status, got %q", j.POStatus)
	}
}

func TestSyncNotConnected(t *testing.T) {
	defer setupTestDB(t)()
	oldClient := sm8
	sm8 = newServiceM8Client("app", "secret", db)
	defer func() { sm8 = oldClient }()

	_, err := runSync("manual")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Expected ErrNotConnected, got %v", err)
	}

	var status, msg string
	db.QueryRow("SELECT status, error FROM sync_logs ORDER BY id DESC LIMIT 1").Scan(&status, &msg)
	if status != "error" {
		t.Errorf("Expected error log, got %q", status)
	}
	if msg != "ServiceM8 not connected - please reconnect" {
		t.Errorf("Expected reconnect message, got %q", msg)
	}
}

func TestSyncSingleFlight(t *testing.T) {
	defer setupTestDB(t)()

	syncMu.Lock()
	defer syncMu.Unlock()

	if _, err := runSync("manual"); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("Expected ErrSyncInProgress, got %v", err)
	}

	w := httptest.NewRecorder()
	handleTriggerSync(w, newRequest(t, "POST", "/api/sync/servicem8", nil))
	if w.Code != 409 {
		t.Errorf("Expected 409 while sync holds the lock, got %d", w.Code)
	}
}

func TestSyncNoteHeuristics(t *testing.T) {
	defer setupTestDB(t)()
	defer setupSyncStub(t, &sm8Stub{
		jobs: []sm8Job{{UUID: "u1", GeneratedJobID: "1041", Status: "Quote", Active: 1}},
		notes: []sm8Note{
			{UUID: "n1", RelatedObjectUUID: "u1", Note: "Client called about the gate height", CreateDate: "2026-08-20 09:00:00"},
			{UUID: "n2", RelatedObjectUUID: "u1", Note: "Sent revised quote by email", CreateDate: "2026-08-22 14:30:00"},
		},
		feedItems: []sm8FeedItem{
			{UUID: "f1", RelatedObjectUUID: "u1", MessageType: "sms_sent", Message: "Reminder sent", Timestamp: "2026-08-23 08:00:00"},
		},
	})()

	if _, err := runSync("manual"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	j, _ := getJobByID("1")
	// The typed feed item is the most recent touch point.
	if j.LastContactAt != "2026-08-23 08:00:00" || j.LastContactType != "sms" || j.LastContactDirection != "outbound" {
		t.Errorf("Latest contact mapping wrong: %s %s %s", j.LastContactAt, j.LastContactType, j.LastContactDirection)
	}
	if j.LastClientContactAt != "2026-08-20 09:00:00" || j.LastClientContactType != "call" {
		t.Errorf("Inbound tracker wrong: %s %s", j.LastClientContactAt, j.LastClientContactType)
	}
}

func TestSyncPartialFailureLogsError(t *testing.T) {
	defer setupTestDB(t)()
	defer setupSyncStub(t, &sm8Stub{failJobs: true})()

	_, err := runSync("manual")
	if err == nil {
		t.Fatal("Expected error when the jobs fetch fails")
	}
	var status, msg string
	db.QueryRow("SELECT status, error FROM sync_logs ORDER BY id DESC LIMIT 1").Scan(&status, &msg)
	if status != "error" || msg != "Sync failed" {
		t.Errorf("Expected generic error log, got %s/%q", status, msg)
	}
}
