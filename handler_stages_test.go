package main

import (
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func countStageRows(t *testing.T, jobID int) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM job_stage_progress WHERE job_id=?", jobID).Scan(&n); err != nil {
		t.Fatalf("Failed to count stage rows: %v", err)
	}
	return n
}

func TestInitializeStagesIdempotent(t *testing.T) {
	defer setupTestDB(t)()
	jobID := insertTestJob(t, "wo-1", "work_order", "in_progress")
	wtID, _ := insertTestWorkType(t, "PVC Fence", []string{"deposit", "materials", "cut", "weld"})

	body := map[string]int{"work_type_id": wtID}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handleInitializeJobStages(w, newRequest(t, "POST", "/api/jobs/1/stages/initialize", body), "1")
		if w.Code != 200 {
			t.Fatalf("Initialize attempt %d failed: %d: %s", i+1, w.Code, w.Body.String())
		}
		if n := countStageRows(t, jobID); n != 4 {
			t.Fatalf("Attempt %d: expected 4 stage rows, got %d", i+1, n)
		}
	}

	var wt int
	db.QueryRow("SELECT work_type_id FROM jobs WHERE id=?", jobID).Scan(&wt)
	if wt != wtID {
		t.Errorf("Initialize must record the work type on the job, got %d", wt)
	}
}

func TestInitializeStagesPreservesProgress(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "wo-1", "work_order", "in_progress")
	wtID, stageIDs := insertTestWorkType(t, "PVC Fence", []string{"deposit", "materials"})

	w := httptest.NewRecorder()
	handleInitializeJobStages(w, newRequest(t, "POST", "/api/jobs/1/stages/initialize", map[string]int{"work_type_id": wtID}), "1")
	if w.Code != 200 {
		t.Fatalf("Initialize failed: %d", w.Code)
	}

	sid := strconv.Itoa(stageIDs[0])
	w = httptest.NewRecorder()
	handleUpdateJobStage(w, newRequest(t, "PATCH", "/api/jobs/1/stages/"+sid, map[string]bool{"toggle": true}), "1", sid)
	if w.Code != 200 {
		t.Fatalf("Toggle failed: %d", w.Code)
	}

	w = httptest.NewRecorder()
	handleInitializeJobStages(w, newRequest(t, "POST", "/api/jobs/1/stages/initialize", map[string]int{"work_type_id": wtID}), "1")
	if w.Code != 200 {
		t.Fatalf("Re-initialize failed: %d", w.Code)
	}

	p, err := getStageProgress("1", sid)
	if err != nil {
		t.Fatalf("Failed to read progress: %v", err)
	}
	if p.Status != "completed" {
		t.Errorf("Re-initialize must not reset completed stages, got %q", p.Status)
	}
}

func TestInitializeWithoutWorkType(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "wo-1", "work_order", "in_progress")

	w := httptest.NewRecorder()
	handleInitializeJobStages(w, newRequest(t, "POST", "/api/jobs/1/stages/initialize", nil), "1")
	if w.Code != 400 {
		t.Errorf("Expected 400 when the job has no work type, got %d", w.Code)
	}
}

func TestStageToggle(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "wo-1", "work_order", "in_progress")
	_, stageIDs := insertTestWorkType(t, "PVC Fence", []string{"deposit"})
	sid := strconv.Itoa(stageIDs[0])

	for i, want := range []string{"completed", "pending", "completed"} {
		w := httptest.NewRecorder()
		handleUpdateJobStage(w, newRequest(t, "PATCH", "/api/jobs/1/stages/"+sid, map[string]bool{"toggle": true}), "1", sid)
		if w.Code != 200 {
			t.Fatalf("Toggle %d failed: %d: %s", i+1, w.Code, w.Body.String())
		}
		var p JobStageProgress
		decodeData(t, w, &p)
		if p.Status != want {
			t.Errorf("Toggle %d: expected %q, got %q", i+1, want, p.Status)
		}
	}
}

func TestStageNotesUpdate(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "wo-1", "work_order", "in_progress")
	_, stageIDs := insertTestWorkType(t, "PVC Fence", []string{"deposit"})
	sid := strconv.Itoa(stageIDs[0])

	w := httptest.NewRecorder()
	handleUpdateJobStage(w, newRequest(t, "PATCH", "/api/jobs/1/stages/"+sid,
		map[string]string{"notes": "waiting on supplier"}), "1", sid)
	if w.Code != 200 {
		t.Fatalf("Notes update failed: %d", w.Code)
	}
	var p JobStageProgress
	decodeData(t, w, &p)
	if p.Notes != "waiting on supplier" {
		t.Errorf("Expected notes saved, got %q", p.Notes)
	}
	if p.Status != "pending" {
		t.Errorf("Notes-only update must not change status, got %q", p.Status)
	}
}

func TestStageTimerStartIsNoOpWhenRunning(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "wo-1", "work_order", "in_progress")
	_, stageIDs := insertTestWorkType(t, "PVC Fence", []string{"cut"})
	sid := strconv.Itoa(stageIDs[0])

	w := httptest.NewRecorder()
	handleStageTimer(w, newRequest(t, "POST", "/api/jobs/1/stages/"+sid+"/timer/start", nil), "1", sid, "start")
	if w.Code != 200 {
		t.Fatalf("Timer start failed: %d", w.Code)
	}
	var p JobStageProgress
	decodeData(t, w, &p)
	if !p.TimerRunning || p.Status != "in_progress" {
		t.Fatalf("Expected running in_progress stage, got %+v", p)
	}
	started := p.TimerStartedAt

	// Second start keeps the original start stamp.
	w = httptest.NewRecorder()
	handleStageTimer(w, newRequest(t, "POST", "/api/jobs/1/stages/"+sid+"/timer/start", nil), "1", sid, "start")
	if w.Code != 200 {
		t.Fatalf("Second timer start failed: %d", w.Code)
	}
	decodeData(t, w, &p)
	if p.TimerStartedAt != started {
		t.Errorf("Second start must not restart the timer: %q vs %q", started, p.TimerStartedAt)
	}
}

func TestStageTimerStopAccumulates(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "wo-1", "work_order", "in_progress")
	_, stageIDs := insertTestWorkType(t, "PVC Fence", []string{"cut"})
	sid := strconv.Itoa(stageIDs[0])

	w := httptest.NewRecorder()
	handleStageTimer(w, newRequest(t, "POST", "/api/jobs/1/stages/"+sid+"/timer/start", nil), "1", sid, "start")
	if w.Code != 200 {
		t.Fatalf("Timer start failed: %d", w.Code)
	}

	// Backdate the start so the elapsed time is deterministic.
	backdated := time.Now().UTC().Add(-90 * time.Second).Format(stampLayout)
	if _, err := db.Exec("UPDATE job_stage_progress SET timer_started_at=? WHERE job_id=1 AND stage_id=?", backdated, stageIDs[0]); err != nil {
		t.Fatalf("Failed to backdate timer: %v", err)
	}

	w = httptest.NewRecorder()
	handleStageTimer(w, newRequest(t, "POST", "/api/jobs/1/stages/"+sid+"/timer/stop", nil), "1", sid, "stop")
	if w.Code != 200 {
		t.Fatalf("Timer stop failed: %d", w.Code)
	}
	var p JobStageProgress
	decodeData(t, w, &p)
	if p.TimerRunning {
		t.Error("Timer must be stopped")
	}
	if p.TotalTimeSeconds < 90 || p.TotalTimeSeconds > 100 {
		t.Errorf("Expected roughly 90 accumulated seconds, got %d", p.TotalTimeSeconds)
	}

	// Stop without a running timer leaves the total untouched.
	w = httptest.NewRecorder()
	handleStageTimer(w, newRequest(t, "POST", "/api/jobs/1/stages/"+sid+"/timer/stop", nil), "1", sid, "stop")
	if w.Code != 200 {
		t.Fatalf("Second stop failed: %d", w.Code)
	}
	var after JobStageProgress
	decodeData(t, w, &after)
	if after.TotalTimeSeconds != p.TotalTimeSeconds {
		t.Errorf("Stop on a stopped timer must not change the total: %d vs %d", p.TotalTimeSeconds, after.TotalTimeSeconds)
	}
}

func TestStageTimerUnknownAction(t *testing.T) {
	defer setupTestDB(t)()
	insertTestJob(t, "wo-1", "work_order", "in_progress")
	_, stageIDs := insertTestWorkType(t, "PVC Fence", []string{"cut"})
	sid := strconv.Itoa(stageIDs[0])

	w := httptest.NewRecorder()
	handleStageTimer(w, newRequest(t, "POST", "/api/jobs/1/stages/"+sid+"/timer/pause", nil), "1", sid, "pause")
	if w.Code != 404 {
		t.Errorf("Expected 404 for unknown timer action, got %d", w.Code)
	}
}
