package main

import (
	"net/http"
	"time"
)

const stampLayout = "2006-01-02 15:04:05"

func listJobStages(jobID string) ([]JobStageProgress, error) {
	rows, err := db.Query(`SELECT p.id, p.job_id, p.stage_id, s.name, s.key, p.status, COALESCE(p.notes,''),
		p.timer_running, COALESCE(p.timer_started_at,''), p.total_time_seconds, p.updated_at
		FROM job_stage_progress p JOIN work_type_stages s ON p.stage_id = s.id
		WHERE p.job_id=? ORDER BY s.order_index`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []JobStageProgress
	for rows.Next() {
		var p JobStageProgress
		var running int
		if err := rows.Scan(&p.ID, &p.JobID, &p.StageID, &p.StageName, &p.StageKey, &p.Status, &p.Notes,
			&running, &p.TimerStartedAt, &p.TotalTimeSeconds, &p.UpdatedAt); err != nil {
			continue
		}
		p.TimerRunning = running == 1
		items = append(items, p)
	}
	return items, nil
}

func handleListJobStages(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, err := getJobByID(jobID); err != nil { jsonErr(w, "not found", 404); return }
	items, err := listJobStages(jobID)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	if items == nil { items = []JobStageProgress{} }
	jsonResp(w, items)
}

// handleInitializeJobStages creates one pending progress row per stage of
// the job's work type. Idempotent: re-running never duplicates rows.
func handleInitializeJobStages(w http.ResponseWriter, r *http.Request, jobID string) {
	j, err := getJobByID(jobID)
	if err != nil { jsonErr(w, "not found", 404); return }

	var req struct {
		WorkTypeID int `json:"work_type_id"`
	}
	decodeBody(r, &req) // optional body; falls back to the job's work type
	workTypeID := req.WorkTypeID
	if workTypeID == 0 && j.WorkTypeID != nil {
		workTypeID = *j.WorkTypeID
	}
	if workTypeID == 0 {
		jsonErr(w, "job has no work type assigned", 400)
		return
	}

	var exists int
	if err := db.QueryRow("SELECT id FROM work_types WHERE id=?", workTypeID).Scan(&exists); err != nil {
		jsonErr(w, "work type not found", 404)
		return
	}

	if j.WorkTypeID == nil || *j.WorkTypeID != workTypeID {
		db.Exec("UPDATE jobs SET work_type_id=?, updated_at=CURRENT_TIMESTAMP WHERE id=?", workTypeID, j.ID)
	}

	_, err = db.Exec(`INSERT INTO job_stage_progress (job_id, stage_id, status)
		SELECT ?, id, 'pending' FROM work_type_stages WHERE work_type_id=?
		ON CONFLICT(job_id, stage_id) DO NOTHING`, j.ID, workTypeID)
	if err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "initialized", "job_stages", jobID, "Initialized stage checklist")
	broadcast("stage_progress", "init", j.ID)
	handleListJobStages(w, r, jobID)
}

func getStageProgress(jobID, stageID string) (JobStageProgress, error) {
	var p JobStageProgress
	var running int
	err := db.QueryRow(`SELECT id, job_id, stage_id, status, COALESCE(notes,''), timer_running,
		COALESCE(timer_started_at,''), total_time_seconds, updated_at
		FROM job_stage_progress WHERE job_id=? AND stage_id=?`, jobID, stageID).
		Scan(&p.ID, &p.JobID, &p.StageID, &p.Status, &p.Notes, &running, &p.TimerStartedAt, &p.TotalTimeSeconds, &p.UpdatedAt)
	p.TimerRunning = running == 1
	return p, err
}

// ensureStageProgress lazily creates the progress row the first time a
// job's stage is touched.
func ensureStageProgress(jobID, stageID string) (JobStageProgress, error) {
	p, err := getStageProgress(jobID, stageID)
	if err == nil {
		return p, nil
	}
	if _, err := db.Exec(`INSERT INTO job_stage_progress (job_id, stage_id, status) VALUES (?,?,'pending')
		ON CONFLICT(job_id, stage_id) DO NOTHING`, jobID, stageID); err != nil {
		return p, err
	}
	return getStageProgress(jobID, stageID)
}

// handleUpdateJobStage toggles completion or edits notes. The toggle flips
// pending <-> completed; an in_progress stage completes the same way.
func handleUpdateJobStage(w http.ResponseWriter, r *http.Request, jobID, stageID string) {
	if _, err := getJobByID(jobID); err != nil { jsonErr(w, "not found", 404); return }
	var stageExists int
	if err := db.QueryRow("SELECT id FROM work_type_stages WHERE id=?", stageID).Scan(&stageExists); err != nil {
		jsonErr(w, "stage not found", 404)
		return
	}

	var req struct {
		Toggle bool    `json:"toggle,omitempty"`
		Status *string `json:"status,omitempty"`
		Notes  *string `json:"notes,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil { jsonErr(w, "invalid body", 400); return }

	p, err := ensureStageProgress(jobID, stageID)
	if err != nil { jsonErr(w, err.Error(), 500); return }

	status := p.Status
	if req.Toggle {
		if status == "completed" {
			status = "pending"
		} else {
			status = "completed"
		}
	} else if req.Status != nil {
		ve := &ValidationErrors{}
		validateEnum(ve, "status", *req.Status, []string{"pending", "in_progress", "completed"})
		if ve.HasErrors() { writeValidationErrors(w, ve); return }
		status = *req.Status
	}
	notes := p.Notes
	if req.Notes != nil {
		notes = *req.Notes
	}

	if _, err := db.Exec("UPDATE job_stage_progress SET status=?, notes=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		status, notes, p.ID); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}

	// A stage that surfaces jobs in the scheduler or purchase-order views
	// does so at completion time.
	if status == "completed" && p.Status != "completed" {
		var triggersScheduler, triggersPO int
		db.QueryRow("SELECT triggers_scheduler, triggers_purchase_order FROM work_type_stages WHERE id=?", stageID).
			Scan(&triggersScheduler, &triggersPO)
		if triggersScheduler == 1 {
			broadcast("scheduler_queue", "add", jobID)
		}
		if triggersPO == 1 {
			broadcast("purchase_orders", "add", jobID)
		}
	}

	broadcast("stage_progress", "update", p.ID)
	updated, err := getStageProgress(jobID, stageID)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	jsonResp(w, updated)
}

// handleStageTimer starts or stops the elapsed-time timer on one stage.
// Stop without a running timer is a safe no-op returning current state;
// start on an already-running timer is the same no-op (restarting would
// silently discard elapsed time, rejecting would break UI retries).
func handleStageTimer(w http.ResponseWriter, r *http.Request, jobID, stageID, action string) {
	if _, err := getJobByID(jobID); err != nil { jsonErr(w, "not found", 404); return }
	var stageExists int
	if err := db.QueryRow("SELECT id FROM work_type_stages WHERE id=?", stageID).Scan(&stageExists); err != nil {
		jsonErr(w, "stage not found", 404)
		return
	}

	p, err := ensureStageProgress(jobID, stageID)
	if err != nil { jsonErr(w, err.Error(), 500); return }

	now := time.Now().UTC()
	switch action {
	case "start":
		if !p.TimerRunning {
			_, err = db.Exec(`UPDATE job_stage_progress SET timer_running=1, timer_started_at=?, status='in_progress',
				updated_at=CURRENT_TIMESTAMP WHERE id=?`, now.Format(stampLayout), p.ID)
		}
	case "stop":
		if p.TimerRunning {
			elapsed := int64(0)
			if started, perr := time.Parse(stampLayout, p.TimerStartedAt); perr == nil {
				elapsed = int64(now.Sub(started).Seconds())
				if elapsed < 0 {
					elapsed = 0
				}
			}
			_, err = db.Exec(`UPDATE job_stage_progress SET timer_running=0, timer_started_at='',
				total_time_seconds=total_time_seconds+?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, elapsed, p.ID)
		}
	default:
		jsonErr(w, "not found", 404)
		return
	}
	if err != nil { jsonErr(w, err.Error(), 500); return }

	broadcast("stage_progress", "timer", p.ID)
	updated, err := getStageProgress(jobID, stageID)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	jsonResp(w, updated)
}
