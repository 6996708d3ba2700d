package main

import (
	"errors"
	"net/http"
)

// handleTriggerSync runs a manual sync inline. A second trigger while one
// is running gets a 409 rather than a queued run.
func handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	processed, err := runSync("manual")
	if err != nil {
		switch {
		case errors.Is(err, ErrSyncInProgress):
			jsonErr(w, "sync already running", 409)
		case errors.Is(err, ErrNotConnected):
			jsonErr(w, "ServiceM8 not connected - please reconnect", 401)
		default:
			jsonErr(w, "Sync failed", 500)
		}
		return
	}
	logAudit(db, getUsername(r), "synced", "servicem8", "", "Manual sync")
	jsonResp(w, map[string]interface{}{"jobs_processed": processed})
}

func handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	var l SyncLog
	var finished, errMsg *string
	err := db.QueryRow(`SELECT id, sync_type, status, jobs_processed, error, started_at, finished_at
		FROM sync_logs ORDER BY id DESC LIMIT 1`).
		Scan(&l.ID, &l.SyncType, &l.Status, &l.JobsProcessed, &errMsg, &l.StartedAt, &finished)
	if err != nil {
		jsonResp(w, map[string]interface{}{"connected": sm8.Connected(), "last_sync": nil})
		return
	}
	if finished != nil {
		l.FinishedAt = *finished
	}
	if errMsg != nil {
		l.Error = *errMsg
	}
	jsonResp(w, map[string]interface{}{"connected": sm8.Connected(), "last_sync": l})
}

func handleListSyncLogs(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query(`SELECT id, sync_type, status, jobs_processed, COALESCE(error,''), started_at, COALESCE(finished_at,'')
		FROM sync_logs ORDER BY id DESC LIMIT 50`)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	defer rows.Close()

	var items []SyncLog
	for rows.Next() {
		var l SyncLog
		if err := rows.Scan(&l.ID, &l.SyncType, &l.Status, &l.JobsProcessed, &l.Error, &l.StartedAt, &l.FinishedAt); err != nil {
			continue
		}
		items = append(items, l)
	}
	if items == nil { items = []SyncLog{} }
	jsonResp(w, items)
}
