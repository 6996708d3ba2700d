package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"jobdeck/internal/lifecycle"

	"github.com/google/uuid"
)

const jobCols = `id, uuid, COALESCE(job_code,''), COALESCE(company_name,''), COALESCE(contact_name,''),
	COALESCE(contact_phone,''), COALESCE(contact_email,''), COALESCE(address,''), COALESCE(description,''),
	lifecycle_phase, status, COALESCE(sales_stage,''), COALESCE(scheduler_stage,''), COALESCE(install_stage,''),
	quote_value, quote_sent, COALESCE(quote_sent_at,''), po_status, hours_since_quote_sent, days_since_quote_sent,
	COALESCE(post_install_date,''), COALESCE(panel_install_date,''), COALESCE(tentative_post_date,''), COALESCE(tentative_panel_date,''),
	post_duration_hours, panel_duration_hours, post_crew_size, panel_crew_size, production_days,
	COALESCE(last_contact_at,''), COALESCE(last_contact_type,''), COALESCE(last_contact_direction,''),
	COALESCE(last_client_contact_at,''), COALESCE(last_client_contact_type,''), work_type_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s rowScanner) (Job, error) {
	var j Job
	var quoteSent int
	var hours, days, workTypeID sql.NullInt64
	err := s.Scan(&j.ID, &j.UUID, &j.JobCode, &j.CompanyName, &j.ContactName,
		&j.ContactPhone, &j.ContactEmail, &j.Address, &j.Description,
		&j.LifecyclePhase, &j.Status, &j.SalesStage, &j.SchedulerStage, &j.InstallStage,
		&j.QuoteValue, &quoteSent, &j.QuoteSentAt, &j.POStatus, &hours, &days,
		&j.PostInstallDate, &j.PanelInstallDate, &j.TentativePosts, &j.TentativePanels,
		&j.PostDurationHours, &j.PanelDurationHours, &j.PostCrewSize, &j.PanelCrewSize, &j.ProductionDays,
		&j.LastContactAt, &j.LastContactType, &j.LastContactDirection,
		&j.LastClientContactAt, &j.LastClientContactType, &workTypeID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return j, err
	}
	j.QuoteSent = quoteSent == 1
	if hours.Valid {
		v := int(hours.Int64)
		j.HoursSinceQuoteSent = &v
	}
	if days.Valid {
		v := int(days.Int64)
		j.DaysSinceQuoteSent = &v
	}
	if workTypeID.Valid {
		v := int(workTypeID.Int64)
		j.WorkTypeID = &v
	}
	return j, nil
}

func getJobByID(id string) (Job, error) {
	row := db.QueryRow("SELECT "+jobCols+" FROM jobs WHERE id=?", id)
	return scanJob(row)
}

func handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := "SELECT " + jobCols + " FROM jobs WHERE 1=1"
	var args []interface{}

	if phase := r.URL.Query().Get("phase"); phase != "" {
		query += " AND lifecycle_phase=?"
		args = append(args, phase)
	}
	// Each pipeline view keys off a different slice of the same jobs.
	switch r.URL.Query().Get("pipeline") {
	case "leads":
		query += " AND lifecycle_phase='quote'"
	case "quotes":
		query += " AND lifecycle_phase='quote' AND status=?"
		args = append(args, lifecycle.StatusQuoteSent)
	case "production":
		query += " AND lifecycle_phase='work_order'"
	}
	if stage := r.URL.Query().Get("scheduler_stage"); stage != "" {
		query += " AND scheduler_stage=?"
		args = append(args, stage)
	}
	if stage := r.URL.Query().Get("install_stage"); stage != "" {
		query += " AND install_stage=?"
		args = append(args, stage)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		query += " AND (company_name LIKE ? OR job_code LIKE ? OR address LIKE ?)"
		term := "%" + search + "%"
		args = append(args, term, term, term)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	defer rows.Close()

	var items []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil { continue }
		items = append(items, j)
	}
	if items == nil { items = []Job{} }
	jsonResp(w, items)
}

func handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	j, err := getJobByID(id)
	if err != nil { jsonErr(w, "not found", 404); return }
	jsonResp(w, j)
}

func handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var j Job
	if err := decodeBody(r, &j); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "company_name", j.CompanyName)
	validateEnum(ve, "po_status", j.POStatus, lifecycle.ValidPOStatuses)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	// Manual jobs get a local UUID so the sync upsert key is always present.
	if j.UUID == "" {
		j.UUID = uuid.New().String()
	}
	if j.JobCode == "" {
		var maxNum int
		db.QueryRow("SELECT COALESCE(MAX(CAST(SUBSTR(job_code,3) AS INTEGER)),0) FROM jobs WHERE job_code LIKE 'J-%'").Scan(&maxNum)
		j.JobCode = fmt.Sprintf("J-%04d", maxNum+1)
	}
	if j.LifecyclePhase == "" {
		j.LifecyclePhase = string(lifecycle.PhaseQuote)
	}
	if j.Status == "" {
		j.Status = lifecycle.StatusNewLead
	}
	if j.POStatus == "" {
		j.POStatus = string(lifecycle.PONone)
	}
	if j.LifecyclePhase == string(lifecycle.PhaseWorkOrder) && j.InstallStage == "" {
		j.InstallStage = string(lifecycle.InstallPendingPosts)
	}

	res, err := db.Exec(`INSERT INTO jobs (uuid, job_code, company_name, contact_name, contact_phone, contact_email,
		address, description, lifecycle_phase, status, scheduler_stage, install_stage, quote_value, po_status, work_type_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.UUID, j.JobCode, j.CompanyName, j.ContactName, j.ContactPhone, j.ContactEmail,
		j.Address, j.Description, j.LifecyclePhase, j.Status, j.SchedulerStage, j.InstallStage,
		j.QuoteValue, j.POStatus, j.WorkTypeID)
	if err != nil { jsonErr(w, err.Error(), 500); return }

	id, _ := res.LastInsertId()
	logAudit(db, getUsername(r), "created", "job", j.JobCode, "Created job for "+j.CompanyName)
	broadcast("job", "create", id)
	handleGetJob(w, r, strconv.FormatInt(id, 10))
}

// handlePatchJob applies a partial update over the locally editable fields.
// Sync-owned fields (status mapping, derived time-since values) are not
// patchable here; pipeline moves go through handleMoveJob.
func handlePatchJob(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := getJobByID(id); err != nil { jsonErr(w, "not found", 404); return }

	var body map[string]interface{}
	if err := decodeBody(r, &body); err != nil { jsonErr(w, "invalid body", 400); return }

	allowed := map[string]bool{
		"company_name": true, "contact_name": true, "contact_phone": true, "contact_email": true,
		"address": true, "description": true, "quote_value": true, "po_status": true,
		"post_duration_hours": true, "panel_duration_hours": true,
		"post_crew_size": true, "panel_crew_size": true, "production_days": true,
		"work_type_id": true,
	}

	ve := &ValidationErrors{}
	if v, ok := body["po_status"].(string); ok {
		validateEnum(ve, "po_status", v, lifecycle.ValidPOStatuses)
	}
	for _, f := range []string{"post_duration_hours", "panel_duration_hours"} {
		if v, ok := body[f].(float64); ok {
			validateNonNegativeFloat(ve, f, v)
		}
	}
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	setClause := ""
	var args []interface{}
	for field, value := range body {
		if !allowed[field] {
			continue
		}
		if setClause != "" {
			setClause += ", "
		}
		setClause += field + "=?"
		args = append(args, value)
	}
	if setClause == "" { jsonErr(w, "no editable fields in body", 400); return }

	args = append(args, id)
	if _, err := db.Exec("UPDATE jobs SET "+setClause+", updated_at=CURRENT_TIMESTAMP WHERE id=?", args...); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(db, getUsername(r), "updated", "job", id, "Updated job fields")
	broadcast("job", "update", id)
	handleGetJob(w, r, id)
}

// handleMoveJob is the pipeline drag-and-drop: it changes the column field
// the target pipeline keys off. Deleting a column elsewhere can leave jobs
// pointing at a stale column id; those jobs simply don't render in any
// column until moved again.
func handleMoveJob(w http.ResponseWriter, r *http.Request, id string) {
	j, err := getJobByID(id)
	if err != nil { jsonErr(w, "not found", 404); return }

	var req struct {
		Pipeline string `json:"pipeline"`
		Column   string `json:"column"`
	}
	if err := decodeBody(r, &req); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "pipeline", req.Pipeline)
	requireField(ve, "column", req.Column)
	validateEnum(ve, "pipeline", req.Pipeline, []string{"leads", "quotes", "production"})
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	switch req.Pipeline {
	case "leads":
		_, err = db.Exec("UPDATE jobs SET status=?, updated_at=CURRENT_TIMESTAMP WHERE id=?", req.Column, j.ID)
	case "quotes":
		_, err = db.Exec("UPDATE jobs SET sales_stage=?, updated_at=CURRENT_TIMESTAMP WHERE id=?", req.Column, j.ID)
	case "production":
		if j.LifecyclePhase != string(lifecycle.PhaseWorkOrder) {
			jsonErr(w, "job is not a work order", 400)
			return
		}
		ve := &ValidationErrors{}
		validateEnum(ve, "column", req.Column, lifecycle.ValidSchedulerStages)
		if ve.HasErrors() { writeValidationErrors(w, ve); return }
		_, err = db.Exec("UPDATE jobs SET scheduler_stage=?, updated_at=CURRENT_TIMESTAMP WHERE id=?", req.Column, j.ID)
	}
	if err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "moved", "job", j.JobCode, "Moved to "+req.Pipeline+"/"+req.Column)
	broadcast("job", "move", j.ID)
	handleGetJob(w, r, id)
}
