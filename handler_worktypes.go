package main

import (
	"net/http"
	"strconv"

	"jobdeck/internal/lifecycle"
)

func loadWorkTypeStages(workTypeID string) []WorkTypeStage {
	rows, err := db.Query(`SELECT id, work_type_id, name, key, order_index, category, triggers_scheduler, triggers_purchase_order
		FROM work_type_stages WHERE work_type_id=? ORDER BY order_index`, workTypeID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var items []WorkTypeStage
	for rows.Next() {
		var s WorkTypeStage
		var trigSched, trigPO int
		if err := rows.Scan(&s.ID, &s.WorkTypeID, &s.Name, &s.Key, &s.OrderIndex, &s.Category, &trigSched, &trigPO); err != nil {
			continue
		}
		s.TriggersScheduler = trigSched == 1
		s.TriggersPurchaseOrder = trigPO == 1
		items = append(items, s)
	}
	return items
}

func handleListWorkTypes(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT id, name, COALESCE(color,''), is_default, active, created_at FROM work_types ORDER BY name")
	if err != nil { jsonErr(w, err.Error(), 500); return }
	defer rows.Close()

	var items []WorkType
	for rows.Next() {
		var wt WorkType
		var isDefault, active int
		if err := rows.Scan(&wt.ID, &wt.Name, &wt.Color, &isDefault, &active, &wt.CreatedAt); err != nil {
			continue
		}
		wt.IsDefault = isDefault == 1
		wt.Active = active == 1
		items = append(items, wt)
	}
	if items == nil { items = []WorkType{} }
	jsonResp(w, items)
}

func handleGetWorkType(w http.ResponseWriter, r *http.Request, id string) {
	var wt WorkType
	var isDefault, active int
	err := db.QueryRow("SELECT id, name, COALESCE(color,''), is_default, active, created_at FROM work_types WHERE id=?", id).
		Scan(&wt.ID, &wt.Name, &wt.Color, &isDefault, &active, &wt.CreatedAt)
	if err != nil { jsonErr(w, "not found", 404); return }
	wt.IsDefault = isDefault == 1
	wt.Active = active == 1
	wt.Stages = loadWorkTypeStages(id)
	if wt.Stages == nil {
		wt.Stages = []WorkTypeStage{}
	}
	jsonResp(w, wt)
}

func handleCreateWorkType(w http.ResponseWriter, r *http.Request) {
	var wt WorkType
	if err := decodeBody(r, &wt); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "name", wt.Name)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	res, err := db.Exec("INSERT INTO work_types (name, color, is_default, active) VALUES (?,?,?,1)",
		wt.Name, wt.Color, boolToInt(wt.IsDefault))
	if err != nil { jsonErr(w, err.Error(), 500); return }

	id, _ := res.LastInsertId()
	logAudit(db, getUsername(r), "created", "work_type", wt.Name, "Created work type")
	broadcast("work_type", "create", id)
	handleGetWorkType(w, r, strconv.FormatInt(id, 10))
}

func handleUpdateWorkType(w http.ResponseWriter, r *http.Request, id string) {
	var exists int
	if err := db.QueryRow("SELECT id FROM work_types WHERE id=?", id).Scan(&exists); err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var wt WorkType
	if err := decodeBody(r, &wt); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "name", wt.Name)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	_, err := db.Exec("UPDATE work_types SET name=?, color=?, is_default=?, active=? WHERE id=?",
		wt.Name, wt.Color, boolToInt(wt.IsDefault), boolToInt(wt.Active), id)
	if err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "updated", "work_type", id, "Updated work type "+wt.Name)
	broadcast("work_type", "update", id)
	handleGetWorkType(w, r, id)
}

func handleDeleteWorkType(w http.ResponseWriter, r *http.Request, id string) {
	// Stage rows cascade; jobs keep their work_type_id nulled by the FK.
	_, err := db.Exec("DELETE FROM work_types WHERE id=?", id)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	logAudit(db, getUsername(r), "deleted", "work_type", id, "Deleted work type "+id)
	broadcast("work_type", "delete", id)
	jsonResp(w, map[string]string{"deleted": id})
}

func handleListWorkTypeStages(w http.ResponseWriter, r *http.Request, workTypeID string) {
	var exists int
	if err := db.QueryRow("SELECT id FROM work_types WHERE id=?", workTypeID).Scan(&exists); err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	items := loadWorkTypeStages(workTypeID)
	if items == nil { items = []WorkTypeStage{} }
	jsonResp(w, items)
}

func handleCreateWorkTypeStage(w http.ResponseWriter, r *http.Request, workTypeID string) {
	var exists int
	if err := db.QueryRow("SELECT id FROM work_types WHERE id=?", workTypeID).Scan(&exists); err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var s WorkTypeStage
	if err := decodeBody(r, &s); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "name", s.Name)
	requireField(ve, "key", s.Key)
	validateEnum(ve, "category", s.Category, lifecycle.ValidStageCategories)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	if s.Category == "" {
		s.Category = "production"
	}

	// New stages append to the end of the checklist.
	var next int
	db.QueryRow("SELECT COALESCE(MAX(order_index)+1,0) FROM work_type_stages WHERE work_type_id=?", workTypeID).Scan(&next)

	res, err := db.Exec(`INSERT INTO work_type_stages (work_type_id, name, key, order_index, category, triggers_scheduler, triggers_purchase_order)
		VALUES (?,?,?,?,?,?,?)`,
		workTypeID, s.Name, s.Key, next, s.Category, boolToInt(s.TriggersScheduler), boolToInt(s.TriggersPurchaseOrder))
	if err != nil { jsonErr(w, err.Error(), 500); return }

	id, _ := res.LastInsertId()
	s.ID = int(id)
	s.OrderIndex = next
	logAudit(db, getUsername(r), "created", "work_type_stage", s.Key, "Added stage "+s.Name)
	broadcast("work_type", "update", workTypeID)
	jsonResp(w, s)
}

func handleUpdateWorkTypeStage(w http.ResponseWriter, r *http.Request, workTypeID, stageID string) {
	var current WorkTypeStage
	var trigSched, trigPO int
	err := db.QueryRow(`SELECT id, name, key, order_index, category, triggers_scheduler, triggers_purchase_order
		FROM work_type_stages WHERE id=? AND work_type_id=?`, stageID, workTypeID).
		Scan(&current.ID, &current.Name, &current.Key, &current.OrderIndex, &current.Category, &trigSched, &trigPO)
	if err != nil { jsonErr(w, "not found", 404); return }

	var s WorkTypeStage
	if err := decodeBody(r, &s); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "name", s.Name)
	requireField(ve, "key", s.Key)
	validateEnum(ve, "category", s.Category, lifecycle.ValidStageCategories)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	if s.Category == "" {
		s.Category = current.Category
	}

	// order_index is only rewritten by the reorder operation.
	_, err = db.Exec(`UPDATE work_type_stages SET name=?, key=?, category=?, triggers_scheduler=?, triggers_purchase_order=?
		WHERE id=?`, s.Name, s.Key, s.Category, boolToInt(s.TriggersScheduler), boolToInt(s.TriggersPurchaseOrder), stageID)
	if err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "updated", "work_type_stage", stageID, "Updated stage "+s.Name)
	broadcast("work_type", "update", workTypeID)
	jsonResp(w, map[string]string{"updated": stageID})
}

func handleDeleteWorkTypeStage(w http.ResponseWriter, r *http.Request, workTypeID, stageID string) {
	res, err := db.Exec("DELETE FROM work_type_stages WHERE id=? AND work_type_id=?", stageID, workTypeID)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	if n, _ := res.RowsAffected(); n == 0 {
		jsonErr(w, "not found", 404)
		return
	}
	logAudit(db, getUsername(r), "deleted", "work_type_stage", stageID, "Deleted stage "+stageID)
	broadcast("work_type", "update", workTypeID)
	jsonResp(w, map[string]string{"deleted": stageID})
}

// handleReorderWorkTypeStages rewrites order_index 0..n-1 to match the
// submitted id list. The list must be a permutation of the work type's
// current stage ids; anything else is rejected wholesale so a stale client
// can't shred the checklist order.
func handleReorderWorkTypeStages(w http.ResponseWriter, r *http.Request, workTypeID string) {
	var req struct {
		StageIDs []int `json:"stage_ids"`
	}
	if err := decodeBody(r, &req); err != nil { jsonErr(w, "invalid body", 400); return }

	var exists int
	if err := db.QueryRow("SELECT id FROM work_types WHERE id=?", workTypeID).Scan(&exists); err != nil {
		jsonErr(w, "not found", 404)
		return
	}
	existing := loadWorkTypeStages(workTypeID)
	if len(req.StageIDs) != len(existing) {
		jsonErr(w, "stage_ids must list every stage exactly once", 400)
		return
	}
	known := map[int]bool{}
	for _, s := range existing {
		known[s.ID] = true
	}
	seen := map[int]bool{}
	for _, id := range req.StageIDs {
		if !known[id] || seen[id] {
			jsonErr(w, "stage_ids must list every stage exactly once", 400)
			return
		}
		seen[id] = true
	}

	tx, err := db.Begin()
	if err != nil { jsonErr(w, err.Error(), 500); return }
	for i, id := range req.StageIDs {
		if _, err := tx.Exec("UPDATE work_type_stages SET order_index=? WHERE id=? AND work_type_id=?", i, id, workTypeID); err != nil {
			tx.Rollback()
			jsonErr(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "reordered", "work_type_stage", workTypeID, "Reordered stage checklist")
	broadcast("work_type", "update", workTypeID)
	handleListWorkTypeStages(w, r, workTypeID)
}
