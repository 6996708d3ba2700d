package main

import (
	"encoding/json"
	"net/http"

	"jobdeck/internal/lifecycle"
)

func loadStaff() []StaffMember {
	rows, err := db.Query("SELECT id, name, role, daily_capacity_hours, COALESCE(skills,'[]'), active, created_at FROM staff ORDER BY name")
	if err != nil {
		return nil
	}
	defer rows.Close()
	var items []StaffMember
	for rows.Next() {
		var s StaffMember
		var skills string
		var active int
		if err := rows.Scan(&s.ID, &s.Name, &s.Role, &s.DailyCapacityHours, &skills, &active, &s.CreatedAt); err != nil {
			continue
		}
		s.Active = active == 1
		json.Unmarshal([]byte(skills), &s.Skills)
		if s.Skills == nil {
			s.Skills = []string{}
		}
		items = append(items, s)
	}
	return items
}

func handleListStaff(w http.ResponseWriter, r *http.Request) {
	items := loadStaff()
	if items == nil { items = []StaffMember{} }
	jsonResp(w, items)
}

func handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var s StaffMember
	if err := decodeBody(r, &s); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "name", s.Name)
	requireField(ve, "role", s.Role)
	validateEnum(ve, "role", s.Role, lifecycle.ValidStaffRoles)
	validateNonNegativeFloat(ve, "daily_capacity_hours", s.DailyCapacityHours)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	if s.DailyCapacityHours == 0 {
		s.DailyCapacityHours = 8
	}
	skills, _ := json.Marshal(s.Skills)

	res, err := db.Exec("INSERT INTO staff (name, role, daily_capacity_hours, skills, active) VALUES (?,?,?,?,1)",
		s.Name, s.Role, s.DailyCapacityHours, string(skills))
	if err != nil { jsonErr(w, err.Error(), 500); return }

	id, _ := res.LastInsertId()
	s.ID = int(id)
	s.Active = true
	logAudit(db, getUsername(r), "created", "staff", s.Name, "Added staff member")
	broadcast("staff", "create", id)
	jsonResp(w, s)
}

func handleUpdateStaff(w http.ResponseWriter, r *http.Request, id string) {
	var exists int
	if err := db.QueryRow("SELECT id FROM staff WHERE id=?", id).Scan(&exists); err != nil {
		jsonErr(w, "not found", 404)
		return
	}

	var s StaffMember
	if err := decodeBody(r, &s); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "name", s.Name)
	validateEnum(ve, "role", s.Role, lifecycle.ValidStaffRoles)
	validateNonNegativeFloat(ve, "daily_capacity_hours", s.DailyCapacityHours)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	skills, _ := json.Marshal(s.Skills)
	_, err := db.Exec("UPDATE staff SET name=?, role=?, daily_capacity_hours=?, skills=?, active=? WHERE id=?",
		s.Name, s.Role, s.DailyCapacityHours, string(skills), boolToInt(s.Active), id)
	if err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "updated", "staff", id, "Updated staff member "+s.Name)
	broadcast("staff", "update", id)
	jsonResp(w, map[string]string{"updated": id})
}

func handleDeleteStaff(w http.ResponseWriter, r *http.Request, id string) {
	_, err := db.Exec("DELETE FROM staff WHERE id=?", id)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	logAudit(db, getUsername(r), "deleted", "staff", id, "Removed staff member "+id)
	broadcast("staff", "delete", id)
	jsonResp(w, map[string]string{"deleted": id})
}
