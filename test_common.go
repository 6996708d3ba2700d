package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobdeck/internal/auth"

	_ "modernc.org/sqlite"
)

// setupTestDB swaps the global db for an in-memory SQLite database with the
// full schema. The caller restores the previous db via the returned func.
func setupTestDB(t *testing.T) func() {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	// One connection only: each new connection to :memory: would see its
	// own empty database.
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := migrate(testDB); err != nil {
		t.Fatalf("Failed to migrate test DB: %v", err)
	}

	oldDB := db
	db = testDB
	return func() {
		db.Close()
		db = oldDB
	}
}

// seedTestUser creates a user and returns a live session token.
func seedTestUser(t *testing.T, username, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	res, err := db.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES (?,?,?,?)",
		username, hash, username, "admin")
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	id, _ := res.LastInsertId()
	token, _, err := auth.CreateSession(db, int(id))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return token
}

// insertTestJob inserts a minimal job row and returns its id.
func insertTestJob(t *testing.T, uuid, phase, status string) int {
	t.Helper()
	res, err := db.Exec(`INSERT INTO jobs (uuid, job_code, company_name, lifecycle_phase, status)
		VALUES (?,?,?,?,?)`, uuid, "J-"+uuid, "Test Co "+uuid, phase, status)
	if err != nil {
		t.Fatalf("Failed to insert job: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// insertTestWorkType inserts a work type with n stages and returns its id
// plus the stage ids in order.
func insertTestWorkType(t *testing.T, name string, stageNames []string) (int, []int) {
	t.Helper()
	res, err := db.Exec("INSERT INTO work_types (name, color) VALUES (?, '#fff')", name)
	if err != nil {
		t.Fatalf("Failed to insert work type: %v", err)
	}
	wtID, _ := res.LastInsertId()
	var stageIDs []int
	for i, sn := range stageNames {
		res, err := db.Exec(`INSERT INTO work_type_stages (work_type_id, name, key, order_index, category)
			VALUES (?,?,?,?,'production')`, wtID, sn, sn, i)
		if err != nil {
			t.Fatalf("Failed to insert stage: %v", err)
		}
		sid, _ := res.LastInsertId()
		stageIDs = append(stageIDs, int(sid))
	}
	return int(wtID), stageIDs
}

// insertTestStaff inserts an active staff member.
func insertTestStaff(t *testing.T, name, role string, hours float64) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO staff (name, role, daily_capacity_hours, active) VALUES (?,?,?,1)",
		name, role, hours); err != nil {
		t.Fatalf("Failed to insert staff: %v", err)
	}
}

// jsonBody builds a request body from any value.
func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	return bytes.NewBuffer(data)
}

// decodeData unmarshals the "data" field of the standard response envelope.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("Failed to decode response envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("Failed to decode response data: %v", err)
	}
}

// newRequest builds a request with an optional JSON body.
func newRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, path, nil)
	}
	req := httptest.NewRequest(method, path, jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
