package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Settings are opaque JSON blobs keyed by name: pipeline column lists
// (pipeline_leads, pipeline_quotes, pipeline_production) and general
// dashboard settings. The server validates JSON-ness and, for pipeline
// keys, the column shape; the UI owns the rest of the semantics.

var pipelineKeys = map[string]bool{
	"pipeline_leads":      true,
	"pipeline_quotes":     true,
	"pipeline_production": true,
}

func handleListSettings(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT key, value FROM app_settings ORDER BY key")
	if err != nil { jsonErr(w, err.Error(), 500); return }
	defer rows.Close()

	settings := map[string]json.RawMessage{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		if json.Valid([]byte(value)) {
			settings[key] = json.RawMessage(value)
		} else {
			raw, _ := json.Marshal(value)
			settings[key] = raw
		}
	}
	jsonResp(w, settings)
}

func handleGetSetting(w http.ResponseWriter, r *http.Request, key string) {
	var value string
	err := db.QueryRow("SELECT value FROM app_settings WHERE key=?", key).Scan(&value)
	if err != nil { jsonErr(w, "not found", 404); return }
	if json.Valid([]byte(value)) {
		jsonResp(w, json.RawMessage(value))
	} else {
		jsonResp(w, value)
	}
}

// handlePutSetting upserts one settings blob. The client debounces its
// writes; the server just stores the latest value it sees.
func handlePutSetting(w http.ResponseWriter, r *http.Request, key string) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 { jsonErr(w, "invalid body", 400); return }

	value := strings.TrimSpace(string(body))
	if !json.Valid([]byte(value)) {
		jsonErr(w, "value must be valid JSON", 400)
		return
	}

	// Pipeline column lists get shape-checked; nothing stops an operator
	// deleting a column that still has jobs assigned (known soft edge).
	if pipelineKeys[key] {
		var cols []PipelineColumn
		if err := json.Unmarshal([]byte(value), &cols); err != nil {
			jsonErr(w, "pipeline settings must be a list of {id,title,color} columns", 400)
			return
		}
		ve := &ValidationErrors{}
		seen := map[string]bool{}
		for _, c := range cols {
			requireField(ve, "id", c.ID)
			requireField(ve, "title", c.Title)
			if seen[c.ID] {
				ve.Add("id", "duplicate column id "+c.ID)
			}
			seen[c.ID] = true
		}
		if ve.HasErrors() { writeValidationErrors(w, ve); return }
	}

	_, err = db.Exec(`INSERT INTO app_settings (key, value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "updated", "settings", key, "Updated setting "+key)
	broadcast("settings", "update", key)
	jsonResp(w, map[string]string{"saved": key})
}
