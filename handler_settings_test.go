package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func putSetting(t *testing.T, key, value string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/settings/"+key, bytes.NewBufferString(value))
	w := httptest.NewRecorder()
	handlePutSetting(w, req, key)
	return w
}

func TestSettingRoundTrip(t *testing.T) {
	defer setupTestDB(t)()

	if w := putSetting(t, "dashboard", `{"theme":"dark","columns":4}`); w.Code != 200 {
		t.Fatalf("Put failed: %d: %s", w.Code, w.Body.String())
	}

	w := httptest.NewRecorder()
	handleGetSetting(w, newRequest(t, "GET", "/api/settings/dashboard", nil), "dashboard")
	if w.Code != 200 {
		t.Fatalf("Get failed: %d", w.Code)
	}
	var value struct {
		Theme   string `json:"theme"`
		Columns int    `json:"columns"`
	}
	decodeData(t, w, &value)
	if value.Theme != "dark" || value.Columns != 4 {
		t.Errorf("Round trip lost data: %+v", value)
	}

	// Second put overwrites.
	if w := putSetting(t, "dashboard", `{"theme":"light"}`); w.Code != 200 {
		t.Fatalf("Second put failed: %d", w.Code)
	}
	w = httptest.NewRecorder()
	handleGetSetting(w, newRequest(t, "GET", "/api/settings/dashboard", nil), "dashboard")
	decodeData(t, w, &value)
	if value.Theme != "light" {
		t.Errorf("Expected overwritten value, got %+v", value)
	}
}

func TestSettingRejectsInvalidJSON(t *testing.T) {
	defer setupTestDB(t)()
	if w := putSetting(t, "dashboard", `{not json`); w.Code != 400 {
		t.Errorf("Expected 400 for invalid JSON, got %d", w.Code)
	}
}

func TestPipelineSettingShape(t *testing.T) {
	defer setupTestDB(t)()

	good := `[{"id":"new_lead","title":"New Leads","color":"#3b82f6"},{"id":"quote_sent","title":"Quote Sent","color":"#8b5cf6"}]`
	if w := putSetting(t, "pipeline_leads", good); w.Code != 200 {
		t.Fatalf("Valid pipeline rejected: %d: %s", w.Code, w.Body.String())
	}

	cases := map[string]string{
		"not a list":    `{"id":"x","title":"y"}`,
		"missing title": `[{"id":"x"}]`,
		"duplicate id":  `[{"id":"x","title":"a"},{"id":"x","title":"b"}]`,
	}
	for name, value := range cases {
		if w := putSetting(t, "pipeline_leads", value); w.Code != 400 {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func TestListSettings(t *testing.T) {
	defer setupTestDB(t)()
	putSetting(t, "a", `1`)
	putSetting(t, "b", `"two"`)

	w := httptest.NewRecorder()
	handleListSettings(w, newRequest(t, "GET", "/api/settings", nil))
	if w.Code != 200 {
		t.Fatalf("List failed: %d", w.Code)
	}
	var settings map[string]json.RawMessage
	decodeData(t, w, &settings)
	if len(settings) != 2 {
		t.Errorf("Expected 2 settings, got %d", len(settings))
	}
}

func TestGetSettingNotFound(t *testing.T) {
	defer setupTestDB(t)()
	w := httptest.NewRecorder()
	handleGetSetting(w, newRequest(t, "GET", "/api/settings/missing", nil), "missing")
	if w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
