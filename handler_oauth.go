package main

import (
	"net/http"

	"jobdeck/internal/auth"
)

// ServiceM8 account linking: standard OAuth2 authorization-code flow. The
// state parameter is generated per attempt and kept in app_settings so the
// callback can check it across server restarts.

const oauthStateKey = "servicem8_oauth_state"

func redirectURI() string {
	if cfg != nil && cfg.ServiceM8.RedirectURI != "" {
		return cfg.ServiceM8.RedirectURI
	}
	return "http://localhost:9000/auth/servicem8/callback"
}

func handleServiceM8Connect(w http.ResponseWriter, r *http.Request) {
	if sm8.appID == "" {
		jsonErr(w, "ServiceM8 app credentials not configured", 500)
		return
	}
	state := auth.GenerateToken()
	if _, err := db.Exec(`INSERT INTO app_settings (key, value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, oauthStateKey, `"`+state+`"`); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	jsonResp(w, map[string]string{"authorize_url": sm8.AuthorizeURL(redirectURI(), state)})
}

func handleServiceM8Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		http.Error(w, "missing authorization code", 400)
		return
	}

	var storedState string
	db.QueryRow("SELECT value FROM app_settings WHERE key=?", oauthStateKey).Scan(&storedState)
	if storedState == "" || storedState != `"`+state+`"` {
		http.Error(w, "state mismatch", 400)
		return
	}
	db.Exec("DELETE FROM app_settings WHERE key=?", oauthStateKey)

	if err := sm8.ExchangeCode(code, redirectURI()); err != nil {
		http.Error(w, "ServiceM8 connection failed", 502)
		return
	}

	logAudit(db, getUsername(r), "connected", "servicem8", "", "Linked ServiceM8 account")
	broadcast("sync", "connected", nil)
	http.Redirect(w, r, "/?connected=servicem8", http.StatusSeeOther)
}

func handleServiceM8Status(w http.ResponseWriter, r *http.Request) {
	var tok OAuthToken
	err := db.QueryRow("SELECT provider, COALESCE(expires_at,''), updated_at FROM oauth_tokens WHERE provider='servicem8'").
		Scan(&tok.Provider, &tok.ExpiresAt, &tok.UpdatedAt)
	if err != nil {
		jsonResp(w, map[string]interface{}{"connected": false})
		return
	}
	jsonResp(w, map[string]interface{}{"connected": sm8.Connected(), "token": tok})
}

func handleServiceM8Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := sm8.Disconnect(); err != nil {
		jsonErr(w, err.Error(), 500)
		return
	}
	logAudit(db, getUsername(r), "disconnected", "servicem8", "", "Unlinked ServiceM8 account")
	broadcast("sync", "disconnected", nil)
	jsonResp(w, map[string]string{"disconnected": "servicem8"})
}
