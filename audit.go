package main

import (
	"database/sql"
	"log"
	"net/http"

	"jobdeck/internal/auth"
)

// logAudit appends one row to the audit trail. Failures are logged, never
// surfaced: an audit miss must not fail the action it records.
func logAudit(db *sql.DB, username, action, module, recordID, summary string) {
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?,?,?,?,?)",
		username, action, module, recordID, summary)
	if err != nil {
		log.Printf("audit: %v", err)
	}
}

// getUsername resolves the request's session to a username, defaulting to
// "system" for unauthenticated paths (e.g. the background sync).
func getUsername(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return "system"
	}
	userID, _, err := auth.SessionUser(db, cookie.Value)
	if err != nil {
		return "system"
	}
	var username string
	if err := db.QueryRow("SELECT username FROM users WHERE id=?", userID).Scan(&username); err != nil {
		return "system"
	}
	return username
}
