package main

import (
	"errors"
	"net/http"

	"jobdeck/internal/lifecycle"
)

// Messaging goes out through ServiceM8's platform endpoints. Sends update
// the job's last-contact tracker (outbound direction) when a job id is
// attached. No retries: a failed send is terminal until the user tries
// again.

func handleSendSMS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
		JobID   int    `json:"job_id,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "to", req.To)
	requireField(ve, "message", req.Message)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	if err := sm8.SendSMS(req.To, req.Message); err != nil {
		if errors.Is(err, ErrNotConnected) {
			jsonErr(w, "ServiceM8 not connected - please reconnect", 401)
			return
		}
		jsonErr(w, "Send failed", 502)
		return
	}

	if req.JobID > 0 {
		recordOutboundContact(req.JobID, lifecycle.CommSMS)
	}
	logAudit(db, getUsername(r), "sent", "sms", req.To, "Sent SMS")
	jsonResp(w, map[string]string{"sent": "sms"})
}

func handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
		JobID   int    `json:"job_id,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "to", req.To)
	requireField(ve, "subject", req.Subject)
	requireField(ve, "body", req.Body)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	if err := sm8.SendEmail(req.To, req.Subject, req.Body); err != nil {
		if errors.Is(err, ErrNotConnected) {
			jsonErr(w, "ServiceM8 not connected - please reconnect", 401)
			return
		}
		jsonErr(w, "Send failed", 502)
		return
	}

	if req.JobID > 0 {
		recordOutboundContact(req.JobID, lifecycle.CommEmail)
	}
	logAudit(db, getUsername(r), "sent", "email", req.To, "Sent email: "+req.Subject)
	jsonResp(w, map[string]string{"sent": "email"})
}

// recordOutboundContact updates the any-direction tracker only; the
// client-initiated tracker is inbound-only by definition.
func recordOutboundContact(jobID int, commType lifecycle.CommType) {
	db.Exec(`UPDATE jobs SET last_contact_at=CURRENT_TIMESTAMP, last_contact_type=?, last_contact_direction=?,
		updated_at=CURRENT_TIMESTAMP WHERE id=?`, string(commType), string(lifecycle.DirectionOutbound), jobID)
}
