package main

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"jobdeck/internal/lifecycle"
)

// ErrSyncInProgress is returned when a sync is triggered while another run
// holds the lock. Surfaced as HTTP 409, never persisted.
var ErrSyncInProgress = errors.New("sync already running")

// syncMu makes sync single-flight: the periodic timer and a manual trigger
// can fire together, and both run the same upsert-by-uuid loop.
var syncMu sync.Mutex

// runSync pulls jobs, companies, contacts and notes from ServiceM8 and
// upserts them locally. Best-effort: a per-job failure is remembered but
// does not stop the loop, and already-upserted jobs stay upserted. Returns
// the number of jobs processed.
func runSync(syncType string) (int, error) {
	if !syncMu.TryLock() {
		return 0, ErrSyncInProgress
	}
	defer syncMu.Unlock()

	res, err := db.Exec("INSERT INTO sync_logs (sync_type, status) VALUES (?, 'in_progress')", syncType)
	if err != nil {
		return 0, fmt.Errorf("sync log: %w", err)
	}
	logID, _ := res.LastInsertId()

	processed, syncErr := pullAndUpsert()

	if syncErr != nil {
		msg := "Sync failed"
		if errors.Is(syncErr, ErrNotConnected) {
			msg = "ServiceM8 not connected - please reconnect"
		}
		db.Exec("UPDATE sync_logs SET status='error', jobs_processed=?, error=?, finished_at=CURRENT_TIMESTAMP WHERE id=?",
			processed, msg, logID)
		broadcast("sync", "error", logID)
		return processed, syncErr
	}

	db.Exec("UPDATE sync_logs SET status='success', jobs_processed=?, finished_at=CURRENT_TIMESTAMP WHERE id=?",
		processed, logID)
	broadcast("sync", "complete", logID)
	return processed, nil
}

func pullAndUpsert() (int, error) {
	jobs, err := sm8.ListJobs()
	if err != nil {
		return 0, err
	}

	// Company and contact lookups are best-effort context: a failure here
	// degrades the upsert (blank names) rather than aborting it.
	companies := map[string]string{}
	if list, err := sm8.ListCompanies(); err == nil {
		for _, c := range list {
			companies[c.UUID] = c.Name
		}
	} else {
		log.Printf("sync: companies fetch: %v", err)
	}
	contacts := map[string]sm8Contact{}
	if list, err := sm8.ListContacts(); err == nil {
		for _, c := range list {
			if _, ok := contacts[c.CompanyUUID]; !ok {
				contacts[c.CompanyUUID] = c
			}
		}
	} else {
		log.Printf("sync: contacts fetch: %v", err)
	}

	processed := 0
	var firstErr error
	for _, j := range jobs {
		if err := upsertJob(j, companies[j.CompanyUUID], contacts[j.CompanyUUID]); err != nil {
			log.Printf("sync: upsert job %s: %v", j.UUID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		processed++
	}

	if err := applyContactHeuristics(); err != nil {
		log.Printf("sync: contact pass: %v", err)
	}

	return processed, firstErr
}

// upsertJob maps one ServiceM8 job into the local schema, keyed by its
// UUID. Locally-owned fields (install dates, durations, work type, stage
// progress, purchase-order status) are never overwritten by sync.
func upsertJob(j sm8Job, company string, contact sm8Contact) error {
	quoteSent := j.QuoteSent == "1" || strings.EqualFold(j.QuoteSent, "yes") || strings.EqualFold(j.QuoteSent, "true")
	stamp := j.QuoteSentStamp
	// ServiceM8 uses a zero date for "never sent".
	if strings.HasPrefix(stamp, "0000") {
		stamp = ""
	}

	d := lifecycle.MapStatus(j.Status, quoteSent, stamp, time.Now())

	quoteValue := 0.0
	if v, err := strconv.ParseFloat(j.TotalInvoice, 64); err == nil {
		quoteValue = v
	}
	contactName := strings.TrimSpace(contact.FirstName + " " + contact.LastName)

	var id int
	var existingScheduler, existingInstall string
	err := db.QueryRow("SELECT id, scheduler_stage, install_stage FROM jobs WHERE uuid=?", j.UUID).
		Scan(&id, &existingScheduler, &existingInstall)
	if err != nil {
		// New job from sync.
		schedulerStage := string(d.SchedulerStage)
		installStage := ""
		if d.Phase == lifecycle.PhaseWorkOrder {
			installStage = string(lifecycle.InstallPendingPosts)
			if d.Status == lifecycle.StatusComplete {
				installStage = string(lifecycle.InstallCompleted)
			}
		}
		_, err := db.Exec(`INSERT INTO jobs (uuid, job_code, company_name, contact_name, contact_phone, contact_email,
			address, description, lifecycle_phase, status, sales_stage, scheduler_stage, install_stage,
			quote_value, quote_sent, quote_sent_at, hours_since_quote_sent, days_since_quote_sent)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			j.UUID, j.GeneratedJobID, company, contactName, contact.Mobile, contact.Email,
			j.JobAddress, j.JobDescription, string(d.Phase), d.Status, string(d.SalesStage), schedulerStage, installStage,
			quoteValue, boolToInt(quoteSent), stamp, d.HoursSinceQuoteSent, d.DaysSinceQuoteSent)
		return err
	}

	// Existing job: recompute derived fields but respect a manually chosen
	// scheduler column unless the job just went terminal.
	schedulerStage := existingScheduler
	if d.SchedulerStage == lifecycle.StageRecentlyCompleted || schedulerStage == "" {
		schedulerStage = string(d.SchedulerStage)
	}
	installStage := existingInstall
	if d.Phase == lifecycle.PhaseWorkOrder && installStage == "" {
		installStage = string(lifecycle.InstallPendingPosts)
	}

	_, err = db.Exec(`UPDATE jobs SET job_code=?, company_name=?, contact_name=?, contact_phone=?, contact_email=?,
		address=?, description=?, lifecycle_phase=?, status=?, sales_stage=?, scheduler_stage=?, install_stage=?,
		quote_value=?, quote_sent=?, quote_sent_at=?, hours_since_quote_sent=?, days_since_quote_sent=?,
		updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		j.GeneratedJobID, company, contactName, contact.Mobile, contact.Email,
		j.JobAddress, j.JobDescription, string(d.Phase), d.Status, string(d.SalesStage), schedulerStage, installStage,
		quoteValue, boolToInt(quoteSent), stamp, d.HoursSinceQuoteSent, d.DaysSinceQuoteSent, id)
	return err
}

// contactEvent is one communication touch point, normalised from notes and
// feed items.
type contactEvent struct {
	stamp     string
	commType  lifecycle.CommType
	direction lifecycle.CommDirection
}

// applyContactHeuristics scans job notes and feed items and updates the two
// independent last-contact trackers: any-direction and client-initiated
// (inbound only). Notes get the substring channel guess; feed items carry an
// explicit message type and only need a direction guess.
func applyContactHeuristics() error {
	notes, err := sm8.ListNotes()
	if err != nil {
		return err
	}

	byJob := map[string][]contactEvent{}
	for _, n := range notes {
		if n.RelatedObjectUUID == "" || n.Note == "" {
			continue
		}
		byJob[n.RelatedObjectUUID] = append(byJob[n.RelatedObjectUUID], contactEvent{
			stamp:     n.CreateDate,
			commType:  lifecycle.ClassifyComm(n.Note),
			direction: lifecycle.ClassifyDirection(n.Note),
		})
	}

	// Feed items are best-effort extra signal, not a hard dependency.
	if items, err := sm8.ListFeedItems(); err == nil {
		for _, it := range items {
			if it.RelatedObjectUUID == "" {
				continue
			}
			commType := lifecycle.CommTypeFromMessageType(it.MessageType)
			if commType == lifecycle.CommUnknown {
				commType = lifecycle.ClassifyComm(it.Message)
			}
			byJob[it.RelatedObjectUUID] = append(byJob[it.RelatedObjectUUID], contactEvent{
				stamp:     it.Timestamp,
				commType:  commType,
				direction: lifecycle.ClassifyDirection(it.Message),
			})
		}
	} else {
		log.Printf("sync: feed items fetch: %v", err)
	}

	for jobUUID, events := range byJob {
		sort.Slice(events, func(i, k int) bool { return events[i].stamp > events[k].stamp })

		latest := events[0]
		db.Exec(`UPDATE jobs SET last_contact_at=?, last_contact_type=?, last_contact_direction=? WHERE uuid=?`,
			latest.stamp, string(latest.commType), string(latest.direction), jobUUID)

		for _, ev := range events {
			if ev.direction == lifecycle.DirectionInbound {
				db.Exec(`UPDATE jobs SET last_client_contact_at=?, last_client_contact_type=? WHERE uuid=?`,
					ev.stamp, string(ev.commType), jobUUID)
				break
			}
		}
	}
	return nil
}
