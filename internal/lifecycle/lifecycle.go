// Package lifecycle maps ServiceM8 job status text onto the local
// phase/stage model and computes the derived time-since-quote fields.
// Everything here is pure so it can be tested without HTTP or storage.
package lifecycle

import (
	"strings"
	"time"
)

// LifecyclePhase is the coarse phase of a job.
type LifecyclePhase string

const (
	PhaseQuote     LifecyclePhase = "quote"
	PhaseWorkOrder LifecyclePhase = "work_order"
)

// SchedulerStage is the production-board column of a work order.
type SchedulerStage string

const (
	StageNewJobsWon        SchedulerStage = "new_jobs_won"
	StageInProduction      SchedulerStage = "in_production"
	StageWaitingSupplier   SchedulerStage = "waiting_supplier"
	StageWaitingClient     SchedulerStage = "waiting_client"
	StageNeedToGoBack      SchedulerStage = "need_to_go_back"
	StageRecentlyCompleted SchedulerStage = "recently_completed"
)

// InstallStage is the position of a work order on the install scheduler.
type InstallStage string

const (
	InstallPendingPosts        InstallStage = "pending_posts"
	InstallTentativePosts      InstallStage = "tentative_posts"
	InstallPostsScheduled      InstallStage = "posts_scheduled"
	InstallMeasuring           InstallStage = "measuring"
	InstallManufacturingPanels InstallStage = "manufacturing_panels"
	InstallPendingPanels       InstallStage = "pending_panels"
	InstallTentativePanels     InstallStage = "tentative_panels"
	InstallPanelsScheduled     InstallStage = "panels_scheduled"
	InstallCompleted           InstallStage = "completed"
)

// SalesStage is the quotes-pipeline column of a sent quote.
type SalesStage string

const (
	SalesFresh         SalesStage = "fresh"
	SalesAwaitingReply SalesStage = "awaiting_reply"
)

// Pipeline statuses derived from ServiceM8 status text.
const (
	StatusNewLead      = "new_lead"
	StatusQuoteSent    = "quote_sent"
	StatusUnsuccessful = "unsuccessful"
	StatusComplete     = "complete"
)

// POStatus tracks the purchase order for a job's materials.
type POStatus string

const (
	PONone     POStatus = "none"
	POOrdered  POStatus = "ordered"
	POReceived POStatus = "received"
	PODelayed  POStatus = "delayed"
)

// ValidSchedulerStages and ValidInstallStages back handler enum validation.
var (
	ValidSchedulerStages = []string{
		string(StageNewJobsWon), string(StageInProduction), string(StageWaitingSupplier),
		string(StageWaitingClient), string(StageNeedToGoBack), string(StageRecentlyCompleted),
	}
	ValidInstallStages = []string{
		string(InstallPendingPosts), string(InstallTentativePosts), string(InstallPostsScheduled),
		string(InstallMeasuring), string(InstallManufacturingPanels), string(InstallPendingPanels),
		string(InstallTentativePanels), string(InstallPanelsScheduled), string(InstallCompleted),
	}
	ValidPOStatuses      = []string{string(PONone), string(POOrdered), string(POReceived), string(PODelayed)}
	ValidStaffRoles      = []string{"sales", "production", "install"}
	ValidStageStatus     = []string{"pending", "in_progress", "completed"}
	ValidStageCategories = []string{"purchase_order", "production", "install", "external", "admin"}
)

// ServiceM8 job records carry local timestamps in the account timezone.
var sourceTZ = time.FixedZone("UTC+8", 8*60*60)

// StampLayout is the timestamp format used by ServiceM8 job records.
const StampLayout = "2006-01-02 15:04:05"

// Derived is the tuple of local fields computed from one ServiceM8 status.
type Derived struct {
	Phase          LifecyclePhase
	Status         string
	SchedulerStage SchedulerStage
	SalesStage     SalesStage

	// Exactly one of these is non-nil when a quote has been sent with a
	// parseable timestamp; both are nil otherwise.
	HoursSinceQuoteSent *int
	DaysSinceQuoteSent  *int
}

var (
	lostKeywords       = []string{"unsuccessful", "lost", "cancelled"}
	doneKeywords       = []string{"complete", "finished", "done"}
	workOrderKeywords  = []string{"work order", "in progress", "scheduled", "completed"}
	productionKeywords = []string{"progress", "production"}
)

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// MapStatus translates a raw ServiceM8 status string into the local
// phase/stage/status tuple. Absence of a keyword match defaults to
// quote/new_lead; it never errors.
func MapStatus(raw string, quoteSent bool, quoteSentStamp string, now time.Time) Derived {
	s := strings.ToLower(strings.TrimSpace(raw))

	if containsAny(s, lostKeywords) {
		return Derived{Phase: PhaseQuote, Status: StatusUnsuccessful}
	}
	if containsAny(s, doneKeywords) {
		return Derived{Phase: PhaseWorkOrder, Status: StatusComplete, SchedulerStage: StageRecentlyCompleted}
	}
	if containsAny(s, workOrderKeywords) {
		d := Derived{Phase: PhaseWorkOrder, Status: s}
		switch {
		case containsAny(s, productionKeywords):
			d.SchedulerStage = StageInProduction
		case strings.Contains(s, "scheduled"):
			d.SchedulerStage = StageInProduction
		default:
			d.SchedulerStage = StageNewJobsWon
		}
		return d
	}

	// Quote phase. The leads pipeline keys off status, the quotes pipeline
	// off sales stage; both derive from whether the quote actually went out
	// (the sent flag plus its stamp, not the creation date).
	d := Derived{Phase: PhaseQuote, Status: StatusNewLead}
	if quoteSent && quoteSentStamp != "" {
		d.Status = StatusQuoteSent
		hours, days, ok := SinceQuoteSent(quoteSentStamp, now)
		if ok {
			if hours != nil {
				d.HoursSinceQuoteSent = hours
			} else {
				d.DaysSinceQuoteSent = days
			}
			if elapsedDays(quoteSentStamp, now) <= 3 {
				d.SalesStage = SalesFresh
			} else {
				d.SalesStage = SalesAwaitingReply
			}
		} else {
			// Malformed stamp: keep the sent status but leave the derived
			// time fields null and assume the quote is still fresh.
			d.SalesStage = SalesFresh
		}
	}
	return d
}

// SinceQuoteSent computes the elapsed time since a quote went out, as an
// hours count below 24h or a whole-day count at or above it. Exactly one of
// the returned pointers is non-nil on success. A malformed stamp returns
// (nil, nil, false).
func SinceQuoteSent(stamp string, now time.Time) (hours *int, days *int, ok bool) {
	sent, err := time.ParseInLocation(StampLayout, stamp, sourceTZ)
	if err != nil {
		return nil, nil, false
	}
	elapsed := now.Sub(sent)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed < 24*time.Hour {
		h := int(elapsed.Hours())
		return &h, nil, true
	}
	d := int(elapsed.Hours() / 24)
	return nil, &d, true
}

func elapsedDays(stamp string, now time.Time) int {
	sent, err := time.ParseInLocation(StampLayout, stamp, sourceTZ)
	if err != nil {
		return 0
	}
	return int(now.Sub(sent).Hours() / 24)
}
