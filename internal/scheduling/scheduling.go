// Package scheduling holds the install-calendar capacity rules and the
// install-stage transition table. Pure functions over entity values; the
// handlers own persistence.
package scheduling

import (
	"strings"
	"time"

	"jobdeck/internal/lifecycle"
	"jobdeck/internal/models"
)

// DateLayout is the calendar-date format used for install dates.
const DateLayout = "2006-01-02"

// ConfirmWindowDays is the advance-planning lockout: a tentative date may
// only be confirmed when it falls within this many days of today.
const ConfirmWindowDays = 14

// Milestone names the two install phases of a fencing job.
const (
	MilestonePosts  = "posts"
	MilestonePanels = "panels"
)

// DailyCapacity sums daily hours over active install-role staff. The
// synthetic "all" filter entry the UI prepends to staff lists never counts.
func DailyCapacity(staff []models.StaffMember) float64 {
	var total float64
	for _, s := range staff {
		if !s.Active || s.Role != "install" || strings.EqualFold(s.Name, "all") {
			continue
		}
		total += s.DailyCapacityHours
	}
	return total
}

// BookedHours sums the durations of all confirmed post and panel installs
// on the given date. Tentative dates never count against capacity.
func BookedHours(jobs []models.Job, date string) float64 {
	var total float64
	for _, j := range jobs {
		if j.PostInstallDate == date {
			total += j.PostDurationHours
		}
		if j.PanelInstallDate == date {
			total += j.PanelDurationHours
		}
	}
	return total
}

// IsOverCapacity reports whether a day is already booked past capacity.
func IsOverCapacity(booked, capacity float64) bool {
	return booked > capacity
}

// WouldOverbook reports whether adding one more install would push the day
// past capacity. A milder state than IsOverCapacity: it colours the UI but
// does not block scheduling.
func WouldOverbook(booked, addition, capacity float64) bool {
	return booked+addition > capacity
}

// CanConfirm enforces the two-week lockout: a tentative date may become a
// confirmed date only when it is no more than ConfirmWindowDays past today.
// Past dates are always confirmable.
func CanConfirm(date, today time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	t := today.Truncate(24 * time.Hour)
	return d.Sub(t) <= ConfirmWindowDays*24*time.Hour
}

// StageForSchedule returns the install stage a job enters when a date is
// placed for the milestone, tentatively or confirmed.
func StageForSchedule(milestone string, tentative bool) lifecycle.InstallStage {
	switch milestone {
	case MilestonePanels:
		if tentative {
			return lifecycle.InstallTentativePanels
		}
		return lifecycle.InstallPanelsScheduled
	default:
		if tentative {
			return lifecycle.InstallTentativePosts
		}
		return lifecycle.InstallPostsScheduled
	}
}

// StageForUnschedule returns the pending stage a job falls back to when its
// date for the milestone is removed.
func StageForUnschedule(milestone string) lifecycle.InstallStage {
	if milestone == MilestonePanels {
		return lifecycle.InstallPendingPanels
	}
	return lifecycle.InstallPendingPosts
}

// validTransitions is the install-stage state machine. Transitions are
// driven only by scheduling actions; nothing moves on a clock.
var validTransitions = map[lifecycle.InstallStage][]lifecycle.InstallStage{
	lifecycle.InstallPendingPosts:        {lifecycle.InstallTentativePosts, lifecycle.InstallPostsScheduled},
	lifecycle.InstallTentativePosts:      {lifecycle.InstallPostsScheduled, lifecycle.InstallPendingPosts},
	lifecycle.InstallPostsScheduled:      {lifecycle.InstallTentativePosts, lifecycle.InstallPendingPosts, lifecycle.InstallMeasuring, lifecycle.InstallPendingPanels},
	lifecycle.InstallMeasuring:           {lifecycle.InstallManufacturingPanels, lifecycle.InstallPendingPanels},
	lifecycle.InstallManufacturingPanels: {lifecycle.InstallPendingPanels},
	lifecycle.InstallPendingPanels:       {lifecycle.InstallTentativePanels, lifecycle.InstallPanelsScheduled},
	lifecycle.InstallTentativePanels:     {lifecycle.InstallPanelsScheduled, lifecycle.InstallPendingPanels},
	lifecycle.InstallPanelsScheduled:     {lifecycle.InstallTentativePanels, lifecycle.InstallPendingPanels, lifecycle.InstallCompleted},
	lifecycle.InstallCompleted:           {},
}

// CanTransition reports whether moving between the two install stages is a
// legal scheduling action. Same-stage moves are allowed (idempotent actions
// like re-unscheduling are no-ops upstream).
func CanTransition(from, to lifecycle.InstallStage) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
