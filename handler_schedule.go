package main

import (
	"net/http"
	"strconv"
	"time"

	"jobdeck/internal/lifecycle"
	"jobdeck/internal/scheduling"
)

// scheduleRequest is the drag-and-drop payload from the install calendar.
type scheduleRequest struct {
	Milestone     string  `json:"milestone"`
	Date          string  `json:"date"`
	Tentative     bool    `json:"tentative"`
	DurationHours float64 `json:"duration_hours,omitempty"`
	CrewSize      int     `json:"crew_size,omitempty"`
}

func allJobs() []Job {
	rows, err := db.Query("SELECT " + jobCols + " FROM jobs WHERE lifecycle_phase='work_order'")
	if err != nil {
		return nil
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		if j, err := scanJob(rows); err == nil {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func handleScheduleJob(w http.ResponseWriter, r *http.Request, id string) {
	j, err := getJobByID(id)
	if err != nil { jsonErr(w, "not found", 404); return }

	var req scheduleRequest
	if err := decodeBody(r, &req); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "milestone", req.Milestone)
	requireField(ve, "date", req.Date)
	validateEnum(ve, "milestone", req.Milestone, []string{scheduling.MilestonePosts, scheduling.MilestonePanels})
	validateDate(ve, "date", req.Date)
	validateNonNegativeFloat(ve, "duration_hours", req.DurationHours)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	if j.LifecyclePhase != string(lifecycle.PhaseWorkOrder) {
		jsonErr(w, "job is not a work order", 400)
		return
	}

	// The two-week lockout applies to confirmed placement only; tentative
	// advance planning is unconstrained.
	if !req.Tentative {
		date, _ := time.Parse(scheduling.DateLayout, req.Date)
		if !scheduling.CanConfirm(date, time.Now()) {
			jsonErr(w, "cannot confirm an install more than 14 days out - keep it tentative", 400)
			return
		}
	}

	current := lifecycle.InstallStage(j.InstallStage)
	if current == "" {
		current = scheduling.StageForUnschedule(req.Milestone)
	}
	target := scheduling.StageForSchedule(req.Milestone, req.Tentative)
	if !scheduling.CanTransition(current, target) {
		jsonErr(w, "invalid install stage transition from "+string(current), 400)
		return
	}

	duration := req.DurationHours
	if duration == 0 {
		if req.Milestone == scheduling.MilestonePosts {
			duration = j.PostDurationHours
		} else {
			duration = j.PanelDurationHours
		}
	}
	crew := req.CrewSize
	if crew == 0 {
		if req.Milestone == scheduling.MilestonePosts {
			crew = j.PostCrewSize
		} else {
			crew = j.PanelCrewSize
		}
	}

	// Confirmed and tentative dates for one milestone are mutually
	// exclusive: placing one always clears the other.
	if req.Milestone == scheduling.MilestonePosts {
		if req.Tentative {
			_, err = db.Exec(`UPDATE jobs SET tentative_post_date=?, post_install_date='', post_duration_hours=?, post_crew_size=?,
				install_stage=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, req.Date, duration, crew, string(target), j.ID)
		} else {
			_, err = db.Exec(`UPDATE jobs SET post_install_date=?, tentative_post_date='', post_duration_hours=?, post_crew_size=?,
				install_stage=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, req.Date, duration, crew, string(target), j.ID)
		}
	} else {
		if req.Tentative {
			_, err = db.Exec(`UPDATE jobs SET tentative_panel_date=?, panel_install_date='', panel_duration_hours=?, panel_crew_size=?,
				install_stage=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, req.Date, duration, crew, string(target), j.ID)
		} else {
			_, err = db.Exec(`UPDATE jobs SET panel_install_date=?, tentative_panel_date='', panel_duration_hours=?, panel_crew_size=?,
				install_stage=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, req.Date, duration, crew, string(target), j.ID)
		}
	}
	if err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "scheduled", "job", j.JobCode, req.Milestone+" on "+req.Date)
	broadcast("schedule", "update", j.ID)

	// Overbooking is a warning, never a block: the response carries the
	// capacity picture so the UI can colour the day.
	capacity := scheduling.DailyCapacity(loadStaff())
	booked := scheduling.BookedHours(allJobs(), req.Date)
	updated, err := getJobByID(id)
	if err != nil { jsonErr(w, err.Error(), 500); return }
	jsonResp(w, map[string]interface{}{
		"job":           updated,
		"capacity":      capacity,
		"booked_hours":  booked,
		"over_capacity": scheduling.IsOverCapacity(booked, capacity),
	})
}

func handleUnscheduleJob(w http.ResponseWriter, r *http.Request, id string) {
	j, err := getJobByID(id)
	if err != nil { jsonErr(w, "not found", 404); return }

	var req struct {
		Milestone string `json:"milestone"`
	}
	if err := decodeBody(r, &req); err != nil { jsonErr(w, "invalid body", 400); return }

	ve := &ValidationErrors{}
	requireField(ve, "milestone", req.Milestone)
	validateEnum(ve, "milestone", req.Milestone, []string{scheduling.MilestonePosts, scheduling.MilestonePanels})
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	// Idempotent: unscheduling an unscheduled milestone is a no-op that
	// still normalises the install stage back to pending.
	pending := scheduling.StageForUnschedule(req.Milestone)
	if req.Milestone == scheduling.MilestonePosts {
		_, err = db.Exec(`UPDATE jobs SET post_install_date='', tentative_post_date='', install_stage=?,
			updated_at=CURRENT_TIMESTAMP WHERE id=?`, string(pending), j.ID)
	} else {
		_, err = db.Exec(`UPDATE jobs SET panel_install_date='', tentative_panel_date='', install_stage=?,
			updated_at=CURRENT_TIMESTAMP WHERE id=?`, string(pending), j.ID)
	}
	if err != nil { jsonErr(w, err.Error(), 500); return }

	logAudit(db, getUsername(r), "unscheduled", "job", j.JobCode, req.Milestone+" removed from calendar")
	broadcast("schedule", "update", j.ID)
	handleGetJob(w, r, id)
}

func handleCalendar(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")

	ve := &ValidationErrors{}
	requireField(ve, "start", start)
	requireField(ve, "end", end)
	validateDate(ve, "start", start)
	validateDate(ve, "end", end)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	startDate, _ := time.Parse(scheduling.DateLayout, start)
	endDate, _ := time.Parse(scheduling.DateLayout, end)
	if endDate.Before(startDate) {
		jsonErr(w, "end must not be before start", 400)
		return
	}

	jobs := allJobs()
	capacity := scheduling.DailyCapacity(loadStaff())

	var days []CalendarDay
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		date := d.Format(scheduling.DateLayout)
		day := CalendarDay{Date: date, Capacity: capacity, Entries: []CalendarItem{}}
		for _, j := range jobs {
			if j.PostInstallDate == date {
				day.Entries = append(day.Entries, CalendarItem{JobID: j.ID, JobCode: j.JobCode, CompanyName: j.CompanyName,
					Milestone: scheduling.MilestonePosts, DurationHours: j.PostDurationHours, CrewSize: j.PostCrewSize})
			}
			if j.TentativePosts == date {
				day.Entries = append(day.Entries, CalendarItem{JobID: j.ID, JobCode: j.JobCode, CompanyName: j.CompanyName,
					Milestone: scheduling.MilestonePosts, Tentative: true, DurationHours: j.PostDurationHours, CrewSize: j.PostCrewSize})
			}
			if j.PanelInstallDate == date {
				day.Entries = append(day.Entries, CalendarItem{JobID: j.ID, JobCode: j.JobCode, CompanyName: j.CompanyName,
					Milestone: scheduling.MilestonePanels, DurationHours: j.PanelDurationHours, CrewSize: j.PanelCrewSize})
			}
			if j.TentativePanels == date {
				day.Entries = append(day.Entries, CalendarItem{JobID: j.ID, JobCode: j.JobCode, CompanyName: j.CompanyName,
					Milestone: scheduling.MilestonePanels, Tentative: true, DurationHours: j.PanelDurationHours, CrewSize: j.PanelCrewSize})
			}
		}
		day.BookedHours = scheduling.BookedHours(jobs, date)
		day.OverCapacity = scheduling.IsOverCapacity(day.BookedHours, capacity)
		days = append(days, day)
	}
	jsonResp(w, days)
}

func handleCapacity(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	ve := &ValidationErrors{}
	requireField(ve, "date", date)
	validateDate(ve, "date", date)
	if ve.HasErrors() { writeValidationErrors(w, ve); return }

	capacity := scheduling.DailyCapacity(loadStaff())
	booked := scheduling.BookedHours(allJobs(), date)

	result := map[string]interface{}{
		"date":          date,
		"capacity":      capacity,
		"booked_hours":  booked,
		"over_capacity": scheduling.IsOverCapacity(booked, capacity),
	}
	if dur := r.URL.Query().Get("duration"); dur != "" {
		if v, err := strconv.ParseFloat(dur, 64); err == nil {
			result["would_overbook"] = scheduling.WouldOverbook(booked, v, capacity)
		}
	}
	jsonResp(w, result)
}
