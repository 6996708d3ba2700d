package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Job is one customer engagement through its full lifecycle, from lead to
// completed install. Synced jobs carry the ServiceM8 UUID; manually created
// jobs get a generated one.
type Job struct {
	ID             int     `json:"id"`
	UUID           string  `json:"uuid"`
	JobCode        string  `json:"job_code"`
	CompanyName    string  `json:"company_name"`
	ContactName    string  `json:"contact_name,omitempty"`
	ContactPhone   string  `json:"contact_phone,omitempty"`
	ContactEmail   string  `json:"contact_email,omitempty"`
	Address        string  `json:"address,omitempty"`
	Description    string  `json:"description,omitempty"`
	LifecyclePhase string  `json:"lifecycle_phase"`
	Status         string  `json:"status"`
	SalesStage     string  `json:"sales_stage,omitempty"`
	SchedulerStage string  `json:"scheduler_stage,omitempty"`
	InstallStage   string  `json:"install_stage,omitempty"`
	QuoteValue     float64 `json:"quote_value"`
	QuoteSent      bool    `json:"quote_sent"`
	QuoteSentAt    string  `json:"quote_sent_at,omitempty"`
	POStatus       string  `json:"po_status"`

	HoursSinceQuoteSent *int `json:"hours_since_quote_sent"`
	DaysSinceQuoteSent  *int `json:"days_since_quote_sent"`

	// Confirmed install dates; mutually exclusive with the tentative date
	// for the same milestone.
	PostInstallDate  string `json:"post_install_date,omitempty"`
	PanelInstallDate string `json:"panel_install_date,omitempty"`
	TentativePosts   string `json:"tentative_post_date,omitempty"`
	TentativePanels  string `json:"tentative_panel_date,omitempty"`

	PostDurationHours  float64 `json:"post_duration_hours"`
	PanelDurationHours float64 `json:"panel_duration_hours"`
	PostCrewSize       int     `json:"post_crew_size"`
	PanelCrewSize      int     `json:"panel_crew_size"`
	ProductionDays     int     `json:"production_days"`

	LastContactAt         string `json:"last_contact_at,omitempty"`
	LastContactType       string `json:"last_contact_type,omitempty"`
	LastContactDirection  string `json:"last_contact_direction,omitempty"`
	LastClientContactAt   string `json:"last_client_contact_at,omitempty"`
	LastClientContactType string `json:"last_client_contact_type,omitempty"`

	WorkTypeID *int `json:"work_type_id"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// WorkType is a named job template whose stage checklist drives the
// production board.
type WorkType struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Color     string          `json:"color"`
	IsDefault bool            `json:"is_default"`
	Active    bool            `json:"active"`
	Stages    []WorkTypeStage `json:"stages,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// WorkTypeStage is one checklist step within a WorkType.
type WorkTypeStage struct {
	ID                    int    `json:"id"`
	WorkTypeID            int    `json:"work_type_id"`
	Name                  string `json:"name"`
	Key                   string `json:"key"`
	OrderIndex            int    `json:"order_index"`
	Category              string `json:"category"`
	TriggersScheduler     bool   `json:"triggers_scheduler"`
	TriggersPurchaseOrder bool   `json:"triggers_purchase_order"`
}

// JobStageProgress tracks completion and elapsed time for one (job, stage)
// pair. Rows are created lazily or in bulk when a work type is assigned.
type JobStageProgress struct {
	ID               int    `json:"id"`
	JobID            int    `json:"job_id"`
	StageID          int    `json:"stage_id"`
	StageName        string `json:"stage_name,omitempty"`
	StageKey         string `json:"stage_key,omitempty"`
	Status           string `json:"status"`
	Notes            string `json:"notes"`
	TimerRunning     bool   `json:"timer_running"`
	TimerStartedAt   string `json:"timer_started_at,omitempty"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
	UpdatedAt        string `json:"updated_at"`
}

// StaffMember drives capacity math: total daily install capacity is the sum
// of daily_capacity_hours over active install-role staff.
type StaffMember struct {
	ID                 int      `json:"id"`
	Name               string   `json:"name"`
	Role               string   `json:"role"`
	DailyCapacityHours float64  `json:"daily_capacity_hours"`
	Skills             []string `json:"skills"`
	Active             bool     `json:"active"`
	CreatedAt          string   `json:"created_at"`
}

// PipelineColumn is one user-editable kanban column. Column lists live as
// JSON blobs in app_settings, one list per pipeline.
type PipelineColumn struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color"`
}

// SyncLog records one ServiceM8 sync attempt. Append-only.
type SyncLog struct {
	ID            int    `json:"id"`
	SyncType      string `json:"sync_type"`
	Status        string `json:"status"`
	JobsProcessed int    `json:"jobs_processed"`
	Error         string `json:"error,omitempty"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at,omitempty"`
}

// OAuthToken is the single active token per provider, refreshed lazily on
// read when expired.
type OAuthToken struct {
	Provider     string `json:"provider"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	ExpiresAt    string `json:"expires_at"`
	UpdatedAt    string `json:"updated_at"`
}

// CalendarDay is one day of the install calendar with capacity annotations.
type CalendarDay struct {
	Date         string         `json:"date"`
	Capacity     float64        `json:"capacity"`
	BookedHours  float64        `json:"booked_hours"`
	OverCapacity bool           `json:"over_capacity"`
	Entries      []CalendarItem `json:"entries"`
}

// CalendarItem is one scheduled (or tentatively scheduled) install on a day.
type CalendarItem struct {
	JobID         int     `json:"job_id"`
	JobCode       string  `json:"job_code"`
	CompanyName   string  `json:"company_name"`
	Milestone     string  `json:"milestone"`
	Tentative     bool    `json:"tentative"`
	DurationHours float64 `json:"duration_hours"`
	CrewSize      int     `json:"crew_size"`
}
