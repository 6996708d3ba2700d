package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"jobdeck/internal/auth"

	_ "modernc.org/sqlite"
)

var db *sql.DB

func initDB(path string) error {
	// Close previous connection if any (prevents goroutine leaks in tests)
	if db != nil {
		db.Close()
	}
	var err error
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err = sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return err
	}

	// SQLite handles 1 writer + multiple readers with WAL mode
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	// Explicitly set pragmas (some drivers don't parse connection string params)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	return migrate(db)
}

// migrate creates all tables idempotently. Tests run it against in-memory
// databases, so it must stay side-effect free beyond DDL.
func migrate(conn *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT UNIQUE NOT NULL,
			job_code TEXT DEFAULT '',
			company_name TEXT DEFAULT '',
			contact_name TEXT DEFAULT '', contact_phone TEXT DEFAULT '', contact_email TEXT DEFAULT '',
			address TEXT DEFAULT '', description TEXT DEFAULT '',
			lifecycle_phase TEXT NOT NULL DEFAULT 'quote' CHECK(lifecycle_phase IN ('quote','work_order')),
			status TEXT NOT NULL DEFAULT 'new_lead',
			sales_stage TEXT DEFAULT '',
			scheduler_stage TEXT DEFAULT '',
			install_stage TEXT DEFAULT '',
			quote_value REAL DEFAULT 0,
			quote_sent INTEGER DEFAULT 0,
			quote_sent_at TEXT DEFAULT '',
			po_status TEXT DEFAULT 'none' CHECK(po_status IN ('none','ordered','received','delayed')),
			hours_since_quote_sent INTEGER,
			days_since_quote_sent INTEGER,
			post_install_date TEXT DEFAULT '', panel_install_date TEXT DEFAULT '',
			tentative_post_date TEXT DEFAULT '', tentative_panel_date TEXT DEFAULT '',
			post_duration_hours REAL DEFAULT 0, panel_duration_hours REAL DEFAULT 0,
			post_crew_size INTEGER DEFAULT 2, panel_crew_size INTEGER DEFAULT 2,
			production_days INTEGER DEFAULT 0,
			last_contact_at TEXT DEFAULT '', last_contact_type TEXT DEFAULT '', last_contact_direction TEXT DEFAULT '',
			last_client_contact_at TEXT DEFAULT '', last_client_contact_type TEXT DEFAULT '',
			work_type_id INTEGER REFERENCES work_types(id) ON DELETE SET NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS staff (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'install' CHECK(role IN ('sales','production','install')),
			daily_capacity_hours REAL DEFAULT 8,
			skills TEXT DEFAULT '[]',
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS work_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			color TEXT DEFAULT '',
			is_default INTEGER DEFAULT 0,
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS work_type_stages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_type_id INTEGER NOT NULL REFERENCES work_types(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			key TEXT NOT NULL,
			order_index INTEGER NOT NULL DEFAULT 0,
			category TEXT NOT NULL DEFAULT 'production' CHECK(category IN ('purchase_order','production','install','external','admin')),
			triggers_scheduler INTEGER DEFAULT 0,
			triggers_purchase_order INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS job_stage_progress (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			stage_id INTEGER NOT NULL REFERENCES work_type_stages(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','in_progress','completed')),
			notes TEXT DEFAULT '',
			timer_running INTEGER DEFAULT 0,
			timer_started_at TEXT DEFAULT '',
			total_time_seconds INTEGER DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(job_id, stage_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sync_type TEXT NOT NULL DEFAULT 'manual' CHECK(sync_type IN ('manual','automatic')),
			status TEXT NOT NULL DEFAULT 'in_progress' CHECK(status IN ('in_progress','success','error')),
			jobs_processed INTEGER DEFAULT 0,
			error TEXT DEFAULT '',
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT DEFAULT '',
			expires_at TEXT DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT,
			role TEXT DEFAULT 'user',
			active INTEGER DEFAULT 1,
			last_login TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT DEFAULT '',
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT DEFAULT '',
			summary TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, t := range tables {
		if _, err := conn.Exec(t); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_jobs_phase ON jobs(lifecycle_phase)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_post_date ON jobs(post_install_date)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_panel_date ON jobs(panel_install_date)`,
		`CREATE INDEX IF NOT EXISTS idx_stage_progress_job ON job_stage_progress(job_id)`,
	}
	for _, ix := range indexes {
		if _, err := conn.Exec(ix); err != nil {
			return fmt.Errorf("index migration: %w", err)
		}
	}
	return nil
}

// defaultPipelines are the starter kanban columns per pipeline, stored as
// JSON blobs in app_settings and fully user-editable afterwards.
var defaultPipelines = map[string][]PipelineColumn{
	"pipeline_leads": {
		{ID: "new_lead", Title: "New Leads", Color: "#3b82f6"},
		{ID: "quote_sent", Title: "Quote Sent", Color: "#8b5cf6"},
		{ID: "unsuccessful", Title: "Unsuccessful", Color: "#6b7280"},
	},
	"pipeline_quotes": {
		{ID: "fresh", Title: "Fresh", Color: "#22c55e"},
		{ID: "awaiting_reply", Title: "Awaiting Reply", Color: "#eab308"},
	},
	"pipeline_production": {
		{ID: "new_jobs_won", Title: "New Jobs Won", Color: "#22c55e"},
		{ID: "in_production", Title: "In Production", Color: "#3b82f6"},
		{ID: "waiting_supplier", Title: "Waiting on Supplier", Color: "#f97316"},
		{ID: "waiting_client", Title: "Waiting on Client", Color: "#eab308"},
		{ID: "need_to_go_back", Title: "Need to Go Back", Color: "#ef4444"},
		{ID: "recently_completed", Title: "Recently Completed", Color: "#6b7280"},
	},
}

func seedDB() {
	// Admin user
	var count int
	db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	if count == 0 {
		password := envOr("JOBDECK_ADMIN_PASSWORD", "admin")
		hash, err := auth.HashPassword(password)
		if err != nil {
			log.Printf("seed: hash admin password: %v", err)
		} else {
			db.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES (?,?,?,?)",
				"admin", hash, "Administrator", "admin")
			log.Printf("seed: created admin user")
		}
	}

	// Pipeline columns
	for key, cols := range defaultPipelines {
		var exists int
		db.QueryRow("SELECT COUNT(*) FROM app_settings WHERE key=?", key).Scan(&exists)
		if exists == 0 {
			blob, _ := json.Marshal(cols)
			db.Exec("INSERT INTO app_settings (key, value) VALUES (?,?)", key, string(blob))
		}
	}

	// Default work type with its stage checklist
	db.QueryRow("SELECT COUNT(*) FROM work_types").Scan(&count)
	if count == 0 {
		res, err := db.Exec("INSERT INTO work_types (name, color, is_default) VALUES (?,?,1)",
			"PVC Fencing - Supply & Install", "#3b82f6")
		if err == nil {
			wtID, _ := res.LastInsertId()
			stages := []struct {
				name, key, category string
				scheduler, po       bool
			}{
				{"Order Materials", "order_materials", "purchase_order", false, true},
				{"Site Measure", "site_measure", "external", false, false},
				{"Manufacture Panels", "manufacture_panels", "production", false, false},
				{"Schedule Posts", "schedule_posts", "install", true, false},
				{"Install Posts", "install_posts", "install", false, false},
				{"Schedule Panels", "schedule_panels", "install", true, false},
				{"Install Panels", "install_panels", "install", false, false},
				{"Final Inspection", "final_inspection", "admin", false, false},
			}
			for i, s := range stages {
				db.Exec(`INSERT INTO work_type_stages (work_type_id, name, key, order_index, category, triggers_scheduler, triggers_purchase_order)
					VALUES (?,?,?,?,?,?,?)`, wtID, s.name, s.key, i, s.category, boolToInt(s.scheduler), boolToInt(s.po))
			}
		}
	}

	// Starter install crew so capacity math isn't zero on a fresh install
	db.QueryRow("SELECT COUNT(*) FROM staff").Scan(&count)
	if count == 0 {
		db.Exec("INSERT INTO staff (name, role, daily_capacity_hours) VALUES (?,?,?)", "Install Crew A", "install", 16)
		db.Exec("INSERT INTO staff (name, role, daily_capacity_hours) VALUES (?,?,?)", "Install Crew B", "install", 16)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
