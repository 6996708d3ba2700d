package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	cfg          *Config
	companyName  string
	companyEmail string
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	port := flag.Int("port", 9000, "HTTP port")
	dbPath := flag.String("db", "jobdeck.db", "SQLite database path")
	configPath := flag.String("config", "jobdeck.yaml", "YAML config file path")
	flag.Parse()

	var err error
	cfg, err = loadConfig(*configPath)
	if err != nil {
		log.Fatal("Config load failed: ", err)
	}
	companyName = cfg.CompanyName
	companyEmail = cfg.CompanyEmail

	if err := initDB(*dbPath); err != nil {
		log.Fatal("DB init failed: ", err)
	}
	seedDB()

	sm8 = newServiceM8Client(cfg.ServiceM8.AppID, cfg.ServiceM8.AppSecret, db)

	// Background sync: one delayed run shortly after startup, then on the
	// configured cadence. runSync is single-flight, so an overlapping
	// manual trigger just sees "already running".
	go func() {
		time.Sleep(10 * time.Second)
		if _, err := runSync("automatic"); err != nil {
			log.Printf("sync: startup run: %v", err)
		}
		ticker := time.NewTicker(cfg.SyncInterval())
		defer ticker.Stop()
		for range ticker.C {
			if _, err := runSync("automatic"); err != nil {
				log.Printf("sync: scheduled run: %v", err)
			}
		}
	}()

	mux := http.NewServeMux()

	// Static files / SPA shell
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "static/index.html")
	})

	// Session auth
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleLogin(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleLogout(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/me", handleMe)

	// ServiceM8 OAuth redirect target
	mux.HandleFunc("/auth/servicem8/callback", handleServiceM8Callback)

	// Live board updates
	mux.HandleFunc("/ws", handleWebSocket)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		// Jobs
		case parts[0] == "jobs" && len(parts) == 1 && r.Method == "GET":
			handleListJobs(w, r)
		case parts[0] == "jobs" && len(parts) == 1 && r.Method == "POST":
			handleCreateJob(w, r)
		case parts[0] == "jobs" && len(parts) == 2 && r.Method == "GET":
			handleGetJob(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 2 && r.Method == "PATCH":
			handlePatchJob(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "move" && r.Method == "POST":
			handleMoveJob(w, r, parts[1])

		// Install scheduling actions
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "schedule" && r.Method == "POST":
			handleScheduleJob(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "unschedule" && r.Method == "POST":
			handleUnscheduleJob(w, r, parts[1])

		// Stage progress
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "stages" && r.Method == "GET":
			handleListJobStages(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 4 && parts[2] == "stages" && parts[3] == "initialize" && r.Method == "POST":
			handleInitializeJobStages(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 4 && parts[2] == "stages" && r.Method == "PATCH":
			handleUpdateJobStage(w, r, parts[1], parts[3])
		case parts[0] == "jobs" && len(parts) == 6 && parts[2] == "stages" && parts[4] == "timer" && r.Method == "POST":
			handleStageTimer(w, r, parts[1], parts[3], parts[5])

		// Calendar & capacity
		case parts[0] == "schedule" && len(parts) == 2 && parts[1] == "calendar" && r.Method == "GET":
			handleCalendar(w, r)
		case parts[0] == "schedule" && len(parts) == 2 && parts[1] == "capacity" && r.Method == "GET":
			handleCapacity(w, r)

		// Work types and their stage checklists
		case parts[0] == "work-types" && len(parts) == 1 && r.Method == "GET":
			handleListWorkTypes(w, r)
		case parts[0] == "work-types" && len(parts) == 1 && r.Method == "POST":
			handleCreateWorkType(w, r)
		case parts[0] == "work-types" && len(parts) == 2 && r.Method == "GET":
			handleGetWorkType(w, r, parts[1])
		case parts[0] == "work-types" && len(parts) == 2 && r.Method == "PATCH":
			handleUpdateWorkType(w, r, parts[1])
		case parts[0] == "work-types" && len(parts) == 2 && r.Method == "DELETE":
			handleDeleteWorkType(w, r, parts[1])
		case parts[0] == "work-types" && len(parts) == 3 && parts[2] == "stages" && r.Method == "GET":
			handleListWorkTypeStages(w, r, parts[1])
		case parts[0] == "work-types" && len(parts) == 3 && parts[2] == "stages" && r.Method == "POST":
			handleCreateWorkTypeStage(w, r, parts[1])
		case parts[0] == "work-types" && len(parts) == 4 && parts[2] == "stages" && parts[3] == "reorder" && r.Method == "POST":
			handleReorderWorkTypeStages(w, r, parts[1])
		case parts[0] == "work-types" && len(parts) == 4 && parts[2] == "stages" && r.Method == "PATCH":
			handleUpdateWorkTypeStage(w, r, parts[1], parts[3])
		case parts[0] == "work-types" && len(parts) == 4 && parts[2] == "stages" && r.Method == "DELETE":
			handleDeleteWorkTypeStage(w, r, parts[1], parts[3])

		// Staff
		case parts[0] == "staff" && len(parts) == 1 && r.Method == "GET":
			handleListStaff(w, r)
		case parts[0] == "staff" && len(parts) == 1 && r.Method == "POST":
			handleCreateStaff(w, r)
		case parts[0] == "staff" && len(parts) == 2 && r.Method == "PATCH":
			handleUpdateStaff(w, r, parts[1])
		case parts[0] == "staff" && len(parts) == 2 && r.Method == "DELETE":
			handleDeleteStaff(w, r, parts[1])

		// Settings (key/value JSON blobs: pipeline columns, general settings)
		case parts[0] == "settings" && len(parts) == 1 && r.Method == "GET":
			handleListSettings(w, r)
		case parts[0] == "settings" && len(parts) == 2 && r.Method == "GET":
			handleGetSetting(w, r, parts[1])
		case parts[0] == "settings" && len(parts) == 2 && r.Method == "POST":
			handlePutSetting(w, r, parts[1])

		// ServiceM8 sync
		case parts[0] == "sync" && len(parts) == 2 && parts[1] == "servicem8" && r.Method == "POST":
			handleTriggerSync(w, r)
		case parts[0] == "sync" && len(parts) == 2 && parts[1] == "status" && r.Method == "GET":
			handleSyncStatus(w, r)
		case parts[0] == "sync" && len(parts) == 2 && parts[1] == "logs" && r.Method == "GET":
			handleListSyncLogs(w, r)

		// Messaging via ServiceM8 platform endpoints
		case parts[0] == "messaging" && len(parts) == 2 && parts[1] == "sms" && r.Method == "POST":
			handleSendSMS(w, r)
		case parts[0] == "messaging" && len(parts) == 2 && parts[1] == "email" && r.Method == "POST":
			handleSendEmail(w, r)

		// Export
		case parts[0] == "export" && len(parts) == 2 && parts[1] == "jobs" && r.Method == "GET":
			handleExportJobs(w, r)

		// ServiceM8 OAuth management
		case parts[0] == "auth" && len(parts) == 3 && parts[1] == "servicem8" && parts[2] == "connect" && r.Method == "GET":
			handleServiceM8Connect(w, r)
		case parts[0] == "auth" && len(parts) == 3 && parts[1] == "servicem8" && parts[2] == "status" && r.Method == "GET":
			handleServiceM8Status(w, r)
		case parts[0] == "auth" && len(parts) == 3 && parts[1] == "servicem8" && parts[2] == "disconnect" && r.Method == "POST":
			handleServiceM8Disconnect(w, r)

		default:
			jsonErr(w, "not found", 404)
		}
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("jobdeck server starting on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, logging(requireAuth(mux))))
}

func jsonResp(w http.ResponseWriter, data interface{}) {
	json.NewEncoder(w).Encode(APIResponse{Data: data})
}

func jsonRespMeta(w http.ResponseWriter, data interface{}, total, page, limit int) {
	json.NewEncoder(w).Encode(APIResponse{Data: data, Meta: &Meta{Total: total, Page: page, Limit: limit}})
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
