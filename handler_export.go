package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// handleExportJobs exports the (optionally filtered) jobs list as CSV or
// Excel for quoting follow-up and production planning offline.
func handleExportJobs(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	query := "SELECT job_code, company_name, COALESCE(contact_name,''), lifecycle_phase, status, " +
		"COALESCE(scheduler_stage,''), COALESCE(install_stage,''), quote_value, po_status, " +
		"COALESCE(post_install_date,''), COALESCE(panel_install_date,''), " +
		"COALESCE(tentative_post_date,''), COALESCE(tentative_panel_date,''), " +
		"COALESCE(last_contact_at,'') FROM jobs WHERE 1=1"
	var args []interface{}

	if phase := r.URL.Query().Get("phase"); phase != "" {
		query += " AND lifecycle_phase=?"
		args = append(args, phase)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		query += " AND (company_name LIKE ? OR job_code LIKE ?)"
		term := "%" + search + "%"
		args = append(args, term, term)
	}
	query += " ORDER BY job_code"

	rows, err := db.Query(query, args...)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	headers := []string{"Job", "Company", "Contact", "Phase", "Status", "Scheduler Stage", "Install Stage",
		"Quote Value", "PO Status", "Posts Date", "Panels Date", "Tentative Posts", "Tentative Panels", "Last Contact"}
	var data [][]string

	for rows.Next() {
		var jobCode, company, contact, phase, status, schedStage, installStage, poStatus string
		var postDate, panelDate, tentPost, tentPanel, lastContact string
		var quoteValue float64
		rows.Scan(&jobCode, &company, &contact, &phase, &status, &schedStage, &installStage,
			&quoteValue, &poStatus, &postDate, &panelDate, &tentPost, &tentPanel, &lastContact)
		data = append(data, []string{jobCode, company, contact, phase, status, schedStage, installStage,
			strconv.FormatFloat(quoteValue, 'f', 2, 64), poStatus, postDate, panelDate, tentPost, tentPanel, lastContact})
	}

	logAudit(db, getUsername(r), "exported", "jobs", format, fmt.Sprintf("Exported %d jobs", len(data)))

	if format == "xlsx" {
		exportExcel(w, "Jobs", headers, data)
	} else {
		exportCSV(w, "jobs.csv", headers, data)
	}
}

func exportCSV(w http.ResponseWriter, filename string, headers []string, data [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	cw := csv.NewWriter(w)
	cw.Write(headers)
	for _, row := range data {
		cw.Write(row)
	}
	cw.Flush()
}

func exportExcel(w http.ResponseWriter, sheetName string, headers []string, data [][]string) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}
	for rowIdx, row := range data {
		for colIdx, val := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, val)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+sheetName+".xlsx")
	f.Write(w)
}
