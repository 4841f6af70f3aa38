/*
handlers.go - HTTP API handlers for the production credit ledger

PURPOSE:
  Exposes the credit ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger engine.

ENDPOINTS:
  Repair orders:
    GET    /api/ros                    List all repair orders
    POST   /api/ros                    Create repair order
    GET    /api/ros/{ro}               Get repair order
    PUT    /api/ros/{ro}               Update repair order (recomputes)
    DELETE /api/ros/{ro}               Delete RO and its credit history
    POST   /api/ros/{ro}/stage         Record stage transition (recomputes)
    POST   /api/ros/{ro}/status        Change status (close reconciles)
    POST   /api/ros/{ro}/recompute     Force a recompute pass
    GET    /api/ros/{ro}/credits       Generated credit rows, post-override
    GET    /api/ros/{ro}/transitions   Stage-change log
    GET    /api/ros/{ro}/allocations   Credit allocations
    PUT    /api/ros/{ro}/allocations   Replace allocations (recomputes)

  Credit corrections:
    PUT    /api/overrides              Upsert an override
    DELETE /api/overrides              Clear an override
    POST   /api/credits/delete         Delete a supplement row

  Reporting:
    GET    /api/summary?from&to        Worked vs credited per employee
    GET    /api/dashboard              Active RO counts per stage
    GET    /api/config                 Current shop configuration

  Directory:
    GET/POST       /api/employees      Employee directory
    DELETE         /api/employees/{name}
    GET/POST       /api/timeclock      Worked-hours sums / bulk import

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unknown stages, frozen baselines
  - 404: Missing repair orders, non-matching credit rows
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/production-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  ledger.TxStore
	Engine *ledger.Engine
	Config ledger.Source
}

// NewHandler creates a new handler over the store and configuration.
func NewHandler(store ledger.TxStore, cfg ledger.Source) *Handler {
	return &Handler{
		Store:  store,
		Engine: ledger.NewEngine(store, cfg),
		Config: cfg,
	}
}

// =============================================================================
// REPAIR ORDER HANDLERS
// =============================================================================

// ListROs returns all repair orders.
func (h *Handler) ListROs(w http.ResponseWriter, r *http.Request) {
	ros, err := h.Store.ListRepairOrders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list repair orders", err)
		return
	}
	dtos := make([]RepairOrderDTO, len(ros))
	for i := range ros {
		dtos[i] = toRepairOrderDTO(&ros[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRO returns a single repair order.
func (h *Handler) GetRO(w http.ResponseWriter, r *http.Request) {
	ro, err := h.Store.GetRepairOrder(r.Context(), ledger.RONumber(chi.URLParam(r, "ro")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepairOrderDTO(ro))
}

// CreateRO creates a repair order.
func (h *Handler) CreateRO(w http.ResponseWriter, r *http.Request) {
	h.saveRO(w, r, "")
}

// UpdateRO replaces a repair order and recomputes its credit.
func (h *Handler) UpdateRO(w http.ResponseWriter, r *http.Request) {
	h.saveRO(w, r, ledger.RONumber(chi.URLParam(r, "ro")))
}

func (h *Handler) saveRO(w http.ResponseWriter, r *http.Request, ron ledger.RONumber) {
	var req SaveRORequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if ron != "" {
		req.RONumber = string(ron)
	}
	if req.RONumber == "" {
		writeError(w, http.StatusBadRequest, "ro_number is required", nil)
		return
	}
	cfg := h.Config.Current()
	if req.Stage != "" && !cfg.Stages.Contains(req.Stage) {
		writeError(w, http.StatusBadRequest, "Unknown stage", &ledger.StageError{Stage: req.Stage})
		return
	}

	date, err := parseDate(req.Date, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	ro := &ledger.RepairOrder{
		RONumber:    ledger.RONumber(req.RONumber),
		Date:        date,
		TotalHours:  decimal.NewFromFloat(req.TotalHours),
		Stage:       req.Stage,
		Status:      ledger.Status(req.Status),
		Buckets:     make(map[ledger.Bucket]decimal.Decimal, len(req.Buckets)),
		Assignments: make(map[ledger.Role]string, len(req.Assignments)),
	}
	for b, hrs := range req.Buckets {
		ro.Buckets[ledger.Bucket(b)] = decimal.NewFromFloat(hrs)
	}
	for role, emp := range req.Assignments {
		ro.Assignments[ledger.Role(role)] = emp
	}

	if err := h.Store.PutRepairOrder(r.Context(), ro); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save repair order", err)
		return
	}
	// Bucket edits shift credit; reconcile right away.
	if err := h.Engine.Recompute(r.Context(), ro.RONumber); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to recompute credit", err)
		return
	}
	saved, err := h.Store.GetRepairOrder(r.Context(), ro.RONumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepairOrderDTO(saved))
}

// DeleteRO removes a repair order and its entire credit history.
func (h *Handler) DeleteRO(w http.ResponseWriter, r *http.Request) {
	err := h.Store.DeleteRepairOrder(r.Context(), ledger.RONumber(chi.URLParam(r, "ro")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeStage records a stage transition and recomputes.
func (h *Handler) ChangeStage(w http.ResponseWriter, r *http.Request) {
	ron := ledger.RONumber(chi.URLParam(r, "ro"))
	var req StageChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FromStage == "" {
		ro, err := h.Store.GetRepairOrder(r.Context(), ron)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		req.FromStage = ro.Stage
	}
	date, err := parseDate(req.Date, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	if err := h.Engine.RecordTransition(r.Context(), ron, req.FromStage, req.ToStage, date); err != nil {
		writeDomainError(w, err)
		return
	}
	h.respondWithCredits(w, r, ron)
}

// ChangeStatus updates the RO status; closing reconciles credit.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	ron := ledger.RONumber(chi.URLParam(r, "ro"))
	var req StatusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status := ledger.Status(req.Status)
	if !validStatus(h.Config.Current(), status) {
		writeError(w, http.StatusBadRequest, "Unknown status", nil)
		return
	}
	if err := h.Engine.ChangeStatus(r.Context(), ron, status); err != nil {
		writeDomainError(w, err)
		return
	}
	ro, err := h.Store.GetRepairOrder(r.Context(), ron)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepairOrderDTO(ro))
}

// Recompute forces a reconciliation pass.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	ron := ledger.RONumber(chi.URLParam(r, "ro"))
	if err := h.Engine.Recompute(r.Context(), ron); err != nil {
		writeDomainError(w, err)
		return
	}
	h.respondWithCredits(w, r, ron)
}

// GetCredits returns the generated credit rows, post-override.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	h.respondWithCredits(w, r, ledger.RONumber(chi.URLParam(r, "ro")))
}

func (h *Handler) respondWithCredits(w http.ResponseWriter, r *http.Request, ron ledger.RONumber) {
	rows, err := h.Engine.CreditRows(r.Context(), ron)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditRowDTOs(rows))
}

// GetTransitions returns the RO's stage-change log.
func (h *Handler) GetTransitions(w http.ResponseWriter, r *http.Request) {
	ron := ledger.RONumber(chi.URLParam(r, "ro"))
	if _, err := h.Store.GetRepairOrder(r.Context(), ron); err != nil {
		writeDomainError(w, err)
		return
	}
	transitions, err := h.Store.ListTransitions(r.Context(), ron)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transitions", err)
		return
	}
	dtos := make([]TransitionDTO, len(transitions))
	for i, t := range transitions {
		dtos[i] = TransitionDTO{
			ID:        t.ID,
			FromStage: t.FromStage,
			ToStage:   t.ToStage,
			Date:      t.Date.Format(ledger.DateLayout),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// GetAllocations returns the RO's credit allocations.
func (h *Handler) GetAllocations(w http.ResponseWriter, r *http.Request) {
	ron := ledger.RONumber(chi.URLParam(r, "ro"))
	if _, err := h.Store.GetRepairOrder(r.Context(), ron); err != nil {
		writeDomainError(w, err)
		return
	}
	allocs, err := h.Store.ListAllocations(r.Context(), ron)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list allocations", err)
		return
	}
	dtos := make([]AllocationDTO, len(allocs))
	for i, a := range allocs {
		dtos[i] = AllocationDTO{
			Employee: a.Employee,
			Role:     string(a.Role),
			Phase:    a.Phase,
			Percent:  f64(a.Percent),
			Hours:    f64(a.Hours),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutAllocations replaces the RO's allocations and recomputes.
func (h *Handler) PutAllocations(w http.ResponseWriter, r *http.Request) {
	ron := ledger.RONumber(chi.URLParam(r, "ro"))
	var req []AllocationDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := h.Store.GetRepairOrder(r.Context(), ron); err != nil {
		writeDomainError(w, err)
		return
	}
	allocs := make([]ledger.Allocation, len(req))
	for i, a := range req {
		allocs[i] = ledger.Allocation{
			RONumber: ron,
			Employee: a.Employee,
			Role:     ledger.Role(a.Role),
			Phase:    a.Phase,
			Percent:  decimal.NewFromFloat(a.Percent),
			Hours:    decimal.NewFromFloat(a.Hours),
		}
	}
	if err := h.Store.ReplaceAllocations(r.Context(), ron, allocs); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save allocations", err)
		return
	}
	if err := h.Engine.Recompute(r.Context(), ron); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to recompute credit", err)
		return
	}
	h.respondWithCredits(w, r, ron)
}

// =============================================================================
// OVERRIDE AND ROW-DELETION HANDLERS
// =============================================================================

// PutOverride upserts an operator correction.
func (h *Handler) PutOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	o := ledger.CreditOverride{Key: overrideKey(req)}
	if req.Date != nil {
		d, err := time.Parse(ledger.DateLayout, *req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		o.Date = &d
	}
	o.Tech = req.Tech
	if req.Hours != nil {
		hrs := decimal.NewFromFloat(*req.Hours)
		o.Hours = &hrs
	}
	if err := h.Engine.SetOverride(r.Context(), o); err != nil {
		writeDomainError(w, err)
		return
	}
	h.respondWithCredits(w, r, o.Key.RONumber)
}

// DeleteOverride clears a correction; the generated row shows through.
func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Engine.DeleteOverride(r.Context(), overrideKey(req)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCredit removes a supplement credit row.
func (h *Handler) DeleteCredit(w http.ResponseWriter, r *http.Request) {
	var req CreditRowDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date, time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	row := ledger.CreditRow{
		Date:      date,
		RONumber:  ledger.RONumber(req.RONumber),
		FromStage: req.FromStage,
		ToStage:   req.ToStage,
		Tech:      req.Tech,
		Hours:     decimal.NewFromFloat(req.Hours),
		Note:      req.Note,
		Origin:    ledger.RowOrigin(req.Origin),
	}
	if err := h.Engine.DeleteCreditRow(r.Context(), row); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func overrideKey(req OverrideRequest) ledger.OverrideKey {
	return ledger.OverrideKey{
		RONumber:  ledger.RONumber(req.RONumber),
		FromStage: req.FromStage,
		ToStage:   req.ToStage,
		Note:      req.Note,
	}
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// GetSummary returns worked vs credited hours per employee.
// GET /api/summary?from=2026-01-01&to=2026-01-31
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"), time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	rows, err := h.Engine.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build summary", err)
		return
	}
	dtos := make([]SummaryRowDTO, len(rows))
	for i, s := range rows {
		dtos[i] = SummaryRowDTO{
			Employee:      s.Employee,
			WorkedHours:   f64(s.WorkedHours),
			CreditedHours: f64(s.CreditedHours),
			Efficiency:    f64(s.Efficiency),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDashboard returns active RO counts per stage.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Engine.Dashboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build dashboard", err)
		return
	}
	dtos := make([]StageCountDTO, len(counts))
	for i, c := range counts {
		dtos[i] = StageCountDTO{Stage: c.Stage, Count: c.Count}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetConfig exposes the current shop configuration.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.Config.Current()
	dto := ConfigDTO{Stages: cfg.Stages}
	for _, s := range cfg.Statuses {
		dto.Statuses = append(dto.Statuses, string(s))
	}
	for _, m := range cfg.Milestones {
		dto.Milestones = append(dto.Milestones, MilestoneDTO{
			ID:          m.ID,
			Label:       m.Label,
			FromStage:   m.FromStage,
			TargetStage: m.TargetStage,
			Match:       string(m.Match),
			Bucket:      string(m.Bucket),
			Role:        string(m.Role),
			Share:       f64(m.Share),
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// EMPLOYEE AND TIMECLOCK HANDLERS
// =============================================================================

// ListEmployees returns the employee directory.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = EmployeeDTO{Name: e.Name, Role: string(e.Role)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee upserts a directory row.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if err := h.Store.PutEmployee(r.Context(), ledger.Employee{Name: req.Name, Role: ledger.Role(req.Role)}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DeleteEmployee removes a directory row.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteEmployee(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete employee", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportTimeclock bulk-imports worked-hours records.
func (h *Handler) ImportTimeclock(w http.ResponseWriter, r *http.Request) {
	var req []TimeclockEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	entries := make([]ledger.WorkedEntry, 0, len(req))
	for _, e := range req {
		date, err := parseDate(e.Date, time.Time{})
		if err != nil || e.Date == "" {
			writeError(w, http.StatusBadRequest, "Invalid or missing date", err)
			return
		}
		entries = append(entries, ledger.WorkedEntry{
			Date:     date,
			Employee: e.Employee,
			ClockIn:  e.ClockIn,
			ClockOut: e.ClockOut,
			Hours:    decimal.NewFromFloat(e.Hours),
		})
	}
	if err := h.Store.AppendWorked(r.Context(), entries); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to import records", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"imported": len(entries)})
}

// GetTimeclock returns worked-hours totals per employee for a range.
// GET /api/timeclock?from=2026-01-01&to=2026-01-31
func (h *Handler) GetTimeclock(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"), time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	sums, err := h.Store.SumWorkedHours(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sum worked hours", err)
		return
	}
	out := make(map[string]float64, len(sums))
	for emp, hrs := range sums {
		out[emp] = f64(hrs)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

func validStatus(cfg ledger.Config, status ledger.Status) bool {
	for _, s := range cfg.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// writeDomainError maps ledger errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err), errors.Is(err, ledger.ErrRowNotDeletable):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrUnknownStage),
		errors.Is(err, ledger.ErrUnknownMilestone),
		errors.Is(err, ledger.ErrBaselineNotDeletable):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
