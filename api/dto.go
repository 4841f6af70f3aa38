/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Hour values
  cross the wire as float64 for client convenience; internally everything
  stays decimal.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/production-ledger/ledger"
)

// =============================================================================
// REPAIR ORDERS
// =============================================================================

// RepairOrderDTO represents a repair order in API responses.
type RepairOrderDTO struct {
	RONumber       string             `json:"ro_number"`
	Date           string             `json:"date"`
	TotalHours     float64            `json:"total_hours"`
	HoursTaken     float64            `json:"hours_taken"`
	HoursRemaining float64            `json:"hours_remaining"`
	Stage          string             `json:"stage"`
	Status         string             `json:"status"`
	Buckets        map[string]float64 `json:"buckets"`
	Assignments    map[string]string  `json:"assignments"`
}

// SaveRORequest creates or replaces a repair order.
type SaveRORequest struct {
	RONumber    string             `json:"ro_number"`
	Date        string             `json:"date"`
	TotalHours  float64            `json:"total_hours"`
	Stage       string             `json:"stage"`
	Status      string             `json:"status,omitempty"`
	Buckets     map[string]float64 `json:"buckets,omitempty"`
	Assignments map[string]string  `json:"assignments,omitempty"`
}

// StageChangeRequest records a stage transition.
type StageChangeRequest struct {
	FromStage string `json:"from_stage,omitempty"` // defaults to the RO's current stage
	ToStage   string `json:"to_stage"`
	Date      string `json:"date,omitempty"` // defaults to today
}

// StatusChangeRequest changes the RO status.
type StatusChangeRequest struct {
	Status string `json:"status"`
}

// TransitionDTO is one stage-change event.
type TransitionDTO struct {
	ID        int64  `json:"id"`
	FromStage string `json:"from_stage"`
	ToStage   string `json:"to_stage"`
	Date      string `json:"date"`
}

// =============================================================================
// CREDIT ROWS, OVERRIDES, ALLOCATIONS
// =============================================================================

// CreditRowDTO is one generated credit line, post-override.
type CreditRowDTO struct {
	Date      string  `json:"date"`
	RONumber  string  `json:"ro_number"`
	FromStage string  `json:"from_stage"`
	ToStage   string  `json:"to_stage"`
	Tech      string  `json:"tech"`
	Hours     float64 `json:"hours"`
	Note      string  `json:"note"`
	Origin    string  `json:"origin"`
}

// OverrideRequest upserts or deletes an operator correction. The first
// four fields are the row identity; nil correction fields keep the
// generated values.
type OverrideRequest struct {
	RONumber  string   `json:"ro_number"`
	FromStage string   `json:"from_stage"`
	ToStage   string   `json:"to_stage"`
	Note      string   `json:"note"`
	Date      *string  `json:"date,omitempty"`
	Tech      *string  `json:"tech,omitempty"`
	Hours     *float64 `json:"hours,omitempty"`
}

// AllocationDTO is one percent/fixed credit split.
type AllocationDTO struct {
	Employee string  `json:"employee"`
	Role     string  `json:"role"`
	Phase    string  `json:"phase"`
	Percent  float64 `json:"percent"`
	Hours    float64 `json:"hours"`
}

// =============================================================================
// EMPLOYEES, TIMECLOCK, REPORTING
// =============================================================================

// EmployeeDTO is one directory row.
type EmployeeDTO struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// TimeclockEntryDTO is one worked-hours record for bulk import.
type TimeclockEntryDTO struct {
	Date     string  `json:"date"`
	Employee string  `json:"employee"`
	ClockIn  string  `json:"clock_in,omitempty"`
	ClockOut string  `json:"clock_out,omitempty"`
	Hours    float64 `json:"hours"`
}

// SummaryRowDTO is one worked-vs-credited report row.
type SummaryRowDTO struct {
	Employee      string  `json:"employee"`
	WorkedHours   float64 `json:"worked_hours"`
	CreditedHours float64 `json:"credited_hours"`
	Efficiency    float64 `json:"efficiency"`
}

// StageCountDTO is one dashboard row.
type StageCountDTO struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// ConfigDTO exposes the current shop configuration.
type ConfigDTO struct {
	Stages     []string       `json:"stages"`
	Statuses   []string       `json:"statuses"`
	Milestones []MilestoneDTO `json:"milestones"`
}

// MilestoneDTO is one configured milestone rule.
type MilestoneDTO struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	FromStage   string  `json:"from_stage"`
	TargetStage string  `json:"target_stage"`
	Match       string  `json:"match"`
	Bucket      string  `json:"bucket"`
	Role        string  `json:"role"`
	Share       float64 `json:"share"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRepairOrderDTO(ro *ledger.RepairOrder) RepairOrderDTO {
	dto := RepairOrderDTO{
		RONumber:       string(ro.RONumber),
		Date:           ro.Date.Format(ledger.DateLayout),
		TotalHours:     f64(ro.TotalHours),
		HoursTaken:     f64(ro.HoursTaken),
		HoursRemaining: f64(ro.HoursRemaining),
		Stage:          ro.Stage,
		Status:         string(ro.Status),
		Buckets:        make(map[string]float64, len(ro.Buckets)),
		Assignments:    make(map[string]string, len(ro.Assignments)),
	}
	for b, h := range ro.Buckets {
		dto.Buckets[string(b)] = f64(h)
	}
	for r, e := range ro.Assignments {
		dto.Assignments[string(r)] = e
	}
	return dto
}

func toCreditRowDTO(row ledger.CreditRow) CreditRowDTO {
	return CreditRowDTO{
		Date:      row.Date.Format(ledger.DateLayout),
		RONumber:  string(row.RONumber),
		FromStage: row.FromStage,
		ToStage:   row.ToStage,
		Tech:      row.Tech,
		Hours:     f64(row.Hours),
		Note:      row.Note,
		Origin:    string(row.Origin),
	}
}

func toCreditRowDTOs(rows []ledger.CreditRow) []CreditRowDTO {
	dtos := make([]CreditRowDTO, len(rows))
	for i, r := range rows {
		dtos[i] = toCreditRowDTO(r)
	}
	return dtos
}

func f64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse(ledger.DateLayout, s)
}
