package model

import "time"

// Risk levels
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Lifecycle statuses. The graph is fully connected: any status may move to
// any other status, including back to an earlier one.
const (
	StatusPending   = "Pending"
	StatusCleaning  = "Cleaning"
	StatusClean     = "Clean"
	StatusRecurrent = "Recurrent"
)

// Risks and Statuses list the literal values in display order.
var (
	Risks    = []string{RiskLow, RiskMedium, RiskHigh}
	Statuses = []string{StatusPending, StatusCleaning, StatusClean, StatusRecurrent}
)

// ValidRisk reports whether r is one of the three risk literals.
func ValidRisk(r string) bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// ValidStatus reports whether s is one of the four status literals.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusCleaning || s == StatusClean || s == StatusRecurrent
}

// Lot represents a registered vacant lot
type Lot struct {
	ID               int64     `json:"id"`
	Neighborhood     string    `json:"neighborhood"`
	MicroArea        *string   `json:"micro_area,omitempty"` // Pointer for optional field
	Address          string    `json:"address"`
	ReferenceNote    *string   `json:"reference_note,omitempty"`
	HasTrash         bool      `json:"has_trash"`
	HasStandingWater bool      `json:"has_standing_water"`
	Risk             string    `json:"risk"`
	Status           string    `json:"status"`
	Notes            *string   `json:"notes,omitempty"`
	Latitude         *string   `json:"latitude,omitempty"`  // Opaque display strings, not validated
	Longitude        *string   `json:"longitude,omitempty"` // (kept as text for the map view)
	CreatedBy        *int      `json:"created_by,omitempty"`
	CreatedByName    *string   `json:"created_by_name,omitempty"` // Joined from users for display/export
	PhotoCount       int       `json:"photo_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Photo is a stored attachment of a lot. Created only through the
// attachment manager, never mutated, removed only with its lot.
type Photo struct {
	ID             int64     `json:"id"`
	LotID          int64     `json:"lot_id"`
	StoredFilename string    `json:"stored_filename"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatusChange is one append-only audit record of a completed status
// transition. Read newest-first.
type StatusChange struct {
	ID             int64     `json:"id"`
	LotID          int64     `json:"lot_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ActorID        *int      `json:"actor_id,omitempty"`
	ChangedAt      time.Time `json:"changed_at"`
}

// CreateLotRequest is used for registering a new lot
type CreateLotRequest struct {
	Neighborhood     string  `form:"neighborhood" binding:"required"`
	MicroArea        *string `form:"micro_area"`
	Address          string  `form:"address" binding:"required"`
	ReferenceNote    *string `form:"reference_note"`
	HasTrash         bool    `form:"has_trash"`
	HasStandingWater bool    `form:"has_standing_water"`
	Risk             string  `form:"risk" binding:"required"`
	Status           string  `form:"status"` // Defaults to Pending when empty
	Notes            *string `form:"notes"`
	Latitude         *string `form:"latitude"`
	Longitude        *string `form:"longitude"`
}

// UpdateLotRequest carries partial field updates for an existing lot.
// Status is deliberately absent: it only moves through the lifecycle
// operation so every change is audited.
type UpdateLotRequest struct {
	Neighborhood     *string `form:"neighborhood"`
	MicroArea        *string `form:"micro_area"`
	Address          *string `form:"address"`
	ReferenceNote    *string `form:"reference_note"`
	HasTrash         *bool   `form:"has_trash"`
	HasStandingWater *bool   `form:"has_standing_water"`
	Risk             *string `form:"risk"`
	Notes            *string `form:"notes"`
	Latitude         *string `form:"latitude"`
	Longitude        *string `form:"longitude"`
}

// LotFilters contains the optional exact-match filters of the listing and
// export operations
type LotFilters struct {
	Neighborhood *string
	Risk         *string
	Status       *string
}

// Scope is the actor-dependent visibility boundary. A nil CreatedBy means
// unrestricted (admin); otherwise only lots created by that user.
type Scope struct {
	CreatedBy *int
}

// ScopeFor derives the visibility scope of an actor.
func ScopeFor(actor Actor) Scope {
	if actor.IsAdmin {
		return Scope{}
	}
	id := actor.ID
	return Scope{CreatedBy: &id}
}

// LotListing is the dashboard result: the filtered items plus aggregates
// computed over the whole scope, ignoring the active filters.
type LotListing struct {
	Items                 []Lot            `json:"items"`
	DistinctNeighborhoods []string         `json:"distinct_neighborhoods"`
	TotalsByStatus        map[string]int64 `json:"totals_by_status"`
	TotalsByRisk          map[string]int64 `json:"totals_by_risk"`
	TotalCount            int64            `json:"total_count"`
}

// UploadSummary reports the outcome of a batch of photo uploads. Dropped
// files are a warning, not a failure: accepted files stay saved.
type UploadSummary struct {
	Added   int    `json:"added"`
	Dropped int    `json:"dropped"`
	Warning string `json:"warning,omitempty"`
}
