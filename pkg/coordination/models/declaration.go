package models

import (
	"encoding/json"
	"time"

	"github.com/openutm/flightdeck/pkg/geo"
)

// Operation types supported for a flight declaration.
const (
	OperationTypeVLOS   = 1
	OperationTypeBVLOS  = 2
	OperationTypeCrewed = 3
)

// FlightDeclaration is an operator-submitted flight operation and the root of
// its coordination state. It exclusively owns its authorization, tracking
// history, KV snapshot, and conformance monitoring job.
type FlightDeclaration struct {
	ID                string `gorm:"primaryKey;size:36" json:"id"`
	OperationalIntent string `gorm:"type:text;not null" json:"-"` // JSON blob: volumes, off-nominal volumes, priority, state
	RawGeoJSON        string `gorm:"type:text" json:"-"`          // Operator-submitted feature collection, kept verbatim
	TypeOfOperation   int    `gorm:"default:1" json:"type_of_operation"`
	AircraftID        string `gorm:"size:256;default:000" json:"aircraft_id"`
	State             int    `gorm:"default:0;index" json:"state"`
	Bounds            string `gorm:"size:140" json:"bounds"` // "minLng,minLat,maxLng,maxLat"
	OriginatingParty  string `gorm:"size:100" json:"originating_party"`
	SubmittedBy       string `gorm:"size:254" json:"submitted_by,omitempty"`
	ApprovedBy        string `gorm:"size:254" json:"approved_by,omitempty"`
	IsApproved        bool   `gorm:"default:false" json:"is_approved"`

	StartDatetime           time.Time  `gorm:"index" json:"start_datetime"`
	EndDatetime             time.Time  `gorm:"index" json:"end_datetime"`
	LatestTelemetryDatetime *time.Time `json:"latest_telemetry_datetime,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Authorization *FlightAuthorization      `gorm:"foreignKey:DeclarationID;constraint:OnDelete:CASCADE" json:"authorization,omitempty"`
	Tracking      []FlightOperationTracking `gorm:"foreignKey:DeclarationID;constraint:OnDelete:CASCADE" json:"tracking,omitempty"`

	// Parsed operational intent (not stored in DB)
	ParsedIntent *OperationalIntentDetail `gorm:"-" json:"operational_intent,omitempty"`
}

// TableName returns the table name for FlightDeclaration.
func (FlightDeclaration) TableName() string {
	return "flight_declarations"
}

// OperationalIntentDetail is the declared intent stored as a JSON blob on the
// declaration: the volumes, off-nominal volumes, priority and ASTM state
// string submitted to the DSS.
type OperationalIntentDetail struct {
	Volumes           []geo.Volume4D `json:"volumes"`
	OffNominalVolumes []geo.Volume4D `json:"off_nominal_volumes"`
	Priority          int            `json:"priority"`
	State             string         `json:"state"` // ASTM state string: Accepted, Activated, ...
}

// Intent returns the parsed operational intent.
func (fd *FlightDeclaration) Intent() (*OperationalIntentDetail, error) {
	if fd.ParsedIntent != nil {
		return fd.ParsedIntent, nil
	}
	var detail OperationalIntentDetail
	if err := json.Unmarshal([]byte(fd.OperationalIntent), &detail); err != nil {
		return nil, err
	}
	fd.ParsedIntent = &detail
	return &detail, nil
}

// SetIntent stores the operational intent as the JSON blob.
func (fd *FlightDeclaration) SetIntent(detail *OperationalIntentDetail) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	fd.OperationalIntent = string(data)
	fd.ParsedIntent = detail
	return nil
}

// FlightAuthorization is the 1-to-1 companion of a declaration holding the
// DSS-assigned operational intent reference id once the DSS accepts.
type FlightAuthorization struct {
	ID                     string    `gorm:"primaryKey;size:36" json:"id"`
	DeclarationID          string    `gorm:"uniqueIndex;not null;size:36" json:"declaration_id"`
	DSSOperationalIntentID string    `gorm:"column:dss_operational_intent_id;size:36" json:"dss_operational_intent_id,omitempty"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for FlightAuthorization.
func (FlightAuthorization) TableName() string {
	return "flight_authorizations"
}

// FlightOperationTracking is an append-only history entry recorded on every
// state change of a declaration. Entries are never mutated.
type FlightOperationTracking struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	DeclarationID string    `gorm:"not null;size:36;index" json:"declaration_id"`
	OriginalState int       `json:"original_state"`
	NewState      int       `json:"new_state"`
	Notes         string    `gorm:"size:512" json:"notes,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for FlightOperationTracking.
func (FlightOperationTracking) TableName() string {
	return "flight_operation_tracking"
}

// GeoFence is a time-windowed restricted airspace area. Geofence hits are
// advisory: they clear is_approved on a declaration but never block DSS
// submission.
type GeoFence struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Name          string    `gorm:"size:100" json:"name"`
	RawGeoFence   string    `gorm:"type:text" json:"-"`
	Bounds        string    `gorm:"size:140" json:"bounds"`
	UpperLimit    float64   `json:"upper_limit"`
	LowerLimit    float64   `json:"lower_limit"`
	StartDatetime time.Time `gorm:"index" json:"start_datetime"`
	EndDatetime   time.Time `gorm:"index" json:"end_datetime"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GeoFence.
func (GeoFence) TableName() string {
	return "geo_fences"
}
