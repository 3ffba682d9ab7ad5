package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID        uuid.UUID `gorm:"type:uuid;index;not null" json:"org_id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:50;default:viewer" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIKey authenticates a gateway for a tenant. Only the bcrypt hash of the
// key is stored; Prefix holds the first characters after the "crane_" marker
// so verification can skip unrelated hashes.
type APIKey struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"org_id"`
	KeyHash   string     `gorm:"size:255;not null" json:"-"`
	Prefix    string     `gorm:"size:16;index" json:"prefix"`
	Label     string     `gorm:"size:255" json:"label"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func (APIKey) TableName() string { return "api_keys" }

func (k *APIKey) Revoked() bool { return k.RevokedAt != nil }

type Facility struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID `gorm:"type:uuid;index;not null" json:"org_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Location  string    `gorm:"size:255" json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

type Crane struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FacilityID   uuid.UUID `gorm:"type:uuid;index;not null" json:"facility_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	CraneType    string    `gorm:"size:100" json:"crane_type"`
	CapacityTons *float64  `json:"capacity_tons,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Component struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CraneID       uuid.UUID `gorm:"type:uuid;index;not null" json:"crane_id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	ComponentType string    `gorm:"size:100" json:"component_type"`
	CreatedAt     time.Time `json:"created_at"`
}

type Sensor struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ComponentID uuid.UUID  `gorm:"type:uuid;index;not null" json:"component_id"`
	MACAddress  string     `gorm:"column:mac_address;size:23;uniqueIndex;not null" json:"mac_address"`
	SensorType  int        `gorm:"default:114" json:"sensor_type"`
	Label       string     `gorm:"size:255" json:"label"`
	InstalledAt *time.Time `json:"installed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type BearingSpec struct {
	ID                       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ComponentID              uuid.UUID `gorm:"type:uuid;index;not null" json:"component_id"`
	Manufacturer             string    `gorm:"size:255" json:"manufacturer"`
	Model                    string    `gorm:"size:100" json:"model"`
	NumRollingElements       *int      `json:"num_rolling_elements,omitempty"`
	RollingElementDiameterMM *float64  `gorm:"column:rolling_element_diameter_mm" json:"rolling_element_diameter_mm,omitempty"`
	PitchDiameterMM          *float64  `gorm:"column:pitch_diameter_mm" json:"pitch_diameter_mm,omitempty"`
	ContactAngleDegrees      *float64  `json:"contact_angle_degrees,omitempty"`
	BPFO                     *float64  `gorm:"column:bpfo" json:"bpfo,omitempty"`
	BPFI                     *float64  `gorm:"column:bpfi" json:"bpfi,omitempty"`
	BSF                      *float64  `gorm:"column:bsf" json:"bsf,omitempty"`
	FTF                      *float64  `gorm:"column:ftf" json:"ftf,omitempty"`
}

// AxisMetrics is the per-axis summary reported by the vibration sensor. It is
// embedded three times in Reading with x_/y_/z_ column prefixes.
type AxisMetrics struct {
	RMSAccG        *float64 `gorm:"column:rms_acc_g" json:"rms_ACC_G"`
	MaxAccG        *float64 `gorm:"column:max_acc_g" json:"max_ACC_G"`
	VelocityMMSec  *float64 `gorm:"column:velocity_mm_sec" json:"velocity_mm_sec"`
	DisplacementMM *float64 `gorm:"column:displacement_mm" json:"displacement_mm"`
	PeakOneHz      *float64 `gorm:"column:peak_one_hz" json:"peak_one_Hz"`
	PeakTwoHz      *float64 `gorm:"column:peak_two_hz" json:"peak_two_Hz"`
	PeakThreeHz    *float64 `gorm:"column:peak_three_hz" json:"peak_three_Hz"`
}

// Reading is append-only. (sensor_id, counter) is unique; rows without a
// counter are never deduplicated.
type Reading struct {
	ID             int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	SensorID       uuid.UUID   `gorm:"type:uuid;not null;index;uniqueIndex:idx_readings_sensor_counter,priority:1;index:idx_readings_sensor_ts,priority:1" json:"sensor_id"`
	Timestamp      time.Time   `gorm:"not null;index;index:idx_readings_sensor_ts,priority:2" json:"timestamp"`
	Counter        *int64      `gorm:"uniqueIndex:idx_readings_sensor_counter,priority:2" json:"counter,omitempty"`
	Firmware       *int        `json:"firmware,omitempty"`
	BatteryPercent *int        `json:"battery_percent"`
	ODR            *int        `gorm:"column:odr" json:"odr,omitempty"`
	Temperature    *float64    `json:"temperature"`
	X              AxisMetrics `gorm:"embedded;embeddedPrefix:x_" json:"x"`
	Y              AxisMetrics `gorm:"embedded;embeddedPrefix:y_" json:"y"`
	Z              AxisMetrics `gorm:"embedded;embeddedPrefix:z_" json:"z"`
	RPM            *int        `gorm:"column:rpm" json:"rpm"`
	RSSI           *int        `gorm:"column:rssi" json:"rssi"`
}

// SpectrumCapture is correlated with its reading by sensor and timestamp, not
// by foreign key. len(SpectrumData) == 4*NumBins.
type SpectrumCapture struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SensorID     uuid.UUID `gorm:"type:uuid;not null;index" json:"sensor_id"`
	Timestamp    time.Time `gorm:"not null;index" json:"timestamp"`
	Axis         string    `gorm:"size:1;not null" json:"axis"`
	ODR          int       `gorm:"column:odr;not null" json:"odr"`
	NumBins      int       `gorm:"not null" json:"num_bins"`
	SpectrumData []byte    `gorm:"not null" json:"-"`
}

func (SpectrumCapture) TableName() string { return "fft_captures" }

// AlertRule is stored for the administration surface; nothing in this service
// evaluates it.
type AlertRule struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID           uuid.UUID      `gorm:"type:uuid;index;not null" json:"org_id"`
	SensorID        *uuid.UUID     `gorm:"type:uuid;index" json:"sensor_id,omitempty"`
	Name            string         `gorm:"size:255;not null" json:"name"`
	Conditions      datatypes.JSON `json:"conditions"`
	Channels        datatypes.JSON `json:"channels"`
	Recipients      datatypes.JSON `json:"recipients"`
	CooldownMinutes int            `gorm:"default:60" json:"cooldown_minutes"`
	Enabled         bool           `gorm:"default:true" json:"enabled"`
	CreatedAt       time.Time      `json:"created_at"`
}

type Alert struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID         *uuid.UUID `gorm:"type:uuid;index" json:"rule_id,omitempty"`
	SensorID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"sensor_id"`
	Severity       string     `gorm:"size:20;not null" json:"severity"`
	Status         string     `gorm:"size:20;default:open" json:"status"`
	Message        string     `gorm:"type:text;not null" json:"message"`
	ReadingID      *int64     `json:"reading_id,omitempty"`
	AcknowledgedBy *uuid.UUID `gorm:"type:uuid" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SensorContext is a sensor joined up its ownership chain.
type SensorContext struct {
	Sensor
	FacilityID uuid.UUID `json:"facility_id"`
	OrgID      uuid.UUID `json:"org_id"`
}
