package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateReading  = errors.New("duplicate reading")
	ErrSpectrumMalformed = errors.New("spectrum payload does not match bin count")
)

type Repo struct {
	db *gorm.DB
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
}

// OpenSQLite is used by tests and single-node development setups.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(
		&Organization{},
		&User{},
		&APIKey{},
		&Facility{},
		&Crane{},
		&Component{},
		&Sensor{},
		&BearingSpec{},
		&Reading{},
		&SpectrumCapture{},
		&AlertRule{},
		&Alert{},
	); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) DB() *gorm.DB { return r.db }

// SensorByAddress resolves a hardware address to its sensor and owning tenant.
func (r *Repo) SensorByAddress(ctx context.Context, addr string) (*SensorContext, error) {
	var out SensorContext
	res := r.db.WithContext(ctx).
		Model(&Sensor{}).
		Select("sensors.*, facilities.id AS facility_id, facilities.org_id AS org_id").
		Joins("JOIN components ON components.id = sensors.component_id").
		Joins("JOIN cranes ON cranes.id = components.crane_id").
		Joins("JOIN facilities ON facilities.id = cranes.facility_id").
		Where("sensors.mac_address = ?", addr).
		Limit(1).
		Scan(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &out, nil
}

// SensorInOrg returns the sensor only when it belongs to orgID.
func (r *Repo) SensorInOrg(ctx context.Context, sensorID, orgID uuid.UUID) (*Sensor, error) {
	var s Sensor
	err := r.db.WithContext(ctx).
		Joins("JOIN components ON components.id = sensors.component_id").
		Joins("JOIN cranes ON cranes.id = components.crane_id").
		Joins("JOIN facilities ON facilities.id = cranes.facility_id").
		Where("sensors.id = ? AND facilities.org_id = ?", sensorID, orgID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ReadingExists(ctx context.Context, sensorID uuid.UUID, counter int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Reading{}).
		Where("sensor_id = ? AND counter = ?", sensorID, counter).
		Limit(1).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertReading writes the reading and, when capture is non-nil, the spectrum
// capture in one transaction. A unique violation on (sensor_id, counter) is
// reported as ErrDuplicateReading and nothing is written.
func (r *Repo) InsertReading(ctx context.Context, reading *Reading, capture *SpectrumCapture) error {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC().Truncate(time.Microsecond)
	}
	if capture != nil {
		if len(capture.SpectrumData) != 4*capture.NumBins {
			return ErrSpectrumMalformed
		}
		capture.SensorID = reading.SensorID
		capture.Timestamp = reading.Timestamp
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(reading).Error; err != nil {
			return err
		}
		if capture == nil {
			return nil
		}
		return tx.Create(capture).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReading
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

func (r *Repo) CountReadings(ctx context.Context, sensorID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Reading{}).Where("sensor_id = ?", sensorID).Count(&n).Error
	return n, err
}

// ListReadings returns readings newest first. Zero start/end are unbounded.
func (r *Repo) ListReadings(ctx context.Context, sensorID uuid.UUID, start, end time.Time, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	exprs := []clause.Expression{
		clause.Eq{Column: clause.Column{Name: "sensor_id"}, Value: sensorID},
	}
	if !start.IsZero() {
		exprs = append(exprs, clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: start})
	}
	if !end.IsZero() {
		exprs = append(exprs, clause.Lte{Column: clause.Column{Name: "timestamp"}, Value: end})
	}
	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: true},
		{Column: clause.Column{Name: "id"}, Desc: true},
	}}

	var rows []Reading
	if err := r.db.WithContext(ctx).Clauses(clause.Where{Exprs: exprs}, order).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) LatestReading(ctx context.Context, sensorID uuid.UUID) (*Reading, error) {
	var rd Reading
	err := r.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		Order("timestamp DESC").Order("id DESC").
		First(&rd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

func (r *Repo) LatestSpectrum(ctx context.Context, sensorID uuid.UUID, axis string) (*SpectrumCapture, error) {
	q := r.db.WithContext(ctx).Where("sensor_id = ?", sensorID)
	if axis != "" {
		q = q.Where("axis = ?", axis)
	}
	var c SpectrumCapture
	err := q.Order("timestamp DESC").Order("id DESC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
