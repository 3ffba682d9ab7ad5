package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Hierarchy is one tenant's full asset tree, written in a single transaction.
// Asset administration owns these rows; the service only creates them when
// seeding.
type Hierarchy struct {
	Organization Organization
	Users        []User
	APIKeys      []APIKey
	Facilities   []Facility
	Cranes       []Crane
	Components   []Component
	Sensors      []Sensor
}

func (r *Repo) CreateHierarchy(ctx context.Context, h *Hierarchy) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if h.Organization.ID == uuid.Nil {
			h.Organization.ID = uuid.New()
		}
		stamp(&h.Organization.CreatedAt, now)
		if err := tx.Create(&h.Organization).Error; err != nil {
			return err
		}
		for i := range h.Users {
			u := &h.Users[i]
			ensureID(&u.ID)
			u.OrgID = h.Organization.ID
			stamp(&u.CreatedAt, now)
			if err := tx.Create(u).Error; err != nil {
				return err
			}
		}
		for i := range h.APIKeys {
			k := &h.APIKeys[i]
			ensureID(&k.ID)
			k.OrgID = h.Organization.ID
			stamp(&k.CreatedAt, now)
			if err := tx.Create(k).Error; err != nil {
				return err
			}
		}
		for i := range h.Facilities {
			f := &h.Facilities[i]
			ensureID(&f.ID)
			f.OrgID = h.Organization.ID
			stamp(&f.CreatedAt, now)
			if err := tx.Create(f).Error; err != nil {
				return err
			}
		}
		for i := range h.Cranes {
			c := &h.Cranes[i]
			ensureID(&c.ID)
			stamp(&c.CreatedAt, now)
			if err := tx.Create(c).Error; err != nil {
				return err
			}
		}
		for i := range h.Components {
			c := &h.Components[i]
			ensureID(&c.ID)
			stamp(&c.CreatedAt, now)
			if err := tx.Create(c).Error; err != nil {
				return err
			}
		}
		for i := range h.Sensors {
			s := &h.Sensors[i]
			ensureID(&s.ID)
			stamp(&s.CreatedAt, now)
			if err := tx.Create(s).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func stamp(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}
