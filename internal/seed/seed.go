package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ladiesman540/crane-platform/internal/auth"
	"github.com/ladiesman540/crane-platform/internal/store"
)

// Fixture describes one tenant and its asset tree.
type Fixture struct {
	Organization string       `yaml:"organization"`
	Users        []UserSpec   `yaml:"users"`
	APIKeys      []APIKeySpec `yaml:"api_keys"`
	Facilities   []Facility   `yaml:"facilities"`
}

type UserSpec struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type APIKeySpec struct {
	Label string `yaml:"label"`
}

type Facility struct {
	Name     string  `yaml:"name"`
	Location string  `yaml:"location"`
	Cranes   []Crane `yaml:"cranes"`
}

type Crane struct {
	Name         string      `yaml:"name"`
	CraneType    string      `yaml:"crane_type"`
	CapacityTons *float64    `yaml:"capacity_tons"`
	Components   []Component `yaml:"components"`
}

type Component struct {
	Name          string   `yaml:"name"`
	ComponentType string   `yaml:"component_type"`
	Sensors       []Sensor `yaml:"sensors"`
}

type Sensor struct {
	MACAddress string `yaml:"mac_address"`
	Label      string `yaml:"label"`
	SensorType int    `yaml:"sensor_type"`
}

// IssuedKey is a generated API key. Raw is only available here.
type IssuedKey struct {
	ID    uuid.UUID
	Label string
	Raw   string
}

type Result struct {
	Hierarchy *store.Hierarchy
	Keys      []IssuedKey
}

func Parse(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) Validate() error {
	var errs []error
	if strings.TrimSpace(f.Organization) == "" {
		errs = append(errs, errors.New("organization is required"))
	}
	for i, u := range f.Users {
		if strings.TrimSpace(u.Email) == "" || u.Password == "" {
			errs = append(errs, fmt.Errorf("users[%d]: email and password are required", i))
		}
	}
	seen := map[string]bool{}
	for _, fac := range f.Facilities {
		for _, c := range fac.Cranes {
			for _, comp := range c.Components {
				for _, s := range comp.Sensors {
					addr := strings.TrimSpace(s.MACAddress)
					if addr == "" {
						errs = append(errs, fmt.Errorf("sensor under %q has no mac_address", comp.Name))
						continue
					}
					if seen[addr] {
						errs = append(errs, fmt.Errorf("duplicate mac_address %s", addr))
					}
					seen[addr] = true
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Build hashes secrets, generates API keys and flattens the tree into a
// store.Hierarchy with parent ids assigned.
func (f *Fixture) Build() (*Result, error) {
	h := &store.Hierarchy{Organization: store.Organization{ID: uuid.New(), Name: f.Organization}}

	for _, u := range f.Users {
		hash, err := auth.HashSecret(u.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", u.Email, err)
		}
		role := u.Role
		if role == "" {
			role = "viewer"
		}
		h.Users = append(h.Users, store.User{ID: uuid.New(), Email: strings.TrimSpace(u.Email), PasswordHash: hash, Role: role})
	}

	var keys []IssuedKey
	for _, k := range f.APIKeys {
		raw, prefix, hash, err := auth.GenerateAPIKey()
		if err != nil {
			return nil, fmt.Errorf("generate api key %q: %w", k.Label, err)
		}
		id := uuid.New()
		h.APIKeys = append(h.APIKeys, store.APIKey{ID: id, KeyHash: hash, Prefix: prefix, Label: k.Label})
		keys = append(keys, IssuedKey{ID: id, Label: k.Label, Raw: raw})
	}

	for _, fac := range f.Facilities {
		facID := uuid.New()
		h.Facilities = append(h.Facilities, store.Facility{ID: facID, Name: fac.Name, Location: fac.Location})
		for _, c := range fac.Cranes {
			craneID := uuid.New()
			h.Cranes = append(h.Cranes, store.Crane{ID: craneID, FacilityID: facID, Name: c.Name, CraneType: c.CraneType, CapacityTons: c.CapacityTons})
			for _, comp := range c.Components {
				compID := uuid.New()
				h.Components = append(h.Components, store.Component{ID: compID, CraneID: craneID, Name: comp.Name, ComponentType: comp.ComponentType})
				for _, s := range comp.Sensors {
					st := s.SensorType
					if st == 0 {
						st = 114
					}
					h.Sensors = append(h.Sensors, store.Sensor{
						ID: uuid.New(), ComponentID: compID, MACAddress: strings.TrimSpace(s.MACAddress), SensorType: st, Label: s.Label,
					})
				}
			}
		}
	}
	return &Result{Hierarchy: h, Keys: keys}, nil
}

// Apply builds the fixture and writes it in one transaction.
func Apply(ctx context.Context, repo *store.Repo, f *Fixture) (*Result, error) {
	res, err := f.Build()
	if err != nil {
		return nil, err
	}
	if err := repo.CreateHierarchy(ctx, res.Hierarchy); err != nil {
		return nil, fmt.Errorf("write fixture: %w", err)
	}
	return res, nil
}
