package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:store_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func seedSensor(t *testing.T, repo *Repo, addr string) *Hierarchy {
	t.Helper()
	facilityID, craneID, componentID := uuid.New(), uuid.New(), uuid.New()
	h := &Hierarchy{
		Organization: Organization{Name: "Acme"},
		Facilities:   []Facility{{ID: facilityID, Name: "Plant A"}},
		Cranes:       []Crane{{ID: craneID, FacilityID: facilityID, Name: "Overhead #1"}},
		Components:   []Component{{ID: componentID, CraneID: craneID, Name: "Hoist Motor"}},
		Sensors:      []Sensor{{ComponentID: componentID, MACAddress: addr, SensorType: 114}},
	}
	if err := repo.CreateHierarchy(context.Background(), h); err != nil {
		t.Fatalf("create hierarchy: %v", err)
	}
	return h
}

func ptr[T any](v T) *T { return &v }

func TestSensorByAddressResolvesTenant(t *testing.T) {
	repo := openTestRepo(t)
	h := seedSensor(t, repo, "AA:BB:CC:DD:EE:01")

	sc, err := repo.SensorByAddress(context.Background(), "AA:BB:CC:DD:EE:01")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sc.ID != h.Sensors[0].ID {
		t.Fatalf("expected sensor %s, got %s", h.Sensors[0].ID, sc.ID)
	}
	if sc.OrgID != h.Organization.ID {
		t.Fatalf("expected org %s, got %s", h.Organization.ID, sc.OrgID)
	}
	if sc.FacilityID != h.Facilities[0].ID {
		t.Fatalf("expected facility %s, got %s", h.Facilities[0].ID, sc.FacilityID)
	}

	if _, err := repo.SensorByAddress(context.Background(), "00:00:00:00:00:99"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertReadingRejectsDuplicateCounter(t *testing.T) {
	repo := openTestRepo(t)
	h := seedSensor(t, repo, "AA:BB:CC:DD:EE:01")
	ctx := context.Background()
	sensorID := h.Sensors[0].ID

	first := &Reading{SensorID: sensorID, Counter: ptr[int64](7), Temperature: ptr(41.2)}
	if err := repo.InsertReading(ctx, first, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("expected reading id to be assigned")
	}

	// Bypasses any pre-check: the unique index alone must reject it.
	second := &Reading{SensorID: sensorID, Counter: ptr[int64](7)}
	capture := &SpectrumCapture{Axis: "x", ODR: 1600, NumBins: 1, SpectrumData: []byte{0, 0, 0x80, 0x3f}}
	if err := repo.InsertReading(ctx, second, capture); !errors.Is(err, ErrDuplicateReading) {
		t.Fatalf("expected ErrDuplicateReading, got %v", err)
	}

	n, err := repo.CountReadings(ctx, sensorID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reading, got %d", n)
	}
	if _, err := repo.LatestSpectrum(ctx, sensorID, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected capture to be rolled back, got %v", err)
	}
}

func TestInsertReadingWithoutCounterNeverConflicts(t *testing.T) {
	repo := openTestRepo(t)
	h := seedSensor(t, repo, "AA:BB:CC:DD:EE:01")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.InsertReading(ctx, &Reading{SensorID: h.Sensors[0].ID, Temperature: ptr(20.0)}, nil); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	n, _ := repo.CountReadings(ctx, h.Sensors[0].ID)
	if n != 3 {
		t.Fatalf("expected 3 readings, got %d", n)
	}
}

func TestInsertReadingStoresCapture(t *testing.T) {
	repo := openTestRepo(t)
	h := seedSensor(t, repo, "AA:BB:CC:DD:EE:01")
	ctx := context.Background()
	sensorID := h.Sensors[0].ID

	data := []byte{0, 0, 0x80, 0x3f, 0, 0, 0x20, 0xc0}
	rd := &Reading{SensorID: sensorID}
	if err := repo.InsertReading(ctx, rd, &SpectrumCapture{Axis: "y", ODR: 800, NumBins: 2, SpectrumData: data}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	c, err := repo.LatestSpectrum(ctx, sensorID, "y")
	if err != nil {
		t.Fatalf("latest spectrum: %v", err)
	}
	if c.SensorID != sensorID || c.NumBins != 2 || string(c.SpectrumData) != string(data) {
		t.Fatalf("unexpected capture: %+v", c)
	}
	if !c.Timestamp.Equal(rd.Timestamp) {
		t.Fatalf("expected capture timestamp %v to match reading %v", c.Timestamp, rd.Timestamp)
	}
}

func TestInsertReadingRejectsMalformedCapture(t *testing.T) {
	repo := openTestRepo(t)
	h := seedSensor(t, repo, "AA:BB:CC:DD:EE:01")
	ctx := context.Background()

	err := repo.InsertReading(ctx, &Reading{SensorID: h.Sensors[0].ID}, &SpectrumCapture{Axis: "x", NumBins: 3, SpectrumData: make([]byte, 8)})
	if !errors.Is(err, ErrSpectrumMalformed) {
		t.Fatalf("expected ErrSpectrumMalformed, got %v", err)
	}
	n, _ := repo.CountReadings(ctx, h.Sensors[0].ID)
	if n != 0 {
		t.Fatalf("expected no reading written, got %d", n)
	}
}

func TestInsertReadingRollsBackWhenCaptureFails(t *testing.T) {
	repo := openTestRepo(t)
	h := seedSensor(t, repo, "AA:BB:CC:DD:EE:01")
	ctx := context.Background()

	errCapture := errors.New("capture write failed")
	err := repo.db.Callback().Create().Before("gorm:create").Register("test:fail_capture", func(tx *gorm.DB) {
		if tx.Statement.Table == (SpectrumCapture{}).TableName() {
			_ = tx.AddError(errCapture)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	err = repo.InsertReading(ctx, &Reading{SensorID: h.Sensors[0].ID, Counter: ptr(int64(1))},
		&SpectrumCapture{Axis: "x", ODR: 1600, NumBins: 1, SpectrumData: make([]byte, 4)})
	if !errors.Is(err, errCapture) {
		t.Fatalf("expected capture error, got %v", err)
	}
	n, _ := repo.CountReadings(ctx, h.Sensors[0].ID)
	if n != 0 {
		t.Fatalf("expected reading rolled back, got %d", n)
	}
	exists, err := repo.ReadingExists(ctx, h.Sensors[0].ID, 1)
	if err != nil || exists {
		t.Fatalf("expected counter 1 free for a retry, exists=%v err=%v", exists, err)
	}
}

func TestListReadingsNewestFirst(t *testing.T) {
	repo := openTestRepo(t)
	h := seedSensor(t, repo, "AA:BB:CC:DD:EE:01")
	ctx := context.Background()
	sensorID := h.Sensors[0].ID
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rd := &Reading{SensorID: sensorID, Timestamp: base.Add(time.Duration(i) * time.Minute), Counter: ptr(int64(i))}
		if err := repo.InsertReading(ctx, rd, nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rows, err := repo.ListReadings(ctx, sensorID, base.Add(time.Minute), base.Add(3*time.Minute), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if *rows[0].Counter != 3 || *rows[2].Counter != 1 {
		t.Fatalf("expected newest first, got counters %d..%d", *rows[0].Counter, *rows[2].Counter)
	}

	latest, err := repo.LatestReading(ctx, sensorID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if *latest.Counter != 4 {
		t.Fatalf("expected latest counter 4, got %d", *latest.Counter)
	}
}

func TestSensorInOrg(t *testing.T) {
	repo := openTestRepo(t)
	h := seedSensor(t, repo, "AA:BB:CC:DD:EE:01")
	ctx := context.Background()

	if _, err := repo.SensorInOrg(ctx, h.Sensors[0].ID, h.Organization.ID); err != nil {
		t.Fatalf("expected sensor in org, got %v", err)
	}
	if _, err := repo.SensorInOrg(ctx, h.Sensors[0].ID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign org, got %v", err)
	}
}

func TestActiveAPIKeysSkipsRevokedAndFiltersPrefix(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	revoked := time.Now().UTC()
	h := &Hierarchy{
		Organization: Organization{Name: "Acme"},
		APIKeys: []APIKey{
			{KeyHash: "h1", Prefix: "abcdefgh", Label: "gw-1"},
			{KeyHash: "h2", Prefix: "zzzzzzzz", Label: "gw-2"},
			{KeyHash: "h3", Label: "legacy"},
			{KeyHash: "h4", Prefix: "abcdefgh", Label: "old", RevokedAt: &revoked},
		},
	}
	if err := repo.CreateHierarchy(ctx, h); err != nil {
		t.Fatalf("create: %v", err)
	}

	keys, err := repo.ActiveAPIKeys(ctx, "abcdefgh")
	if err != nil {
		t.Fatalf("active keys: %v", err)
	}
	labels := map[string]bool{}
	for _, k := range keys {
		labels[k.Label] = true
	}
	if len(keys) != 2 || !labels["gw-1"] || !labels["legacy"] {
		t.Fatalf("expected gw-1 and legacy, got %v", labels)
	}

	all, _ := repo.ActiveAPIKeys(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 active keys, got %d", len(all))
	}

	if err := repo.RevokeAPIKey(ctx, h.APIKeys[0].ID, time.Now()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	k, err := repo.APIKeyByID(ctx, h.APIKeys[0].ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if !k.Revoked() {
		t.Fatalf("expected key to be revoked")
	}
	if err := repo.RevokeAPIKey(ctx, h.APIKeys[0].ID, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second revoke, got %v", err)
	}
}
