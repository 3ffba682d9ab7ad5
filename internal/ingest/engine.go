package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ladiesman540/crane-platform/internal/spectrum"
	"github.com/ladiesman540/crane-platform/internal/store"
)

var (
	ErrSensorNotFound   = errors.New("sensor not registered")
	ErrDuplicateReading = errors.New("duplicate reading")
	ErrInvalidPayload   = errors.New("invalid payload")
)

var (
	readingsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crane_ingest_readings_total",
			Help: "Ingestion attempts by outcome.",
		},
		[]string{"outcome"},
	)
	tenantMismatchCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crane_ingest_tenant_mismatch_total",
		Help: "Readings accepted with an API key from a different tenant than the sensor.",
	})
)

func init() { prometheus.MustRegister(readingsCounter, tenantMismatchCounter) }

type Store interface {
	SensorLookup
	ReadingExists(ctx context.Context, sensorID uuid.UUID, counter int64) (bool, error)
	InsertReading(ctx context.Context, reading *store.Reading, capture *store.SpectrumCapture) error
}

// Broadcaster receives committed reading events. It must not block.
type Broadcaster interface {
	Broadcast(ev any)
}

type Result struct {
	ReadingID int64
	SensorID  uuid.UUID
}

type Engine struct {
	store    Store
	resolver *Resolver
	events   Broadcaster
}

func NewEngine(s Store, events Broadcaster) *Engine {
	return &Engine{store: s, resolver: NewResolver(s), events: events}
}

// Ingest resolves, deduplicates and persists one reading with its optional
// spectrum, then broadcasts it. keyTenant is the tenant of the API key that
// authenticated the call, or uuid.Nil when unknown.
func (e *Engine) Ingest(ctx context.Context, keyTenant uuid.UUID, p *Payload) (Result, error) {
	ctx, span := otel.Tracer("crane-telemetry/ingest").Start(ctx, "ingest.reading")
	defer span.End()
	span.SetAttributes(attribute.String("sensor.addr", p.Addr))

	res, err := e.ingest(ctx, keyTenant, p)
	readingsCounter.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
	return res, err
}

func (e *Engine) ingest(ctx context.Context, keyTenant uuid.UUID, p *Payload) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	sc, err := e.resolver.ResolveByAddress(ctx, p.Addr)
	if err != nil {
		if errors.Is(err, ErrSensorNotFound) {
			slog.Warn("ingest for unregistered sensor", "addr", p.Addr)
		}
		return Result{}, err
	}
	if keyTenant != uuid.Nil && keyTenant != sc.OrgID {
		tenantMismatchCounter.Inc()
		slog.Warn("api key tenant differs from sensor tenant", "addr", p.Addr, "key_org", keyTenant, "sensor_org", sc.OrgID)
	}

	// Fast path only; the unique index on (sensor_id, counter) is authoritative.
	if p.Counter != nil {
		exists, err := e.store.ReadingExists(ctx, sc.ID, *p.Counter)
		if err != nil {
			return Result{}, fmt.Errorf("check duplicate: %w", err)
		}
		if exists {
			slog.Debug("duplicate reading rejected", "addr", p.Addr, "counter", *p.Counter)
			return Result{}, ErrDuplicateReading
		}
	}

	rd := p.reading()
	rd.SensorID = sc.ID

	var capture *store.SpectrumCapture
	if p.FFT != nil {
		data, err := spectrum.EncodeFloat64(p.FFT.Data)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		capture = &store.SpectrumCapture{
			Axis:         p.FFT.Axis,
			ODR:          p.FFT.ODR,
			NumBins:      p.FFT.NumBins,
			SpectrumData: data,
		}
	}

	if err := e.store.InsertReading(ctx, rd, capture); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateReading):
			slog.Debug("duplicate reading rejected by store", "addr", p.Addr)
			return Result{}, ErrDuplicateReading
		case errors.Is(err, store.ErrSpectrumMalformed):
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		slog.Error("persist reading failed", "addr", p.Addr, "error", err)
		return Result{}, fmt.Errorf("persist reading: %w", err)
	}

	// Committed: the broadcast is not tied to the caller's context.
	if e.events != nil {
		e.events.Broadcast(ReadingEvent{
			Event:          EventSensorReading,
			SensorID:       sc.ID.String(),
			ReadingID:      rd.ID,
			Temperature:    p.Temperature,
			XVelocityMMSec: p.XVelocityMMSec,
			YVelocityMMSec: p.YVelocityMMSec,
			ZVelocityMMSec: p.ZVelocityMMSec,
			BatteryPercent: p.BatteryPercent,
		})
	}
	return Result{ReadingID: rd.ID, SensorID: sc.ID}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateReading):
		return "duplicate"
	case errors.Is(err, ErrSensorNotFound):
		return "unknown_sensor"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid"
	default:
		return "error"
	}
}
