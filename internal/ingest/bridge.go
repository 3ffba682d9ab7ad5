package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/ladiesman540/crane-platform/internal/store"
)

type MQTTMessage interface {
	Topic() string
	Payload() []byte
	Retained() bool
}

// KeyVerifier authenticates the API key the bridge ingests under.
type KeyVerifier interface {
	Verify(ctx context.Context, candidate string) (*store.APIKey, error)
}

// Bridge feeds gateway MQTT messages through the engine. APIKey is checked on
// every message, so revoking it stops ingestion without a restart.
type Bridge struct {
	Engine       *Engine
	Keys         KeyVerifier
	APIKey       string
	AllowRetains bool
}

func (b *Bridge) HandleMessage(ctx context.Context, msg MQTTMessage) {
	topic := msg.Topic()
	if msg.Retained() && !b.AllowRetains {
		slog.Debug("mqtt ingest ignoring retained", "topic", topic)
		return
	}

	raw := msg.Payload()
	if len(raw) == 0 {
		return
	}
	if b.Keys == nil {
		slog.Error("mqtt ingest has no key verifier", "topic", topic)
		return
	}
	key, err := b.Keys.Verify(ctx, b.APIKey)
	if err != nil {
		slog.Warn("mqtt ingest api key rejected", "topic", topic, "error", err)
		return
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("mqtt ingest invalid json", "topic", topic, "error", err)
		return
	}
	if p.Addr == "" {
		p.Addr = AddrFromTopic(topic)
	}

	res, err := b.Engine.Ingest(ctx, key.OrgID, &p)
	switch {
	case err == nil:
		slog.Debug("mqtt reading stored", "addr", p.Addr, "reading_id", res.ReadingID)
	case errors.Is(err, ErrDuplicateReading), errors.Is(err, ErrSensorNotFound):
		// Already logged by the engine.
	case errors.Is(err, ErrInvalidPayload):
		slog.Warn("mqtt ingest rejected payload", "topic", topic, "error", err)
	default:
		slog.Error("mqtt ingest failed", "topic", topic, "addr", p.Addr, "error", err)
	}
}

// AddrFromTopic returns the last non-empty topic segment.
func AddrFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	return parts[len(parts)-1]
}
