package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Channel is the redis pub/sub channel indexers listen on.
const Channel = "indexing-events"

// Index represents an indexing-related message to be emitted.
type Index struct {
	EntityType string `json:"entity_type"`
	Method     string `json:"method"`
	EntityId   string `json:"entity_id"`
	ItemId     string `json:"item_id,omitempty"`
	ItemType   string `json:"item_type,omitempty"`
}

// Message is the envelope every emitter writes.
type Message struct {
	Event string    `json:"event"`
	Index Index     `json:"index"`
	At    time.Time `json:"at"`
}

// Emitter publishes domain events. Emit failures never undo the work that
// produced the event; callers log and move on.
type Emitter interface {
	Emit(ctx context.Context, eventName string, content Index) error
}

func encode(eventName string, content Index) ([]byte, error) {
	data, err := json.Marshal(Message{Event: eventName, Index: content, At: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventName, err)
	}
	return data, nil
}

// RedisEmitter publishes to Channel.
type RedisEmitter struct {
	conn redis.UniversalClient
	log  *zerolog.Logger
}

func NewRedisEmitter(conn redis.UniversalClient, log *zerolog.Logger) *RedisEmitter {
	return &RedisEmitter{conn: conn, log: log}
}

func (e *RedisEmitter) Emit(ctx context.Context, eventName string, content Index) error {
	data, err := encode(eventName, content)
	if err != nil {
		return err
	}
	if err := e.conn.Publish(ctx, Channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s to redis: %w", eventName, err)
	}
	e.log.Debug().Str("event", eventName).Str("entity_id", content.EntityId).Msg("event published")
	return nil
}

// LogEmitter only logs. It backs the "log" driver and local development.
type LogEmitter struct {
	log *zerolog.Logger
}

func NewLogEmitter(log *zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(_ context.Context, eventName string, content Index) error {
	e.log.Info().
		Str("event", eventName).
		Str("entity_type", content.EntityType).
		Str("entity_id", content.EntityId).
		Str("method", content.Method).
		Msg("emit")
	return nil
}
