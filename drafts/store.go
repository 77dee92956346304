package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventdesk/models"

	"github.com/redis/go-redis/v9"
)

// Session is what survives between requests: the baseline and the edits.
type Session struct {
	Initial models.EventDraft `json:"initial"`
	Current models.EventDraft `json:"current"`
}

// Store keeps one session per account and event. eventID is empty for the
// create flow.
type Store interface {
	Load(ctx context.Context, accountID, eventID string) (Session, bool, error)
	Save(ctx context.Context, accountID, eventID string, s Session) error
	Delete(ctx context.Context, accountID, eventID string) error
}

// Key is draft:{accountid}:{eventid|new}.
func Key(accountID, eventID string) string {
	if eventID == "" {
		eventID = "new"
	}
	return "draft:" + accountID + ":" + eventID
}

type RedisStore struct {
	conn redis.UniversalClient
	ttl  time.Duration
}

func NewRedisStore(conn redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{conn: conn, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, accountID, eventID string) (Session, bool, error) {
	raw, err := s.conn.Get(ctx, Key(accountID, eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("load draft: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false, fmt.Errorf("decode draft: %w", err)
	}
	return sess, true, nil
}

func (s *RedisStore) Save(ctx context.Context, accountID, eventID string, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.conn.Set(ctx, Key(accountID, eventID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, accountID, eventID string) error {
	if err := s.conn.Del(ctx, Key(accountID, eventID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// MemoryStore keeps sessions in process, without expiry.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, accountID, eventID string) (Session, bool, error) {
	s.mu.Lock()
	raw, ok := s.sessions[Key(accountID, eventID)]
	s.mu.Unlock()
	if !ok {
		return Session{}, false, nil
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false, fmt.Errorf("decode draft: %w", err)
	}
	return sess, true, nil
}

func (s *MemoryStore) Save(_ context.Context, accountID, eventID string, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	s.mu.Lock()
	s.sessions[Key(accountID, eventID)] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, accountID, eventID string) error {
	s.mu.Lock()
	delete(s.sessions, Key(accountID, eventID))
	s.mu.Unlock()
	return nil
}

// Workspace binds a manager to the stored session it came from.
type Workspace struct {
	store     Store
	accountID string
	eventID   string
	Guard     *FlagGuard
	Manager   *Manager
}

// Open resumes the stored session for (accountID, eventID) or starts one
// from hydrate when none exists.
func Open(ctx context.Context, store Store, accountID, eventID string, hydrate func(ctx context.Context) (models.EventDraft, error)) (*Workspace, error) {
	guard := &FlagGuard{}
	w := &Workspace{store: store, accountID: accountID, eventID: eventID, Guard: guard}

	sess, ok, err := store.Load(ctx, accountID, eventID)
	if err != nil {
		return nil, err
	}
	if ok {
		w.Manager = Restore(sess, guard)
		return w, nil
	}

	initial, err := hydrate(ctx)
	if err != nil {
		return nil, err
	}
	w.Manager = New(initial, guard)
	return w, nil
}

func (w *Workspace) Save(ctx context.Context) error {
	return w.store.Save(ctx, w.accountID, w.eventID, w.Manager.Session())
}

// Discard resets dirty tracking and forgets the stored session.
func (w *Workspace) Discard(ctx context.Context) error {
	w.Manager.Discard()
	return w.store.Delete(ctx, w.accountID, w.eventID)
}
