// internal/lobby/lobby_store.go
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/trivia-lobby/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// ErrVersionConflict is returned by CompareAndSwap when the stored record no
// longer carries the expected version.
var ErrVersionConflict = errors.New("lobby version changed")

// KeyPrefix namespaces lobby records in the key-value store.
const KeyPrefix = "lobby:"

// LobbyKey returns the store key for a lobby code.
func LobbyKey(code string) string { return KeyPrefix + code }

// Store persists whole Lobby records with a sliding TTL. Every write resets
// the record's expiry to ttl. An expired record and a deleted record are
// indistinguishable: both return models.ErrNotFound from Get.
type Store interface {
	Get(ctx context.Context, code string) (*models.Lobby, error)
	// Put writes unconditionally.
	Put(ctx context.Context, lobby *models.Lobby, ttl time.Duration) error
	// Create writes only if no live record holds the code. It reports whether
	// the write happened.
	Create(ctx context.Context, lobby *models.Lobby, ttl time.Duration) (bool, error)
	// CompareAndSwap writes only if the stored record's version equals
	// expected. It returns ErrVersionConflict otherwise and models.ErrNotFound
	// if the record is gone.
	CompareAndSwap(ctx context.Context, lobby *models.Lobby, expected int64, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
}

// MemoryStore is a single-process Store. Records are kept serialized so that
// callers never share memory with the stored copy.
type MemoryStore struct {
	mu      sync.Mutex
	lobbies map[string]memoryEntry
	clock   clockwork.Clock
	log     logrus.FieldLogger
}

type memoryEntry struct {
	data      []byte
	version   int64
	expiresAt time.Time
}

// NewMemoryStore returns an empty store driven by clock.
func NewMemoryStore(clock clockwork.Clock, logger logrus.FieldLogger) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MemoryStore{
		lobbies: make(map[string]memoryEntry),
		clock:   clock,
		log:     logger,
	}
}

// Get returns a private copy of the live record for code.
func (s *MemoryStore) Get(ctx context.Context, code string) (*models.Lobby, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	e, ok := s.liveEntryLocked(code)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, code)
	}
	return decodeLobby(e.data)
}

func (s *MemoryStore) Put(ctx context.Context, lobby *models.Lobby, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := s.newEntry(lobby, ttl)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbies[LobbyKey(lobby.Code)] = e
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, lobby *models.Lobby, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e, err := s.newEntry(lobby, ttl)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.liveEntryLocked(lobby.Code); exists {
		return false, nil
	}
	s.lobbies[LobbyKey(lobby.Code)] = e
	return true, nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, lobby *models.Lobby, expected int64, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := s.newEntry(lobby, ttl)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.liveEntryLocked(lobby.Code)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, lobby.Code)
	}
	if cur.version != expected {
		return ErrVersionConflict
	}
	s.lobbies[LobbyKey(lobby.Code)] = e
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, LobbyKey(code))
	return nil
}

// Len returns the number of stored records, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}

// Sweep drops every expired record and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.lobbies {
		if !now.Before(e.expiresAt) {
			delete(s.lobbies, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired records every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if n := s.Sweep(); n > 0 {
				s.log.WithField("removed", n).Debug("MemoryStore: swept expired lobbies")
			}
		}
	}
}

// liveEntryLocked returns the entry for code if it has not expired, dropping
// it otherwise. Caller holds s.mu.
func (s *MemoryStore) liveEntryLocked(code string) (memoryEntry, bool) {
	key := LobbyKey(code)
	e, ok := s.lobbies[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.lobbies, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) newEntry(lobby *models.Lobby, ttl time.Duration) (memoryEntry, error) {
	data, err := json.Marshal(lobby)
	if err != nil {
		return memoryEntry{}, fmt.Errorf("marshal lobby %s: %w", lobby.Code, err)
	}
	return memoryEntry{
		data:      data,
		version:   lobby.Version,
		expiresAt: s.clock.Now().Add(ttl),
	}, nil
}

func decodeLobby(data []byte) (*models.Lobby, error) {
	var l models.Lobby
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("unmarshal lobby: %w", err)
	}
	l.GameState.Normalize()
	return &l, nil
}
