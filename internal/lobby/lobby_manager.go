// internal/lobby/lobby_manager.go

package lobby

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/jason-s-yu/trivia-lobby/internal/auth"
	"github.com/jason-s-yu/trivia-lobby/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is how long a lobby lives after its last write.
	DefaultTTL = 24 * time.Hour
	// DefaultRetries bounds conditional-write retries per mutation.
	DefaultRetries = 8

	maxPlayerNameLen = 32
	maxLobbyNameLen  = 64
)

var (
	ErrNotHost       = fmt.Errorf("%w: only the host can perform this action", models.ErrForbidden)
	ErrWrongPassword = fmt.Errorf("%w: incorrect password", models.ErrForbidden)
	ErrNameTaken     = fmt.Errorf("%w: player name already taken", models.ErrConflict)
	ErrStaleVersion  = fmt.Errorf("%w: lobby changed since the given version", models.ErrConflict)
	ErrCodeExhausted = fmt.Errorf("%w: failed to generate unique code", models.ErrInternal)

	// errNoChange lets a mutation decline to write.
	errNoChange = errors.New("no change")
)

// ResultPublisher receives the outcome of every game that ends.
type ResultPublisher interface {
	PublishGameResult(ctx context.Context, result models.GameResult) error
}

// Manager implements the lobby lifecycle and every game-state mutation on
// top of a Store. It holds no lobby state itself, so any number of Manager
// instances may share one Store.
//
// Every mutation is a read, pure update, version bump and conditional write.
// A write that loses a race is retried from a fresh read with backoff.
type Manager struct {
	store      Store
	clock      clockwork.Clock
	log        logrus.FieldLogger
	ttl        time.Duration
	retries    uint64
	results    ResultPublisher
	hasher     auth.Hasher
	newBackOff func() backoff.BackOff
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

func WithLogger(l logrus.FieldLogger) Option { return func(m *Manager) { m.log = l } }

// WithTTL sets the sliding expiry applied on every write.
func WithTTL(ttl time.Duration) Option { return func(m *Manager) { m.ttl = ttl } }

// WithRetries sets how many times a conflicting write is retried.
func WithRetries(n uint64) Option { return func(m *Manager) { m.retries = n } }

// WithResultPublisher archives finished games.
func WithResultPublisher(p ResultPublisher) Option { return func(m *Manager) { m.results = p } }

// WithHasher overrides the password hashing cost.
func WithHasher(h auth.Hasher) Option { return func(m *Manager) { m.hasher = h } }

// WithBackOff overrides the retry schedule. f is called once per mutation.
func WithBackOff(f func() backoff.BackOff) Option { return func(m *Manager) { m.newBackOff = f } }

// NewManager builds a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		clock:      clockwork.NewRealClock(),
		log:        logrus.StandardLogger(),
		ttl:        DefaultTTL,
		retries:    DefaultRetries,
		hasher:     auth.DefaultHasher,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	b.Reset()
	return b
}

// CreateResult is returned by Create.
type CreateResult struct {
	Code   string
	HostID string
}

// JoinResult is returned by Join.
type JoinResult struct {
	PlayerID string
	Code     string
}

// BuzzResult is returned by Buzz.
type BuzzResult struct {
	Position  int
	Timestamp int64
}

// Create opens a new lobby with an empty game state.
func (m *Manager) Create(ctx context.Context, password string) (CreateResult, error) {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: hash password: %w", models.ErrInternal, err)
	}

	hostID := GenerateHostID()
	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code, err := GenerateLobbyCode()
		if err != nil {
			return CreateResult{}, fmt.Errorf("%w: %w", models.ErrInternal, err)
		}
		now := m.clock.Now().UnixMilli()
		l := &models.Lobby{
			Code:         code,
			HostID:       hostID,
			PasswordHash: hash,
			CreatedAt:    now,
			IsActive:     true,
			LastModified: now,
			GameState:    models.NewGameState(),
		}
		ok, err := m.store.Create(ctx, l, m.ttl)
		if err != nil {
			return CreateResult{}, fmt.Errorf("%w: create lobby: %w", models.ErrInternal, err)
		}
		if ok {
			m.log.WithFields(logrus.Fields{"code": code, "hasPassword": hash != ""}).Info("Lobby created")
			return CreateResult{Code: code, HostID: hostID}, nil
		}
		m.log.WithFields(logrus.Fields{"code": code, "attempt": attempt + 1}).Debug("Lobby code collision")
	}
	return CreateResult{}, ErrCodeExhausted
}

// Join adds a player to the lobby.
func (m *Manager) Join(ctx context.Context, code, playerName, password string) (JoinResult, error) {
	code = NormalizeCode(code)
	name := strings.TrimSpace(playerName)
	if code == "" || name == "" {
		return JoinResult{}, fmt.Errorf("%w: code and player name required", models.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxPlayerNameLen {
		return JoinResult{}, fmt.Errorf("%w: player name longer than %d characters", models.ErrInvalidInput, maxPlayerNameLen)
	}

	// Password verification is expensive, so it runs once against this read
	// rather than inside the retry loop. The write below is pinned to the
	// same lobby instance through its host id.
	pre, err := m.load(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}
	if !pre.IsActive {
		return JoinResult{}, models.ErrGone
	}
	ok, err := m.hasher.Verify(password, pre.PasswordHash)
	if err != nil {
		return JoinResult{}, fmt.Errorf("%w: verify password: %w", models.ErrInternal, err)
	}
	if !ok {
		return JoinResult{}, ErrWrongPassword
	}

	playerID := GeneratePlayerID()
	_, err = m.mutate(ctx, code, "join", func(l *models.Lobby, _ time.Time) error {
		if l.HostID != pre.HostID {
			return fmt.Errorf("%w: %s", models.ErrNotFound, code)
		}
		if !l.IsActive {
			return models.ErrGone
		}
		for _, p := range l.GameState.Players {
			if models.SameName(p.Name, name) {
				return ErrNameTaken
			}
		}
		l.GameState.Players = append(l.GameState.Players, models.Player{ID: playerID, Name: name})
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{PlayerID: playerID, Code: code}, nil
}

// Leave removes a player. When the host leaves with its own id the whole
// lobby is deleted and Leave reports true.
func (m *Manager) Leave(ctx context.Context, code, playerID string, isHost bool) (bool, error) {
	code = NormalizeCode(code)
	l, err := m.load(ctx, code)
	if err != nil {
		return false, err
	}
	if isHost && sameToken(l.HostID, playerID) {
		if err := m.store.Delete(ctx, code); err != nil {
			return false, fmt.Errorf("%w: delete lobby %s: %w", models.ErrInternal, code, err)
		}
		m.log.WithField("code", code).Info("Lobby closed by host")
		return true, nil
	}

	_, err = m.mutate(ctx, code, "leave", func(l *models.Lobby, _ time.Time) error {
		idx := l.FindPlayer(playerID)
		if idx < 0 {
			return errNoChange
		}
		gs := &l.GameState
		gs.Players = append(gs.Players[:idx], gs.Players[idx+1:]...)
		queue := gs.BuzzerQueue[:0]
		for _, ev := range gs.BuzzerQueue {
			if ev.PlayerID != playerID {
				queue = append(queue, ev)
			}
		}
		gs.BuzzerQueue = queue
		return nil
	})
	return false, err
}

// Rename sets the lobby's display name. An empty name clears it.
func (m *Manager) Rename(ctx context.Context, code, hostID, lobbyName string) (string, error) {
	name := strings.TrimSpace(lobbyName)
	if utf8.RuneCountInString(name) > maxLobbyNameLen {
		return "", fmt.Errorf("%w: lobby name longer than %d characters", models.ErrInvalidInput, maxLobbyNameLen)
	}
	l, err := m.mutate(ctx, NormalizeCode(code), "rename", func(l *models.Lobby, _ time.Time) error {
		if err := authorizeHost(l, hostID); err != nil {
			return err
		}
		l.LobbyName = name
		return nil
	})
	if err != nil {
		return "", err
	}
	return l.LobbyName, nil
}

// SetActive flips the lobby's liveness flag. Inactive lobbies refuse joins.
func (m *Manager) SetActive(ctx context.Context, code, hostID string, active bool) (*models.Lobby, error) {
	return m.mutate(ctx, NormalizeCode(code), "set_active", func(l *models.Lobby, _ time.Time) error {
		if err := authorizeHost(l, hostID); err != nil {
			return err
		}
		l.IsActive = active
		return nil
	})
}

// Close deletes the lobby for everyone.
func (m *Manager) Close(ctx context.Context, code, hostID string) error {
	code = NormalizeCode(code)
	l, err := m.load(ctx, code)
	if err != nil {
		return err
	}
	if err := authorizeHost(l, hostID); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, code); err != nil {
		return fmt.Errorf("%w: delete lobby %s: %w", models.ErrInternal, code, err)
	}
	m.log.WithField("code", code).Info("Lobby closed")
	return nil
}

// Read returns the client view of the lobby. It never contains the password.
func (m *Manager) Read(ctx context.Context, code string) (models.PublicLobby, error) {
	l, err := m.load(ctx, NormalizeCode(code))
	if err != nil {
		return models.PublicLobby{}, err
	}
	return l.Public(), nil
}

// Version is the cheap polling read.
func (m *Manager) Version(ctx context.Context, code string) (models.VersionInfo, error) {
	l, err := m.load(ctx, NormalizeCode(code))
	if err != nil {
		return models.VersionInfo{}, err
	}
	return l.VersionInfo(), nil
}

// GameState returns the embedded game state.
func (m *Manager) GameState(ctx context.Context, code string) (models.GameState, error) {
	l, err := m.load(ctx, NormalizeCode(code))
	if err != nil {
		return models.GameState{}, err
	}
	return l.GameState, nil
}

// load reads a lobby, mapping store failures to ErrInternal.
func (m *Manager) load(ctx context.Context, code string) (*models.Lobby, error) {
	l, err := m.store.Get(ctx, code)
	if err == nil {
		return l, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	m.log.WithError(err).WithField("code", code).Error("Lobby read failed")
	return nil, fmt.Errorf("%w: read lobby %s: %w", models.ErrInternal, code, err)
}

// mutate runs fn against a fresh copy of the lobby and writes the result
// conditionally on the version that was read. fn may run more than once and
// must not keep state between calls beyond what it assigns for the caller.
func (m *Manager) mutate(ctx context.Context, code, op string, fn func(l *models.Lobby, now time.Time) error) (*models.Lobby, error) {
	var out *models.Lobby
	attempts := 0

	operation := func() error {
		attempts++
		l, err := m.load(ctx, code)
		if err != nil {
			return backoff.Permanent(err)
		}
		now := m.clock.Now()
		base := l.Version
		if err := fn(l, now); err != nil {
			if errors.Is(err, errNoChange) {
				out = l
				return nil
			}
			return backoff.Permanent(err)
		}
		l.Version = base + 1
		l.LastModified = now.UnixMilli()
		l.GameState.Normalize()

		err = m.store.CompareAndSwap(ctx, l, base, m.ttl)
		switch {
		case err == nil:
			out = l
			return nil
		case errors.Is(err, ErrVersionConflict):
			m.log.WithFields(logrus.Fields{"code": code, "op": op, "attempt": attempts}).Debug("Lobby write lost race, retrying")
			return err
		case errors.Is(err, models.ErrNotFound):
			return backoff.Permanent(err)
		default:
			m.log.WithError(err).WithFields(logrus.Fields{"code": code, "op": op}).Error("Lobby write failed")
			return backoff.Permanent(fmt.Errorf("%w: write lobby %s: %w", models.ErrInternal, code, err))
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), m.retries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			m.log.WithFields(logrus.Fields{"code": code, "op": op, "attempts": attempts}).Warn("Lobby write gave up under contention")
			return nil, fmt.Errorf("%w: lobby %s is busy, try again", models.ErrInternal, code)
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrInternal, op, err)
		}
		return nil, err
	}

	m.log.WithFields(logrus.Fields{"code": code, "op": op, "version": out.Version}).Debug("Lobby updated")
	return out, nil
}

func authorizeHost(l *models.Lobby, hostID string) error {
	if !sameToken(l.HostID, hostID) {
		return ErrNotHost
	}
	return nil
}

// sameToken compares bearer tokens in constant time. Empty never matches.
func sameToken(stored, given string) bool {
	if stored == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
