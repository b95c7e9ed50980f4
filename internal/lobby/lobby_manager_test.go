// internal/lobby/lobby_manager_test.go
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jason-s-yu/trivia-lobby/internal/auth"
	"github.com/jason-s-yu/trivia-lobby/internal/game"
	"github.com/jason-s-yu/trivia-lobby/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0          = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	codePattern = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{4}$`)
	testHasher  = auth.Hasher{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
)

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

type testEnv struct {
	m     *Manager
	store *MemoryStore
	clock *clockwork.FakeClock
	logs  *logtest.Hook
}

// setupTestManager wires a Manager over a fresh MemoryStore and a fake clock.
func setupTestManager(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	store := NewMemoryStore(clock, logger)
	base := []Option{
		WithClock(clock),
		WithLogger(logger),
		WithHasher(testHasher),
		WithBackOff(zeroBackOff),
	}
	m := NewManager(store, append(base, opts...)...)
	return &testEnv{m: m, store: store, clock: clock, logs: hook}
}

// createLobby opens a lobby and joins the named players, returning the code,
// the host id and the player ids in join order.
func (e *testEnv) createLobby(t *testing.T, password string, names ...string) (string, string, []string) {
	t.Helper()
	ctx := context.Background()
	res, err := e.m.Create(ctx, password)
	require.NoError(t, err)
	var ids []string
	for _, n := range names {
		j, err := e.m.Join(ctx, res.Code, n, password)
		require.NoError(t, err)
		ids = append(ids, j.PlayerID)
	}
	return res.Code, res.HostID, ids
}

func TestCreateLobby(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()

	res, err := env.m.Create(ctx, "")
	require.NoError(t, err)
	assert.Regexp(t, codePattern, res.Code)
	assert.Regexp(t, `^host_[0-9a-f-]{36}$`, res.HostID)

	l, err := env.m.Read(ctx, res.Code)
	require.NoError(t, err)
	assert.False(t, l.HasPassword)
	assert.True(t, l.IsActive)
	assert.Equal(t, int64(0), l.Version)
	assert.Equal(t, t0.UnixMilli(), l.CreatedAt)
	assert.Equal(t, l.CreatedAt, l.LastModified)
	assert.Empty(t, l.GameState.Players)
	assert.Equal(t, models.DefaultTimerDuration, l.GameState.TimerDuration)
}

func TestReadIsCaseInsensitive(t *testing.T) {
	env := setupTestManager(t)
	code, _, _ := env.createLobby(t, "")

	l, err := env.m.Read(context.Background(), " "+toLower(code)+" ")
	require.NoError(t, err)
	assert.Equal(t, code, l.Code)
}

func TestCreateGivesUpAfterCodeCollisions(t *testing.T) {
	store := &collidingStore{MemoryStore: NewMemoryStore(clockwork.NewFakeClockAt(t0), nil)}
	m := NewManager(store, WithHasher(testHasher), WithLogger(logrus.New()))

	_, err := m.Create(context.Background(), "")
	assert.ErrorIs(t, err, ErrCodeExhausted)
	assert.ErrorIs(t, err, models.ErrInternal)
	assert.Equal(t, MaxCodeAttempts, store.attempts)
}

func TestPasswordNeverLeavesServer(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, _, _ := env.createLobby(t, "hunter2")

	l, err := env.m.Read(ctx, code)
	require.NoError(t, err)
	assert.True(t, l.HasPassword)

	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.NotContains(t, string(data), "password\"")
	assert.NotContains(t, string(data), "passwordHash")

	// stored form is a hash, not the plaintext
	raw, err := env.store.Get(ctx, code)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", raw.PasswordHash)
	assert.Contains(t, raw.PasswordHash, "$argon2id$")
}

func TestJoinNameConflict(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, _, _ := env.createLobby(t, "", "Alice")

	_, err := env.m.Join(ctx, code, "alice", "")
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = env.m.Join(ctx, code, "  ALICE ", "")
	assert.ErrorIs(t, err, models.ErrConflict)

	gs, err := env.m.GameState(ctx, code)
	require.NoError(t, err)
	assert.Len(t, gs.Players, 1)
}

func TestJoinFailureModes(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, _ := env.createLobby(t, "secret")

	_, err := env.m.Join(ctx, "ZZZZ", "Alice", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = env.m.Join(ctx, code, "", "secret")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.m.Join(ctx, code, "Alice", "wrong")
	assert.ErrorIs(t, err, models.ErrForbidden)

	j, err := env.m.Join(ctx, code, "Alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, code, j.Code)
	assert.Regexp(t, `^player_`, j.PlayerID)

	gs, err := env.m.GameState(ctx, code)
	require.NoError(t, err)
	require.Len(t, gs.Players, 1)
	assert.Equal(t, models.Player{ID: j.PlayerID, Name: "Alice"}, gs.Players[0])

	_, err = env.m.SetActive(ctx, code, hostID, false)
	require.NoError(t, err)
	_, err = env.m.Join(ctx, code, "Bob", "secret")
	assert.ErrorIs(t, err, models.ErrGone)
}

func TestBuzzerScenario(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice", "Bob", "Carol")
	alice, bob, carol := ids[0], ids[1], ids[2]

	_, err := env.m.Apply(ctx, code, hostID, game.ActivateBuzzer{})
	require.NoError(t, err)

	r1, err := env.m.Buzz(ctx, code, alice, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Position)
	assert.Equal(t, t0.UnixMilli(), r1.Timestamp)

	env.clock.Advance(5 * time.Millisecond)
	r2, err := env.m.Buzz(ctx, code, bob, "Bob")
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Position)
	assert.Equal(t, r1.Timestamp+5, r2.Timestamp)

	_, err = env.m.Buzz(ctx, code, alice, "Alice")
	assert.ErrorIs(t, err, models.ErrConflict)

	v, err := env.m.Version(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 2, v.BuzzerQueueLength)
	assert.True(t, v.BuzzerActive)

	_, err = env.m.Apply(ctx, code, hostID, game.DeactivateBuzzer{})
	require.NoError(t, err)
	before, err := env.m.Version(ctx, code)
	require.NoError(t, err)

	_, err = env.m.Buzz(ctx, code, carol, "Carol")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	after, err := env.m.Version(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 2, after.BuzzerQueueLength)
}

func TestBuzzUsesRosterNameAndRejectsStrangers(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice")
	_, err := env.m.Apply(ctx, code, hostID, game.ActivateBuzzer{})
	require.NoError(t, err)

	_, err = env.m.Buzz(ctx, code, "player_unknown", "Mallory")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = env.m.Buzz(ctx, code, ids[0], "Not Alice")
	require.NoError(t, err)
	gs, err := env.m.GameState(ctx, code)
	require.NoError(t, err)
	require.Len(t, gs.BuzzerQueue, 1)
	assert.Equal(t, "Alice", gs.BuzzerQueue[0].PlayerName)

	_, err = env.m.Buzz(ctx, "ZZZZ", ids[0], "Alice")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConcurrentBuzzesAllLand(t *testing.T) {
	env := setupTestManager(t, WithRetries(1000))
	ctx := context.Background()

	const n = 16
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Player %d", i)
	}
	code, hostID, ids := env.createLobby(t, "", names...)
	_, err := env.m.Apply(ctx, code, hostID, game.ActivateBuzzer{})
	require.NoError(t, err)

	positions := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.m.Buzz(ctx, code, ids[i], names[i])
			positions[i], errs[i] = res.Position, err
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[positions[i]], "position %d handed out twice", positions[i])
		seen[positions[i]] = true
		assert.True(t, positions[i] >= 1 && positions[i] <= n)
	}

	gs, err := env.m.GameState(ctx, code)
	require.NoError(t, err)
	require.Len(t, gs.BuzzerQueue, n)
	for i, ev := range gs.BuzzerQueue {
		assert.Equal(t, i+1, positions[indexOf(ids, ev.PlayerID)])
	}
}

func TestConcurrentScoreUpdatesAreNotLost(t *testing.T) {
	env := setupTestManager(t, WithRetries(1000))
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice")
	start, err := env.m.Version(ctx, code)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.m.Apply(ctx, code, hostID, game.AdjustScore{PlayerID: ids[0], Delta: 100})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	l, err := env.m.Read(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, n*100, l.GameState.Players[0].Score)
	assert.Equal(t, start.Version+n, l.Version)
}

func TestVersionMonotonicity(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	res, err := env.m.Create(ctx, "")
	require.NoError(t, err)
	code, hostID := res.Code, res.HostID

	expect := int64(0)
	check := func(step string) {
		t.Helper()
		v, err := env.m.Version(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, expect, v.Version, step)
		assert.Equal(t, env.clock.Now().UnixMilli(), v.LastModified, step)
	}
	check("create")

	env.clock.Advance(time.Second)
	j, err := env.m.Join(ctx, code, "Alice", "")
	require.NoError(t, err)
	expect++
	check("join")

	env.clock.Advance(time.Second)
	_, err = env.m.Rename(ctx, code, hostID, "Friday Trivia")
	require.NoError(t, err)
	expect++
	check("rename")

	env.clock.Advance(time.Second)
	_, err = env.m.Apply(ctx, code, hostID, game.ActivateBuzzer{})
	require.NoError(t, err)
	expect++
	check("activate")

	env.clock.Advance(time.Second)
	_, err = env.m.Buzz(ctx, code, j.PlayerID, "Alice")
	require.NoError(t, err)
	expect++
	check("buzz")

	// failed mutations leave version and lastModified alone
	before := env.clock.Now()
	env.clock.Advance(time.Second)
	_, err = env.m.Buzz(ctx, code, j.PlayerID, "Alice")
	require.Error(t, err)
	_, err = env.m.Rename(ctx, code, j.PlayerID, "hijack")
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = env.m.Apply(ctx, code, hostID, game.EndGame{})
	require.ErrorIs(t, err, models.ErrInvalidState)
	v, err := env.m.Version(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, expect, v.Version)
	assert.Equal(t, before.UnixMilli(), v.LastModified)

	// reads are stable
	a, err := env.m.Read(ctx, code)
	require.NoError(t, err)
	b, err := env.m.Read(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, a.Version, b.Version)
	assert.Equal(t, a.LastModified, b.LastModified)
}

func TestHostLeaveDeletesLobby(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice")

	// a player claiming to be host does not end the session
	deleted, err := env.m.Leave(ctx, code, ids[0], true)
	require.NoError(t, err)
	assert.False(t, deleted)
	_, err = env.m.Read(ctx, code)
	require.NoError(t, err)

	deleted, err = env.m.Leave(ctx, code, hostID, true)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = env.m.Read(ctx, code)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = env.m.Leave(ctx, code, hostID, true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPlayerLeaveRemovesRosterAndQueueEntry(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice", "Bob")
	_, err := env.m.Apply(ctx, code, hostID, game.ActivateBuzzer{})
	require.NoError(t, err)
	_, err = env.m.Buzz(ctx, code, ids[0], "Alice")
	require.NoError(t, err)
	_, err = env.m.Buzz(ctx, code, ids[1], "Bob")
	require.NoError(t, err)

	deleted, err := env.m.Leave(ctx, code, ids[0], false)
	require.NoError(t, err)
	assert.False(t, deleted)

	gs, err := env.m.GameState(ctx, code)
	require.NoError(t, err)
	require.Len(t, gs.Players, 1)
	assert.Equal(t, ids[1], gs.Players[0].ID)
	require.Len(t, gs.BuzzerQueue, 1)
	assert.Equal(t, ids[1], gs.BuzzerQueue[0].PlayerID)

	// leaving twice is a no-op
	v1, err := env.m.Version(ctx, code)
	require.NoError(t, err)
	_, err = env.m.Leave(ctx, code, ids[0], false)
	require.NoError(t, err)
	v2, err := env.m.Version(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, v1.Version, v2.Version)
}

func TestCloseRequiresHost(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice")

	err := env.m.Close(ctx, code, ids[0])
	assert.ErrorIs(t, err, models.ErrForbidden)
	err = env.m.Close(ctx, code, "")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = env.m.Read(ctx, code)
	require.NoError(t, err)

	require.NoError(t, env.m.Close(ctx, code, hostID))
	_, err = env.m.Read(ctx, code)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = env.m.Close(ctx, code, hostID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRename(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, _ := env.createLobby(t, "")

	name, err := env.m.Rename(ctx, code, hostID, "  Pub Quiz ")
	require.NoError(t, err)
	assert.Equal(t, "Pub Quiz", name)

	l, err := env.m.Read(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "Pub Quiz", l.LobbyName)

	_, err = env.m.Rename(ctx, code, "host_nope", "x")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = env.m.Rename(ctx, "ZZZZ", hostID, "x")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLobbyTTLSlidesOnWrite(t *testing.T) {
	env := setupTestManager(t, WithTTL(time.Hour))
	ctx := context.Background()
	code, hostID, _ := env.createLobby(t, "")

	env.clock.Advance(50 * time.Minute)
	_, err := env.m.Rename(ctx, code, hostID, "still here")
	require.NoError(t, err)

	// past the original deadline, inside the refreshed one
	env.clock.Advance(50 * time.Minute)
	_, err = env.m.Read(ctx, code)
	require.NoError(t, err)

	// reads do not refresh
	env.clock.Advance(11 * time.Minute)
	_, err = env.m.Read(ctx, code)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSweepDropsExpiredLobbies(t *testing.T) {
	env := setupTestManager(t, WithTTL(time.Minute))
	env.createLobby(t, "")
	env.createLobby(t, "")
	assert.Equal(t, 2, env.store.Len())

	assert.Equal(t, 0, env.store.Sweep())
	env.clock.Advance(time.Minute)
	assert.Equal(t, 2, env.store.Sweep())
	assert.Equal(t, 0, env.store.Len())
}

func TestSetGameState(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice")
	cur, err := env.m.Version(ctx, code)
	require.NoError(t, err)

	gs := models.NewGameState()
	gs.Categories = game.DefaultBoard()
	gs.Players = []models.Player{{ID: ids[0], Name: "Alice", Score: 400, IsHost: true}}
	gs.BuzzerActive = true
	gs.BuzzerQueue = []models.BuzzerEvent{
		{PlayerID: ids[0], PlayerName: "Alice", Timestamp: 20},
		{PlayerID: ids[0], PlayerName: "Alice", Timestamp: 10},
	}

	stale := cur.Version - 1
	_, err = env.m.SetGameState(ctx, code, hostID, gs, &stale)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = env.m.SetGameState(ctx, code, ids[0], gs, nil)
	assert.ErrorIs(t, err, models.ErrForbidden)

	l, err := env.m.SetGameState(ctx, code, hostID, gs, &cur.Version)
	require.NoError(t, err)
	assert.Equal(t, cur.Version+1, l.Version)
	assert.Equal(t, 400, l.GameState.Players[0].Score)
	assert.False(t, l.GameState.Players[0].IsHost)
	require.Len(t, l.GameState.BuzzerQueue, 1)
	assert.Equal(t, int64(20), l.GameState.BuzzerQueue[0].Timestamp)

	dup := models.NewGameState()
	dup.Players = []models.Player{{ID: "a", Name: "Bob"}, {ID: "b", Name: "bob"}}
	_, err = env.m.SetGameState(ctx, code, "", dup, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestPreviewQuestionIsReadOnly(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice")
	_, err := env.m.Apply(ctx, code, hostID, game.LoadDefaultBoard{})
	require.NoError(t, err)
	before, err := env.m.Version(ctx, code)
	require.NoError(t, err)

	q, err := env.m.PreviewQuestion(ctx, code, hostID, "1", "1-3")
	require.NoError(t, err)
	assert.Equal(t, 600, q.Value)
	assert.NotEmpty(t, q.Answer)

	after, err := env.m.Version(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	gs, err := env.m.GameState(ctx, code)
	require.NoError(t, err)
	assert.Nil(t, gs.CurrentQuestion)

	_, err = env.m.PreviewQuestion(ctx, code, ids[0], "1", "1-3")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = env.m.PreviewQuestion(ctx, code, hostID, "1", "7-7")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.m.Apply(ctx, code, hostID, game.MarkAnswered{CategoryID: "1", QuestionID: "1-3"})
	require.NoError(t, err)
	_, err = env.m.PreviewQuestion(ctx, code, hostID, "1", "1-3")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestEndGamePublishesResult(t *testing.T) {
	pub := &recordingPublisher{}
	env := setupTestManager(t, WithResultPublisher(pub))
	ctx := context.Background()
	code, hostID, ids := env.createLobby(t, "", "Alice", "Bob")
	_, err := env.m.Rename(ctx, code, hostID, "Finals")
	require.NoError(t, err)

	for _, cmd := range []game.Command{
		game.StartGame{},
		game.AdjustScore{PlayerID: ids[0], Delta: 200},
		game.AdjustScore{PlayerID: ids[1], Delta: 600},
	} {
		_, err := env.m.Apply(ctx, code, hostID, cmd)
		require.NoError(t, err)
	}
	assert.Empty(t, pub.results)

	env.clock.Advance(time.Minute)
	l, err := env.m.Apply(ctx, code, hostID, game.EndGame{})
	require.NoError(t, err)
	require.NotNil(t, l.GameState.WinnerID)
	assert.Equal(t, ids[1], *l.GameState.WinnerID)

	require.Len(t, pub.results, 1)
	res := pub.results[0]
	assert.Equal(t, code, res.LobbyCode)
	assert.Equal(t, "Finals", res.LobbyName)
	assert.Equal(t, ids[1], res.WinnerID)
	assert.Equal(t, env.clock.Now().UnixMilli(), res.EndedAt)
	assert.Equal(t, []models.FinalScore{
		{PlayerID: ids[0], Name: "Alice", Score: 200},
		{PlayerID: ids[1], Name: "Bob", Score: 600, Won: true},
	}, res.Players)

	l, err = env.m.Apply(ctx, code, hostID, game.ReturnToLobby{})
	require.NoError(t, err)
	assert.Equal(t, 1, l.GameState.PlayerWins[ids[1]])
	assert.Len(t, pub.results, 1)
}

func TestPublishFailureDoesNotFailEndGame(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	env := setupTestManager(t, WithResultPublisher(pub))
	ctx := context.Background()
	code, hostID, _ := env.createLobby(t, "", "Alice")
	_, err := env.m.Apply(ctx, code, hostID, game.StartGame{})
	require.NoError(t, err)

	l, err := env.m.Apply(ctx, code, hostID, game.EndGame{})
	require.NoError(t, err)
	assert.True(t, l.GameState.GameEnded)

	var warned bool
	for _, e := range env.logs.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Failed to publish game result" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestMutationGivesUpUnderContention(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	store := &flakyStore{MemoryStore: NewMemoryStore(clock, nil), failures: -1}
	m := NewManager(store, WithClock(clock), WithHasher(testHasher), WithBackOff(zeroBackOff), WithRetries(3), WithLogger(logrus.New()))
	ctx := context.Background()
	res, err := m.Create(ctx, "")
	require.NoError(t, err)

	_, err = m.Rename(ctx, res.Code, res.HostID, "busy")
	assert.ErrorIs(t, err, models.ErrInternal)
	assert.Equal(t, 4, store.casCalls)
}

func TestBuzzIsRestampedOnRetry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	store := &flakyStore{MemoryStore: NewMemoryStore(clock, nil), clock: clock}
	m := NewManager(store, WithClock(clock), WithHasher(testHasher), WithBackOff(zeroBackOff), WithLogger(logrus.New()))
	ctx := context.Background()
	res, err := m.Create(ctx, "")
	require.NoError(t, err)
	j, err := m.Join(ctx, res.Code, "Alice", "")
	require.NoError(t, err)
	_, err = m.Apply(ctx, res.Code, res.HostID, game.ActivateBuzzer{})
	require.NoError(t, err)

	store.failures = 1
	first := clock.Now()
	buzz, err := m.Buzz(ctx, res.Code, j.PlayerID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, first.Add(10*time.Millisecond).UnixMilli(), buzz.Timestamp)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// collidingStore reports every code as taken.
type collidingStore struct {
	*MemoryStore
	attempts int
}

func (s *collidingStore) Create(context.Context, *models.Lobby, time.Duration) (bool, error) {
	s.attempts++
	return false, nil
}

// flakyStore loses the next `failures` conditional writes to a phantom
// writer. A negative count loses all of them. When clock is set each lost
// write advances it by 10ms.
type flakyStore struct {
	*MemoryStore
	clock    *clockwork.FakeClock
	failures int
	casCalls int
}

func (s *flakyStore) CompareAndSwap(ctx context.Context, l *models.Lobby, expected int64, ttl time.Duration) error {
	s.casCalls++
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		if s.clock != nil {
			s.clock.Advance(10 * time.Millisecond)
		}
		return ErrVersionConflict
	}
	return s.MemoryStore.CompareAndSwap(ctx, l, expected, ttl)
}

type recordingPublisher struct {
	mu      sync.Mutex
	results []models.GameResult
	err     error
}

func (p *recordingPublisher) PublishGameResult(_ context.Context, r models.GameResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.results = append(p.results, r)
	return nil
}
