package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncplane/internal/events"
	"syncplane/internal/model"
	"syncplane/internal/store"
	"syncplane/internal/store/memory"
)

type recordingHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *recordingHub) BroadcastAccount(_ string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
}

func (h *recordingHub) BroadcastMachine(string, string, []byte) {}

func (h *recordingHub) all() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.messages...)
}

const baseMillis = int64(100 * 60 * 1000) // minute 100

func minutesAgo(n int) int64 {
	return baseMillis - int64(n)*time.Minute.Milliseconds()
}

func newTestSweeper(st store.Store) (*Sweeper, *recordingHub) {
	hub := &recordingHub{}
	router := events.NewRouter(st, hub, zerolog.Nop())
	sw := NewSweeper(st, router, zerolog.Nop(), 10*time.Minute, time.Minute)
	sw.now = func() int64 { return baseMillis }
	return sw, hub
}

type activityBody struct {
	T         string `json:"t"`
	SessionID string `json:"id,omitempty"`
	MachineID string `json:"machineId,omitempty"`
	Active    bool   `json:"active"`
	ActiveAt  int64  `json:"activeAt"`
}

func decodeSignal(t *testing.T, data []byte) activityBody {
	t.Helper()
	var env struct {
		Type string       `json:"type"`
		Body activityBody `json:"body"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, "ephemeral", env.Type)
	return env.Body
}

func TestSweep_DemotesStaleSession(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	_, _, err := st.GetOrCreateSession(ctx, model.Session{ID: "s1", AccountID: "a", Tag: "t1", Active: true, LastActiveAt: minutesAgo(11)})
	require.NoError(t, err)

	sw, hub := newTestSweeper(st)
	require.NoError(t, sw.SweepOnce(ctx))

	sess, err := st.FindSession(ctx, "a", "s1")
	require.NoError(t, err)
	assert.False(t, sess.Active)

	msgs := hub.all()
	require.Len(t, msgs, 1)
	body := decodeSignal(t, msgs[0])
	assert.Equal(t, "session-activity", body.T)
	assert.Equal(t, "s1", body.SessionID)
	assert.False(t, body.Active)
	assert.Equal(t, minutesAgo(11), body.ActiveAt)
}

func TestSweep_LeavesFreshSessionAlone(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	_, _, err := st.GetOrCreateSession(ctx, model.Session{ID: "s1", AccountID: "a", Tag: "t1", Active: true, LastActiveAt: minutesAgo(5)})
	require.NoError(t, err)

	sw, hub := newTestSweeper(st)
	require.NoError(t, sw.SweepOnce(ctx))

	sess, err := st.FindSession(ctx, "a", "s1")
	require.NoError(t, err)
	assert.True(t, sess.Active)
	assert.Empty(t, hub.all())
}

func TestSweep_DemotesStaleMachine(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.CreateMachine(ctx, model.Machine{ID: "m1", AccountID: "a", Active: true, LastActiveAt: minutesAgo(30)}))

	sw, hub := newTestSweeper(st)
	require.NoError(t, sw.SweepOnce(ctx))

	m, err := st.FindMachine(ctx, "a", "m1")
	require.NoError(t, err)
	assert.False(t, m.Active)

	msgs := hub.all()
	require.Len(t, msgs, 1)
	body := decodeSignal(t, msgs[0])
	assert.Equal(t, "machine-activity", body.T)
	assert.Equal(t, "m1", body.MachineID)
	assert.False(t, body.Active)
}

// casLostStore deactivates the row behind the sweeper's back between the scan
// and the compare-and-set, modelling a concurrent writer winning the race.
type casLostStore struct {
	store.Store
	target string
}

func (s *casLostStore) FindStaleActiveSessions(ctx context.Context, cutoff int64) ([]model.Session, error) {
	scanned, err := s.Store.FindStaleActiveSessions(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, sess := range scanned {
		if sess.ID == s.target {
			_, _ = s.Store.DeactivateSession(ctx, sess.AccountID, sess.ID, cutoff)
		}
	}
	return scanned, nil
}

func TestSweep_SkipsRowLostToConcurrentWriter(t *testing.T) {
	base := memory.New()
	ctx := context.Background()
	_, _, err := base.GetOrCreateSession(ctx, model.Session{ID: "s1", AccountID: "a", Tag: "t1", Active: true, LastActiveAt: minutesAgo(11)})
	require.NoError(t, err)

	sw, hub := newTestSweeper(&casLostStore{Store: base, target: "s1"})
	require.NoError(t, sw.SweepOnce(ctx))

	assert.Empty(t, hub.all(), "a lost compare-and-set must emit nothing")
}

func TestSweep_ReportsFreshestLastActiveAt(t *testing.T) {
	// lastActiveAt advances between the scan and the emission; the re-read
	// must pick up the newer value.
	base := memory.New()
	ctx := context.Background()
	_, _, err := base.GetOrCreateSession(ctx, model.Session{ID: "s1", AccountID: "a", Tag: "t1", Active: true, LastActiveAt: minutesAgo(11)})
	require.NoError(t, err)

	st := &refreshingStore{Store: base, id: "s1", refreshedAt: minutesAgo(1)}
	sw, hub := newTestSweeper(st)
	require.NoError(t, sw.SweepOnce(ctx))

	msgs := hub.all()
	require.Len(t, msgs, 1)
	body := decodeSignal(t, msgs[0])
	assert.Equal(t, minutesAgo(1), body.ActiveAt)
}

type refreshingStore struct {
	store.Store
	id          string
	refreshedAt int64
}

func (s *refreshingStore) FindSession(ctx context.Context, accountID, id string) (model.Session, error) {
	sess, err := s.Store.FindSession(ctx, accountID, id)
	if err == nil && id == s.id {
		sess.LastActiveAt = s.refreshedAt
	}
	return sess, err
}

func TestRun_StopsOnCancel(t *testing.T) {
	sw, _ := newTestSweeper(memory.New())
	sw.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
