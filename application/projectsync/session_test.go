package projectsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"todoflow/application/graph"
	"todoflow/application/notify"
	"todoflow/domain/core/entities"
	"todoflow/domain/core/valueobjects"
)

const projectID = "3f1d4c38-8d4b-4d0e-b2c4-1b6f0f5b7a10"

func ptr[T any](v T) *T { return &v }

func emptyProject() *entities.Project {
	return &entities.Project{ID: projectID, Name: "Project 1", Version: 1, Nodes: []entities.TaskNode{}, Edges: []entities.TaskEdge{}}
}

type harness struct {
	api      *mockProjectAPI
	clock    *fakeClock
	notes    *recordingNotifier
	session  *Session
	eventsMu sync.Mutex
	events   []SyncEvent
}

func openHarness(t *testing.T, initial *entities.Project, flushOnClose bool) *harness {
	t.Helper()
	h := &harness{api: new(mockProjectAPI), clock: newFakeClock(), notes: &recordingNotifier{}}
	h.api.On("GetProject", mock.Anything, projectID).Return(initial, nil).Once()

	s, err := Open(context.Background(), h.api, projectID, Options{
		QuietWindow:  time.Second,
		FlushOnClose: flushOnClose,
		Clock:        h.clock,
		Notifier:     h.notes,
		OnSync: func(ev SyncEvent) {
			h.eventsMu.Lock()
			h.events = append(h.events, ev)
			h.eventsMu.Unlock()
		},
	})
	require.NoError(t, err)
	h.session = s
	return h
}

func (h *harness) outcomes() []Outcome {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	out := make([]Outcome, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Outcome
	}
	return out
}

// serverEcho returns the project the server would answer with for patch
// applied to the session's current snapshot.
func serverEcho(t *testing.T, h *harness) func(mock.Arguments) *entities.Project {
	return func(args mock.Arguments) *entities.Project {
		patch := args.Get(2).(entities.GraphPatch)
		base := h.session.Synced()
		p := emptyProject()
		p.Nodes, p.Edges = base.Nodes, base.Edges
		_, err := p.ApplyPatch(patch, h.clock.Now())
		require.NoError(t, err)
		return p
	}
}

func TestOpen_SeedsGraphAndSnapshot(t *testing.T) {
	// Arrange
	a := entities.NewTaskNode("a", valueobjects.Position{})
	b := entities.NewTaskNode("b", valueobjects.Position{})
	p := emptyProject()
	p.Nodes = []entities.TaskNode{a, b}
	p.Edges = []entities.TaskEdge{entities.NewTaskEdge(a.ID, b.ID)}

	// Act
	h := openHarness(t, p, true)

	// Assert
	assert.Equal(t, StatusReady, h.session.Status())
	assert.Equal(t, p.Nodes, h.session.Nodes())
	assert.Equal(t, p.Edges, h.session.Synced().Edges)
	assert.False(t, h.session.HasUnsyncedChanges())
	assert.Nil(t, h.session.Project().UpdatedAt)
}

func TestOpen_Failures(t *testing.T) {
	t.Run("Should surface fetch errors", func(t *testing.T) {
		api := new(mockProjectAPI)
		notes := &recordingNotifier{}
		api.On("GetProject", mock.Anything, projectID).Return(nil, errors.New("boom"))

		s, err := Open(context.Background(), api, projectID, Options{Notifier: notes})

		assert.Nil(t, s)
		assert.EqualError(t, err, "boom")
		assert.Len(t, notes.ofType(notify.Error), 1)
	})

	t.Run("Should refuse dangling edges", func(t *testing.T) {
		api := new(mockProjectAPI)
		a := entities.NewTaskNode("a", valueobjects.Position{})
		p := emptyProject()
		p.Nodes = []entities.TaskNode{a}
		p.Edges = []entities.TaskEdge{entities.NewTaskEdge(a.ID, "gone")}
		api.On("GetProject", mock.Anything, projectID).Return(p, nil)

		_, err := Open(context.Background(), api, projectID, Options{Notifier: &recordingNotifier{}})

		assert.ErrorIs(t, err, ErrIntegrity)
	})
}

func TestSession_NodeEditsProduceExactlyOnePatch(t *testing.T) {
	// Arrange
	h := openHarness(t, emptyProject(), true)
	var sent []entities.GraphPatch
	respond := serverEcho(t, h)
	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
		Run(func(args mock.Arguments) { sent = append(sent, args.Get(2).(entities.GraphPatch)) }).
		Return(func(ctx context.Context, id string, patch entities.GraphPatch) *entities.Project {
			return respond(mock.Arguments{ctx, id, patch})
		}, nil)

	// Act
	n1, err := h.session.AddNode("", valueobjects.Position{X: 10, Y: 20})
	require.NoError(t, err)
	for _, title := range []string{"W", "Wr", "Write spec"} {
		h.clock.Advance(300 * time.Millisecond)
		_, err := h.session.UpdateNodeData(n1.ID, graph.DataChange{Title: ptr(title)})
		require.NoError(t, err)
	}
	h.clock.Advance(999 * time.Millisecond)
	require.Empty(t, sent, "quiet window not yet elapsed")
	h.clock.Advance(time.Millisecond)

	// Assert
	require.Len(t, sent, 1)
	want := n1
	want.Data.Title = "Write spec"
	assert.Equal(t, []entities.TaskNode{want}, sent[0].NodesToAdd)
	assert.Empty(t, sent[0].NodesToUpdate)
	assert.Empty(t, sent[0].NodesToRemove)
	assert.Equal(t, []entities.TaskNode{want}, h.session.Synced().Nodes)
	assert.Equal(t, StatusReady, h.session.Status())
	assert.NotNil(t, h.session.Project().UpdatedAt)
	assert.Equal(t, []Outcome{OutcomeSynced}, h.outcomes())
}

func TestSession_NoopSyncMakesNoRequest(t *testing.T) {
	// Arrange
	h := openHarness(t, emptyProject(), true)
	n := entities.NewTaskNode("x", valueobjects.Position{})

	// Act: add then remove within one window
	_, err := h.session.ApplyNodeChanges([]graph.NodeChange{{Type: graph.NodeAdd, Item: &n}})
	require.NoError(t, err)
	_, err = h.session.ApplyNodeChanges([]graph.NodeChange{{Type: graph.NodeRemove, ID: n.ID}})
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	require.NoError(t, h.session.Flush(context.Background()))

	// Assert
	h.api.AssertNotCalled(t, "PatchProject", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []Outcome{OutcomeNoop, OutcomeNoop}, h.outcomes())
	assert.Equal(t, StatusReady, h.session.Status())
}

func TestSession_SelectionDoesNotSchedule(t *testing.T) {
	a := entities.NewTaskNode("a", valueobjects.Position{})
	p := emptyProject()
	p.Nodes = []entities.TaskNode{a}
	h := openHarness(t, p, true)

	_, err := h.session.ApplyNodeChanges([]graph.NodeChange{{Type: graph.NodeSelect, ID: a.ID, Selected: ptr(true)}})
	require.NoError(t, err)

	assert.Zero(t, h.clock.activeTimers())
}

func TestSession_FailureKeepsSnapshotAndRetriesOnNextEdit(t *testing.T) {
	// Arrange
	h := openHarness(t, emptyProject(), true)
	respond := serverEcho(t, h)
	var sent []entities.GraphPatch
	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
		Run(func(args mock.Arguments) { sent = append(sent, args.Get(2).(entities.GraphPatch)) }).
		Return(nil, errors.New("503 service unavailable")).Once()
	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
		Run(func(args mock.Arguments) { sent = append(sent, args.Get(2).(entities.GraphPatch)) }).
		Return(func(ctx context.Context, id string, patch entities.GraphPatch) *entities.Project {
			return respond(mock.Arguments{ctx, id, patch})
		}, nil)

	n1, err := h.session.AddNode("first", valueobjects.Position{})
	require.NoError(t, err)

	// Act
	h.clock.Advance(time.Second)

	// Assert: failure path
	require.Len(t, sent, 1)
	assert.Empty(t, h.session.Synced().Nodes)
	assert.Len(t, h.notes.ofType(notify.Error), 1)
	assert.Equal(t, StatusReady, h.session.Status())
	assert.Zero(t, h.clock.activeTimers(), "no automatic retry")

	// Act: next edit retries the outstanding diff
	n2, err := h.session.AddNode("second", valueobjects.Position{})
	require.NoError(t, err)
	h.clock.Advance(time.Second)

	// Assert
	require.Len(t, sent, 2)
	assert.Equal(t, []entities.TaskNode{n1, n2}, sent[1].NodesToAdd)
	assert.Equal(t, []entities.TaskNode{n1, n2}, h.session.Synced().Nodes)
	assert.Equal(t, []Outcome{OutcomeFailed, OutcomeSynced}, h.outcomes())
}

func TestSession_OverlappingTriggerIsDeferred(t *testing.T) {
	// Arrange
	h := openHarness(t, emptyProject(), true)
	respond := serverEcho(t, h)
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var inflight, maxInflight, calls int32
	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
		Run(func(mock.Arguments) {
			n := atomic.AddInt32(&inflight, 1)
			if n > atomic.LoadInt32(&maxInflight) {
				atomic.StoreInt32(&maxInflight, n)
			}
			if atomic.AddInt32(&calls, 1) == 1 {
				started <- struct{}{}
				<-release
			}
			atomic.AddInt32(&inflight, -1)
		}).
		Return(func(ctx context.Context, id string, patch entities.GraphPatch) *entities.Project {
			return respond(mock.Arguments{ctx, id, patch})
		}, nil)

	n1, err := h.session.AddNode("slow", valueobjects.Position{})
	require.NoError(t, err)

	firstDone := make(chan struct{})
	go func() {
		h.clock.Advance(time.Second)
		close(firstDone)
	}()
	<-started
	require.Equal(t, StatusSyncing, h.session.Status())

	// Act: an edit whose quiet window elapses while the first sync is in flight
	_, err = h.session.UpdateNodeData(n1.ID, graph.DataChange{Title: ptr("edited in flight")})
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "overlapping sync must not dispatch")

	close(release)
	<-firstDone
	h.clock.Advance(time.Second)

	// Assert
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInflight))
	synced := h.session.Synced().Nodes
	require.Len(t, synced, 1)
	assert.Equal(t, "edited in flight", synced[0].Data.Title)
	assert.Equal(t, []Outcome{OutcomeDeferred, OutcomeSynced, OutcomeSynced}, h.outcomes())
}

func TestSession_FlushWaitsForInFlightSync(t *testing.T) {
	// Arrange
	h := openHarness(t, emptyProject(), true)
	respond := serverEcho(t, h)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var sentMu sync.Mutex
	var sent []entities.GraphPatch
	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
		Run(func(args mock.Arguments) {
			sentMu.Lock()
			sent = append(sent, args.Get(2).(entities.GraphPatch))
			first := len(sent) == 1
			sentMu.Unlock()
			if first {
				started <- struct{}{}
				<-release
			}
		}).
		Return(func(ctx context.Context, id string, patch entities.GraphPatch) *entities.Project {
			return respond(mock.Arguments{ctx, id, patch})
		}, nil)

	n1, err := h.session.AddNode("slow", valueobjects.Position{})
	require.NoError(t, err)
	firstDone := make(chan struct{})
	go func() {
		h.clock.Advance(time.Second)
		close(firstDone)
	}()
	<-started

	// Act
	_, err = h.session.UpdateNodeData(n1.ID, graph.DataChange{Title: ptr("flushed")})
	require.NoError(t, err)
	flushed := make(chan error, 1)
	go func() { flushed <- h.session.Flush(context.Background()) }()

	select {
	case err := <-flushed:
		t.Fatalf("flush returned while a sync was in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-firstDone

	// Assert
	require.NoError(t, <-flushed)
	sentMu.Lock()
	defer sentMu.Unlock()
	require.Len(t, sent, 2)
	want := n1
	want.Data.Title = "flushed"
	assert.Equal(t, []entities.TaskNode{want}, sent[1].NodesToUpdate)
	assert.False(t, h.session.HasUnsyncedChanges())
	assert.Zero(t, h.clock.activeTimers())
	assert.Equal(t, []Outcome{OutcomeSynced, OutcomeSynced}, h.outcomes())
}

func TestSession_FlushHonorsContextWhileWaiting(t *testing.T) {
	h := openHarness(t, emptyProject(), true)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-release
		}).
		Return(nil, errors.New("503 service unavailable")).Once()

	_, err := h.session.AddNode("slow", valueobjects.Position{})
	require.NoError(t, err)
	firstDone := make(chan struct{})
	go func() {
		h.clock.Advance(time.Second)
		close(firstDone)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = h.session.Flush(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	close(release)
	<-firstDone
	h.api.AssertNumberOfCalls(t, "PatchProject", 1)
}

func TestSession_InvalidCanvasEdgeDoesNotBlockSaving(t *testing.T) {
	// Arrange
	a := entities.NewTaskNode("a", valueobjects.Position{})
	p := emptyProject()
	p.Nodes = []entities.TaskNode{a}
	h := openHarness(t, p, true)
	respond := serverEcho(t, h)
	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
		Return(func(ctx context.Context, id string, patch entities.GraphPatch) *entities.Project {
			return respond(mock.Arguments{ctx, id, patch})
		}, nil)

	dangling := entities.NewTaskEdge(a.ID, valueobjects.NewID())
	selfLoop := entities.NewTaskEdge(a.ID, a.ID)

	// Act
	edges, err := h.session.ApplyEdgeChanges([]graph.EdgeChange{
		{Type: graph.EdgeAdd, Item: &dangling},
		{Type: graph.EdgeAdd, Item: &selfLoop},
	})
	require.NoError(t, err)
	b, err := h.session.AddNode("b", valueobjects.Position{X: 100})
	require.NoError(t, err)
	h.clock.Advance(time.Second)

	// Assert
	assert.Empty(t, edges)
	assert.Equal(t, []entities.TaskNode{a, b}, h.session.Synced().Nodes)
	assert.Empty(t, h.session.Synced().Edges)
	assert.Equal(t, []Outcome{OutcomeSynced}, h.outcomes())
}

func TestSession_EmptyServerResponse(t *testing.T) {
	t.Run("Should fail the sync and keep the snapshot", func(t *testing.T) {
		h := openHarness(t, emptyProject(), true)
		h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).Return(nil, nil).Once()
		_, err := h.session.AddNode("x", valueobjects.Position{})
		require.NoError(t, err)

		err = h.session.Flush(context.Background())

		assert.ErrorIs(t, err, ErrEmptyResponse)
		assert.Empty(t, h.session.Synced().Nodes)
		assert.True(t, h.session.HasUnsyncedChanges())
		assert.Equal(t, StatusReady, h.session.Status())
		assert.Equal(t, []Outcome{OutcomeFailed}, h.outcomes())
	})

	t.Run("Should refuse to open", func(t *testing.T) {
		api := new(mockProjectAPI)
		api.On("GetProject", mock.Anything, projectID).Return(nil, nil).Once()

		s, err := Open(context.Background(), api, projectID, Options{Clock: newFakeClock(), Notifier: &recordingNotifier{}})

		assert.ErrorIs(t, err, ErrEmptyResponse)
		assert.Nil(t, s)
	})
}

func TestSession_ReconcilesServerCorrections(t *testing.T) {
	// Arrange
	a := entities.NewTaskNode("a", valueobjects.Position{})
	b := entities.NewTaskNode("b", valueobjects.Position{})
	ab := entities.NewTaskEdge(a.ID, b.ID)
	p := emptyProject()
	p.Nodes = []entities.TaskNode{a, b}
	p.Edges = []entities.TaskEdge{ab}
	h := openHarness(t, p, true)

	serverA := a
	serverA.Data.Title = "a (canonical)"
	c := entities.NewTaskNode("c", valueobjects.Position{X: 5})
	updatedAt := time.Date(2025, 3, 1, 9, 0, 1, 0, time.UTC)

	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
		Run(func(mock.Arguments) {
			// the user keeps editing while the request is in flight
			_, err := h.session.UpdateNodeData(b.ID, graph.DataChange{Title: ptr("b local")})
			require.NoError(t, err)
		}).
		Return(&entities.Project{
			ID: projectID, Name: "Project 1", Version: 2, UpdatedAt: &updatedAt,
			// server canonicalized a, dropped the edge, and appended c
			Nodes: []entities.TaskNode{serverA, b, c},
			Edges: []entities.TaskEdge{},
		}, nil).Once()

	// Act
	_, err := h.session.UpdateNodeData(a.ID, graph.DataChange{Description: ptr("")})
	require.NoError(t, err)
	moved := valueobjects.Position{X: 42}
	_, err = h.session.ApplyNodeChanges([]graph.NodeChange{{Type: graph.NodePosition, ID: a.ID, Position: &moved}})
	require.NoError(t, err)
	require.NoError(t, h.session.Flush(context.Background()))

	// Assert
	nodes := h.session.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "a (canonical)", nodes[0].Data.Title, "server correction applied to untouched node")
	assert.Equal(t, "b local", nodes[1].Data.Title, "local in-flight edit wins")
	assert.Equal(t, c, nodes[2])
	assert.Empty(t, h.session.Edges())

	snap := h.session.Synced()
	assert.Equal(t, []entities.TaskNode{serverA, b, c}, snap.Nodes)
	assert.Empty(t, snap.Edges)
	assert.True(t, h.session.HasUnsyncedChanges(), "b's local edit is still outstanding")
	assert.Equal(t, &updatedAt, h.session.Project().UpdatedAt)
	assert.Equal(t, []Outcome{OutcomeReconciled}, h.outcomes())
}

func TestSession_RejectsDanglingServerGraph(t *testing.T) {
	// Arrange
	h := openHarness(t, emptyProject(), true)
	bad := emptyProject()
	bad.Edges = []entities.TaskEdge{entities.NewTaskEdge(valueobjects.NewID(), valueobjects.NewID())}
	h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).Return(bad, nil).Once()
	n, err := h.session.AddNode("keep me", valueobjects.Position{})
	require.NoError(t, err)

	// Act
	err = h.session.Flush(context.Background())

	// Assert
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Equal(t, []entities.TaskNode{n}, h.session.Synced().Nodes, "snapshot is the state that was sent")
	assert.Equal(t, []entities.TaskNode{n}, h.session.Nodes())
	assert.Empty(t, h.session.Edges())
	assert.Len(t, h.notes.ofType(notify.Error), 1)
	assert.Equal(t, []Outcome{OutcomeRejected}, h.outcomes())
}

func TestSession_Close(t *testing.T) {
	t.Run("Should flush pending edits", func(t *testing.T) {
		h := openHarness(t, emptyProject(), true)
		respond := serverEcho(t, h)
		h.api.On("PatchProject", mock.Anything, projectID, mock.Anything).
			Return(func(ctx context.Context, id string, patch entities.GraphPatch) *entities.Project {
				return respond(mock.Arguments{ctx, id, patch})
			}, nil).Once()
		_, err := h.session.AddNode("last words", valueobjects.Position{})
		require.NoError(t, err)

		err = h.session.Close(context.Background())

		require.NoError(t, err)
		h.api.AssertNumberOfCalls(t, "PatchProject", 1)
		assert.Equal(t, StatusClosed, h.session.Status())
		assert.Zero(t, h.clock.activeTimers())
		_, err = h.session.AddNode("too late", valueobjects.Position{})
		assert.ErrorIs(t, err, ErrClosed)
		assert.NoError(t, h.session.Close(context.Background()), "close is idempotent")
	})

	t.Run("Should cancel pending edits when flushing is off", func(t *testing.T) {
		h := openHarness(t, emptyProject(), false)
		_, err := h.session.AddNode("lost", valueobjects.Position{})
		require.NoError(t, err)

		err = h.session.Close(context.Background())
		h.clock.Advance(5 * time.Second)

		require.NoError(t, err)
		h.api.AssertNotCalled(t, "PatchProject", mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, StatusClosed, h.session.Status())
	})
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "LOADING", StatusLoading.String())
	assert.Equal(t, "READY", StatusReady.String())
	assert.Equal(t, "SYNCING", StatusSyncing.String())
	assert.Equal(t, "CLOSED", StatusClosed.String())
}
