// Package projectsync keeps an open project's graph in step with the
// server: it debounces edits, sends the diff against the last acknowledged
// snapshot, and reconciles the server's answer.
package projectsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"todoflow/application/graph"
	"todoflow/application/notify"
	"todoflow/domain/core/entities"
	"todoflow/domain/core/valueobjects"
	"todoflow/domain/diff"
)

var (
	ErrClosed    = errors.New("project session closed")
	ErrIntegrity = errors.New("server returned an inconsistent graph")

	ErrEmptyResponse = errors.New("server returned no project")

	errBusy = errors.New("sync already in flight")
)

// Status is the lifecycle state of a Session.
type Status int32

const (
	StatusLoading Status = iota
	StatusReady
	StatusSyncing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "LOADING"
	case StatusReady:
		return "READY"
	case StatusSyncing:
		return "SYNCING"
	case StatusClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// ProjectAPI is the slice of the backend the session talks to.
type ProjectAPI interface {
	GetProject(ctx context.Context, id string) (*entities.Project, error)
	PatchProject(ctx context.Context, id string, patch entities.GraphPatch) (*entities.Project, error)
}

// Snapshot is an immutable copy of a graph.
type Snapshot struct {
	Nodes []entities.TaskNode
	Edges []entities.TaskEdge
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Nodes: slices.Clone(s.Nodes), Edges: slices.Clone(s.Edges)}
}

// Outcome classifies what a sync attempt did.
type Outcome string

const (
	OutcomeNoop       Outcome = "noop"
	OutcomeSynced     Outcome = "synced"
	OutcomeReconciled Outcome = "reconciled"
	OutcomeDeferred   Outcome = "deferred"
	OutcomeFailed     Outcome = "failed"
	OutcomeRejected   Outcome = "rejected"
)

// SyncEvent reports one sync attempt to observers.
type SyncEvent struct {
	ProjectID string
	Outcome   Outcome
	Patch     entities.GraphPatch
	Err       error
	At        time.Time
}

// Options configures a Session. Zero values pick sensible defaults.
type Options struct {
	QuietWindow  time.Duration
	FlushOnClose bool
	Clock        Clock
	Logger       *zap.Logger
	Notifier     notify.Notifier
	OnSync       func(SyncEvent)
}

// Session is one open project. Every mutating call schedules a debounced
// sync; syncs never overlap.
type Session struct {
	projectID    string
	api          ProjectAPI
	graph        *graph.State
	scheduler    *Scheduler[Snapshot]
	clock        Clock
	logger       *zap.Logger
	notifier     notify.Notifier
	onSync       func(SyncEvent)
	flushOnClose bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   Status
	snapshot Snapshot
	meta     entities.Project
	deferred bool
	closing  bool
	idle     chan struct{}
}

// Open fetches the project and seeds both the graph and the snapshot from
// it. Requests made by the session outlive ctx's cancellation but keep its
// values; they are cancelled by Close.
func Open(ctx context.Context, api ProjectAPI, projectID string, opts Options) (*Session, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogger(opts.Logger)
	}

	logger := opts.Logger.With(zap.String("project_id", projectID))
	s := &Session{
		projectID:    projectID,
		api:          api,
		graph:        graph.NewWithLogger(logger),
		clock:        opts.Clock,
		logger:       logger,
		notifier:     opts.Notifier,
		onSync:       opts.OnSync,
		flushOnClose: opts.FlushOnClose,
		status:       StatusLoading,
		idle:         closedChan(),
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.scheduler = NewScheduler(opts.QuietWindow, opts.Clock, func(snap Snapshot) {
		_ = s.sync(s.ctx, snap, syncScheduled)
	})

	project, err := api.GetProject(ctx, projectID)
	if err == nil && project == nil {
		err = ErrEmptyResponse
	}
	if err == nil {
		err = entities.ValidateGraph(project.Nodes, project.Edges)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
	}
	if err != nil {
		s.logger.Error("Failed to load project", zap.Error(err))
		s.notifier.Notify(notify.New(notify.Error, "Failed to load project"))
		s.status = StatusClosed
		s.cancel()
		return nil, err
	}

	s.graph.Load(project.Nodes, project.Edges)
	s.snapshot = Snapshot{Nodes: slices.Clone(project.Nodes), Edges: slices.Clone(project.Edges)}
	s.meta = project.Summary()
	s.status = StatusReady
	s.logger.Info("Project opened",
		zap.Int("nodes", len(project.Nodes)),
		zap.Int("edges", len(project.Edges)),
	)
	return s, nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// ProjectID returns the id of the open project.
func (s *Session) ProjectID() string { return s.projectID }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Project returns the project metadata as last acknowledged by the server,
// with the current (possibly unsynced) graph.
func (s *Session) Project() entities.Project {
	s.mu.Lock()
	p := s.meta
	s.mu.Unlock()
	p.Nodes, p.Edges = s.graph.Snapshot()
	return p
}

// Nodes returns the current nodes for rendering.
func (s *Session) Nodes() []entities.TaskNode { return s.graph.Nodes() }

// Edges returns the current edges for rendering.
func (s *Session) Edges() []entities.TaskEdge { return s.graph.Edges() }

// Synced returns a copy of the last acknowledged snapshot.
func (s *Session) Synced() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.clone()
}

// HasUnsyncedChanges reports whether the graph differs from the snapshot.
func (s *Session) HasUnsyncedChanges() bool {
	nodes, edges := s.graph.Snapshot()
	base := s.Synced()
	return !diff.Compute(base.Nodes, base.Edges, nodes, edges).IsEmpty()
}

// ApplyNodeChanges forwards canvas node changes to the graph.
func (s *Session) ApplyNodeChanges(changes []graph.NodeChange) ([]entities.TaskNode, error) {
	if err := s.editable(); err != nil {
		return nil, err
	}
	nodes := s.graph.ApplyNodeChanges(changes)
	if slices.ContainsFunc(changes, graph.NodeChange.Mutates) {
		s.touch()
	}
	return nodes, nil
}

// ApplyEdgeChanges forwards canvas edge changes to the graph.
func (s *Session) ApplyEdgeChanges(changes []graph.EdgeChange) ([]entities.TaskEdge, error) {
	if err := s.editable(); err != nil {
		return nil, err
	}
	edges := s.graph.ApplyEdgeChanges(changes)
	if slices.ContainsFunc(changes, graph.EdgeChange.Mutates) {
		s.touch()
	}
	return edges, nil
}

// AddNode creates a task at pos.
func (s *Session) AddNode(title string, pos valueobjects.Position) (entities.TaskNode, error) {
	if err := s.editable(); err != nil {
		return entities.TaskNode{}, err
	}
	n := s.graph.AddNode(title, pos)
	s.touch()
	return n, nil
}

// UpdateNodeData edits a task's content.
func (s *Session) UpdateNodeData(id string, change graph.DataChange) (entities.TaskNode, error) {
	if err := s.editable(); err != nil {
		return entities.TaskNode{}, err
	}
	n, err := s.graph.UpdateNodeData(id, change)
	if err != nil {
		return n, err
	}
	s.touch()
	return n, nil
}

// Connect links two tasks.
func (s *Session) Connect(source, target string) (entities.TaskEdge, error) {
	if err := s.editable(); err != nil {
		return entities.TaskEdge{}, err
	}
	e, err := s.graph.Connect(source, target)
	if err != nil {
		return e, err
	}
	s.touch()
	return e, nil
}

// Flush syncs immediately instead of waiting for the quiet window. If a sync
// is in flight, Flush waits for it and then sends whatever it left unsynced.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.editable(); err != nil {
		return err
	}
	s.scheduler.Cancel()
	for {
		if err := s.waitIdle(ctx); err != nil {
			return err
		}
		err := s.sync(ctx, s.current(), syncFlush)
		if !errors.Is(err, errBusy) {
			return err
		}
	}
}

// Close ends the session. With FlushOnClose, unsynced edits are sent first;
// otherwise they are discarded. In-flight requests are cancelled afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusClosed || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	s.scheduler.Cancel()
	if err := s.waitIdle(ctx); err != nil {
		s.finishClose()
		return err
	}

	var err error
	if s.flushOnClose {
		err = s.sync(ctx, s.current(), syncFinal)
	} else if s.HasUnsyncedChanges() {
		s.logger.Warn("Closing project with unsynced changes; they are discarded")
	}

	s.finishClose()
	return err
}

func (s *Session) finishClose() {
	s.mu.Lock()
	s.status = StatusClosed
	s.mu.Unlock()
	s.cancel()
	s.logger.Info("Project closed")
}

func (s *Session) waitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.status != StatusSyncing {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) editable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed || s.closing {
		return ErrClosed
	}
	return nil
}

func (s *Session) current() Snapshot {
	nodes, edges := s.graph.Snapshot()
	return Snapshot{Nodes: nodes, Edges: edges}
}

func (s *Session) touch() {
	s.scheduler.Schedule(s.current())
}

type syncMode int

const (
	syncScheduled syncMode = iota
	syncFlush
	syncFinal
)

// sync diffs current against the snapshot and sends the patch. A scheduled
// trigger that arrives while another sync is in flight is deferred and
// rescheduled once that sync completes; a flush gets errBusy instead.
// syncFinal marks the flush made by Close.
func (s *Session) sync(ctx context.Context, current Snapshot, mode syncMode) error {
	s.mu.Lock()
	if s.status == StatusClosed || (s.closing && mode != syncFinal) {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status == StatusSyncing {
		if mode != syncScheduled {
			s.mu.Unlock()
			return errBusy
		}
		s.deferred = true
		s.mu.Unlock()
		s.logger.Debug("Sync already in flight; deferring")
		s.emit(SyncEvent{Outcome: OutcomeDeferred})
		return nil
	}
	s.status = StatusSyncing
	s.idle = make(chan struct{})
	base := s.snapshot.clone()
	s.mu.Unlock()

	ev := s.dispatch(ctx, base, current)

	s.mu.Lock()
	s.status = StatusReady
	close(s.idle)
	rerun := s.deferred && !s.closing
	if rerun {
		s.deferred = false
	}
	s.mu.Unlock()

	if rerun {
		s.touch()
	}
	s.emit(ev)
	return ev.Err
}

func (s *Session) dispatch(ctx context.Context, base, current Snapshot) SyncEvent {
	d := diff.Compute(base.Nodes, base.Edges, current.Nodes, current.Edges)
	if d.IsEmpty() {
		return SyncEvent{Outcome: OutcomeNoop}
	}

	patch := d.Patch()
	start := s.clock.Now()
	project, err := s.api.PatchProject(ctx, s.projectID, patch)
	if err == nil && project == nil {
		err = ErrEmptyResponse
	}
	if err != nil {
		s.logger.Warn("Sync failed; snapshot kept for retry",
			zap.Error(err),
			zap.Duration("duration", s.clock.Now().Sub(start)),
		)
		s.notifier.Notify(notify.New(notify.Error, fmt.Sprintf("Failed to save changes: %v", err)))
		return SyncEvent{Outcome: OutcomeFailed, Patch: patch, Err: err}
	}

	outcome, err := s.reconcile(current, project)
	s.logger.Debug("Sync completed",
		zap.String("outcome", string(outcome)),
		zap.Int("nodes_added", len(patch.NodesToAdd)),
		zap.Int("nodes_updated", len(patch.NodesToUpdate)),
		zap.Int("nodes_removed", len(patch.NodesToRemove)),
		zap.Int("edges_added", len(patch.EdgesToAdd)),
		zap.Int("edges_removed", len(patch.EdgesToRemove)),
		zap.Duration("duration", s.clock.Now().Sub(start)),
	)
	return SyncEvent{Outcome: outcome, Patch: patch, Err: err}
}

// reconcile installs the new snapshot after a successful patch. When the
// server's graph equals what was sent, the sent state becomes the snapshot.
// Otherwise the server's corrections are merged into the live graph, keeping
// local edits made while the request was in flight, and the server's graph
// becomes the snapshot. A server graph with dangling edges is refused.
func (s *Session) reconcile(synced Snapshot, project *entities.Project) (Outcome, error) {
	s.mu.Lock()
	s.meta = project.Summary()
	s.mu.Unlock()

	correction := diff.Compute(synced.Nodes, synced.Edges, project.Nodes, project.Edges)
	if correction.IsEmpty() {
		s.setSnapshot(synced)
		return OutcomeSynced, nil
	}

	if err := entities.ValidateGraph(project.Nodes, project.Edges); err != nil {
		s.setSnapshot(synced)
		s.logger.Error("Rejected server graph", zap.Error(err))
		s.notifier.Notify(notify.New(notify.Error, "The server returned an inconsistent project; keeping your local copy"))
		return OutcomeRejected, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	s.graph.Update(func(nodes []entities.TaskNode, edges []entities.TaskEdge) ([]entities.TaskNode, []entities.TaskEdge) {
		nodes = merge(nodes, synced.Nodes, correction.Nodes, func(n entities.TaskNode) string { return n.ID })
		edges = merge(edges, synced.Edges, correction.Edges, func(e entities.TaskEdge) string { return e.ID })

		alive := make(map[string]bool, len(nodes))
		for _, n := range nodes {
			alive[n.ID] = true
		}
		edges = slices.DeleteFunc(edges, func(e entities.TaskEdge) bool {
			return !alive[e.Source] || !alive[e.Target]
		})
		return nodes, edges
	})
	s.setSnapshot(Snapshot{Nodes: project.Nodes, Edges: project.Edges}.clone())
	s.logger.Info("Merged server corrections",
		zap.Int("nodes_added", len(correction.Nodes.ToAdd)),
		zap.Int("nodes_updated", len(correction.Nodes.ToUpdate)),
		zap.Int("nodes_removed", len(correction.Nodes.ToRemove)),
		zap.Int("edges_added", len(correction.Edges.ToAdd)),
		zap.Int("edges_updated", len(correction.Edges.ToUpdate)),
		zap.Int("edges_removed", len(correction.Edges.ToRemove)),
	)
	return OutcomeReconciled, nil
}

// merge applies a server correction to the live collection. Removals and
// additions always apply; an update applies only when the local item is
// still the one that was sent.
func merge[T comparable](local, sent []T, corr diff.Result[T], id func(T) string) []T {
	sentByID := make(map[string]T, len(sent))
	for _, item := range sent {
		sentByID[id(item)] = item
	}

	removed := make(map[string]bool, len(corr.ToRemove))
	for _, item := range corr.ToRemove {
		removed[id(item)] = true
	}
	updates := make(map[string]T, len(corr.ToUpdate))
	for _, item := range corr.ToUpdate {
		updates[id(item)] = item
	}

	out := make([]T, 0, len(local)+len(corr.ToAdd))
	present := make(map[string]bool, len(local))
	for _, item := range local {
		key := id(item)
		if removed[key] {
			continue
		}
		if upd, ok := updates[key]; ok && sentByID[key] == item {
			item = upd
		}
		present[key] = true
		out = append(out, item)
	}
	for _, item := range corr.ToAdd {
		if !present[id(item)] {
			out = append(out, item)
		}
	}
	return out
}

func (s *Session) setSnapshot(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

func (s *Session) emit(ev SyncEvent) {
	if s.onSync == nil {
		return
	}
	ev.ProjectID = s.projectID
	ev.At = s.clock.Now()
	s.onSync(ev)
}
