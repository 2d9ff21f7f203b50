// Package projectlist keeps a local copy of the user's project list and
// applies the results of create, rename and delete calls to it.
package projectlist

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"todoflow/application/notify"
	"todoflow/domain/core/entities"
)

// API is the slice of the backend the list needs.
type API interface {
	ListProjects(ctx context.Context) ([]entities.Project, error)
	CreateProject(ctx context.Context, name string) (*entities.Project, error)
	RenameProject(ctx context.Context, id, name string) (*entities.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// List mirrors GET /projects. Entries hold summaries only.
type List struct {
	api      API
	logger   *zap.Logger
	notifier notify.Notifier

	mu     sync.RWMutex
	items  []entities.Project
	loaded bool
}

// New creates an empty list. A nil logger or notifier is replaced by a no-op.
func New(api API, logger *zap.Logger, notifier notify.Notifier) *List {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogger(logger)
	}
	return &List{api: api, logger: logger, notifier: notifier}
}

// Load replaces the cached list with the server's.
func (l *List) Load(ctx context.Context) error {
	projects, err := l.api.ListProjects(ctx)
	if err != nil {
		l.logger.Error("Failed to list projects", zap.Error(err))
		l.notifier.Notify(notify.New(notify.Error, "Failed to load projects"))
		return err
	}
	summaries := make([]entities.Project, 0, len(projects))
	for i := range projects {
		summaries = append(summaries, projects[i].Summary())
	}

	l.mu.Lock()
	l.items = summaries
	l.loaded = true
	l.mu.Unlock()
	return nil
}

// Loaded reports whether Load has succeeded at least once.
func (l *List) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Projects returns a copy of the cached list.
func (l *List) Projects() []entities.Project {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items)
}

// Get looks up a cached project by id.
func (l *List) Get(id string) (entities.Project, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.index(id); i >= 0 {
		return l.items[i], true
	}
	return entities.Project{}, false
}

// Create asks the server for a new project and appends it.
func (l *List) Create(ctx context.Context, name string) (entities.Project, error) {
	p, err := l.api.CreateProject(ctx, name)
	if err != nil {
		l.notifier.Notify(notify.New(notify.Error, fmt.Sprintf("Failed to create project: %v", err)))
		return entities.Project{}, err
	}
	summary := p.Summary()

	l.mu.Lock()
	if i := l.index(summary.ID); i >= 0 {
		l.items[i] = summary
	} else {
		l.items = append(l.items, summary)
	}
	l.mu.Unlock()

	l.notifier.Notify(notify.New(notify.Success, fmt.Sprintf("Project %q created", summary.Name)))
	return summary, nil
}

// Rename renames a project and replaces its cached entry with the server's.
// Other entries are untouched.
func (l *List) Rename(ctx context.Context, id, name string) (entities.Project, error) {
	p, err := l.api.RenameProject(ctx, id, name)
	if err != nil {
		l.notifier.Notify(notify.New(notify.Error, fmt.Sprintf("Failed to rename project: %v", err)))
		return entities.Project{}, err
	}
	summary := p.Summary()

	l.mu.Lock()
	if i := l.index(id); i >= 0 {
		l.items[i] = summary
	}
	l.mu.Unlock()

	l.notifier.Notify(notify.New(notify.Success, "Project renamed"))
	return summary, nil
}

// Delete removes a project on the server and from the cache.
func (l *List) Delete(ctx context.Context, id string) error {
	if err := l.api.DeleteProject(ctx, id); err != nil {
		l.notifier.Notify(notify.New(notify.Error, fmt.Sprintf("Failed to delete project: %v", err)))
		return err
	}

	l.mu.Lock()
	if i := l.index(id); i >= 0 {
		l.items = slices.Delete(l.items, i, i+1)
	}
	l.mu.Unlock()

	l.notifier.Notify(notify.New(notify.Info, "Project deleted"))
	return nil
}

func (l *List) index(id string) int {
	return slices.IndexFunc(l.items, func(p entities.Project) bool { return p.ID == id })
}
