package events

import "time"

// DomainEvent is something that already happened to an aggregate.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int64
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	OwnerID     string    `json:"owner_id"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int64     `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int64       { return e.Version }

const (
	TypeProjectCreated = "project.created"
	TypeProjectRenamed = "project.renamed"
	TypeProjectPatched = "project.patched"
	TypeProjectDeleted = "project.deleted"
	TypeUserLoggedIn   = "user.logged_in"
)

// ProjectCreated is raised when a user creates a project.
type ProjectCreated struct {
	BaseEvent
	Name string `json:"name"`
}

// ProjectRenamed is raised when a project's name changes.
type ProjectRenamed struct {
	BaseEvent
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// ProjectPatched summarizes an accepted graph patch.
type ProjectPatched struct {
	BaseEvent
	NodesAdded    int `json:"nodes_added"`
	NodesUpdated  int `json:"nodes_updated"`
	NodesRemoved  int `json:"nodes_removed"`
	EdgesAdded    int `json:"edges_added"`
	EdgesRemoved  int `json:"edges_removed"`
	EdgesCascaded int `json:"edges_cascaded"`
}

// ProjectDeleted is raised when a project is removed.
type ProjectDeleted struct {
	BaseEvent
}

// UserLoggedIn is raised on every successful sign-in.
type UserLoggedIn struct {
	BaseEvent
	Email string `json:"email"`
}

// NewProjectDeleted creates a ProjectDeleted event
func NewProjectDeleted(projectID, ownerID string, version int64, at time.Time) ProjectDeleted {
	return ProjectDeleted{BaseEvent: BaseEvent{
		AggregateID: projectID,
		EventType:   TypeProjectDeleted,
		OwnerID:     ownerID,
		Timestamp:   at,
		Version:     version,
	}}
}

// NewUserLoggedIn creates a UserLoggedIn event
func NewUserLoggedIn(uid, email string, at time.Time) UserLoggedIn {
	return UserLoggedIn{
		BaseEvent: BaseEvent{
			AggregateID: uid,
			EventType:   TypeUserLoggedIn,
			OwnerID:     uid,
			Timestamp:   at,
			Version:     1,
		},
		Email: email,
	}
}
