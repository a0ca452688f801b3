package carpool

import (
	"context"
	"time"
)

// Backend is the request/response surface of the relational store. Implementations
// return ErrGroupNotFound for unknown ids and may enforce the capacity, single
// membership and host rules themselves, returning the matching sentinel.
type Backend interface {
	ActiveGroups(ctx context.Context) ([]GroupRow, error)
	GetGroup(ctx context.Context, id string) (GroupRow, error)
	Members(ctx context.Context, groupIDs ...string) ([]Membership, error)
	// ActiveMembership returns the user's membership in a not yet completed group, or nil.
	ActiveMembership(ctx context.Context, userID string) (*Membership, error)
	// CreateGroup inserts the group and the host's membership.
	CreateGroup(ctx context.Context, g NewGroup) (GroupRow, error)
	AddMember(ctx context.Context, m Membership) error
	// RemoveMember reports whether a membership row was deleted.
	RemoveMember(ctx context.Context, m Membership) (bool, error)
	// CompleteGroup marks the group completed when callerID is its host.
	CompleteGroup(ctx context.Context, groupID, callerID string) (GroupRow, error)
	DisplayNames(ctx context.Context, userIDs ...string) (map[string]string, error)
}

// Tables whose changes invalidate the local view.
const (
	TableGroups  = "taxi_groups"
	TableMembers = "taxi_group_members"
)

// Change is an opaque "something changed" hint. Table and Op are informational.
type Change struct {
	Table string
	Op    string
	At    time.Time
}

type Subscription interface {
	Changes() <-chan Change
	Close() error
}

// ChangeFeed delivers best-effort change hints for the given tables.
type ChangeFeed interface {
	Subscribe(ctx context.Context, tables ...string) (Subscription, error)
}
