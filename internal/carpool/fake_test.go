package carpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memBackend is an in-memory Backend with no enforcement of its own, so the
// Manager's checks are what the tests observe.
type memBackend struct {
	mu      sync.Mutex
	now     time.Time
	groups  map[string]GroupRow
	members []Membership
	names   map[string]string
	err     error
	writes  int
}

func newMemBackend() *memBackend {
	return &memBackend{
		now:    time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		groups: make(map[string]GroupRow),
		names:  make(map[string]string),
	}
}

func (b *memBackend) tick() time.Time {
	b.now = b.now.Add(time.Minute)
	return b.now
}

func (b *memBackend) ActiveGroups(context.Context) ([]GroupRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	var out []GroupRow
	for _, g := range b.groups {
		if g.Active() {
			out = append(out, g)
		}
	}
	return out, nil
}

func (b *memBackend) GetGroup(_ context.Context, id string) (GroupRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return GroupRow{}, b.err
	}
	g, ok := b.groups[id]
	if !ok {
		return GroupRow{}, ErrGroupNotFound
	}
	return g, nil
}

func (b *memBackend) Members(_ context.Context, ids ...string) ([]Membership, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Membership
	for _, m := range b.members {
		if want[m.GroupID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *memBackend) ActiveMembership(_ context.Context, userID string) (*Membership, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	for _, m := range b.members {
		if m.UserID == userID && b.groups[m.GroupID].Active() {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (b *memBackend) CreateGroup(_ context.Context, ng NewGroup) (GroupRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return GroupRow{}, b.err
	}
	row := GroupRow{
		ID:        uuid.NewString(),
		CreatedAt: b.tick(),
		HostID:    ng.HostID,
		Memo:      ng.Memo,
		DepFrom:   ng.DepFrom,
	}
	b.groups[row.ID] = row
	b.members = append(b.members, Membership{GroupID: row.ID, UserID: ng.HostID})
	b.writes++
	return row, nil
}

func (b *memBackend) AddMember(_ context.Context, m Membership) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.members = append(b.members, m)
	b.writes++
	return nil
}

func (b *memBackend) RemoveMember(_ context.Context, m Membership) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return false, b.err
	}
	for i, x := range b.members {
		if x == m {
			b.members = append(b.members[:i], b.members[i+1:]...)
			b.writes++
			return true, nil
		}
	}
	return false, nil
}

func (b *memBackend) CompleteGroup(_ context.Context, groupID, callerID string) (GroupRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return GroupRow{}, b.err
	}
	g, ok := b.groups[groupID]
	if !ok {
		return GroupRow{}, ErrGroupNotFound
	}
	if g.HostID != callerID {
		return GroupRow{}, ErrNotHost
	}
	at := b.tick()
	g.CompletedAt = &at
	b.groups[groupID] = g
	b.writes++
	return g, nil
}

func (b *memBackend) DisplayNames(_ context.Context, ids ...string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string)
	for _, id := range ids {
		if n, ok := b.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (b *memBackend) fail(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *memBackend) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

type fakeFeed struct {
	ch     chan Change
	tables []string
	closed bool
}

func newFakeFeed() *fakeFeed { return &fakeFeed{ch: make(chan Change, 16)} }

func (f *fakeFeed) Subscribe(_ context.Context, tables ...string) (Subscription, error) {
	f.tables = tables
	return f, nil
}

func (f *fakeFeed) Changes() <-chan Change { return f.ch }

func (f *fakeFeed) Close() error {
	f.closed = true
	return nil
}
