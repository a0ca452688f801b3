package carpool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Metrics interface {
	OperationDone(op string, err error)
}

// Manager performs group operations on behalf of one signed-in user.
// Preconditions are checked against the backend immediately before each write.
// The checks are advisory: two devices can pass them at the same moment, so
// backends that can enforce them atomically should do so as well.
type Manager struct {
	backend Backend
	userID  string
	log     *zap.Logger
	metrics Metrics

	mu   sync.Mutex
	busy map[string]struct{}
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithMetrics(mt Metrics) Option { return func(m *Manager) { m.metrics = mt } }

func NewManager(b Backend, userID string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNotSignedIn
	}
	m := &Manager{
		backend: b,
		userID:  userID,
		log:     zap.NewNop(),
		busy:    make(map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With(zap.String("user_id", userID))
	return m, nil
}

func (m *Manager) UserID() string { return m.userID }

// acquire marks key busy; a second caller is refused instead of queued.
func (m *Manager) acquire(key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.busy[key]; held {
		return nil, ErrBusy
	}
	m.busy[key] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.busy, key)
		m.mu.Unlock()
	}, nil
}

func (m *Manager) done(op string, err error) {
	if m.metrics != nil {
		m.metrics.OperationDone(op, err)
	}
	switch {
	case err == nil:
	case IsPrecondition(err):
		m.log.Info("carpool operation refused", zap.String("op", op), zap.Error(err))
	default:
		m.log.Error("carpool operation failed", zap.String("op", op), zap.Error(err))
	}
}

// ListActive returns every group not yet completed, newest first.
func (m *Manager) ListActive(ctx context.Context) (groups []Group, err error) {
	defer func() { m.done("list", err) }()

	rows, err := m.backend.ActiveGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	rows = activeOnly(rows)
	if len(rows) == 0 {
		return []Group{}, nil
	}
	ids := make([]string, 0, len(rows))
	hosts := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
		hosts = append(hosts, r.HostID)
	}
	members, err := m.backend.Members(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	names := m.displayNames(ctx, hosts...)

	groups = make([]Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, project(r, members, names[r.HostID], m.userID))
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].CreatedAt.After(groups[j].CreatedAt) })
	return groups, nil
}

func activeOnly(rows []GroupRow) []GroupRow {
	out := rows[:0:0]
	for _, r := range rows {
		if r.Active() {
			out = append(out, r)
		}
	}
	return out
}

// displayNames degrades to no names when the lookup fails.
func (m *Manager) displayNames(ctx context.Context, ids ...string) map[string]string {
	names, err := m.backend.DisplayNames(ctx, ids...)
	if err != nil {
		m.log.Warn("host names unavailable", zap.Error(err))
		return map[string]string{}
	}
	return names
}

// Current returns the caller's active group, or nil when they are in none.
func (m *Manager) Current(ctx context.Context) (g *Group, err error) {
	defer func() { m.done("current", err) }()

	ms, err := m.backend.ActiveMembership(ctx, m.userID)
	if err != nil {
		return nil, fmt.Errorf("lookup membership: %w", err)
	}
	if ms == nil {
		return nil, nil
	}
	row, err := m.backend.GetGroup(ctx, ms.GroupID)
	if errors.Is(err, ErrGroupNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}
	if !row.Active() {
		return nil, nil
	}
	return m.load(ctx, row)
}

func (m *Manager) load(ctx context.Context, row GroupRow) (*Group, error) {
	members, err := m.backend.Members(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	names := m.displayNames(ctx, row.HostID)
	g := project(row, members, names[row.HostID], m.userID)
	return &g, nil
}

// ensureFree fails with ErrAlreadyInGroup when the caller already has an active group.
func (m *Manager) ensureFree(ctx context.Context) error {
	ms, err := m.backend.ActiveMembership(ctx, m.userID)
	if err != nil {
		return fmt.Errorf("lookup membership: %w", err)
	}
	if ms != nil {
		return ErrAlreadyInGroup
	}
	return nil
}

// Create opens a new group hosted by the caller.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (g *Group, err error) {
	defer func() { m.done("create", err) }()

	if _, err := ParsePlace(string(req.DepFrom)); err != nil {
		return nil, err
	}
	release, err := m.acquire("create")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.ensureFree(ctx); err != nil {
		return nil, err
	}
	ng := NewGroup{HostID: m.userID, DepFrom: req.DepFrom}
	if memo := strings.TrimSpace(req.Memo); memo != "" {
		ng.Memo = &memo
	}
	row, err := m.backend.CreateGroup(ctx, ng)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	m.log.Info("carpool group created",
		zap.String("group_id", row.ID),
		zap.String("dep_from", string(row.DepFrom)),
		zap.Int("expected_people", req.PeopleCount))

	names := m.displayNames(ctx, m.userID)
	created := project(row, []Membership{{GroupID: row.ID, UserID: m.userID}}, names[m.userID], m.userID)
	return &created, nil
}

func (m *Manager) activeGroup(ctx context.Context, groupID string) (GroupRow, error) {
	row, err := m.backend.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			return GroupRow{}, err
		}
		return GroupRow{}, fmt.Errorf("load group: %w", err)
	}
	if !row.Active() {
		return GroupRow{}, ErrGroupCompleted
	}
	return row, nil
}

// Join adds the caller to groupID.
func (m *Manager) Join(ctx context.Context, groupID string) (err error) {
	defer func() { m.done("join", err) }()

	release, err := m.acquire(groupID)
	if err != nil {
		return err
	}
	defer release()

	if err := m.ensureFree(ctx); err != nil {
		return err
	}
	if _, err := m.activeGroup(ctx, groupID); err != nil {
		return err
	}
	members, err := m.backend.Members(ctx, groupID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	if len(members) >= MaxPeople {
		return ErrGroupFull
	}
	if err := m.backend.AddMember(ctx, Membership{GroupID: groupID, UserID: m.userID}); err != nil {
		if IsPrecondition(err) {
			return err
		}
		return fmt.Errorf("join group: %w", err)
	}
	m.log.Info("joined carpool group", zap.String("group_id", groupID))
	return nil
}

// Leave removes the caller from groupID. The host cannot leave.
func (m *Manager) Leave(ctx context.Context, groupID string) (err error) {
	defer func() { m.done("leave", err) }()

	release, err := m.acquire(groupID)
	if err != nil {
		return err
	}
	defer release()

	row, err := m.activeGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if row.HostID == m.userID {
		return ErrHostCannotLeave
	}
	removed, err := m.backend.RemoveMember(ctx, Membership{GroupID: groupID, UserID: m.userID})
	if err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	if !removed {
		return ErrNotAMember
	}
	m.log.Info("left carpool group", zap.String("group_id", groupID))
	return nil
}

// Complete marks groupID completed. Only the host may do so; the backend
// repeats the host check because this one can be bypassed.
func (m *Manager) Complete(ctx context.Context, groupID string) (err error) {
	defer func() { m.done("complete", err) }()

	release, err := m.acquire(groupID)
	if err != nil {
		return err
	}
	defer release()

	row, err := m.activeGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if row.HostID != m.userID {
		return ErrNotHost
	}
	if _, err := m.backend.CompleteGroup(ctx, groupID, m.userID); err != nil {
		if IsPrecondition(err) {
			return err
		}
		return fmt.Errorf("complete group: %w", err)
	}
	m.log.Info("carpool group completed", zap.String("group_id", groupID))
	return nil
}
