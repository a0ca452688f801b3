package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"sfcmove/internal/carpool"
)

// Notifier is told about every committed write. Implementations must not block.
type Notifier interface {
	Notify(table, op string)
}

// CarpoolStore is the Postgres carpool.Backend. Writes re-check the capacity,
// single-membership and host rules inside their transaction, so two clients
// passing the Manager's checks at the same moment cannot both succeed.
type CarpoolStore struct {
	db     *sql.DB
	notify Notifier
	log    *zap.Logger
}

type StoreOption func(*CarpoolStore)

func WithNotifier(n Notifier) StoreOption { return func(s *CarpoolStore) { s.notify = n } }

func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *CarpoolStore) {
		if l != nil {
			s.log = l
		}
	}
}

func NewCarpoolStore(db *sql.DB, opts ...StoreOption) *CarpoolStore {
	s := &CarpoolStore{db: db, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ carpool.Backend = (*CarpoolStore)(nil)

const groupColumns = `id::text, created_at, completed_at, host_id, memo, dep_from::text`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(r rowScanner) (carpool.GroupRow, error) {
	var (
		g         carpool.GroupRow
		completed sql.NullTime
		memo      sql.NullString
		depFrom   string
	)
	if err := r.Scan(&g.ID, &g.CreatedAt, &completed, &g.HostID, &memo, &depFrom); err != nil {
		return carpool.GroupRow{}, err
	}
	if completed.Valid {
		t := completed.Time
		g.CompletedAt = &t
	}
	if memo.Valid {
		m := memo.String
		g.Memo = &m
	}
	g.DepFrom = carpool.Place(depFrom)
	return g, nil
}

func (s *CarpoolStore) ActiveGroups(ctx context.Context) ([]carpool.GroupRow, error) {
	q := `SELECT ` + groupColumns + ` FROM taxi_groups WHERE completed_at IS NULL ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query active groups: %w", err)
	}
	defer rows.Close()

	var out []carpool.GroupRow
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *CarpoolStore) GetGroup(ctx context.Context, id string) (carpool.GroupRow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return carpool.GroupRow{}, carpool.ErrGroupNotFound
	}
	q := `SELECT ` + groupColumns + ` FROM taxi_groups WHERE id = $1::uuid`
	g, err := scanGroup(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return carpool.GroupRow{}, carpool.ErrGroupNotFound
	}
	if err != nil {
		return carpool.GroupRow{}, fmt.Errorf("query group: %w", err)
	}
	return g, nil
}

func (s *CarpoolStore) Members(ctx context.Context, groupIDs ...string) ([]carpool.Membership, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	q := `SELECT group_id::text, user_id FROM taxi_group_members WHERE group_id = ANY($1::uuid[])`
	rows, err := s.db.QueryContext(ctx, q, uuidArray(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []carpool.Membership
	for rows.Next() {
		var m carpool.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const activeMembershipQuery = `
SELECT m.group_id::text, m.user_id
FROM taxi_group_members m
JOIN taxi_groups g ON g.id = m.group_id
WHERE m.user_id = $1 AND g.completed_at IS NULL
LIMIT 1`

func activeMembership(ctx context.Context, q querier, userID string) (*carpool.Membership, error) {
	var m carpool.Membership
	err := q.QueryRowContext(ctx, activeMembershipQuery, userID).Scan(&m.GroupID, &m.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query membership: %w", err)
	}
	return &m, nil
}

func (s *CarpoolStore) ActiveMembership(ctx context.Context, userID string) (*carpool.Membership, error) {
	return activeMembership(ctx, s.db, userID)
}

// lockUser serialises membership changes of one user for the rest of the transaction.
func lockUser(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (s *CarpoolStore) CreateGroup(ctx context.Context, ng carpool.NewGroup) (carpool.GroupRow, error) {
	var row carpool.GroupRow
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, ng.HostID); err != nil {
			return err
		}
		ms, err := activeMembership(ctx, tx, ng.HostID)
		if err != nil {
			return err
		}
		if ms != nil {
			return carpool.ErrAlreadyInGroup
		}
		q := `INSERT INTO taxi_groups (host_id, memo, dep_from) VALUES ($1, $2, $3::taxi_grouping_place) RETURNING ` + groupColumns
		row, err = scanGroup(tx.QueryRowContext(ctx, q, ng.HostID, ng.Memo, string(ng.DepFrom)))
		if err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO taxi_group_members (group_id, user_id) VALUES ($1::uuid, $2)`, row.ID, ng.HostID); err != nil {
			return fmt.Errorf("insert host membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return carpool.GroupRow{}, mapPgError(err)
	}
	s.changed(carpool.TableGroups, "INSERT")
	s.changed(carpool.TableMembers, "INSERT")
	return row, nil
}

func (s *CarpoolStore) AddMember(ctx context.Context, m carpool.Membership) error {
	if _, err := uuid.Parse(m.GroupID); err != nil {
		return carpool.ErrGroupNotFound
	}
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, m.UserID); err != nil {
			return err
		}
		var completed sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT completed_at FROM taxi_groups WHERE id = $1::uuid FOR UPDATE`, m.GroupID).Scan(&completed)
		if errors.Is(err, sql.ErrNoRows) {
			return carpool.ErrGroupNotFound
		}
		if err != nil {
			return fmt.Errorf("lock group: %w", err)
		}
		if completed.Valid {
			return carpool.ErrGroupCompleted
		}
		ms, err := activeMembership(ctx, tx, m.UserID)
		if err != nil {
			return err
		}
		if ms != nil {
			return carpool.ErrAlreadyInGroup
		}
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM taxi_group_members WHERE group_id = $1::uuid`, m.GroupID).Scan(&count); err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		if count >= carpool.MaxPeople {
			return carpool.ErrGroupFull
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO taxi_group_members (group_id, user_id) VALUES ($1::uuid, $2)`, m.GroupID, m.UserID); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return mapPgError(err)
	}
	s.changed(carpool.TableMembers, "INSERT")
	return nil
}

func (s *CarpoolStore) RemoveMember(ctx context.Context, m carpool.Membership) (bool, error) {
	if _, err := uuid.Parse(m.GroupID); err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM taxi_group_members WHERE group_id = $1::uuid AND user_id = $2`, m.GroupID, m.UserID)
	if err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.changed(carpool.TableMembers, "DELETE")
	}
	return n > 0, nil
}

func (s *CarpoolStore) CompleteGroup(ctx context.Context, groupID, callerID string) (carpool.GroupRow, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return carpool.GroupRow{}, carpool.ErrGroupNotFound
	}
	q := `SELECT ` + groupColumns + ` FROM mark_taxi_group_as_completed($1::uuid, $2)`
	row, err := scanGroup(s.db.QueryRowContext(ctx, q, groupID, callerID))
	if errors.Is(err, sql.ErrNoRows) {
		return carpool.GroupRow{}, carpool.ErrGroupNotFound
	}
	if err != nil {
		return carpool.GroupRow{}, mapPgError(fmt.Errorf("complete group: %w", err))
	}
	s.changed(carpool.TableGroups, "UPDATE")
	return row, nil
}

func (s *CarpoolStore) DisplayNames(ctx context.Context, userIDs ...string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, full_name FROM public_user WHERE id = ANY($1::text[]) AND full_name IS NOT NULL`, textArray(userIDs))
	if err != nil {
		return nil, fmt.Errorf("query display names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (s *CarpoolStore) changed(table, op string) {
	if s.notify == nil {
		return
	}
	s.notify.Notify(table, op)
}

// mapPgError turns constraint and function errors into carpool sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "42501":
		return carpool.ErrNotHost
	case "55000":
		return carpool.ErrGroupCompleted
	case "23505":
		return carpool.ErrAlreadyInGroup
	case "23503":
		return carpool.ErrGroupNotFound
	}
	return err
}
