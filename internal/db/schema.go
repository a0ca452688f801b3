package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Statements are idempotent so Migrate can run on every deploy.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`DO $$ BEGIN
  CREATE TYPE taxi_grouping_place AS ENUM ('station', 'sfc');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$`,
	`CREATE TABLE IF NOT EXISTS users (
  id        text PRIMARY KEY,
  full_name text NOT NULL,
  email     text NOT NULL
)`,
	`CREATE OR REPLACE VIEW public_user AS SELECT id, full_name FROM users`,
	`CREATE TABLE IF NOT EXISTS taxi_groups (
  id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
  created_at   timestamptz NOT NULL DEFAULT now(),
  completed_at timestamptz,
  host_id      text NOT NULL,
  memo         text,
  dep_from     taxi_grouping_place NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS taxi_groups_active_idx ON taxi_groups (created_at DESC) WHERE completed_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS taxi_group_members (
  group_id uuid NOT NULL REFERENCES taxi_groups (id) ON DELETE CASCADE,
  user_id  text NOT NULL,
  PRIMARY KEY (group_id, user_id)
)`,
	`CREATE INDEX IF NOT EXISTS taxi_group_members_user_idx ON taxi_group_members (user_id)`,
	// Raises 42501 for a caller that is not the host and 55000 for a group that
	// is already completed; returns no row for an unknown group.
	`CREATE OR REPLACE FUNCTION mark_taxi_group_as_completed(p_group_id uuid, p_caller text)
RETURNS SETOF taxi_groups
LANGUAGE plpgsql AS $$
DECLARE
  g taxi_groups;
BEGIN
  SELECT * INTO g FROM taxi_groups WHERE id = p_group_id FOR UPDATE;
  IF NOT FOUND THEN
    RETURN;
  END IF;
  IF g.host_id <> p_caller THEN
    RAISE EXCEPTION 'only the host can complete group %', p_group_id USING ERRCODE = '42501';
  END IF;
  IF g.completed_at IS NOT NULL THEN
    RAISE EXCEPTION 'group % is already completed', p_group_id USING ERRCODE = '55000';
  END IF;
  RETURN QUERY UPDATE taxi_groups SET completed_at = now() WHERE id = p_group_id RETURNING *;
END
$$`,
}

// Migrate creates the carpool tables, the public_user view and the completion function.
func Migrate(ctx context.Context, db *sql.DB) error {
	return inTx(ctx, db, func(tx *sql.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate step %d: %w", i+1, err)
			}
		}
		return nil
	})
}
