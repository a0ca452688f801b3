package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
)

// RegisterUser records the display name and email for userID. Registering
// again overwrites both.
func RegisterUser(ctx context.Context, db *sql.DB, userID, email, fullName string) error {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return fmt.Errorf("name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("invalid email %q: %w", email, err)
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO users (id, full_name, email) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, email = EXCLUDED.email`,
		userID, fullName, addr.Address)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

// IsRegistered reports whether userID has a public profile.
func IsRegistered(ctx context.Context, db *sql.DB, userID string) (bool, error) {
	var ok bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM public_user WHERE id = $1)`, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("query registration: %w", err)
	}
	return ok, nil
}
