package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/pg"
)

// Users resolves users by email from a users(id, email) table.
type Users struct {
	db    DBTX
	query string
}

// NewUsers creates a directory over table, "users" when empty.
// table may be schema qualified ("auth.users"); each part is quoted as an
// SQL identifier.
func NewUsers(db DBTX, table string) *Users {
	if db == nil {
		panic("pgstore: db is required")
	}
	if table == "" {
		table = "users"
	}
	ident := pgx.Identifier(strings.Split(table, ".")).Sanitize()
	return &Users{
		db:    db,
		query: `SELECT id, email FROM ` + ident + ` WHERE lower(email) = lower($1) LIMIT 1`,
	}
}

func (u *Users) FindByEmail(ctx context.Context, email string) (*billing.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, billing.ErrUserNotFound
	}

	var (
		id    uuid.UUID
		found string
	)
	if err := u.db.QueryRow(ctx, u.query, email).Scan(&id, &found); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrUserNotFound
		}
		return nil, fmt.Errorf("pgstore: find user by email: %w", err)
	}
	return &billing.User{ID: id, Email: found}, nil
}
