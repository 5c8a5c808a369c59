package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/aussiebroadwan/tollgate/internal/auth/domain"
	"github.com/aussiebroadwan/tollgate/internal/auth/store"
)

type usersRepo struct {
	db *sql.DB
}

const userColumns = `id, email, name, password_hash, role, active, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanPrincipal(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
	return scanPrincipal(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, p domain.Principal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, role, active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Email, p.Name, p.PasswordHash, string(p.Role), boolToInt(p.Active),
	)
	if err != nil {
		// modernc.org/sqlite surfaces constraint failures as plain errors;
		// match on the sqlite message to map the duplicate-email case.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func scanPrincipal(row *sql.Row) (domain.Principal, error) {
	var p domain.Principal
	var role string
	var active int

	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &p.PasswordHash,
		&role, &active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Principal{}, mapNotFound(err)
	}

	p.Role = domain.Role(role)
	p.Active = active != 0
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
