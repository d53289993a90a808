package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/school-management/internal/database"
	"github.com/iliyamo/school-management/internal/model"
)

// RoleRepo reads the `roles` table.  Roles are seeded by migrations and are
// read-only for this service.
type RoleRepo struct{ DB database.DBTX }

func NewRoleRepo(db database.DBTX) *RoleRepo { return &RoleRepo{DB: db} }

// FindByName looks a role up by its upper-cased name.
func (r *RoleRepo) FindByName(ctx context.Context, name string) (model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name FROM roles WHERE name = ? LIMIT 1",
		strings.ToUpper(strings.TrimSpace(name))).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Role{}, ErrNotFound
		}
		return model.Role{}, fmt.Errorf("find role: %w", err)
	}
	return role, nil
}

// List returns all roles ordered by id.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name FROM roles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}
