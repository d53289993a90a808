// Package testutil builds throwaway SQLite databases carrying the same auth
// schema as the MySQL migrations, for transactional tests.
package testutil

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE roles (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
INSERT INTO roles (name) VALUES ('ADMIN'), ('TEACHER'), ('STUDENT'), ('PARENT');

CREATE TABLE accounts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    email           TEXT NOT NULL UNIQUE,
    password_hash   TEXT NOT NULL,
    full_name       TEXT NOT NULL,
    phone           TEXT NULL,
    role_id         INTEGER NOT NULL REFERENCES roles (id),
    account_status  TEXT NOT NULL DEFAULT 'PENDING_ONBOARDING',
    is_active       BOOLEAN NOT NULL DEFAULT 1,
    last_login_at   DATETIME NULL,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    created_by_id   INTEGER NULL,
    updated_by_id   INTEGER NULL
);

CREATE TABLE refresh_tokens (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    jti            TEXT NOT NULL UNIQUE,
    account_id     INTEGER NOT NULL REFERENCES accounts (id),
    expires_at     DATETIME NOT NULL,
    revoked        BOOLEAN NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL,
    created_by_id  INTEGER NULL,
    updated_by_id  INTEGER NULL
);

CREATE TABLE revoked_access_tokens (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    jti            TEXT NOT NULL UNIQUE,
    reason         TEXT NOT NULL,
    expires_at     DATETIME NOT NULL,
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL,
    created_by_id  INTEGER NULL
);
`

// NewSQLiteDB opens a private in-memory database with the auth schema.  The
// pool is limited to a single connection so transactions serialize the way
// row locks serialize them on MySQL.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

// Count runs a COUNT(*) style query and returns the single integer result.
func Count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}
