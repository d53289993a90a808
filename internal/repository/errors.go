// Package repository defines the SQL-backed stores of the auth service and the
// error values they share. These sentinel values allow higher layers such as
// the session service to distinguish between different failure scenarios.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by AccountRepo.Create when the normalized
// email is already registered. Handlers translate it into HTTP 409.
var ErrDuplicateEmail = errors.New("email already exists")

// actorArg converts an actor id into a nullable column value; zero means the
// write was not performed on behalf of an authenticated account.
func actorArg(id uint64) any {
	if id == 0 {
		return nil
	}
	return id
}
