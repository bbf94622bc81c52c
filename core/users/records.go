// Package users is the narrow boundary to persistent user records.
package users

import (
	"context"
	"errors"
	"strconv"
)

// Field names a column of the user record.
type Field string

const (
	FieldUsername     Field = "username"
	FieldPhone        Field = "phone_number"
	FieldVerified     Field = "verified"
	FieldBlocked      Field = "blocked"
	FieldHasReference Field = "has_reference"
	FieldReachable    Field = "reachable"
)

// ErrUnknownField is returned for a field outside the record schema.
var ErrUnknownField = errors.New("users: unknown field")

// Records is the user-record collaborator. Values travel as strings;
// boolean fields use "true"/"false".
type Records interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	CreateUser(ctx context.Context, id int64) error
	// GetField returns ok=false when the user does not exist.
	GetField(ctx context.Context, id int64, field Field) (value string, ok bool, err error)
	SetField(ctx context.Context, id int64, field Field, value string) error
	ListVerifiedUserIDs(ctx context.Context) ([]int64, error)
	// FindIDByHandle matches the stored username case-insensitively, without "@".
	FindIDByHandle(ctx context.Context, handle string) (id int64, ok bool, err error)
}

// Bool reads a boolean field. Missing users and empty values read as false.
func Bool(ctx context.Context, r Records, id int64, field Field) (bool, error) {
	v, ok, err := r.GetField(ctx, id, field)
	if err != nil || !ok || v == "" {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, err
	}
	return b, nil
}

// SetBool writes a boolean field.
func SetBool(ctx context.Context, r Records, id int64, field Field, v bool) error {
	return r.SetField(ctx, id, field, strconv.FormatBool(v))
}

// Ensure creates the user when missing. It reports whether a record was created.
func Ensure(ctx context.Context, r Records, id int64) (bool, error) {
	exists, err := r.UserExists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := r.CreateUser(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}
