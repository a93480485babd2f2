/*
Package directory contains user identity lookup for the chat system.

It defines the display identity of a chat participant (the Identity struct) and the
pgx-backed repository that resolves it, used to enrich outgoing chat messages with
the sender's name and avatar.
*/
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User account roles. A token's role decides which case chats it may enter.
const (
	RoleClient = "client"
	RoleLawyer = "lawyer"
	RoleAdmin  = "admin"
)

// ErrNotFound is returned when the requested user does not exist.
var ErrNotFound = errors.New("user not found")

// Identity represents the display identity of a chat participant.
type Identity struct {
	// UserID is the unique identifier of the user.
	UserID string `json:"userId"`

	// Username is the display name shown next to the user's messages.
	Username string `json:"username"`

	// AvatarURL is the URL for the user's avatar, empty when none is set.
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Repository resolves user identities from the users table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetIdentity returns the display identity for the given user id.
// It returns ErrNotFound when no such user exists.
func (r *Repository) GetIdentity(ctx context.Context, userID string) (Identity, error) {
	var identity Identity

	err := r.pool.QueryRow(ctx,
		`SELECT id, username, avatar_url FROM users WHERE id = $1`,
		userID,
	).Scan(&identity.UserID, &identity.Username, &identity.AvatarURL)

	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}

	return identity, nil
}
