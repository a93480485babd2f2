/*
Package cases contains case lookup and the chat access rule.

A case is the central legal matter entity: it is owned by a client and may have one
assigned lawyer. Both the real-time join/send paths and the HTTP history endpoints
authorize against the same AccessibleBy predicate so the rule cannot drift between
operations.
*/
package cases

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lawchat/internal/app/directory"
)

// ErrNotFound is returned when the requested case does not exist.
var ErrNotFound = errors.New("case not found")

// Case holds the subset of a legal case relevant to chat authorization.
type Case struct {
	// ID is the unique identifier of the case; it doubles as the chat room name.
	ID string

	// Title is the human-readable case title, echoed back on room join.
	Title string

	// ClientID is the user id of the client who owns the case.
	ClientID string

	// AssignedLawyerID is the user id of the assigned lawyer, empty while the case
	// has no lawyer yet.
	AssignedLawyerID string
}

// AccessibleBy reports whether the given user may read and write this case's chat.
// Access is granted to admins, the case's client owner, and its assigned lawyer.
// A lawyer who has not been assigned (or any unrelated user) is denied.
func (c *Case) AccessibleBy(userID, role string) bool {
	if role == directory.RoleAdmin {
		return true
	}
	if userID == c.ClientID {
		return true
	}
	return c.AssignedLawyerID != "" && userID == c.AssignedLawyerID
}

// Repository resolves cases from the cases table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCase returns the case with the given id, or ErrNotFound when it does not exist.
func (r *Repository) GetCase(ctx context.Context, caseID string) (*Case, error) {
	c := &Case{}

	err := r.pool.QueryRow(ctx,
		`SELECT id, title, client_id, COALESCE(assigned_lawyer_id, '')
		 FROM cases WHERE id = $1`,
		caseID,
	).Scan(&c.ID, &c.Title, &c.ClientID, &c.AssignedLawyerID)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch case %s: %w", caseID, err)
	}

	return c, nil
}
