/*
Package store implements the durable message store on PostgreSQL.

Each case's chat history is an ordered list of enriched message records. The store is
append-only from the chat core's perspective: the batch flusher writes whole batches,
the HTTP surface reads history ascending and may bulk-delete a case's records.
*/
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lawchat/internal/app/chat"
)

// Repository persists and reads case chat history.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendMessages appends a whole batch to the case's history in one round trip,
// preserving the batch's arrival order. The write is transactional: either the whole
// batch lands or none of it does, so a retried batch never half-duplicates.
func (r *Repository) AppendMessages(ctx context.Context, caseID string, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch append for case %s: %w", caseID, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range messages {
		batch.Queue(
			`INSERT INTO case_messages
			   (case_id, message_id, sender_id, sender_name, sender_avatar, kind, body, sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			caseID, m.ID, m.SenderID, m.SenderName, m.SenderAvatar, string(m.Kind), m.Body, m.SentAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range messages {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to append batch for case %s: %w", caseID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch for case %s: %w", caseID, err)
	}

	return tx.Commit(ctx)
}

// CaseHistory returns the case's persisted messages sorted by send time ascending.
// A case with no history yields an empty slice, not an error.
func (r *Repository) CaseHistory(ctx context.Context, caseID string) ([]chat.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, case_id, sender_id, sender_name, sender_avatar, kind, body, sent_at
		 FROM case_messages
		 WHERE case_id = $1
		 ORDER BY sent_at ASC, id ASC`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for case %s: %w", caseID, err)
	}
	defer rows.Close()

	history := make([]chat.Message, 0)

	for rows.Next() {
		var m chat.Message
		var kind string

		if err := rows.Scan(&m.ID, &m.CaseID, &m.SenderID, &m.SenderName, &m.SenderAvatar, &kind, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row for case %s: %w", caseID, err)
		}

		m.Kind = chat.Kind(kind)
		history = append(history, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history for case %s: %w", caseID, err)
	}

	return history, nil
}

// DeleteCaseMessages removes the case's entire chat history and returns how many
// records were deleted.
func (r *Repository) DeleteCaseMessages(ctx context.Context, caseID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM case_messages WHERE case_id = $1`,
		caseID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history for case %s: %w", caseID, err)
	}

	return tag.RowsAffected(), nil
}
