package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedbackpipe/internal/services"
)

const submissionColumns = "id, session_id, mode, status, remote_id, size_bytes, duration_seconds, answers_json, error_message, created_at, updated_at"

// Save inserts or replaces the record for sub.SessionID. CreatedAt is
// preserved across replacements.
func (s *Store) Save(ctx context.Context, sub Submission) (*Submission, error) {
	if strings.TrimSpace(sub.SessionID) == "" {
		return nil, services.Wrap(services.ErrValidation, "persisting", "save", "session id is required", nil)
	}
	switch sub.Status {
	case StatusCompleted:
		if sub.Mode != "text" && strings.TrimSpace(sub.RemoteID) == "" {
			return nil, services.Wrap(services.ErrValidation, "persisting", "save", "completed media submission needs a remote id", nil)
		}
	case StatusFailed:
	default:
		return nil, services.Wrap(services.ErrValidation, "persisting", "save", fmt.Sprintf("unknown status %q", sub.Status), nil)
	}
	answers, err := encodeAnswers(sub.Answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	timestamp := s.now().UTC().Format(timeLayout)

	err = s.execWithRetry(ctx,
		`INSERT INTO submissions (
            session_id, mode, status, remote_id, size_bytes, duration_seconds,
            answers_json, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(session_id) DO UPDATE SET
            mode = excluded.mode,
            status = excluded.status,
            remote_id = excluded.remote_id,
            size_bytes = excluded.size_bytes,
            duration_seconds = excluded.duration_seconds,
            answers_json = excluded.answers_json,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at`,
		sub.SessionID,
		sub.Mode,
		string(sub.Status),
		nullableString(sub.RemoteID),
		sub.SizeBytes,
		sub.DurationSeconds,
		answers,
		nullableString(sub.ErrorMessage),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}
	return s.GetBySession(ctx, sub.SessionID)
}

// GetBySession fetches one submission. A missing row yields (nil, nil).
func (s *Store) GetBySession(ctx context.Context, sessionID string) (*Submission, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+submissionColumns+" FROM submissions WHERE session_id = ?", sessionID)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// List returns submissions newest first, optionally filtered by status. A
// limit <= 0 returns all rows.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Submission, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + submissionColumns + " FROM submissions"
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Stats counts submissions per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM submissions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("submission stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Remove deletes the record for sessionID and reports whether it existed.
func (s *Store) Remove(ctx context.Context, sessionID string) (bool, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM submissions WHERE session_id = ?", sessionID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove submission: %w", err)
	}
	return affected > 0, nil
}
