package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/chadiek/interview-coach/internal/domain"
)

// SaveAnswer persists one answer and refreshes the session's answered
// counter in the same transaction. The insert is idempotent on
// (session_id, question_id), so at-least-once delivery from the
// orchestrator never double counts; questions_answered is recomputed from
// the answers table so it always equals the persisted count.
func (s *Store) SaveAnswer(ctx context.Context, a domain.Answer) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save answer: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO answers (session_id, question_id, position, text, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, question_id) DO NOTHING`,
		a.SessionID, a.QuestionID, a.Position, a.Text, a.Duration.Milliseconds(), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE sessions
		SET questions_answered = (SELECT COUNT(*) FROM answers WHERE session_id = $1)
		WHERE id = $1`, a.SessionID)
	if err != nil {
		return fmt.Errorf("refresh answered counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save answer: %w", err)
	}
	return nil
}

// CountAnswers returns the number of persisted answers for a session.
func (s *Store) CountAnswers(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM answers WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

// Transcript returns the session's answers joined with their questions,
// ordered by issuance position rather than storage timestamp so concurrent
// or retried writes cannot reorder the evaluation payload.
func (s *Store) Transcript(ctx context.Context, sessionID uuid.UUID) ([]domain.TranscriptEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.position, q.text, q.qtype, q.keywords, a.text, a.duration_ms
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.session_id = $1
		ORDER BY a.position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var out []domain.TranscriptEntry
	for rows.Next() {
		var e domain.TranscriptEntry
		var qtype string
		var durationMs int64
		if err := rows.Scan(&e.Position, &e.QuestionText, &qtype, &e.Keywords, &e.AnswerText, &durationMs); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		e.QuestionType = domain.QuestionType(qtype)
		e.Duration = msToDuration(durationMs)
		out = append(out, e)
	}
	return out, rows.Err()
}
