package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chadiek/interview-coach/internal/domain"
)

// CreateSession persists a freshly constructed session. The question list
// must already be persisted; the questions FK is what keeps answers safe.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, candidate_id, role, difficulty, status, question_ids, current_index, questions_answered, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.CandidateID, sess.Role, sess.Difficulty, string(sess.Status),
		sess.QuestionIDs, sess.CurrentIndex, sess.QuestionsAnswered, sess.StartedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, candidate_id, role, difficulty, status, question_ids, current_index, questions_answered, started_at, ended_at
		FROM sessions WHERE id = $1`, id)

	var sess domain.Session
	var status string
	var endedAt *time.Time
	err := row.Scan(&sess.ID, &sess.CandidateID, &sess.Role, &sess.Difficulty, &status,
		&sess.QuestionIDs, &sess.CurrentIndex, &sess.QuestionsAnswered, &sess.StartedAt, &endedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.Status = domain.SessionStatus(status)
	sess.EndedAt = endedAt
	return &sess, nil
}

// UpdateSessionProgress records the orchestrator's current question index.
func (s *Store) UpdateSessionProgress(ctx context.Context, id uuid.UUID, currentIndex int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET current_index = $2 WHERE id = $1`, id, currentIndex)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	return nil
}

// SetSessionStatus moves a session between lifecycle states. Terminal
// states also record the end time.
func (s *Store) SetSessionStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus) error {
	var endedAt *time.Time
	if status == domain.StatusCompleted || status == domain.StatusAborted {
		now := time.Now()
		endedAt = &now
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, ended_at = COALESCE($3, ended_at) WHERE id = $1`,
		id, string(status), endedAt)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return nil
}
