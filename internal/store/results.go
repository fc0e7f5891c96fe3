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

// SaveResult inserts the session's single evaluation result. The first
// write wins; a retried evaluation cannot overwrite an existing grade.
func (s *Store) SaveResult(ctx context.Context, r domain.EvaluationResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO evaluation_results
			(session_id, overall_score, technical_score, communication_score, problem_solving_score, confidence_score,
			 strengths, improvements, summary, placeholder, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO NOTHING`,
		r.SessionID, r.Overall, r.Technical, r.Communication, r.ProblemSolving, r.Confidence,
		r.Strengths, r.Improvements, r.Summary, r.Placeholder, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save evaluation result: %w", err)
	}
	return nil
}

// GetResult loads the evaluation result for a session.
func (s *Store) GetResult(ctx context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, overall_score, technical_score, communication_score, problem_solving_score, confidence_score,
		       strengths, improvements, summary, placeholder, created_at
		FROM evaluation_results WHERE session_id = $1`, sessionID)

	var r domain.EvaluationResult
	err := row.Scan(&r.SessionID, &r.Overall, &r.Technical, &r.Communication, &r.ProblemSolving, &r.Confidence,
		&r.Strengths, &r.Improvements, &r.Summary, &r.Placeholder, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrResultNotFound
		}
		return nil, fmt.Errorf("get evaluation result: %w", err)
	}
	return &r, nil
}

func msToDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
