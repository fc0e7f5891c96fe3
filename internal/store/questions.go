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

// SaveQuestion persists a question. This always happens before any session
// references the question, so answers never point at unsaved ids.
func (s *Store) SaveQuestion(ctx context.Context, q *domain.Question) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO questions (id, role, difficulty, qtype, text, keywords, sample_answer, time_budget_secs, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		q.ID, q.Role, q.Difficulty, string(q.Type), q.Text, q.Keywords, q.SampleAnswer,
		int(q.TimeBudget.Seconds()), string(q.Source), q.CreatedAt)
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}

// GetQuestion loads one question by id.
func (s *Store) GetQuestion(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, role, difficulty, qtype, text, keywords, sample_answer, time_budget_secs, source, created_at
		FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// CachedQuestions returns up to limit previously persisted questions for a
// role and difficulty no older than maxAge, newest first.
func (s *Store) CachedQuestions(ctx context.Context, role, difficulty string, limit int, maxAge time.Duration) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, difficulty, qtype, text, keywords, sample_answer, time_budget_secs, source, created_at
		FROM questions
		WHERE role = $1 AND difficulty = $2 AND created_at > $3
		ORDER BY created_at DESC
		LIMIT $4`,
		role, difficulty, time.Now().Add(-maxAge), limit)
	if err != nil {
		return nil, fmt.Errorf("cached questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*domain.Question, error) {
	var q domain.Question
	var qtype, source string
	var budgetSecs int
	err := row.Scan(&q.ID, &q.Role, &q.Difficulty, &qtype, &q.Text, &q.Keywords,
		&q.SampleAnswer, &budgetSecs, &source, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.Type = domain.QuestionType(qtype)
	q.Source = domain.QuestionSource(source)
	q.TimeBudget = time.Duration(budgetSecs) * time.Second
	return &q, nil
}
