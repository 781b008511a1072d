package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wimarka/lakra/internal/models"
)

// CreateTestSession stores a scored session with its answers in one
// transaction. ErrDuplicateSession is returned if the id was already used.
func (r *PostgresRepository) CreateTestSession(ctx context.Context, s *models.TestSession, answers []models.StoredAnswer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO test_sessions (id, user_id, languages, total_questions, correct_answers, score, passed, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	var userID sql.NullString
	if s.UserID != nil {
		userID = nullString(*s.UserID)
	}

	err = tx.QueryRow(ctx, query,
		s.ID,
		userID,
		s.Languages,
		s.TotalQuestions,
		s.CorrectAnswers,
		s.Score,
		s.Passed,
		s.Consumed,
	).Scan(&s.CreatedAt)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return ErrDuplicateSession
		}
		return fmt.Errorf("failed to create test session: %w", err)
	}

	if len(answers) > 0 {
		batch := &pgx.Batch{}
		for _, a := range answers {
			answeredAt := a.AnsweredAt
			if answeredAt.IsZero() {
				answeredAt = s.CreatedAt
			}
			batch.Queue(`
				INSERT INTO user_question_answers (test_session_id, user_id, question_id, selected_answer, is_correct, answered_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, s.ID, userID, a.QuestionID, a.SelectedAnswer, a.IsCorrect, answeredAt)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store answers: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit test session: %w", err)
	}

	return nil
}

const sessionColumns = `id, user_id, languages, total_questions, correct_answers, score, passed, consumed, created_at, consumed_at`

// GetTestSession retrieves a test session by ID
func (r *PostgresRepository) GetTestSession(ctx context.Context, id string) (*models.TestSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM test_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get test session: %w", err)
	}
	return s, nil
}

// ListUserSessions returns the sessions attached to a user, newest first
func (r *PostgresRepository) ListUserSessions(ctx context.Context, userID string) ([]*models.TestSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list test sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.TestSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*models.TestSession, error) {
	var s models.TestSession
	var userID sql.NullString
	var consumedAt sql.NullTime

	err := row.Scan(
		&s.ID,
		&userID,
		&s.Languages,
		&s.TotalQuestions,
		&s.CorrectAnswers,
		&s.Score,
		&s.Passed,
		&s.Consumed,
		&s.CreatedAt,
		&consumedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		s.UserID = &userID.String
	}
	if consumedAt.Valid {
		s.ConsumedAt = &consumedAt.Time
	}
	return &s, nil
}

// ListSessionAnswers returns the answers recorded for a session
func (r *PostgresRepository) ListSessionAnswers(ctx context.Context, sessionID string) ([]models.StoredAnswer, error) {
	query := `
		SELECT question_id, selected_answer, is_correct, test_session_id, answered_at
		FROM user_question_answers
		WHERE test_session_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []models.StoredAnswer
	for rows.Next() {
		var a models.StoredAnswer
		if err := rows.Scan(&a.QuestionID, &a.SelectedAnswer, &a.IsCorrect, &a.TestSessionID, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answers: %w", err)
	}

	return answers, nil
}

// DeleteOrphanSessions removes sessions never attached to an account that
// were created before olderThan. Their answers cascade.
func (r *PostgresRepository) DeleteOrphanSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM test_sessions
		WHERE user_id IS NULL AND consumed = FALSE AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
