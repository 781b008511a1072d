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

const userColumns = `id, email, username, hashed_password, first_name, last_name, preferred_language,
	is_active, is_admin, is_evaluator, guidelines_seen, onboarding_status, onboarding_score,
	onboarding_completed_at, created_at`

// CreateUser inserts a user with their languages. When testSessionID is set
// the session is attached to the user and consumed in the same transaction;
// ErrSessionNotUsable is returned if it was already consumed or not passed.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *models.User, testSessionID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (id, email, username, hashed_password, first_name, last_name, preferred_language,
			is_active, is_admin, is_evaluator, guidelines_seen, onboarding_status, onboarding_score, onboarding_completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err = tx.QueryRow(ctx, query,
		u.ID,
		u.Email,
		u.Username,
		u.HashedPassword,
		u.FirstName,
		u.LastName,
		u.PreferredLanguage,
		u.IsActive,
		u.IsAdmin,
		u.IsEvaluator,
		u.GuidelinesSeen,
		string(u.OnboardingStatus),
		nullFloat(u.OnboardingScore),
		nullTime(u.OnboardingCompletedAt),
	).Scan(&u.CreatedAt)
	if err != nil {
		switch uniqueConstraint(err) {
		case "":
			return fmt.Errorf("failed to create user: %w", err)
		case "users_username_key":
			return ErrDuplicateUsername
		default:
			return ErrDuplicateEmail
		}
	}

	for _, lang := range u.Languages {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_languages (user_id, language) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			u.ID, lang,
		); err != nil {
			return fmt.Errorf("failed to add user language %s: %w", lang, err)
		}
	}

	if testSessionID != "" {
		tag, err := tx.Exec(ctx, `
			UPDATE test_sessions
			SET user_id = $1, consumed = TRUE, consumed_at = NOW()
			WHERE id = $2 AND passed = TRUE AND consumed = FALSE AND user_id IS NULL
		`, u.ID, testSessionID)
		if err != nil {
			return fmt.Errorf("failed to attach test session: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrSessionNotUsable
		}

		if _, err := tx.Exec(ctx,
			`UPDATE user_question_answers SET user_id = $1 WHERE test_session_id = $2`,
			u.ID, testSessionID,
		); err != nil {
			return fmt.Errorf("failed to attach answers: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by ID
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByLogin retrieves a user by email or username
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) OR username = $1`, login)
}

// EmailExists reports whether an account uses the email
func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// UsernameExists reports whether an account uses the username
func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// UpdateOnboardingStatus records the outcome of a test taken by a signed-in user
func (r *PostgresRepository) UpdateOnboardingStatus(ctx context.Context, userID string, status models.OnboardingStatus, score float64, at time.Time) error {
	query := `
		UPDATE users
		SET onboarding_status = $2, onboarding_score = $3, onboarding_completed_at = $4
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, userID, string(status), score, at)
	if err != nil {
		return fmt.Errorf("failed to update onboarding status: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT language FROM user_languages WHERE user_id = $1 ORDER BY language`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user languages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("failed to scan user language: %w", err)
		}
		u.Languages = append(u.Languages, lang)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user languages: %w", err)
	}

	return u, nil
}

// ListUsers returns accounts in creation order with their languages
func (r *PostgresRepository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `,
			COALESCE((SELECT array_agg(ul.language ORDER BY ul.language) FROM user_languages ul WHERE ul.user_id = users.id), '{}')
		FROM users
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		var languages []string
		u, err := scanUser(rows, &languages)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Languages = languages
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// SetEvaluator grants or revokes the evaluator role
func (r *PostgresRepository) SetEvaluator(ctx context.Context, userID string, isEvaluator bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET is_evaluator = $2 WHERE id = $1`, userID, isEvaluator)
	if err != nil {
		return fmt.Errorf("failed to update evaluator role: %w", err)
	}
	return nil
}

// SetUserLanguages replaces a user's languages and preferred language
func (r *PostgresRepository) SetUserLanguages(ctx context.Context, userID string, languages []string, preferred string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_languages WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear user languages: %w", err)
	}

	for _, lang := range languages {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_languages (user_id, language) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			userID, lang,
		); err != nil {
			return fmt.Errorf("failed to add user language %s: %w", lang, err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET preferred_language = $2 WHERE id = $1`, userID, preferred); err != nil {
		return fmt.Errorf("failed to update preferred language: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit user languages: %w", err)
	}
	return nil
}

// scanUser reads the userColumns of one row, followed by any extra columns
func scanUser(row pgx.Row, extra ...interface{}) (*models.User, error) {
	var u models.User
	var status string
	var score sql.NullFloat64
	var completedAt sql.NullTime

	dest := []interface{}{
		&u.ID,
		&u.Email,
		&u.Username,
		&u.HashedPassword,
		&u.FirstName,
		&u.LastName,
		&u.PreferredLanguage,
		&u.IsActive,
		&u.IsAdmin,
		&u.IsEvaluator,
		&u.GuidelinesSeen,
		&status,
		&score,
		&completedAt,
		&u.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	u.OnboardingStatus = models.OnboardingStatus(status)
	if score.Valid {
		u.OnboardingScore = &score.Float64
	}
	if completedAt.Valid {
		u.OnboardingCompletedAt = &completedAt.Time
	}
	return &u, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
