package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianews/meridian/internal/core/domain"
)

// GetUser returns one user.
func (db *DB) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User

	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, created_at FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}

		return domain.User{}, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}

// UpsertRating creates or updates a user's rating for an article.
func (db *DB) UpsertRating(ctx context.Context, r domain.Rating) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO user_article_ratings (user_id, article_id, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, article_id) DO UPDATE SET rating = EXCLUDED.rating, updated_at = now()
	`, r.UserID, r.ArticleID, r.Rating); err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}

	return nil
}
