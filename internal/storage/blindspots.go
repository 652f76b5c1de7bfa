package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridianews/meridian/internal/core/domain"
)

// ActiveBlindspotExists reports whether the user already has an undismissed
// blindspot for the cluster; active records are never duplicated.
func (db *DB) ActiveBlindspotExists(ctx context.Context, userID string, groupID int64) (bool, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blindspots WHERE user_id = $1 AND group_id = $2 AND NOT dismissed
		)
	`, userID, groupID).Scan(&exists); err != nil {
		return false, fmt.Errorf("active blindspot exists: %w", err)
	}

	return exists, nil
}

// InsertBlindspot records a new blindspot advisory. Ids are generated
// client-side so callers can reference the advisory immediately.
func (db *DB) InsertBlindspot(ctx context.Context, b domain.Blindspot) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO blindspots (id, user_id, group_id, kind, severity, description, suggested_sources)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.UserID, b.GroupID, string(b.Kind), string(b.Severity), b.Description, b.SuggestedSources); err != nil {
		return fmt.Errorf("insert blindspot: %w", err)
	}

	return nil
}

// ListUserBlindspots returns the user's undismissed blindspots, newest first.
func (db *DB) ListUserBlindspots(ctx context.Context, userID string) ([]domain.Blindspot, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, group_id, kind, severity, description, suggested_sources, dismissed, created_at
		FROM blindspots
		WHERE user_id = $1 AND NOT dismissed
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user blindspots: %w", err)
	}
	defer rows.Close()

	var blindspots []domain.Blindspot

	for rows.Next() {
		var (
			b        domain.Blindspot
			kind     string
			severity string
		)

		if err := rows.Scan(&b.ID, &b.UserID, &b.GroupID, &kind, &severity, &b.Description, &b.SuggestedSources, &b.Dismissed, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blindspot: %w", err)
		}

		b.Kind = domain.BlindspotKind(kind)
		b.Severity = domain.Severity(severity)

		blindspots = append(blindspots, b)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate blindspots: %w", rows.Err())
	}

	return blindspots, nil
}

// DismissBlindspot marks a blindspot as dismissed.
func (db *DB) DismissBlindspot(ctx context.Context, blindspotID string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE blindspots SET dismissed = TRUE WHERE id = $1
	`, blindspotID)
	if err != nil {
		return fmt.Errorf("dismiss blindspot: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// CountActiveBlindspots returns the number of undismissed blindspots.
func (db *DB) CountActiveBlindspots(ctx context.Context) (int64, error) {
	var count int64
	if err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM blindspots WHERE NOT dismissed
	`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active blindspots: %w", err)
	}

	return count, nil
}

// ListUserIDs returns all user ids for the blindspot derivation pass.
func (db *DB) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}

		ids = append(ids, id)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate user ids: %w", rows.Err())
	}

	return ids, nil
}
