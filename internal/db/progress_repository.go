package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ad/go-workshop-progress/internal/models"
)

// ProgressRepository stores navigation progress documents verbatim. Parsing
// and validation belong to the caller so a corrupt row can still be read back
// and repaired.
type ProgressRepository struct {
	queue *DBQueue
}

func NewProgressRepository(queue *DBQueue) *ProgressRepository {
	return &ProgressRepository{queue: queue}
}

func (r *ProgressRepository) Save(ctx context.Context, userID int64, track models.TrackType, document string) error {
	_, err := r.queue.ExecuteContext(ctx, func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO navigation_progress (user_id, track_type, document, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id, track_type) DO UPDATE SET
				document = excluded.document,
				updated_at = excluded.updated_at
		`, userID, track, document)
		return nil, err
	})
	return err
}

func (r *ProgressRepository) Get(ctx context.Context, userID int64, track models.TrackType) (*models.StoredProgress, error) {
	result, err := r.queue.ExecuteContext(ctx, func(db *sql.DB) (interface{}, error) {
		row := db.QueryRow(`
			SELECT user_id, track_type, document, updated_at
			FROM navigation_progress WHERE user_id = ? AND track_type = ?
		`, userID, track)

		var stored models.StoredProgress
		var updatedAt sql.NullTime
		err := row.Scan(&stored.UserID, &stored.TrackType, &stored.Document, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if updatedAt.Valid {
			stored.UpdatedAt = updatedAt.Time
		}
		return &stored, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.StoredProgress), nil
}

func (r *ProgressRepository) GetAll(ctx context.Context) ([]*models.StoredProgress, error) {
	result, err := r.queue.ExecuteContext(ctx, func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(`
			SELECT user_id, track_type, document, updated_at
			FROM navigation_progress ORDER BY user_id, track_type
		`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var docs []*models.StoredProgress
		for rows.Next() {
			var stored models.StoredProgress
			var updatedAt sql.NullTime
			if err := rows.Scan(&stored.UserID, &stored.TrackType, &stored.Document, &updatedAt); err != nil {
				return nil, err
			}
			if updatedAt.Valid {
				stored.UpdatedAt = updatedAt.Time
			}
			docs = append(docs, &stored)
		}
		return docs, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.StoredProgress), nil
}

func (r *ProgressRepository) DeleteUserProgress(ctx context.Context, userID int64) (int64, error) {
	result, err := r.queue.ExecuteContext(ctx, func(db *sql.DB) (interface{}, error) {
		res, err := db.Exec(`DELETE FROM navigation_progress WHERE user_id = ?`, userID)
		if err != nil {
			return nil, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}
