package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/ad/go-workshop-progress/internal/models"
)

type AssessmentRepository struct {
	queue *DBQueue
}

func NewAssessmentRepository(queue *DBQueue) *AssessmentRepository {
	return &AssessmentRepository{queue: queue}
}

// Save stores results for one assessment type, replacing any earlier submission.
func (r *AssessmentRepository) Save(ctx context.Context, userID int64, assessmentType string, results json.RawMessage) error {
	_, err := r.queue.ExecuteContext(ctx, func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO user_assessments (user_id, assessment_type, results, created_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id, assessment_type) DO UPDATE SET
				results = excluded.results,
				created_at = excluded.created_at
		`, userID, assessmentType, string(results))
		return nil, err
	})
	return err
}

func (r *AssessmentRepository) GetByUser(ctx context.Context, userID int64) (models.AssessmentData, error) {
	result, err := r.queue.ExecuteContext(ctx, func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(`
			SELECT assessment_type, results
			FROM user_assessments WHERE user_id = ?
		`, userID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		data := models.AssessmentData{}
		for rows.Next() {
			var assessmentType, results string
			if err := rows.Scan(&assessmentType, &results); err != nil {
				return nil, err
			}
			data[assessmentType] = json.RawMessage(results)
		}
		return data, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.(models.AssessmentData), nil
}

func (r *AssessmentRepository) DeleteUserAssessments(ctx context.Context, userID int64) (int64, error) {
	result, err := r.queue.ExecuteContext(ctx, func(db *sql.DB) (interface{}, error) {
		res, err := db.Exec(`DELETE FROM user_assessments WHERE user_id = ?`, userID)
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
