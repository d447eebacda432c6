package repository

import (
	"context"

	"coder_edu_quiz/internal/model"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// Create 在一个事务里写入作答和每题明细
func (r *AttemptRepository) Create(ctx context.Context, attempt *model.QuizAttempt) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		answers := attempt.Answers
		attempt.Answers = nil
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		attempt.Answers = answers
		if len(answers) == 0 {
			return nil
		}
		for i := range answers {
			answers[i].AttemptID = attempt.ID
		}
		return tx.Create(&answers).Error
	})
}

// SetReviewURL 归档完成后回写回顾文件地址
func (r *AttemptRepository) SetReviewURL(ctx context.Context, attemptID, url string) error {
	return r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Where("id = ?", attemptID).
		Update("review_url", url).Error
}

func (r *AttemptRepository) CountByUserAndQuiz(ctx context.Context, userID uint, quizID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Count(&count).Error
	return count, err
}

// ListByUserAndQuiz 用户某测验的历史作答，最近的在前
func (r *AttemptRepository) ListByUserAndQuiz(ctx context.Context, userID uint, quizID string, page, limit int) ([]model.QuizAttempt, int64, error) {
	return r.list(ctx, r.DB.Where("user_id = ? AND quiz_id = ?", userID, quizID), page, limit)
}

// ListByQuiz 教师查看某测验的全部作答
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID string, page, limit int) ([]model.QuizAttempt, int64, error) {
	return r.list(ctx, r.DB.Where("quiz_id = ?", quizID), page, limit)
}

func (r *AttemptRepository) list(ctx context.Context, scope *gorm.DB, page, limit int) ([]model.QuizAttempt, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := scope.WithContext(ctx).Model(&model.QuizAttempt{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var attempts []model.QuizAttempt
	err := scope.WithContext(ctx).
		Order("completed_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&attempts).Error
	return attempts, total, err
}

func (r *AttemptRepository) FindWithAnswers(ctx context.Context, attemptID string) (*model.QuizAttempt, error) {
	var a model.QuizAttempt
	if err := r.DB.WithContext(ctx).Preload("Answers").Where("id = ?", attemptID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
