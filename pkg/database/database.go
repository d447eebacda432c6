package database

import (
	"fmt"

	"coder_edu_quiz/internal/config"
	"coder_edu_quiz/internal/model"
	"coder_edu_quiz/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig, migrate bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Database connection established", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))

	if !migrate {
		return db, nil
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := SeedDemoQuiz(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 自动迁移测验相关表
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Quiz{},
		&model.QuizQuestion{},
		&model.QuizAttempt{},
		&model.QuizAttemptAnswer{},
	)
	if err != nil {
		return err
	}
	logger.Log.Info("Database migration completed")
	return nil
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// SeedDemoQuiz quizzes 表为空时插入一份覆盖四种题型的示例测验
func SeedDemoQuiz(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Quiz{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	demo := &model.Quiz{
		Title:               "Go 并发基础",
		Description:         "goroutine、channel 与 select 的入门测验",
		TimeLimitSeconds:    600,
		PassingScorePercent: 70,
		MaxAttempts:         3,
		Published:           true,
		Questions: []model.QuizQuestion{
			{
				Key:          "q1",
				Position:     0,
				Type:         model.QuestionMultipleChoice,
				Prompt:       "哪个关键字用于启动一个 goroutine？",
				Points:       10,
				Options:      `["go","defer","chan","select"]`,
				CorrectIndex: intPtr(0),
			},
			{
				Key:              "q2",
				Position:         1,
				Type:             model.QuestionTrueFalse,
				Prompt:           "向已关闭的 channel 发送数据会引发 panic。",
				Points:           5,
				TimeLimitSeconds: intPtr(30),
				CorrectBool:      boolPtr(true),
			},
			{
				Key:             "q3",
				Position:        2,
				Type:            model.QuestionFreeText,
				Prompt:          "简述无缓冲 channel 的同步语义。",
				Points:          15,
				ReferenceAnswer: "Send blocks until a receiver is ready, so the send and receive happen together.",
				Keywords:        `["send","receive","block"]`,
			},
			{
				Key:              "q4",
				Position:         3,
				Type:             model.QuestionCode,
				Prompt:           "写一个循环，从 channel ch 中读取所有值直到其关闭。",
				Points:           20,
				TimeLimitSeconds: intPtr(180),
				ReferenceAnswer:  "for v := range ch { fmt.Println(v) }",
				Keywords:         `["for","range"]`,
			},
		},
	}
	if err := db.Create(demo).Error; err != nil {
		return err
	}
	logger.Log.Info("Seeded demo quiz", zap.String("quizId", demo.ID))
	return nil
}
