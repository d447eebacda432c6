package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"coder_edu_quiz/internal/quiz"
	"coder_edu_quiz/internal/util"
	"coder_edu_quiz/pkg/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AttemptCompletedEvent 作答完成后发布的事件
type AttemptCompletedEvent struct {
	EventID          string                `json:"eventId"`
	AttemptID        string                `json:"attemptId"`
	QuizID           string                `json:"quizId"`
	UserID           string                `json:"userId"`
	ScoreAchieved    int                   `json:"scoreAchieved"`
	ScoreMax         int                   `json:"scoreMax"`
	Percent          float64               `json:"percent"`
	Passed           bool                  `json:"passed"`
	Reason           quiz.CompletionReason `json:"reason"`
	TimeSpentSeconds int                   `json:"timeSpentSeconds"`
	CompletedAt      time.Time             `json:"completedAt"`
	ReviewURL        string                `json:"reviewUrl,omitempty"`
}

func NewAttemptCompletedEvent(r quiz.AttemptResult, reviewURL string) AttemptCompletedEvent {
	return AttemptCompletedEvent{
		EventID:          uuid.NewString(),
		AttemptID:        r.SessionID,
		QuizID:           r.QuizID,
		UserID:           r.UserID,
		ScoreAchieved:    r.ScoreAchieved,
		ScoreMax:         r.ScoreMax,
		Percent:          r.Percent(),
		Passed:           r.Passed,
		Reason:           r.Reason,
		TimeSpentSeconds: r.TimeSpentSeconds,
		CompletedAt:      r.CompletedAt,
		ReviewURL:        reviewURL,
	}
}

// AMQPPublisher 通过 RabbitMQ topic exchange 发布作答事件
type AMQPPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher 建立连接并声明 exchange
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// PublishAttemptCompleted 连接断开时重连一次
func (p *AMQPPublisher) PublishAttemptCompleted(ctx context.Context, event AttemptCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	return p.ch.PublishWithContext(ctx,
		p.exchange,
		util.RoutingKeyAttemptCompleted,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  util.MimeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Timestamp:    event.CompletedAt,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

// LogPublisher 未启用消息队列时只记录日志
type LogPublisher struct{}

func (LogPublisher) PublishAttemptCompleted(ctx context.Context, event AttemptCompletedEvent) error {
	logger.Log.Debug("Attempt completed",
		zap.String("attemptId", event.AttemptID),
		zap.String("quizId", event.QuizID),
		zap.Int("score", event.ScoreAchieved),
		zap.Bool("passed", event.Passed))
	return nil
}
