package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Topics for downstream consumers
const (
	TopicMaterialIndexed  = "material.indexed"
	TopicPaperGenerated   = "paper.generated"
	TopicPaperFailed      = "paper.failed"
	TopicSubmissionGraded = "submission.graded"
	TopicIndexReconciled  = "index.reconciled"
)

// Event is the envelope every published message shares
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with the service identity filled in
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "papergen-service",
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher publishes domain events to a message broker
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// Event payloads

type MaterialIndexedEvent struct {
	MaterialID uint   `json:"material_id"`
	CourseID   uint   `json:"course_id"`
	Chunks     int    `json:"chunks"`
	UploadedBy string `json:"uploaded_by"`
}

type PaperGeneratedEvent struct {
	RequestID  uint   `json:"request_id"`
	CourseID   uint   `json:"course_id"`
	TeacherID  string `json:"teacher_id"`
	Variants   int    `json:"variants"`
	TotalMarks int    `json:"total_marks"`
}

type PaperFailedEvent struct {
	RequestID   uint   `json:"request_id"`
	CourseID    uint   `json:"course_id"`
	TeacherID   string `json:"teacher_id"`
	FailureCode string `json:"failure_code"`
}

type SubmissionGradedEvent struct {
	SubmissionID uint    `json:"submission_id"`
	VariantID    uint    `json:"variant_id"`
	StudentID    string  `json:"student_id"`
	Percentage   float64 `json:"percentage"`
	LetterGrade  string  `json:"letter_grade"`
}

type IndexReconciledEvent struct {
	CourseID       uint `json:"course_id"`
	OrphansDeleted int  `json:"orphans_deleted"`
	Reindexed      int  `json:"reindexed"`
}

// KafkaEventPublisher publishes events through watermill's Kafka publisher
type KafkaEventPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewKafkaEventPublisher(brokers []string, logger *slog.Logger) (*KafkaEventPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}

	return &KafkaEventPublisher{
		publisher: publisher,
		logger:    logger.With("component", "EventPublisher"),
	}, nil
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		p.logger.Error("Failed to publish event",
			"error", err,
			"topic", topic,
			"event_type", event.Type)
		return fmt.Errorf("publish event to %s: %w", topic, err)
	}

	p.logger.Debug("Published event",
		"topic", topic,
		"event_type", event.Type,
		"event_id", event.ID)
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.publisher.Close()
}

// NoopEventPublisher drops events, used when no broker is configured
type NoopEventPublisher struct{}

func NewNoopEventPublisher() *NoopEventPublisher { return &NoopEventPublisher{} }

func (p *NoopEventPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	return nil
}

func (p *NoopEventPublisher) Close() error { return nil }

// MockEventPublisher records published events for tests
type MockEventPublisher struct {
	mu     sync.Mutex
	events []Event
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (p *MockEventPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	if p.logger != nil {
		p.logger.Debug("Mock publish", "topic", topic, "event_type", event.Type)
	}
	return nil
}

func (p *MockEventPublisher) Close() error { return nil }

// GetPublishedEvents returns a copy of everything published so far
func (p *MockEventPublisher) GetPublishedEvents() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// ClearEvents resets the recorded events
func (p *MockEventPublisher) ClearEvents() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
