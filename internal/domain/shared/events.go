// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Answer events
	EventAnswerSubmitted EventType = "answer.submitted"

	// Difficulty events
	EventTierAdvanced EventType = "difficulty.tier_advanced"
	EventTierLowered  EventType = "difficulty.tier_lowered"

	// Session events
	EventSessionStarted   EventType = "session.started"
	EventSessionFinished  EventType = "session.finished"
	EventSessionAbandoned EventType = "session.abandoned"
	EventSessionQualified EventType = "session.qualified"

	// Unlock events
	EventBankUnlocked EventType = "learner.bank_unlocked"

	// Quota events
	EventQuotaExhausted EventType = "quota.exhausted"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a published domain event.
type EventHandler interface {
	// Handle processes the event. Errors are logged by the bus, never
	// surfaced back to the publisher.
	Handle(event Event) error

	// Name identifies the handler for logging.
	Name() string
}

// EventPublisher publishes domain events to interested handlers.
type EventPublisher interface {
	Publish(event Event) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Answer Events
// ═══════════════════════════════════════════════════════════════════════════

// AnswerSubmittedEvent is emitted for every accepted answer.
type AnswerSubmittedEvent struct {
	BaseEvent
	QuestionID string `json:"question_id"`
	Category   string `json:"category"`
	IsCorrect  bool   `json:"is_correct"`
	NewTier    int    `json:"new_tier"`
}

// Payload implements Event interface.
func (e AnswerSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"question_id": e.QuestionID,
		"category":    e.Category,
		"is_correct":  e.IsCorrect,
		"new_tier":    e.NewTier,
	}
}

// NewAnswerSubmittedEvent creates a new AnswerSubmittedEvent.
func NewAnswerSubmittedEvent(learnerID, questionID, category string, isCorrect bool, newTier int) AnswerSubmittedEvent {
	return AnswerSubmittedEvent{
		BaseEvent:  NewBaseEvent(EventAnswerSubmitted, learnerID),
		QuestionID: questionID,
		Category:   category,
		IsCorrect:  isCorrect,
		NewTier:    newTier,
	}
}

// TierChangedEvent is emitted when the staircase moves a category tier.
type TierChangedEvent struct {
	BaseEvent
	Category string `json:"category"`
	OldTier  int    `json:"old_tier"`
	NewTier  int    `json:"new_tier"`
}

// Payload implements Event interface.
func (e TierChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"category": e.Category,
		"old_tier": e.OldTier,
		"new_tier": e.NewTier,
	}
}

// NewTierChangedEvent creates a tier advance or retreat event.
func NewTierChangedEvent(learnerID, category string, oldTier, newTier int) TierChangedEvent {
	eventType := EventTierAdvanced
	if newTier < oldTier {
		eventType = EventTierLowered
	}
	return TierChangedEvent{
		BaseEvent: NewBaseEvent(eventType, learnerID),
		Category:  category,
		OldTier:   oldTier,
		NewTier:   newTier,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent is emitted when a session is opened.
type SessionStartedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

// Payload implements Event interface.
func (e SessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"mode":       e.Mode,
	}
}

// NewSessionStartedEvent creates a new SessionStartedEvent.
func NewSessionStartedEvent(learnerID, sessionID, mode string) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(EventSessionStarted, learnerID),
		SessionID: sessionID,
		Mode:      mode,
	}
}

// SessionFinishedEvent is emitted when a session is finalized.
type SessionFinishedEvent struct {
	BaseEvent
	SessionID         string  `json:"session_id"`
	Mode              string  `json:"mode"`
	QuestionsAnswered int     `json:"questions_answered"`
	CorrectAnswers    int     `json:"correct_answers"`
	Accuracy          float64 `json:"accuracy"`
	Abandoned         bool    `json:"abandoned"`
}

// Payload implements Event interface.
func (e SessionFinishedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":         e.SessionID,
		"mode":               e.Mode,
		"questions_answered": e.QuestionsAnswered,
		"correct_answers":    e.CorrectAnswers,
		"accuracy":           e.Accuracy,
		"abandoned":          e.Abandoned,
	}
}

// NewSessionFinishedEvent creates a new SessionFinishedEvent.
func NewSessionFinishedEvent(learnerID, sessionID, mode string, answered, correct int, accuracy float64, abandoned bool) SessionFinishedEvent {
	eventType := EventSessionFinished
	if abandoned {
		eventType = EventSessionAbandoned
	}
	return SessionFinishedEvent{
		BaseEvent:         NewBaseEvent(eventType, learnerID),
		SessionID:         sessionID,
		Mode:              mode,
		QuestionsAnswered: answered,
		CorrectAnswers:    correct,
		Accuracy:          accuracy,
		Abandoned:         abandoned,
	}
}

// SessionQualifiedEvent is emitted when an exam session meets the
// qualification criteria.
type SessionQualifiedEvent struct {
	BaseEvent
	SessionID          string  `json:"session_id"`
	Accuracy           float64 `json:"accuracy"`
	QualifyingSessions int     `json:"qualifying_sessions"`
	SessionsRemaining  int     `json:"sessions_remaining"`
}

// Payload implements Event interface.
func (e SessionQualifiedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":          e.SessionID,
		"accuracy":            e.Accuracy,
		"qualifying_sessions": e.QualifyingSessions,
		"sessions_remaining":  e.SessionsRemaining,
	}
}

// NewSessionQualifiedEvent creates a new SessionQualifiedEvent.
func NewSessionQualifiedEvent(learnerID, sessionID string, accuracy float64, completed, remaining int) SessionQualifiedEvent {
	return SessionQualifiedEvent{
		BaseEvent:          NewBaseEvent(EventSessionQualified, learnerID),
		SessionID:          sessionID,
		Accuracy:           accuracy,
		QualifyingSessions: completed,
		SessionsRemaining:  remaining,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Unlock Events
// ═══════════════════════════════════════════════════════════════════════════

// BankUnlockedEvent is emitted exactly once, when the unlock gate fires.
type BankUnlockedEvent struct {
	BaseEvent
	QualifyingSessions int `json:"qualifying_sessions"`
}

// Payload implements Event interface.
func (e BankUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"qualifying_sessions": e.QualifyingSessions,
	}
}

// NewBankUnlockedEvent creates a new BankUnlockedEvent.
func NewBankUnlockedEvent(learnerID string, qualifyingSessions int) BankUnlockedEvent {
	return BankUnlockedEvent{
		BaseEvent:          NewBaseEvent(EventBankUnlocked, learnerID),
		QualifyingSessions: qualifyingSessions,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quota Events
// ═══════════════════════════════════════════════════════════════════════════

// QuotaExhaustedEvent is emitted when a learner hits their daily cap.
type QuotaExhaustedEvent struct {
	BaseEvent
	Tier string `json:"tier"`
	Cap  int    `json:"cap"`
}

// Payload implements Event interface.
func (e QuotaExhaustedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"tier": e.Tier,
		"cap":  e.Cap,
	}
}

// NewQuotaExhaustedEvent creates a new QuotaExhaustedEvent.
func NewQuotaExhaustedEvent(learnerID, tier string, cap int) QuotaExhaustedEvent {
	return QuotaExhaustedEvent{
		BaseEvent: NewBaseEvent(EventQuotaExhausted, learnerID),
		Tier:      tier,
		Cap:       cap,
	}
}
