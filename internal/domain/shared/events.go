// Package shared contains common domain types, errors and events that are used
// across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every state change of a group directory produces one.
const (
	// Group lifecycle events
	EventGroupFormed     EventType = "group.formed"
	EventGroupVacated    EventType = "group.vacated"
	EventGroupsReshuffle EventType = "group.reshuffled"
	EventGroupsMerged    EventType = "group.merged"

	// Member events
	EventMemberDeparted EventType = "member.departed"

	// Directory events
	EventDirectoryRenamed EventType = "directory.renamed"

	// System events
	EventSweepCompleted EventType = "sweep.completed"
)

// EventTypes lists every event type a directory publishes.
var EventTypes = []EventType{
	EventGroupFormed,
	EventGroupVacated,
	EventGroupsReshuffle,
	EventGroupsMerged,
	EventMemberDeparted,
	EventDirectoryRenamed,
	EventSweepCompleted,
}

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

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
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

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Group Events
// ═══════════════════════════════════════════════════════════════════════════

// GroupFormedEvent is emitted when formation fills a new or vacant group.
type GroupFormedEvent struct {
	BaseEvent
	GroupID   int   `json:"group_id"`
	Reused    bool  `json:"reused"`
	MemberIDs []int `json:"member_ids"`
}

// Payload implements Event interface.
func (e GroupFormedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":   e.GroupID,
		"reused":     e.Reused,
		"member_ids": e.MemberIDs,
	}
}

// NewGroupFormedEvent creates a new GroupFormedEvent.
func NewGroupFormedEvent(directoryKey string, groupID int, reused bool, memberIDs []int) GroupFormedEvent {
	return GroupFormedEvent{
		BaseEvent: NewBaseEvent(EventGroupFormed, directoryKey),
		GroupID:   groupID,
		Reused:    reused,
		MemberIDs: memberIDs,
	}
}

// Reasons a group can be vacated.
const (
	VacateRemoved   = "removed"
	VacateMerged    = "merged"
	VacateLowRating = "low_rating"
)

// GroupVacatedEvent is emitted when a group's roster is cleared.
type GroupVacatedEvent struct {
	BaseEvent
	GroupID        int    `json:"group_id"`
	Reason         string `json:"reason"`
	MembersDropped int    `json:"members_dropped"`
}

// Payload implements Event interface.
func (e GroupVacatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":        e.GroupID,
		"reason":          e.Reason,
		"members_dropped": e.MembersDropped,
	}
}

// NewGroupVacatedEvent creates a new GroupVacatedEvent.
func NewGroupVacatedEvent(directoryKey string, groupID int, reason string, dropped int) GroupVacatedEvent {
	return GroupVacatedEvent{
		BaseEvent:      NewBaseEvent(EventGroupVacated, directoryKey),
		GroupID:        groupID,
		Reason:         reason,
		MembersDropped: dropped,
	}
}

// GroupsReshuffledEvent is emitted after two groups exchanged members.
type GroupsReshuffledEvent struct {
	BaseEvent
	GroupA   int `json:"group_a"`
	GroupB   int `json:"group_b"`
	PoolSize int `json:"pool_size"`
	SizeA    int `json:"size_a"`
	SizeB    int `json:"size_b"`
}

// Payload implements Event interface.
func (e GroupsReshuffledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_a":   e.GroupA,
		"group_b":   e.GroupB,
		"pool_size": e.PoolSize,
		"size_a":    e.SizeA,
		"size_b":    e.SizeB,
	}
}

// NewGroupsReshuffledEvent creates a new GroupsReshuffledEvent.
func NewGroupsReshuffledEvent(directoryKey string, a, b, sizeA, sizeB int) GroupsReshuffledEvent {
	return GroupsReshuffledEvent{
		BaseEvent: NewBaseEvent(EventGroupsReshuffle, directoryKey),
		GroupA:    a,
		GroupB:    b,
		PoolSize:  sizeA + sizeB,
		SizeA:     sizeA,
		SizeB:     sizeB,
	}
}

// GroupsMergedEvent is emitted when the source group was folded into the target.
type GroupsMergedEvent struct {
	BaseEvent
	TargetID int `json:"target_id"`
	SourceID int `json:"source_id"`
	Size     int `json:"size"`
}

// Payload implements Event interface.
func (e GroupsMergedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"target_id": e.TargetID,
		"source_id": e.SourceID,
		"size":      e.Size,
	}
}

// NewGroupsMergedEvent creates a new GroupsMergedEvent.
func NewGroupsMergedEvent(directoryKey string, target, source, size int) GroupsMergedEvent {
	return GroupsMergedEvent{
		BaseEvent: NewBaseEvent(EventGroupsMerged, directoryKey),
		TargetID:  target,
		SourceID:  source,
		Size:      size,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Member Events
// ═══════════════════════════════════════════════════════════════════════════

// MemberDepartedEvent is emitted when a member leaves a group.
// ReplacementID is zero when nobody of the same tier was waiting.
type MemberDepartedEvent struct {
	BaseEvent
	GroupID       int    `json:"group_id"`
	MemberID      int    `json:"member_id"`
	Tier          string `json:"tier"`
	ReplacementID int    `json:"replacement_id,omitempty"`
}

// Payload implements Event interface.
func (e MemberDepartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":       e.GroupID,
		"member_id":      e.MemberID,
		"tier":           e.Tier,
		"replacement_id": e.ReplacementID,
	}
}

// Backfilled reports whether a waiting student took the departed member's place.
func (e MemberDepartedEvent) Backfilled() bool {
	return e.ReplacementID != 0
}

// NewMemberDepartedEvent creates a new MemberDepartedEvent.
func NewMemberDepartedEvent(directoryKey string, groupID, memberID int, tier string, replacementID int) MemberDepartedEvent {
	return MemberDepartedEvent{
		BaseEvent:     NewBaseEvent(EventMemberDeparted, directoryKey),
		GroupID:       groupID,
		MemberID:      memberID,
		Tier:          tier,
		ReplacementID: replacementID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Directory Events
// ═══════════════════════════════════════════════════════════════════════════

// DirectoryRenamedEvent is emitted when a directory moves to a new subject.
// The aggregate ID is the new key.
type DirectoryRenamedEvent struct {
	BaseEvent
	PreviousKey string `json:"previous_key"`
}

// Payload implements Event interface.
func (e DirectoryRenamedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_key": e.PreviousKey,
	}
}

// NewDirectoryRenamedEvent creates a new DirectoryRenamedEvent.
func NewDirectoryRenamedEvent(directoryKey, previousKey string) DirectoryRenamedEvent {
	return DirectoryRenamedEvent{
		BaseEvent:   NewBaseEvent(EventDirectoryRenamed, directoryKey),
		PreviousKey: previousKey,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// SweepCompletedEvent is emitted at the end of every maintenance sweep.
type SweepCompletedEvent struct {
	BaseEvent
	RemovedGroups   []int         `json:"removed_groups"`
	ReshuffledPairs int           `json:"reshuffled_pairs"`
	Merges          int           `json:"merges"`
	Duration        time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e SweepCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"removed_groups":   e.RemovedGroups,
		"reshuffled_pairs": e.ReshuffledPairs,
		"merges":           e.Merges,
		"duration":         e.Duration.String(),
	}
}

// NewSweepCompletedEvent creates a new SweepCompletedEvent.
func NewSweepCompletedEvent(directoryKey string, removed []int, pairs, merges int, d time.Duration) SweepCompletedEvent {
	return SweepCompletedEvent{
		BaseEvent:       NewBaseEvent(EventSweepCompleted, directoryKey),
		RemovedGroups:   removed,
		ReshuffledPairs: pairs,
		Merges:          merges,
		Duration:        d,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// correlated is implemented by every event embedding BaseEvent.
type correlated interface {
	Correlation() string
}

// Correlation returns the correlation ID of the event.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// NewEnvelope serializes an event payload into an envelope with the given ID.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if c, ok := event.(correlated); ok {
		env.CorrelationID = c.Correlation()
	}

	return env, nil
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// WithCorrelation returns a copy of a domain event tagged with a correlation ID.
// Unknown event types are returned unchanged.
func WithCorrelation(event Event, id string) Event {
	switch e := event.(type) {
	case GroupFormedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case GroupVacatedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case GroupsReshuffledEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case GroupsMergedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case MemberDepartedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case DirectoryRenamedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case SweepCompletedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	default:
		return event
	}
}
