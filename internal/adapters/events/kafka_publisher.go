package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/segmentio/kafka-go"

	"github.com/servicehub/bookingengine/internal/domain/entities"
	"github.com/servicehub/bookingengine/internal/domain/providers"
)

// Kafka header keys set on every booking event
const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
)

// ErrPublisherClosed is returned after Close
var ErrPublisherClosed = errors.New("kafka publisher is closed")

// MessageWriter is the subset of kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes booking events to a topic for downstream consumers
// such as email and SMS delivery. Messages are keyed by provider id.
type KafkaPublisher struct {
	writer MessageWriter
	closed bool
	mu     sync.RWMutex
}

// NewKafkaPublisher creates a publisher over writer
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) NotifyBookingStatusChange(ctx context.Context, bookingID string, status entities.BookingStatus, customerID, providerID string) error {
	return p.write(ctx, entities.NewBookingStatusChangedEvent(bookingID, status, customerID, providerID))
}

func (p *KafkaPublisher) NotifyNewBooking(ctx context.Context, booking *entities.Booking, providerID string) error {
	event := entities.NewBookingCreatedEvent(booking)
	event.ProviderID = providerID
	return p.write(ctx, event)
}

func (p *KafkaPublisher) NotifyAvailabilityChange(ctx context.Context, providerID string, date civil.Date, slots []entities.Slot) error {
	return p.write(ctx, entities.NewAvailabilityChangedEvent(providerID, date, slots))
}

func (p *KafkaPublisher) write(ctx context.Context, event *entities.BookingEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ProviderID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(event.ID)},
			{Key: HeaderEventType, Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event.EventType, err)
	}
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

var _ providers.RealtimeNotifier = (*KafkaPublisher)(nil)
