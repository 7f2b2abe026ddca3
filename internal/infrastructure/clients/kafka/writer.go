package kafka

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/servicehub/bookingengine/pkg/config"
)

// NewWriter creates a kafka writer for the booking event topic. Messages are
// hashed by key so every event of one provider lands on the same partition.
func NewWriter(cfg config.KafkaConfig) (*kafka.Writer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("at least one kafka broker is required")
	}
	if cfg.BookingTopic == "" {
		return nil, errors.New("kafka booking topic cannot be empty")
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.BookingTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            compress.Snappy,
		MaxAttempts:            3,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
		Logger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Debug().Msgf(msg, args...)
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error().Str("component", "kafka").Msgf(msg, args...)
		}),
	}, nil
}
