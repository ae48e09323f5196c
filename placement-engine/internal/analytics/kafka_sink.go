package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string

	// MaxAttempts per event; defaults to 3.
	MaxAttempts int
	// WriteTimeout per attempt; defaults to 5s.
	WriteTimeout time.Duration
	// QueueSize bounds events waiting for delivery; defaults to 1024.
	QueueSize int
}

// ErrSinkClosed is returned by Track once Close has been called.
var ErrSinkClosed = errors.New("kafka: sink closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink queues events and produces them from a background loop, keyed by
// profile id so one profile's events stay ordered within a partition.
type KafkaSink struct {
	writer       messageWriter
	logger       *slog.Logger
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
	now          func() time.Time

	mu        sync.RWMutex
	closed    bool
	queue     chan kafka.Message
	done      chan struct{}
	closeOnce sync.Once
}

func NewKafkaSink(cfg KafkaConfig, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaSink(w, cfg, logger), nil
}

func newKafkaSink(w messageWriter, cfg KafkaConfig, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	s := &KafkaSink{
		writer:       w,
		logger:       logger,
		maxAttempts:  cfg.MaxAttempts,
		writeTimeout: cfg.WriteTimeout,
		backoff:      100 * time.Millisecond,
		now:          func() time.Time { return time.Now().UTC() },
		queue:        make(chan kafka.Message, cfg.QueueSize),
		done:         make(chan struct{}),
	}
	go s.run()
	return s
}

// Track encodes the event and enqueues it. A full queue drops the event, as
// does a closed sink.
func (s *KafkaSink) Track(ctx context.Context, name string, attrs map[string]any) error {
	ev := Event{Name: name, Attributes: attrs, Timestamp: s.now()}
	value, err := marshalCanonical(ev)
	if err != nil {
		return err
	}
	var key []byte
	if id, ok := attrs["profile_id"].(string); ok {
		key = []byte(id)
	}
	msg := kafka.Message{Key: key, Value: value, Time: ev.Timestamp}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: dropped %s", ErrSinkClosed, name)
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		return fmt.Errorf("kafka: event queue full, dropped %s", name)
	}
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for msg := range s.queue {
		if err := s.produce(msg); err != nil {
			s.logger.Warn("analytics event not delivered", "error", err)
		}
	}
}

func (s *KafkaSink) produce(msg kafka.Message) error {
	var lastErr error
	backoff := s.backoff
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.writer.WriteMessages(ctx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < s.maxAttempts {
			time.Sleep(backoff)
			if backoff < 2*time.Second {
				backoff *= 2
			}
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", s.maxAttempts, lastErr)
}

// Close stops accepting events, flushes the queue and closes the writer.
func (s *KafkaSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
		err = s.writer.Close()
	})
	return err
}
