// Package simkafka streams simulation steps over Kafka for deployments
// where the engine publishes instead of serving websockets. Run parameters
// are published to a request topic; step frames arrive on the step topic in
// partition order (the engine writes one partition per run).
package simkafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"PolEn/internal/domain/models"
	"PolEn/internal/domain/repository"
	"PolEn/pkg/logger"
)

// Config holds the broker endpoints and topics for the step stream.
type Config struct {
	Brokers      []string
	Topic        string
	RequestTopic string
	GroupID      string
	MinBytes     int
	MaxBytes     int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.GroupID == "" {
		out.GroupID = "polen-board"
	}
	if out.MinBytes == 0 {
		out.MinBytes = 1
	}
	if out.MaxBytes == 0 {
		out.MaxBytes = 10 << 20
	}
	if out.RequestTopic == "" {
		out.RequestTopic = out.Topic + ".requests"
	}
	return out
}

// Dialer creates one reader/writer pair per run.
type Dialer struct {
	cfg Config
	log *logger.Logger
}

func NewDialer(cfg Config, log *logger.Logger) (*Dialer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("simkafka: brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("simkafka: topic is required")
	}
	return &Dialer{cfg: cfg.withDefaults(), log: log}, nil
}

func (d *Dialer) Transport() string { return "kafka" }

func (d *Dialer) Dial(_ context.Context) (repository.StepSource, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     d.cfg.Brokers,
		Topic:       d.cfg.Topic,
		GroupID:     d.cfg.GroupID,
		MinBytes:    d.cfg.MinBytes,
		MaxBytes:    d.cfg.MaxBytes,
		StartOffset: kafka.LastOffset,
	})
	writer := &kafka.Writer{
		Addr:         kafka.TCP(d.cfg.Brokers...),
		Topic:        d.cfg.RequestTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	d.log.Debug("kafka step source opened",
		logger.Strings("brokers", d.cfg.Brokers),
		logger.String("topic", d.cfg.Topic))
	return &source{reader: reader, writer: writer, log: d.log}, nil
}

type source struct {
	reader *kafka.Reader
	writer *kafka.Writer
	log    *logger.Logger
}

// Send publishes the run parameters so the engine starts producing steps.
func (s *source) Send(ctx context.Context, params models.RunParams) error {
	value, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal run parameters: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(params.StartDate),
		Value: value,
		Time:  time.Now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run request: %w", err)
	}
	return nil
}

func (s *source) Read(ctx context.Context) (<-chan models.StepMessage, <-chan error) {
	msgs := make(chan models.StepMessage, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(msgs)
		for {
			raw, err := s.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case errs <- fmt.Errorf("read step message: %w", err):
				default:
				}
				return
			}
			var msg models.StepMessage
			if err := json.Unmarshal(raw.Value, &msg); err != nil {
				s.log.Warn("undecodable step message skipped",
					logger.Int64("offset", raw.Offset), logger.Error(err))
				continue
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
			if msg.IsTerminal() {
				return
			}
		}
	}()
	return msgs, errs
}

func (s *source) Close() error {
	werr := s.writer.Close()
	rerr := s.reader.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}
