// Package simws streams simulation steps over a websocket connection to the
// engine: one connection per run, parameters sent as the first frame, then
// step frames until a terminal done or error frame.
package simws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PolEn/internal/domain/models"
	"PolEn/internal/domain/repository"
	"PolEn/pkg/logger"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// Dialer opens a fresh websocket source per run.
type Dialer struct {
	url string
	log *logger.Logger
}

func NewDialer(url string, log *logger.Logger) *Dialer {
	return &Dialer{url: url, log: log}
}

func (d *Dialer) Transport() string { return "ws" }

func (d *Dialer) Dial(ctx context.Context) (repository.StepSource, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	d.log.Debug("websocket connected", logger.String("url", d.url))
	return &source{conn: conn, log: d.log}, nil
}

type source struct {
	conn      *websocket.Conn
	log       *logger.Logger
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *source) Send(_ context.Context, params models.RunParams) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(params); err != nil {
		return fmt.Errorf("send run parameters: %w", err)
	}
	return nil
}

// Read pumps decoded frames until the connection ends. The message channel
// closes on EOF; transport errors go to the error channel. A frame the
// engine sends after the consumer stopped listening is dropped, not queued
// forever.
func (s *source) Read(ctx context.Context) (<-chan models.StepMessage, <-chan error) {
	msgs := make(chan models.StepMessage, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(msgs)
		for {
			var msg models.StepMessage
			if err := s.conn.ReadJSON(&msg); err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				select {
				case errs <- fmt.Errorf("read step frame: %w", err):
				default:
				}
				return
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
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
