package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectModelTrained is published after a model is registered.
const SubjectModelTrained = "models.trained"

const streamModels = "MODELS"

// Bus publishes domain events to NATS, through JetStream when the server
// has it enabled.
type Bus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// Connect dials NATS and prepares the MODELS stream. JetStream is optional:
// without it events are published with core NATS.
func Connect(url string, logger *zap.Logger) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("autotab-api"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	b := &Bus{nc: nc, logger: logger}
	js, err := nc.JetStream()
	if err != nil {
		logger.Warn("JetStream unavailable, using core NATS", zap.Error(err))
		return b, nil
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamModels,
		Subjects: []string{"models.*"},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		logger.Warn("could not create event stream, using core NATS", zap.Error(err))
		return b, nil
	}
	b.js = js
	return b, nil
}

// Publish encodes v as JSON and publishes it on subject.
func (b *Bus) Publish(ctx context.Context, subject string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())

	if b.js != nil {
		_, err = b.js.PublishMsg(msg, nats.Context(ctx))
		return err
	}
	return b.nc.PublishMsg(msg)
}

// Subscribe delivers decoded events on subject to handler.
func (b *Bus) Subscribe(subject string, handler func(Event)) (*nats.Subscription, error) {
	return b.nc.Subscribe(subject, func(m *nats.Msg) {
		handler(Event{
			ID:        m.Header.Get(nats.MsgIdHdr),
			Subject:   m.Subject,
			Data:      m.Data,
			Timestamp: time.Now(),
		})
	})
}

// Ping reports whether the connection is usable.
func (b *Bus) Ping(context.Context) error {
	if !b.nc.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

// Close drains and closes the connection.
func (b *Bus) Close() {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}
