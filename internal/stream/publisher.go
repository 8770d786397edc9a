package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/config"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

// PublisherInterface publishes conversation transition events for downstream
// consumers (CRM sync, analytics, human-agent consoles).
type PublisherInterface interface {
	PublishTransition(ctx context.Context, event model.TransitionEvent) error
	Close()
}

// Publisher emits transition events to a NATS JetStream stream.
type Publisher struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
}

var _ PublisherInterface = (*Publisher)(nil)

// NewPublisher connects to NATS and ensures the transitions stream exists.
func NewPublisher(ctx context.Context, cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js, subjectPrefix: cfg.SubjectPrefix}
	if err := p.setupStream(ctx, cfg); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) setupStream(ctx context.Context, cfg config.NATSConfig) error {
	log := logger.FromContext(ctx)

	streamConfig := &nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
	}

	stream, err := p.js.StreamInfo(streamConfig.Name)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamConfig.Name, err)
	}

	if stream == nil {
		if _, err = p.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to add stream '%s': %w", streamConfig.Name, err)
		}
		log.Info("Created stream",
			zap.String("name", streamConfig.Name),
			zap.Any("subjects", streamConfig.Subjects),
		)
	}
	return nil
}

// PublishTransition emits one transition event. The subject encodes tenant and
// kind so consumers can filter server-side.
func (p *Publisher) PublishTransition(ctx context.Context, event model.TransitionEvent) error {
	log := logger.FromContext(ctx)

	if event.Timestamp.IsZero() {
		event.Timestamp = utils.Now()
	}

	subject := fmt.Sprintf("%s.%s.%s", p.subjectPrefix, event.CompanyID, event.Kind)
	payload := utils.MustMarshalJSON(event)

	if _, err := p.js.Publish(subject, payload, nats.Context(ctx)); err != nil {
		log.Error("Failed to publish transition event",
			zap.String("subject", subject),
			zap.Error(err))
		return apperrors.NewRetryable(fmt.Errorf("%w: %v", apperrors.ErrNATS, err), "failed to publish transition event")
	}

	log.Debug("Published transition event",
		zap.String("subject", subject),
		zap.String("conversation_id", event.ConversationID))
	return nil
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil && !p.nc.IsClosed() {
		if err := p.nc.Drain(); err != nil {
			logger.Log.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}
}

// NoopPublisher discards transition events. Used when NATS is disabled.
type NoopPublisher struct{}

var _ PublisherInterface = (*NoopPublisher)(nil)

// PublishTransition discards the event.
func (NoopPublisher) PublishTransition(ctx context.Context, event model.TransitionEvent) error {
	return nil
}

// Close is a no-op.
func (NoopPublisher) Close() {}
