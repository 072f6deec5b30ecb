package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ChangeKind labels what kind of mutation a change event announces.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeUpdated   ChangeKind = "updated"
	ChangeRemoved   ChangeKind = "removed"
	ChangeBedCounts ChangeKind = "bed_counts"
)

// ChangeEvent is the message published on the change subject after every
// committed write. Subscribers treat it purely as an invalidation signal
// and re-read the full collection; the event does not carry record state.
type ChangeEvent struct {
	ProviderID uuid.UUID  `json:"provider_id"`
	Kind       ChangeKind `json:"kind"`
	At         time.Time  `json:"at"`
}

// ChangeFeed carries directory change events over NATS so every service
// instance (and every viewer stream) sees writes from every other instance.
type ChangeFeed struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
	timeout time.Duration
}

// ConnectChangeFeed connects to NATS and returns a feed bound to the given
// subject. Connect blocks until the first connection is established or the
// dial times out, so callers get an explicit readiness signal.
func ConnectChangeFeed(address, subject string, timeout time.Duration, logger *zap.Logger) (*ChangeFeed, error) {
	nc, err := nats.Connect(
		address,
		nats.MaxReconnects(100),
		nats.ReconnectWait(3*time.Second),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed permanently")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", address, err)
	}

	logger.Info("Connected to NATS for directory change feed",
		zap.String("address", address),
		zap.String("subject", subject),
	)
	return &ChangeFeed{nc: nc, subject: subject, logger: logger, timeout: timeout}, nil
}

// Announce publishes a change event and flushes so the write's echo is on
// the wire before the store acknowledges the caller.
func (f *ChangeFeed) Announce(event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.nc.Publish(f.subject, data); err != nil {
		f.logger.Error("Failed to publish change event",
			zap.String("subject", f.subject),
			zap.String("provider_id", event.ProviderID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return f.nc.FlushTimeout(f.timeout)
}

// Listen subscribes to the change subject and invokes handler for every
// decoded event. The returned subscription is the caller's cancellation
// handle.
func (f *ChangeFeed) Listen(handler func(ChangeEvent)) (*nats.Subscription, error) {
	sub, err := f.nc.Subscribe(f.subject, func(msg *nats.Msg) {
		var event ChangeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			f.logger.Error("Failed to unmarshal change event",
				zap.ByteString("raw_data", msg.Data),
				zap.Error(err),
			)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to change subject %s: %w", f.subject, err)
	}
	return sub, nil
}

// Close drains the NATS connection.
func (f *ChangeFeed) Close() {
	if f.nc == nil {
		return
	}
	if err := f.nc.Drain(); err != nil {
		f.logger.Error("Error draining NATS connection", zap.Error(err))
	}
}
