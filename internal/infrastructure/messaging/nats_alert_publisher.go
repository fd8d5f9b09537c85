package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"smurfing-hunter/internal/domain/entity"
	"smurfing-hunter/internal/infrastructure/config"
	"smurfing-hunter/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSAlertPublisher publishes wallet and pattern alerts over NATS
type NATSAlertPublisher struct {
	mu     sync.RWMutex
	conn   *nats.Conn
	js     nats.JetStreamContext
	config *config.NATSConfig
	logger *logger.Logger
}

// NewNATSAlertPublisher creates a new NATS alert publisher
func NewNATSAlertPublisher(cfg *config.NATSConfig, logger *logger.Logger) *NATSAlertPublisher {
	return &NATSAlertPublisher{
		config: cfg,
		logger: logger.WithComponent("nats-publisher"),
	}
}

// Connect connects to the NATS server and prepares the alert stream
func (n *NATSAlertPublisher) Connect(ctx context.Context) error {
	if !n.config.Enabled {
		n.logger.Info("NATS is disabled, alerts will not be published")
		return nil
	}

	n.logger.Info("Connecting to NATS server", zap.String("url", n.config.URL))

	opts := []nats.Option{
		nats.Name("smurfing-hunter"),
		nats.Timeout(n.config.ConnectTimeout),
		nats.ReconnectWait(n.config.ReconnectDelay),
		nats.MaxReconnects(n.config.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.logger.Error("Failed to connect to NATS", zap.Error(err))
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.conn = conn

	// Try JetStream first, if not available fall back to core NATS
	js, err := conn.JetStream(nats.Context(ctx))
	if err != nil {
		n.logger.Warn("JetStream not available, using core NATS", zap.Error(err))
		return nil
	}
	if err := n.ensureStream(js); err != nil {
		n.logger.Warn("Alert stream unavailable, using core NATS", zap.Error(err))
		return nil
	}
	n.js = js
	return nil
}

// ensureStream creates the alert stream when it does not exist yet
func (n *NATSAlertPublisher) ensureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(n.config.StreamName); err == nil {
		return nil
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     n.config.StreamName,
		Subjects: []string{n.config.SubjectPrefix + ".alerts.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to add stream %s: %w", n.config.StreamName, err)
	}
	n.logger.Info("Created alert stream", zap.String("stream", n.config.StreamName))
	return nil
}

// PublishWalletAlert publishes one wallet alert
func (n *NATSAlertPublisher) PublishWalletAlert(ctx context.Context, alert *entity.WalletAlert) error {
	return n.publish(ctx, WalletAlertSubject(n.config.SubjectPrefix, alert.Score.RiskLevel), alert.ID, alert)
}

// PublishPatternAlert publishes one pattern summary
func (n *NATSAlertPublisher) PublishPatternAlert(ctx context.Context, alert *entity.PatternAlert) error {
	return n.publish(ctx, PatternAlertSubject(n.config.SubjectPrefix, alert.Type), alert.ID, alert)
}

func (n *NATSAlertPublisher) publish(ctx context.Context, subject, id string, payload any) error {
	n.mu.RLock()
	conn, js := n.conn, n.js
	n.mu.RUnlock()

	if conn == nil {
		n.logger.Debug("Skipping alert, NATS not connected", zap.String("subject", subject))
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert %s: %w", id, err)
	}

	if js != nil {
		msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
		msg.Header.Set(nats.MsgIdHdr, id)
		if _, err := js.PublishMsg(msg, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to publish alert %s: %w", id, err)
		}
	} else if err := conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", id, err)
	}

	n.logger.Debug("Alert published", zap.String("subject", subject), zap.String("id", id))
	return nil
}

// Disconnect flushes pending messages and closes the connection
func (n *NATSAlertPublisher) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		if err := n.conn.Flush(); err != nil {
			n.logger.Warn("Failed to flush NATS connection", zap.Error(err))
		}
		n.conn.Close()
		n.conn = nil
		n.js = nil
	}
	n.logger.Info("Disconnected from NATS")
	return nil
}

// IsConnected checks if connected to NATS
func (n *NATSAlertPublisher) IsConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil && n.conn.IsConnected()
}

// WalletAlertSubject returns <prefix>.alerts.wallet.<risk level>
func WalletAlertSubject(prefix string, level entity.RiskLevel) string {
	return fmt.Sprintf("%s.alerts.wallet.%s", prefix, strings.ToLower(string(level)))
}

// PatternAlertSubject returns <prefix>.alerts.pattern.<pattern type>
func PatternAlertSubject(prefix string, patternType entity.PatternType) string {
	return fmt.Sprintf("%s.alerts.pattern.%s", prefix, patternType)
}
