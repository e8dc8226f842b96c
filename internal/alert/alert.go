// Package alert implements alert dispatching to multiple sinks.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

const sendTimeout = 15 * time.Second

// Sink is an alert destination.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
	Name() string
}

// Dispatcher routes alerts to configured sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher from alert configs.
func NewDispatcher(configs []types.AlertConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, cfg := range configs {
		sink, err := newSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// Sinks returns the configured sink names.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Dispatch sends an alert to all configured sinks. A failing sink does not
// stop delivery to the others.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	delivered := false
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := sink.Send(sctx, alert)
		cancel()
		if err != nil {
			metrics.AlertsFailed.Add(ctx, 1)
			d.logger.Error("alert delivery failed", "sink", sink.Name(), "category", alert.Category, "error", err)
			continue
		}
		delivered = true
	}
	if delivered {
		metrics.AlertsDispatched.Add(ctx, 1)
	}
}

// AlertFunc returns a function suitable for the engine, syncer and watcher
// alert callbacks.
func (d *Dispatcher) AlertFunc() func(types.Alert) {
	return func(a types.Alert) {
		d.Dispatch(context.Background(), a)
	}
}

func newSink(cfg types.AlertConfig) (Sink, error) {
	switch cfg.Type {
	case types.AlertConsole:
		return NewConsoleSink(), nil
	case types.AlertWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.AlertFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.AlertSNS:
		return NewSNSSink(cfg.TopicARN)
	case types.AlertS3:
		return NewS3Sink(cfg.BucketName, cfg.Prefix)
	case types.AlertPubSub:
		return NewPubSubSink(cfg.ProjectID, cfg.TopicID)
	default:
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
}

// subjectOf names the alert for sinks with a short title field.
func subjectOf(alert types.Alert) string {
	subject := fmt.Sprintf("[%s]", alert.Level)
	if alert.Category != "" {
		subject += " " + alert.Category
	}
	if alert.StreamID != "" {
		subject += " " + alert.StreamID
	}
	return subject
}
