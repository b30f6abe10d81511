// Package notify announces finished runs on a NATS subject.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

const connectTimeout = 5 * time.Second

// RunMessage is the JSON body published when a run ends.
type RunMessage struct {
	RunID      string            `json:"run_id"`
	Host       string            `json:"host,omitempty"`
	Target     string            `json:"target"`
	Init       bool              `json:"init"`
	Outcome    string            `json:"outcome"`
	DurationMS int64             `json:"duration_ms"`
	Stages     map[string]string `json:"stages"`
	Package    *PackageInfo      `json:"package,omitempty"`
	Error      string            `json:"error,omitempty"`
	Warnings   int               `json:"warnings"`
	FinishedAt time.Time         `json:"finished_at"`
}

// PackageInfo describes the published archive.
type PackageInfo struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// NewRunMessage builds the message for a finished report.
func NewRunMessage(r *models.Report) RunMessage {
	host, _ := os.Hostname()
	m := RunMessage{
		RunID:      r.RunID,
		Host:       host,
		Target:     string(r.Target),
		Init:       r.Init,
		Outcome:    string(r.Outcome),
		DurationMS: r.Duration().Milliseconds(),
		Stages:     make(map[string]string, len(r.StageResults)),
		Warnings:   len(r.Warnings),
		FinishedAt: r.End,
	}
	for s, res := range r.StageResults {
		m.Stages[string(s)] = string(res)
	}
	if r.Package != nil {
		m.Package = &PackageInfo{Path: r.Package.Path, Digest: r.Package.Digest, Size: r.Package.Size}
	}
	if err := r.Err(); err != nil {
		m.Error = err.Error()
	}
	return m
}

// Publisher sends a finished run somewhere.
type Publisher interface {
	Publish(ctx context.Context, r *models.Report) error
}

// NATSPublisher publishes run messages with core NATS. It connects per call,
// which suits a process that publishes once.
type NATSPublisher struct {
	url     string
	subject string
	logger  *slog.Logger
}

// New returns a publisher for cfg, or nil when notifications are disabled.
func New(cfg config.NotifyConfig, logger *slog.Logger) *NATSPublisher {
	if cfg.NATSURL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{url: cfg.NATSURL, subject: cfg.Subject, logger: logger}
}

// Publish connects, publishes and flushes. The deadline of ctx bounds the flush.
func (p *NATSPublisher) Publish(ctx context.Context, r *models.Report) error {
	data, err := json.Marshal(NewRunMessage(r))
	if err != nil {
		return errors.InternalError("marshal run message").WithCause(err).Build()
	}

	nc, err := nats.Connect(p.url,
		nats.Name("meshpack"),
		nats.Timeout(connectTimeout),
		nats.NoReconnect(),
	)
	if err != nil {
		return errors.NetworkError("connect to NATS").
			WithCause(err).
			WithContext("url", p.url).
			Build()
	}
	defer nc.Close()

	if err := nc.Publish(p.subject, data); err != nil {
		return errors.NetworkError("publish run message").
			WithCause(err).
			WithContext("subject", p.subject).
			Build()
	}
	flushCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}
	if err := nc.FlushWithContext(flushCtx); err != nil {
		return errors.NetworkError("flush run message").
			WithCause(err).
			WithContext("subject", p.subject).
			Build()
	}
	p.logger.Debug("Published run message", slog.String("subject", p.subject), logfields.RunID(r.RunID))
	return nil
}
