// Package orchestrator runs media files through the transcription
// pipeline: skip checks, audio staging, blob upload, the Azure batch
// transcription lifecycle, and subtitle writing.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"subgen/internal/azure"
	"subgen/internal/config"
	"subgen/internal/gate"
	"subgen/internal/logging"
	"subgen/internal/media/audio"
	"subgen/internal/notifications"
	"subgen/internal/services/bazarr"
	"subgen/internal/services/mediaserver"
	"subgen/internal/skip"
	"subgen/internal/store"
	"subgen/internal/subtitles"
)

// SpeechService is the slice of the Azure speech client the pipeline uses.
type SpeechService interface {
	Create(ctx context.Context, req azure.CreateRequest) (azure.Transcription, error)
	Get(ctx context.Context, id string) (azure.Transcription, error)
	FetchResult(ctx context.Context, id string) (azure.Result, error)
	Delete(ctx context.Context, id string) error
}

// BlobService is the slice of the blob client the pipeline uses.
type BlobService interface {
	Upload(ctx context.Context, blobName, filePath string) error
	SASURL(blobName string, lifetime time.Duration) (string, error)
	Delete(ctx context.Context, blobName string) error
}

// SubtitleNotifier is told about each written subtitle so downstream
// indexes stay current.
type SubtitleNotifier interface {
	NotifySubtitleWritten(ctx context.Context, mediaPath string) error
}

// Orchestrator wires the pipeline's collaborators together.
type Orchestrator struct {
	cfg        *config.Config
	store      *store.Store
	speech     SpeechService
	blob       BlobService
	stager     audio.Stager
	skip       *skip.Engine
	gate       *gate.Gate
	namer      subtitles.Namer
	notifier   notifications.Service
	refreshers []mediaserver.Refresher
	bazarr     SubtitleNotifier
	logger     *slog.Logger

	pollInterval time.Duration
	maxPolls     int
	sasLifetime  time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier overrides the failure notifier.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) { o.notifier = notifier }
}

// WithRefreshers overrides the media server refreshers.
func WithRefreshers(refreshers ...mediaserver.Refresher) Option {
	return func(o *Orchestrator) { o.refreshers = refreshers }
}

// WithBazarr overrides the Bazarr notifier.
func WithBazarr(notifier SubtitleNotifier) Option {
	return func(o *Orchestrator) { o.bazarr = notifier }
}

// WithSkipEngine overrides the skip engine, mainly for tests that stub
// stream probing.
func WithSkipEngine(engine *skip.Engine) Option {
	return func(o *Orchestrator) { o.skip = engine }
}

// WithPollInterval overrides the transcription poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// New builds an Orchestrator from configuration and live collaborators.
func New(cfg *config.Config, st *store.Store, speech SpeechService, blob BlobService, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	namer, err := subtitles.NewNamer(cfg.Naming.NamingType, cfg.Naming.LanguageNameOverride, cfg.Naming.ShowSubgenMarker)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:    cfg,
		store:  st,
		speech: speech,
		blob:   blob,
		stager: audio.Stager{
			TranscodeDir: cfg.Processing.TranscodeDir,
			FFmpegBinary: cfg.FFmpegBinary(),
		},
		skip:         skip.New(cfg, logger),
		gate:         gate.New(cfg.Processing.ConcurrentTranscriptions),
		namer:        namer,
		notifier:     notifications.NewService(cfg),
		logger:       logging.WithComponent(logger, "orchestrator"),
		pollInterval: time.Duration(cfg.Processing.JobPollInterval) * time.Second,
		maxPolls:     cfg.Processing.MaxPollAttempts,
		sasLifetime:  24 * time.Hour,
	}
	if o.pollInterval <= 0 {
		o.pollInterval = 10 * time.Second
	}
	if o.maxPolls <= 0 {
		o.maxPolls = 360
	}

	if cfg.Bazarr.Configured() {
		o.bazarr = bazarr.New(cfg.Bazarr, logger)
	}
	o.refreshers = mediaserver.FromConfig(cfg, logger)

	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Store exposes the backing store to the HTTP layer.
func (o *Orchestrator) Store() *store.Store { return o.store }

// Config exposes the active configuration.
func (o *Orchestrator) Config() *config.Config { return o.cfg }

// GateStats reports admission gate occupancy for status reporting.
func (o *Orchestrator) GateStats() (capacity, inUse int) {
	return o.gate.Capacity(), o.gate.InUse()
}

// Close releases the admission gate; queued work fails fast afterwards.
func (o *Orchestrator) Close() {
	o.gate.Close()
}
