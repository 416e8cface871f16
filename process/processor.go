package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ewintr.nl/vidqa/cache"
	"ewintr.nl/vidqa/fetcher"
	"ewintr.nl/vidqa/model"
	"ewintr.nl/vidqa/storage"
)

type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeProcessing Outcome = "processing"
	OutcomeFailed     Outcome = "failed"
	OutcomeNotFound   Outcome = "not_found"
)

type LockMode string

const (
	// LockAdvisory relies on the processing status alone. Two callers racing
	// on a cold video may both fetch it.
	LockAdvisory LockMode = "advisory"
	// LockExclusive additionally claims a set-if-not-exists lock.
	LockExclusive LockMode = "exclusive"
)

type Options struct {
	ProviderTimeout    time.Duration
	StatusTTL          time.Duration
	MetadataTTL        time.Duration
	DegradedTTL        time.Duration
	TranscriptTTL      time.Duration
	SummaryTTL         time.Duration
	LockMode           LockMode
	QAFallback         bool
	HistoryWindow      int
	MaxTranscriptChars int
}

func DefaultOptions() Options {
	return Options{
		ProviderTimeout:    15 * time.Second,
		StatusTTL:          300 * time.Second,
		MetadataTTL:        3600 * time.Second,
		DegradedTTL:        300 * time.Second,
		TranscriptTTL:      7200 * time.Second,
		SummaryTTL:         7200 * time.Second,
		LockMode:           LockAdvisory,
		QAFallback:         true,
		HistoryWindow:      6,
		MaxTranscriptChars: 24000,
	}
}

type Result struct {
	Outcome    Outcome
	Metadata   *model.Metadata
	Transcript *model.Transcript
	Cached     bool
	Err        error
	// TranscriptErr is set when the transcript could not be fetched for a
	// transient reason. Nothing was cached for it.
	TranscriptErr error
}

type TranscriptOutcome string

const (
	TranscriptFound    TranscriptOutcome = "found"
	TranscriptNotFound TranscriptOutcome = "not_found"
	TranscriptFailed   TranscriptOutcome = "failed"
)

type TranscriptResult struct {
	Outcome    TranscriptOutcome
	Transcript *model.Transcript
	Cached     bool
	Err        error
}

// Processor makes sure metadata and transcript of a video are in the cache,
// fetching what is missing at most once per status TTL.
type Processor struct {
	videos      *cache.Videos
	metadata    fetcher.MetadataFetcher
	transcripts fetcher.TranscriptFetcher
	archive     storage.VideoRepository
	opts        Options
	logger      *slog.Logger
}

// NewProcessor creates a processor. archive may be nil.
func NewProcessor(videos *cache.Videos, metadata fetcher.MetadataFetcher, transcripts fetcher.TranscriptFetcher, archive storage.VideoRepository, opts Options, logger *slog.Logger) *Processor {
	return &Processor{
		videos:      videos,
		metadata:    metadata,
		transcripts: transcripts,
		archive:     archive,
		opts:        opts,
		logger:      logger,
	}
}

// Ensure runs the processing state machine for id. Failures are reported in
// the Result, never as a panic or a separate error.
func (p *Processor) Ensure(ctx context.Context, id model.VideoID) Result {
	logger := p.logger.With(slog.String("video", string(id)))

	if status, ok := p.videos.Status(ctx, id); ok && status == model.StatusProcessing {
		logger.Debug("video is already being processed")
		return Result{Outcome: OutcomeProcessing}
	}

	md, hasMetadata := p.videos.Metadata(ctx, id)
	entry, hasTranscript := p.videos.Transcript(ctx, id)
	if hasMetadata && hasTranscript {
		return Result{Outcome: OutcomeCompleted, Metadata: md, Transcript: entry.Transcript, Cached: true}
	}

	// the caller may go away, the fetched data still fills the cache
	work := context.WithoutCancel(ctx)
	if p.opts.LockMode == LockExclusive {
		if !p.videos.Lock(work, id, p.opts.StatusTTL) {
			logger.Debug("processing lock held elsewhere")
			return Result{Outcome: OutcomeProcessing}
		}
		defer p.videos.Unlock(work, id)
	}
	p.videos.SetStatus(work, id, model.StatusProcessing, p.opts.StatusTTL)
	logger.Info("processing video")

	if !hasMetadata {
		fetched, err := p.fetchMetadata(work, id)
		switch {
		case errors.Is(err, fetcher.ErrNotFound):
			p.videos.SetStatus(work, id, model.StatusFailed, p.opts.StatusTTL)
			logger.Info("video not found")
			return Result{Outcome: OutcomeNotFound, Err: err}
		case err != nil:
			return p.fail(work, id, fmt.Errorf("fetch metadata: %w", err))
		}
		md = fetched
		ttl := p.opts.MetadataTTL
		if md.Degraded {
			ttl = p.opts.DegradedTTL
		}
		p.videos.SetMetadata(work, md, ttl)
	}

	var transcriptErr error
	if !hasTranscript {
		tr, err := p.fetchTranscript(work, id)
		switch {
		case errors.Is(err, fetcher.ErrNoTranscript):
			logger.Info("video has no transcript")
			entry = model.TranscriptEntry{Available: false}
			p.videos.SetTranscript(work, id, entry, p.opts.TranscriptTTL)
		case err != nil:
			logger.Warn("transcript fetch failed, completing with metadata only", slog.Any("error", err))
			entry = model.TranscriptEntry{}
			transcriptErr = err
		default:
			entry = model.TranscriptEntry{Available: true, Transcript: tr}
			p.videos.SetTranscript(work, id, entry, p.opts.TranscriptTTL)
		}
	}

	p.videos.SetStatus(work, id, model.StatusCompleted, p.opts.StatusTTL)
	p.save(work, model.NewVideo(md, entry.Available))
	logger.Info("video processed", slog.Bool("transcript", entry.Available), slog.Bool("degraded", md.Degraded))

	return Result{Outcome: OutcomeCompleted, Metadata: md, Transcript: entry.Transcript, TranscriptErr: transcriptErr}
}

// Transcript returns the transcript of id from the cache, or fetches and
// caches it.
func (p *Processor) Transcript(ctx context.Context, id model.VideoID) TranscriptResult {
	if entry, ok := p.videos.Transcript(ctx, id); ok {
		if !entry.Available {
			return TranscriptResult{Outcome: TranscriptNotFound, Cached: true}
		}
		return TranscriptResult{Outcome: TranscriptFound, Transcript: entry.Transcript, Cached: true}
	}

	work := context.WithoutCancel(ctx)
	tr, err := p.fetchTranscript(work, id)
	switch {
	case errors.Is(err, fetcher.ErrNoTranscript):
		p.videos.SetTranscript(work, id, model.TranscriptEntry{Available: false}, p.opts.TranscriptTTL)
		return TranscriptResult{Outcome: TranscriptNotFound}
	case errors.Is(err, fetcher.ErrNotFound):
		return TranscriptResult{Outcome: TranscriptNotFound, Err: err}
	case err != nil:
		p.logger.Warn("transcript fetch failed", slog.String("video", string(id)), slog.Any("error", err))
		return TranscriptResult{Outcome: TranscriptFailed, Err: err}
	}

	p.videos.SetTranscript(work, id, model.TranscriptEntry{Available: true, Transcript: tr}, p.opts.TranscriptTTL)
	return TranscriptResult{Outcome: TranscriptFound, Transcript: tr}
}

func (p *Processor) fail(ctx context.Context, id model.VideoID, err error) Result {
	p.videos.SetStatus(ctx, id, model.StatusFailed, p.opts.StatusTTL)
	p.logger.Error("failed to process video", slog.String("video", string(id)), slog.Any("error", err))
	return Result{Outcome: OutcomeFailed, Err: err}
}

func (p *Processor) fetchMetadata(ctx context.Context, id model.VideoID) (*model.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ProviderTimeout)
	defer cancel()

	return p.metadata.FetchMetadata(ctx, id)
}

func (p *Processor) fetchTranscript(ctx context.Context, id model.VideoID) (*model.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ProviderTimeout)
	defer cancel()

	return p.transcripts.FetchTranscript(ctx, id)
}

func (p *Processor) save(ctx context.Context, video *model.Video) {
	if p.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.ProviderTimeout)
	defer cancel()

	if err := p.archive.Save(ctx, video); err != nil {
		p.logger.Warn("failed to archive video", slog.String("video", string(video.YoutubeID)), slog.Any("error", err))
	}
}

// Enrich fills in what q does not carry yet: the cached summary, and the
// metadata and transcript known to Ensure. Content supplied by the caller
// wins. A video that does not exist yields ErrNotFound.
func (p *Processor) Enrich(ctx context.Context, q Question) (Question, error) {
	if strings.TrimSpace(q.Text) == "" {
		return q, ErrEmptyQuestion
	}
	if q.Summary == "" {
		if summary, ok := p.videos.Summary(ctx, q.VideoID); ok {
			q.Summary = summary
		}
	}
	if q.Metadata != nil && q.Transcript != nil {
		return q, nil
	}

	res := p.Ensure(ctx, q.VideoID)
	if res.Outcome == OutcomeNotFound {
		return q, ErrNotFound
	}
	if q.Metadata == nil {
		q.Metadata = res.Metadata
	}
	if q.Transcript == nil {
		q.Transcript = res.Transcript
	}
	return q, nil
}
