package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ewintr.nl/vidqa/cache"
	"ewintr.nl/vidqa/fetcher"
	"ewintr.nl/vidqa/model"
	"ewintr.nl/vidqa/storage"
)

var (
	ErrProcessing         = errors.New("video is being processed")
	ErrNotFound           = errors.New("video not found")
	ErrSummaryUnavailable = errors.New("summary unavailable")
)

type SummaryResult struct {
	VideoID model.VideoID
	Text    string
	Cached  bool
	// Reduced is set when no transcript was available and the summary is
	// based on metadata alone.
	Reduced bool
}

type Summarizer struct {
	videos    *cache.Videos
	processor *Processor
	generator fetcher.Generator
	archive   storage.VideoRepository
	index     storage.SummaryIndex
	opts      Options
	logger    *slog.Logger
}

// NewSummarizer creates a summarizer. archive and index may be nil.
func NewSummarizer(videos *cache.Videos, processor *Processor, generator fetcher.Generator, archive storage.VideoRepository, index storage.SummaryIndex, opts Options, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		videos:    videos,
		processor: processor,
		generator: generator,
		archive:   archive,
		index:     index,
		opts:      opts,
		logger:    logger,
	}
}

func (s *Summarizer) GetOrCreate(ctx context.Context, id model.VideoID) (SummaryResult, error) {
	if text, ok := s.videos.Summary(ctx, id); ok {
		return SummaryResult{VideoID: id, Text: text, Cached: true}, nil
	}

	// a transcript that is not cached yet is left to Ensure, so only the
	// provider decides that a video has none
	md, hasMetadata := s.videos.Metadata(ctx, id)
	entry, hasTranscript := s.videos.Transcript(ctx, id)
	tr := entry.Transcript
	ttl := s.opts.SummaryTTL
	if !hasMetadata || !hasTranscript {
		res := s.processor.Ensure(ctx, id)
		switch res.Outcome {
		case OutcomeProcessing:
			return SummaryResult{}, ErrProcessing
		case OutcomeNotFound:
			return SummaryResult{}, ErrNotFound
		case OutcomeFailed:
			return SummaryResult{}, fmt.Errorf("%w: %w", ErrSummaryUnavailable, res.Err)
		}
		md, tr = res.Metadata, res.Transcript
		if res.TranscriptErr != nil {
			ttl = s.opts.DegradedTTL
		}
	}

	work := context.WithoutCancel(ctx)
	gctx, cancel := context.WithTimeout(work, s.opts.ProviderTimeout)
	defer cancel()
	text, err := s.generator.Complete(gctx, summarySystemPrompt, []model.Turn{
		{Role: model.RoleUser, Text: summaryPrompt(md, tr, s.opts.MaxTranscriptChars)},
	})
	if err != nil {
		s.logger.Warn("summary generation failed", slog.String("video", string(id)), slog.Any("error", err))
		return SummaryResult{}, fmt.Errorf("%w: %w", ErrSummaryUnavailable, err)
	}

	s.videos.SetSummary(work, id, text, ttl)
	video := model.NewVideo(md, tr != nil)
	video.Summary = text
	s.store(work, video)

	return SummaryResult{VideoID: id, Text: text, Reduced: tr == nil}, nil
}

// store updates the archive first, so the index reuses the archived id.
func (s *Summarizer) store(ctx context.Context, video *model.Video) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	if s.archive != nil {
		if err := s.archive.Save(ctx, video); err != nil {
			s.logger.Warn("failed to archive summary", slog.String("video", string(video.YoutubeID)), slog.Any("error", err))
		}
	}
	if s.index != nil {
		if err := s.index.Save(ctx, video); err != nil {
			s.logger.Warn("failed to index summary", slog.String("video", string(video.YoutubeID)), slog.Any("error", err))
		}
	}
}
