package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"ewintr.nl/vidqa/fetcher"
	"ewintr.nl/vidqa/model"
	"github.com/google/uuid"
)

var ErrEmptyQuestion = errors.New("question is empty")

var fallbackAnswers = []string{
	"Sorry, I cannot answer questions about this video right now. Please try again in a moment.",
	"I was unable to look into the video content just now. Could you ask again shortly?",
	"Something went wrong while reading the video. Please repeat your question in a little while.",
}

type Question struct {
	VideoID    model.VideoID
	Text       string
	Metadata   *model.Metadata
	Transcript *model.Transcript
	Summary    string
	History    []model.Turn
}

// Answer is the reply to a Question. When Fallback is set, Text is a canned
// reply and Err holds the failure it replaces.
type Answer struct {
	ID               uuid.UUID
	VideoID          model.VideoID
	Text             string
	RelatedTimestamp *int
	Fallback         bool
	Err              error
}

type Session struct {
	generator fetcher.Generator
	opts      Options
	logger    *slog.Logger
}

func NewSession(generator fetcher.Generator, opts Options, logger *slog.Logger) *Session {
	return &Session{
		generator: generator,
		opts:      opts,
		logger:    logger,
	}
}

func (s *Session) Ask(ctx context.Context, q Question) (Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Answer{}, ErrEmptyQuestion
	}
	md := q.Metadata
	if md == nil {
		md = model.Placeholder(q.VideoID)
	}

	system := qaContext(md, q.Transcript, q.Summary, s.opts.MaxTranscriptChars)
	turns := append(recent(q.History, s.opts.HistoryWindow), model.Turn{Role: model.RoleUser, Text: q.Text})

	gctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()
	text, err := s.generator.Complete(gctx, system, turns)
	if err != nil {
		s.logger.Warn("question answering failed", slog.String("video", string(q.VideoID)), slog.Bool("fallback", s.opts.QAFallback), slog.Any("error", err))
		if !s.opts.QAFallback {
			return Answer{}, fmt.Errorf("answer question: %w", err)
		}
		return Answer{
			ID:       uuid.New(),
			VideoID:  q.VideoID,
			Text:     fallbackAnswers[rand.IntN(len(fallbackAnswers))],
			Fallback: true,
			Err:      err,
		}, nil
	}

	return Answer{
		ID:               uuid.New(),
		VideoID:          q.VideoID,
		Text:             text,
		RelatedTimestamp: ExtractTimestamp(text),
	}, nil
}

// recent returns a copy of the last n turns.
func recent(history []model.Turn, n int) []model.Turn {
	if n >= 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]model.Turn, len(history), len(history)+1)
	copy(out, history)
	return out
}
