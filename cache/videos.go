package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ewintr.nl/vidqa/model"
)

const (
	lockValue = "1"

	statusPrefix = "youtube:processing:"
	lockPrefix   = "youtube:lock:"
)

func MetadataKey(id model.VideoID) string   { return fmt.Sprintf("youtube:metadata:%s", id) }
func TranscriptKey(id model.VideoID) string { return fmt.Sprintf("youtube:transcript:%s", id) }
func SummaryKey(id model.VideoID) string    { return fmt.Sprintf("youtube:summary:%s", id) }
func StatusKey(id model.VideoID) string     { return statusPrefix + string(id) }
func LockKey(id model.VideoID) string       { return lockPrefix + string(id) }

// Videos stores per-video metadata, transcripts, summaries and processing
// status. Store failures are logged and reported as misses, so callers only
// ever see present or absent.
type Videos struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewVideos(store Store, timeout time.Duration, logger *slog.Logger) *Videos {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Videos{
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

func (v *Videos) Metadata(ctx context.Context, id model.VideoID) (*model.Metadata, bool) {
	var md model.Metadata
	if !v.getJSON(ctx, MetadataKey(id), &md) {
		return nil, false
	}
	return &md, true
}

func (v *Videos) SetMetadata(ctx context.Context, md *model.Metadata, ttl time.Duration) {
	v.setJSON(ctx, MetadataKey(md.VideoID), md, ttl)
}

func (v *Videos) Transcript(ctx context.Context, id model.VideoID) (model.TranscriptEntry, bool) {
	var entry model.TranscriptEntry
	if !v.getJSON(ctx, TranscriptKey(id), &entry) {
		return model.TranscriptEntry{}, false
	}
	return entry, true
}

func (v *Videos) SetTranscript(ctx context.Context, id model.VideoID, entry model.TranscriptEntry, ttl time.Duration) {
	v.setJSON(ctx, TranscriptKey(id), entry, ttl)
}

func (v *Videos) Summary(ctx context.Context, id model.VideoID) (string, bool) {
	return v.get(ctx, SummaryKey(id))
}

func (v *Videos) SetSummary(ctx context.Context, id model.VideoID, summary string, ttl time.Duration) {
	v.set(ctx, SummaryKey(id), summary, ttl)
}

func (v *Videos) Status(ctx context.Context, id model.VideoID) (model.ProcessingStatus, bool) {
	s, ok := v.get(ctx, StatusKey(id))
	if !ok {
		return "", false
	}
	return model.ProcessingStatus(s), true
}

func (v *Videos) SetStatus(ctx context.Context, id model.VideoID, status model.ProcessingStatus, ttl time.Duration) {
	v.set(ctx, StatusKey(id), string(status), ttl)
}

// Lock claims the processing lock for id. An unreachable store grants the
// lock, the same way it reports every read as a miss.
func (v *Videos) Lock(ctx context.Context, id model.VideoID, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ok, err := v.store.SetNX(ctx, LockKey(id), lockValue, ttl)
	if err != nil {
		v.logger.Warn("cache lock failed", slog.String("key", LockKey(id)), slog.Any("error", err))
		return true
	}
	return ok
}

func (v *Videos) Unlock(ctx context.Context, id model.VideoID) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := v.store.Delete(ctx, LockKey(id)); err != nil {
		v.logger.Warn("cache unlock failed", slog.String("key", LockKey(id)), slog.Any("error", err))
	}
}

func (v *Videos) get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	val, err := v.store.Get(ctx, key)
	switch {
	case err == nil:
		return val, true
	case errors.Is(err, ErrMiss):
		return "", false
	default:
		v.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		return "", false
	}
}

func (v *Videos) set(ctx context.Context, key, value string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := v.store.Set(ctx, key, value, ttl); err != nil {
		v.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (v *Videos) getJSON(ctx context.Context, key string, dst any) bool {
	val, ok := v.get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		v.logger.Warn("cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (v *Videos) setJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	body, err := json.Marshal(value)
	if err != nil {
		v.logger.Error("could not encode cache entry", slog.String("key", key), slog.Any("error", err))
		return
	}
	v.set(ctx, key, string(body), ttl)
}
