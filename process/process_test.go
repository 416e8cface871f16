package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ewintr.nl/vidqa/cache"
	"ewintr.nl/vidqa/model"
)

const testID = model.VideoID("dQw4w9WgXcQ")

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMetadata struct {
	calls   atomic.Int32
	md      *model.Metadata
	err     error
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func (f *fakeMetadata) FetchMetadata(ctx context.Context, id model.VideoID) (*model.Metadata, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	if f.md != nil {
		return f.md, nil
	}
	return &model.Metadata{
		VideoID:       id,
		Title:         "Never Gonna Give You Up",
		Description:   "The official video",
		Duration:      "3:33",
		ChannelName:   "Rick Astley",
		PublishedDate: "October 25, 2009",
		ViewCount:     "1500000000",
	}, nil
}

type fakeTranscripts struct {
	calls atomic.Int32
	tr    *model.Transcript
	err   error
}

func (f *fakeTranscripts) FetchTranscript(_ context.Context, _ model.VideoID) (*model.Transcript, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.tr != nil {
		return f.tr, nil
	}
	return testTranscript(), nil
}

func testTranscript() *model.Transcript {
	return &model.Transcript{
		Text: "We're no strangers to love You know the rules",
		Segments: []model.Segment{
			{Text: "We're no strangers to love", Start: 18.2, Duration: 3.5},
			{Text: "You know the rules", Start: 65.9, Duration: 2.1},
		},
	}
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	system string
	turns  []model.Turn
	reply  string
	err    error
}

func (f *fakeGenerator) Complete(_ context.Context, system string, turns []model.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system = system
	f.turns = turns
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeArchive struct {
	mu     sync.Mutex
	saved  []model.Video
	err    error
	recent []*model.Video
}

func (f *fakeArchive) Save(_ context.Context, video *model.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *video)
	return f.err
}

func (f *fakeArchive) FindRecent(_ context.Context, _ int) ([]*model.Video, error) {
	return f.recent, nil
}

func (f *fakeArchive) Search(_ context.Context, _ string, _ int) ([]*model.Video, error) {
	return f.recent, nil
}

var errDown = errors.New("connection refused")

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) { return "", errDown }
func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errDown
}
func (brokenStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errDown
}
func (brokenStore) Delete(context.Context, string) error { return errDown }
func (brokenStore) Close() error                         { return nil }

type fixture struct {
	clock       *clock
	videos      *cache.Videos
	metadata    *fakeMetadata
	transcripts *fakeTranscripts
	archive     *fakeArchive
	processor   *Processor
}

func newFixture(opts Options) *fixture {
	c := newClock()
	f := &fixture{
		clock:       c,
		videos:      cache.NewVideos(cache.NewMemory(0, cache.WithClock(c.Now)), time.Second, discard()),
		metadata:    &fakeMetadata{},
		transcripts: &fakeTranscripts{},
		archive:     &fakeArchive{},
	}
	f.processor = NewProcessor(f.videos, f.metadata, f.transcripts, f.archive, opts, discard())
	return f
}
