package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ewintr.nl/vidqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = model.VideoID("dQw4w9WgXcQ")

type fakeYouTube struct {
	videos     func(w http.ResponseWriter, r *http.Request)
	captions   func(w http.ResponseWriter, r *http.Request)
	watchPage  string
	timedText  string
	watchHits  atomic.Int32
	apiKeySeen atomic.Value
}

func (f *fakeYouTube) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiKeySeen.Store(r.URL.Query().Get("key"))
		switch r.URL.Path {
		case "/youtube/v3/videos":
			f.videos(w, r)
		case "/youtube/v3/captions":
			if f.captions == nil {
				fmt.Fprint(w, `{"items":[{"id":"c1"}]}`)
				return
			}
			f.captions(w, r)
		case "/watch":
			f.watchHits.Add(1)
			fmt.Fprint(w, f.watchPage)
		case "/timedtext":
			fmt.Fprint(w, f.timedText)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestYouTube(t *testing.T, srv *httptest.Server, apiKey string) *YouTube {
	t.Helper()
	y, err := NewYouTube(context.Background(), YouTubeInfo{
		APIKey:   apiKey,
		RPS:      1000,
		Endpoint: srv.URL + "/",
		WatchURL: srv.URL + "/watch?v=",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return y
}

func jsonBody(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

func TestFetchMetadata(t *testing.T) {
	for _, tc := range []struct {
		name     string
		videos   func(http.ResponseWriter, *http.Request)
		exp      *model.Metadata
		expErr   error
		anyError bool
	}{
		{
			name: "found",
			videos: jsonBody(http.StatusOK, `{"items":[{
				"id":"dQw4w9WgXcQ",
				"snippet":{"title":"Never Gonna Give You Up","description":"desc","channelTitle":"Rick Astley",
					"publishedAt":"2009-10-25T06:57:33Z",
					"thumbnails":{"default":{"url":"https://i.ytimg.com/d.jpg"},"high":{"url":"https://i.ytimg.com/h.jpg"}}},
				"contentDetails":{"duration":"PT3M33S"},
				"statistics":{"viewCount":"1500000000"}}]}`),
			exp: &model.Metadata{
				VideoID:       testID,
				Title:         "Never Gonna Give You Up",
				Description:   "desc",
				Duration:      "3:33",
				ChannelName:   "Rick Astley",
				ThumbnailURL:  "https://i.ytimg.com/h.jpg",
				PublishedDate: "October 25, 2009",
				ViewCount:     "1500000000",
			},
		},
		{
			name:   "not found",
			videos: jsonBody(http.StatusOK, `{"items":[]}`),
			expErr: ErrNotFound,
		},
		{
			name:   "quota exceeded",
			videos: jsonBody(http.StatusForbidden, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded","message":"quota"}]}}`),
			exp:    model.Placeholder(testID),
		},
		{
			name:   "bad key",
			videos: jsonBody(http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","errors":[{"reason":"badRequest"}]}}`),
			exp:    model.Placeholder(testID),
		},
		{
			name:     "server error",
			videos:   jsonBody(http.StatusInternalServerError, `{"error":{"code":500,"message":"backend","errors":[{"reason":"backendError"}]}}`),
			anyError: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeYouTube{videos: tc.videos}
			y := newTestYouTube(t, fake.server(t), "test-key")

			md, err := y.FetchMetadata(context.Background(), testID)
			switch {
			case tc.expErr != nil:
				assert.ErrorIs(t, err, tc.expErr)
			case tc.anyError:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrNotFound)
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.exp, md)
			}
			assert.Equal(t, "test-key", fake.apiKeySeen.Load())
		})
	}
}

func TestFetchMetadataNoKey(t *testing.T) {
	fake := &fakeYouTube{}
	y := newTestYouTube(t, fake.server(t), "")

	md, err := y.FetchMetadata(context.Background(), testID)
	require.NoError(t, err)
	assert.True(t, md.Degraded)
	assert.Equal(t, "YouTube video dQw4w9WgXcQ", md.Title)
}

func watchPage(tracks string) string {
	return `<html><script>var ytInitialPlayerResponse = {"playabilityStatus":{"status":"OK"},` +
		`"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":` + tracks + `}},` +
		`"videoDetails":{"title":"a } in a \"string\""}};var meta = {};</script></html>`
}

const timedTextXML = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0.5" dur="1.5">Hello &amp;amp; welcome</text>` +
	`<text start="2" dur="0.5">   </text>` +
	`<text start="3.25" dur="2">it&amp;#39;s
 here</text></transcript>`

func TestFetchTranscript(t *testing.T) {
	fake := &fakeYouTube{timedText: timedTextXML}
	srv := fake.server(t)
	fake.watchPage = watchPage(`[{"baseUrl":"` + srv.URL + `/timedtext?lang=en","languageCode":"en"}]`)
	y := newTestYouTube(t, srv, "test-key")

	tr, err := y.FetchTranscript(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, "Hello & welcome it's here", tr.Text)
	assert.Equal(t, []model.Segment{
		{Text: "Hello & welcome", Start: 0.5, Duration: 1.5},
		{Text: "it's here", Start: 3.25, Duration: 2},
	}, tr.Segments)
}

func TestFetchTranscriptNoCaptions(t *testing.T) {
	t.Run("captions list empty", func(t *testing.T) {
		fake := &fakeYouTube{captions: jsonBody(http.StatusOK, `{"items":[]}`)}
		y := newTestYouTube(t, fake.server(t), "test-key")

		_, err := y.FetchTranscript(context.Background(), testID)
		assert.ErrorIs(t, err, ErrNoTranscript)
		assert.Equal(t, int32(0), fake.watchHits.Load())
	})

	t.Run("captions list forbidden", func(t *testing.T) {
		fake := &fakeYouTube{
			captions:  jsonBody(http.StatusForbidden, `{"error":{"code":403,"message":"forbidden","errors":[{"reason":"forbidden"}]}}`),
			timedText: timedTextXML,
		}
		srv := fake.server(t)
		fake.watchPage = watchPage(`[{"baseUrl":"` + srv.URL + `/timedtext","languageCode":"en"}]`)
		y := newTestYouTube(t, srv, "test-key")

		tr, err := y.FetchTranscript(context.Background(), testID)
		require.NoError(t, err)
		assert.Len(t, tr.Segments, 2)
	})

	t.Run("no tracks on watch page", func(t *testing.T) {
		fake := &fakeYouTube{}
		srv := fake.server(t)
		fake.watchPage = watchPage(`[]`)
		y := newTestYouTube(t, srv, "")

		_, err := y.FetchTranscript(context.Background(), testID)
		assert.ErrorIs(t, err, ErrNoTranscript)
		assert.Equal(t, int32(1), fake.watchHits.Load())
	})

	t.Run("only po token tracks", func(t *testing.T) {
		fake := &fakeYouTube{}
		srv := fake.server(t)
		fake.watchPage = watchPage(`[{"baseUrl":"` + srv.URL + `/timedtext?v=1&exp=xpe","languageCode":"en"}]`)
		y := newTestYouTube(t, srv, "")

		_, err := y.FetchTranscript(context.Background(), testID)
		assert.ErrorIs(t, err, ErrNoTranscript)
	})
}

func TestFetchTranscriptBrokenPage(t *testing.T) {
	fake := &fakeYouTube{watchPage: "<html>consent wall</html>"}
	y := newTestYouTube(t, fake.server(t), "")

	_, err := y.FetchTranscript(context.Background(), testID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoTranscript)
}

func TestPickBestTrack(t *testing.T) {
	manualDE := captionTrack{BaseURL: "u1", LanguageCode: "de"}
	autoNL := captionTrack{BaseURL: "u2", LanguageCode: "nl", Kind: "asr"}
	manualNL := captionTrack{BaseURL: "u3", LanguageCode: "nl"}
	enGB := captionTrack{BaseURL: "u4", LanguageCode: "en-GB"}
	poToken := captionTrack{BaseURL: "u5&exp=xpe", LanguageCode: "nl"}

	for _, tc := range []struct {
		name   string
		tracks []captionTrack
		langs  []string
		exp    captionTrack
		expOK  bool
	}{
		{name: "manual preferred", tracks: []captionTrack{autoNL, manualNL}, langs: []string{"nl"}, exp: manualNL, expOK: true},
		{name: "auto preferred", tracks: []captionTrack{manualDE, autoNL}, langs: []string{"nl"}, exp: autoNL, expOK: true},
		{name: "english fallback", tracks: []captionTrack{manualDE, enGB}, langs: []string{"fr"}, exp: enGB, expOK: true},
		{name: "first usable", tracks: []captionTrack{poToken, manualDE}, langs: []string{"nl"}, exp: manualDE, expOK: true},
		{name: "none usable", tracks: []captionTrack{poToken}, langs: []string{"nl"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			act, ok := pickBestTrack(tc.tracks, tc.langs)
			assert.Equal(t, tc.expOK, ok)
			assert.Equal(t, tc.exp, act)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	for _, tc := range []struct {
		in  string
		exp string
	}{
		{in: `{"a":1};rest`, exp: `{"a":1}`},
		{in: `{"a":{"b":"}"}} x`, exp: `{"a":{"b":"}"}}`},
		{in: `{"a":"\\"} tail`, exp: `{"a":"\\"}`},
		{in: `{"a":"\"}"}}`, exp: `{"a":"\"}"}`},
		{in: `[1,2]`, exp: ""},
		{in: `{"open":`, exp: ""},
	} {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.exp, string(extractJSON([]byte(tc.in))))
		})
	}
}

func TestDurations(t *testing.T) {
	for _, tc := range []struct {
		iso string
		exp string
	}{
		{iso: "PT3M33S", exp: "3:33"},
		{iso: "PT1H2M3S", exp: "1:02:03"},
		{iso: "PT45S", exp: "0:45"},
		{iso: "PT2H", exp: "2:00:00"},
		{iso: "P1DT1M", exp: "24:01:00"},
		{iso: "P0D", exp: "0:00"},
		{iso: "garbage", exp: "0:00"},
	} {
		t.Run(tc.iso, func(t *testing.T) {
			assert.Equal(t, tc.exp, FormatDuration(ParseISODuration(tc.iso)))
		})
	}
}
