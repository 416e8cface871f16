package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"ewintr.nl/vidqa/model"
	"golang.org/x/net/html"
)

// ErrNoTranscript means the video has no captions that can be retrieved.
var ErrNoTranscript = errors.New("no transcript available")

type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, id model.VideoID) (*model.Transcript, error)
}

const (
	playerResponseMarker = "ytInitialPlayerResponse = "
	browserUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	maxWatchPageSize     = 6 * 1024 * 1024
	maxTimedTextSize     = 2 * 1024 * 1024
)

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" is auto-generated
}

type timedText struct {
	Lines []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

func (y *YouTube) FetchTranscript(ctx context.Context, id model.VideoID) (*model.Transcript, error) {
	hasCaptions, err := y.hasCaptions(ctx, id)
	if err != nil {
		return nil, err
	}
	if !hasCaptions {
		return nil, ErrNoTranscript
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := y.get(ctx, y.watchURL+string(id), maxWatchPageSize)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	idx := bytes.Index(body, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(playerResponseMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}
	var pr playerResponse
	if err := json.Unmarshal(jsonData, &pr); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	if pr.Captions == nil || len(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		return nil, ErrNoTranscript
	}
	track, ok := pickBestTrack(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, y.langs)
	if !ok {
		return nil, fmt.Errorf("%w: all caption tracks require a po token", ErrNoTranscript)
	}

	return y.fetchTimedText(ctx, track.BaseURL)
}

// hasCaptions asks the Data API whether any caption track exists. Without an
// api key, or when the key is not allowed to list captions, the answer is
// assumed to be yes and the watch page decides.
func (y *YouTube) hasCaptions(ctx context.Context, id model.VideoID) (bool, error) {
	if y.service == nil {
		return true, nil
	}
	if err := y.limiter.Wait(ctx); err != nil {
		return false, err
	}
	resp, err := y.service.Captions.List([]string{"snippet"}, string(id)).Context(ctx).Do()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		y.logger.Debug("captions check skipped", slog.String("video", string(id)), slog.Any("error", err))
		return true, nil
	}
	return len(resp.Items) > 0, nil
}

func (y *YouTube) fetchTimedText(ctx context.Context, baseURL string) (*model.Transcript, error) {
	body, err := y.get(ctx, baseURL, maxTimedTextSize)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	tr := &model.Transcript{Segments: make([]model.Segment, 0, len(tt.Lines))}
	texts := make([]string, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := strings.Join(strings.Fields(html.UnescapeString(line.Text)), " ")
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(line.Start, 64)
		dur, _ := strconv.ParseFloat(line.Dur, 64)
		tr.Segments = append(tr.Segments, model.Segment{Text: text, Start: start, Duration: dur})
		texts = append(texts, text)
	}
	if len(tr.Segments) == 0 {
		return nil, ErrNoTranscript
	}
	tr.Text = strings.Join(texts, " ")

	return tr, nil
}

func (y *YouTube) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// needsPoToken reports whether a caption track URL only works in a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack prefers a manual track in one of langs, then an automatic one,
// then any English track, then the first usable track.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// extractJSON returns the balanced JSON object at the start of b.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		switch {
		case inStr && escaped:
			escaped = false
		case inStr && c == '\\':
			escaped = true
		case inStr && c == '"':
			inStr = false
		case inStr:
		case c == '"':
			inStr = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
