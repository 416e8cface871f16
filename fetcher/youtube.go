package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ewintr.nl/vidqa/model"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const defaultWatchURL = "https://www.youtube.com/watch?v="

type YouTubeInfo struct {
	APIKey string
	// RPS limits calls to the Data API and the watch page.
	RPS   float64
	Langs []string
	// Endpoint and WatchURL override the Google API base path and the
	// watch page prefix.
	Endpoint   string
	WatchURL   string
	HTTPClient *http.Client
}

// YouTube fetches metadata through the Data API and transcripts from the
// captions published on the watch page.
type YouTube struct {
	service  *youtube.Service
	client   *http.Client
	limiter  *rate.Limiter
	langs    []string
	watchURL string
	logger   *slog.Logger
}

func NewYouTube(ctx context.Context, info YouTubeInfo, logger *slog.Logger) (*YouTube, error) {
	y := &YouTube{
		client:   info.HTTPClient,
		limiter:  rate.NewLimiter(rate.Limit(info.RPS), 1),
		langs:    info.Langs,
		watchURL: info.WatchURL,
		logger:   logger,
	}
	if y.client == nil {
		y.client = &http.Client{Timeout: 15 * time.Second}
	}
	if info.RPS <= 0 {
		y.limiter = rate.NewLimiter(5, 1)
	}
	if len(y.langs) == 0 {
		y.langs = []string{"en"}
	}
	if y.watchURL == "" {
		y.watchURL = defaultWatchURL
	}

	if info.APIKey == "" {
		logger.Warn("no youtube api key configured, metadata will be placeholders")
		return y, nil
	}
	opts := []option.ClientOption{option.WithAPIKey(info.APIKey)}
	if info.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(info.Endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create youtube service: %w", err)
	}
	y.service = svc

	return y, nil
}

func (y *YouTube) FetchMetadata(ctx context.Context, id model.VideoID) (*model.Metadata, error) {
	if y.service == nil {
		y.logger.Warn("serving placeholder metadata", slog.String("video", string(id)), slog.String("reason", "no api key"))
		return model.Placeholder(id), nil
	}
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := y.service.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(string(id)).
		Context(ctx).
		Do()
	if err != nil {
		if reason, ok := degraded(err); ok {
			y.logger.Warn("serving placeholder metadata", slog.String("video", string(id)), slog.String("reason", reason))
			return model.Placeholder(id), nil
		}
		return nil, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrNotFound
	}

	return toMetadata(id, resp.Items[0]), nil
}

func toMetadata(id model.VideoID, item *youtube.Video) *model.Metadata {
	md := &model.Metadata{
		VideoID:       id,
		Title:         "Unknown Title",
		Duration:      "0:00",
		ChannelName:   model.UnknownChannel,
		PublishedDate: model.UnknownDate,
		ViewCount:     "0",
	}
	if s := item.Snippet; s != nil {
		if s.Title != "" {
			md.Title = s.Title
		}
		md.Description = s.Description
		if s.ChannelTitle != "" {
			md.ChannelName = s.ChannelTitle
		}
		if published, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
			md.PublishedDate = published.Format("January 2, 2006")
		}
		md.ThumbnailURL = bestThumbnail(s.Thumbnails)
	}
	if cd := item.ContentDetails; cd != nil {
		md.Duration = FormatDuration(ParseISODuration(cd.Duration))
	}
	if st := item.Statistics; st != nil {
		md.ViewCount = strconv.FormatUint(st.ViewCount, 10)
	}

	return md
}

func bestThumbnail(td *youtube.ThumbnailDetails) string {
	if td == nil {
		return ""
	}
	for _, t := range []*youtube.Thumbnail{td.Maxres, td.Standard, td.High, td.Medium, td.Default} {
		if t != nil && t.Url != "" {
			return t.Url
		}
	}
	return ""
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration converts an ISO 8601 duration like PT1H2M3S to seconds.
// Unparseable input yields 0.
func ParseISODuration(s string) int {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * mult
	}
	return total
}

// FormatDuration renders seconds as H:MM:SS, or M:SS below one hour.
func FormatDuration(seconds int) string {
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var degradedReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"keyInvalid":            true,
	"keyExpired":            true,
	"accessNotConfigured":   true,
	"ipRefererBlocked":      true,
	"forbidden":             true,
}

// degraded reports whether err is a quota or credential failure, in which
// case the caller serves a placeholder instead of failing.
func degraded(err error) (string, bool) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return "", false
	}
	for _, item := range gerr.Errors {
		if degradedReasons[item.Reason] {
			return item.Reason, true
		}
	}
	switch gerr.Code {
	case http.StatusTooManyRequests:
		return "rate limited", true
	case http.StatusUnauthorized, http.StatusForbidden:
		return "unauthorized", true
	case http.StatusBadRequest:
		if strings.Contains(gerr.Message, "API key") {
			return "invalid api key", true
		}
	}
	return "", false
}
