package model

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

type VideoID string

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidVideoID reports whether s has the shape of a canonical YouTube video id.
func ValidVideoID(s string) bool {
	return videoIDRe.MatchString(s)
}

type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Sentinel values of a degraded metadata placeholder.
const (
	UnknownChannel = "Unknown Channel"
	UnknownDate    = "Unknown Date"
)

type Metadata struct {
	VideoID       VideoID `json:"videoId"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Duration      string  `json:"duration"`
	ChannelName   string  `json:"channelName"`
	ThumbnailURL  string  `json:"thumbnail"`
	PublishedDate string  `json:"publishedDate"`
	ViewCount     string  `json:"viewCount"`
	Degraded      bool    `json:"degraded,omitempty"`
}

// Placeholder builds the metadata record served when the provider cannot be
// queried. It always carries the id in the title so callers can render it.
func Placeholder(id VideoID) *Metadata {
	return &Metadata{
		VideoID:       id,
		Title:         "YouTube video " + string(id),
		Duration:      "0:00",
		ChannelName:   UnknownChannel,
		ThumbnailURL:  "https://i.ytimg.com/vi/" + string(id) + "/hqdefault.jpg",
		PublishedDate: UnknownDate,
		ViewCount:     "0",
		Degraded:      true,
	}
}

type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// TranscriptEntry is the cached outcome of a transcript lookup. Available is
// false when the video is known to have no usable captions.
type TranscriptEntry struct {
	Available  bool        `json:"available"`
	Transcript *Transcript `json:"transcript,omitempty"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role             Role   `json:"role"`
	Text             string `json:"content"`
	RelatedTimestamp *int   `json:"relatedTimestamp,omitempty"`
}

// Video is the archived record of a processed video.
type Video struct {
	ID            uuid.UUID
	YoutubeID     VideoID
	Status        ProcessingStatus
	Title         string
	ChannelName   string
	Duration      string
	PublishedDate string
	HasTranscript bool
	Degraded      bool
	Summary       string
	UpdatedAt     time.Time
}

// RecordID is the stable archive and index id of a YouTube video.
func RecordID(id VideoID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://www.youtube.com/watch?v="+string(id)))
}

func NewVideo(md *Metadata, hasTranscript bool) *Video {
	return &Video{
		ID:            RecordID(md.VideoID),
		YoutubeID:     md.VideoID,
		Status:        StatusCompleted,
		Title:         md.Title,
		ChannelName:   md.ChannelName,
		Duration:      md.Duration,
		PublishedDate: md.PublishedDate,
		HasTranscript: hasTranscript,
		Degraded:      md.Degraded,
		UpdatedAt:     time.Now().UTC(),
	}
}
