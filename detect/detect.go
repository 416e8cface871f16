// Package detect finds YouTube links in free text.
package detect

import (
	"regexp"
	"strings"

	"ewintr.nl/vidqa/model"
)

// urlRe matches the supported URL shapes. The token after the path prefix runs
// until '&', whitespace, '?' or '#'.
var urlRe = regexp.MustCompile(`https?://(?:www\.|m\.)?(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/v/|youtube\.com/shorts/|youtube\.com/live/)([^&\s?#]+)`)

var (
	idPrefixRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}`)
	idRunRe    = regexp.MustCompile(`^[A-Za-z0-9_-]+`)
)

type Result struct {
	URLs       []string        `json:"urls"`
	VideoIDs   []model.VideoID `json:"videoIds"`
	HasContent bool            `json:"hasYouTubeContent"`
}

// Detect returns every YouTube URL in text together with the video id it
// references, in order of appearance. Duplicates are kept.
func Detect(text string) Result {
	res := Result{URLs: []string{}, VideoIDs: []model.VideoID{}}

	for _, m := range urlRe.FindAllStringSubmatch(text, -1) {
		id, ok := canonical(m[1])
		if !ok {
			continue
		}
		// drop trailing punctuation such as ")." that belongs to the prose
		url := m[0][:len(m[0])-len(m[1])+len(idRunRe.FindString(m[1]))]
		res.URLs = append(res.URLs, url)
		res.VideoIDs = append(res.VideoIDs, id)
	}

	if len(res.VideoIDs) == 0 {
		if trimmed := strings.TrimSpace(text); model.ValidVideoID(trimmed) {
			res.VideoIDs = append(res.VideoIDs, model.VideoID(trimmed))
		}
	}

	res.HasContent = len(res.VideoIDs) > 0
	return res
}

// VideoID normalises a single argument that is either a supported URL or a
// bare video id.
func VideoID(s string) (model.VideoID, bool) {
	s = strings.TrimSpace(s)
	if model.ValidVideoID(s) {
		return model.VideoID(s), true
	}
	if m := urlRe.FindStringSubmatch(s); m != nil {
		return canonical(m[1])
	}
	return "", false
}

// WatchURL returns the canonical watch page URL of a video.
func WatchURL(id model.VideoID) string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

func canonical(token string) (model.VideoID, bool) {
	id := idPrefixRe.FindString(token)
	if id == "" {
		return "", false
	}
	return model.VideoID(id), true
}
