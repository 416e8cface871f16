package process

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ewintr.nl/vidqa/model"
)

const maxDescriptionChars = 500

const summarySystemPrompt = `You are an assistant that summarizes YouTube videos for someone who has not watched them.
Use only the information the user gives you. Do not add introductory sentences like "This video is about".
Answer in markdown with exactly these sections:
## Overview
A short paragraph on what the video is about.
## Key Points
A bulleted list of the most important points.
## Details
Notable specifics, examples or arguments, with m:ss timestamps when the transcript shows them.
## Conclusion
The takeaway of the video in one or two sentences.`

const reducedNote = `No transcript is available for this video. Base the summary on the metadata only, keep it short and state in the overview that it is based on the title and description.`

const qaSystemPrompt = `You are an assistant that answers questions about one YouTube video.
Rules:
1. Answer only from the video information below. Do not use outside knowledge.
2. If the answer is not in the video information, say so plainly.
3. When the answer refers to a moment in the video, include its timestamp as m:ss.
4. Keep answers short and answer in the language of the question.

Video information:
`

func summaryPrompt(md *model.Metadata, tr *model.Transcript, maxChars int) string {
	var b strings.Builder
	writeMetadata(&b, md, 0)
	if tr == nil {
		b.WriteString("\n")
		b.WriteString(reducedNote)
		return b.String()
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(truncate(tr.Text, maxChars))
	return b.String()
}

func qaContext(md *model.Metadata, tr *model.Transcript, summary string, maxChars int) string {
	var b strings.Builder
	b.WriteString(qaSystemPrompt)
	writeMetadata(&b, md, maxDescriptionChars)
	if summary != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", summary)
	}
	if tr != nil && len(tr.Segments) > 0 {
		b.WriteString("\nTranscript:\n")
		b.WriteString(transcriptLines(tr.Segments, maxChars))
	}
	return b.String()
}

// writeMetadata writes the metadata fields. A descLimit of zero keeps the
// full description.
func writeMetadata(b *strings.Builder, md *model.Metadata, descLimit int) {
	desc := md.Description
	if descLimit > 0 {
		desc = truncate(desc, descLimit)
	}
	fmt.Fprintf(b, "Title: %s\n", md.Title)
	fmt.Fprintf(b, "Channel: %s\n", md.ChannelName)
	fmt.Fprintf(b, "Duration: %s\n", md.Duration)
	fmt.Fprintf(b, "Published: %s\n", md.PublishedDate)
	fmt.Fprintf(b, "Description: %s\n", desc)
}

// transcriptLines renders segments as "[m:ss] text" lines, stopping before
// maxChars is exceeded.
func transcriptLines(segments []model.Segment, maxChars int) string {
	var b strings.Builder
	for _, s := range segments {
		line := fmt.Sprintf("[%s] %s\n", FormatTimestamp(int(s.Start)), s.Text)
		if maxChars > 0 && b.Len()+len(line) > maxChars {
			b.WriteString("[transcript truncated]\n")
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

// FormatTimestamp renders seconds as m:ss. Minutes are not folded into hours.
func FormatTimestamp(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

var timestampRe = regexp.MustCompile(`\b(?:(\d{1,2}):)?(\d{1,3}):(\d{2})\b`)

// ExtractTimestamp returns the first m:ss or h:mm:ss timestamp in text as
// seconds.
func ExtractTimestamp(text string) *int {
	for _, m := range timestampRe.FindAllStringSubmatch(text, -1) {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.Atoi(m[3])
		if secs >= 60 || (m[1] != "" && mins >= 60) {
			continue
		}
		total := h*3600 + mins*60 + secs
		return &total
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
