// Package page fetches third-party web pages for citation previews and
// returns them sanitized, as HTML or markdown.
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
)

var (
	ErrInvalidURL  = errors.New("invalid url")
	ErrEmptyPage   = errors.New("empty response")
	ErrBlockedHost = errors.New("address not allowed")
)

// StatusError is returned when the upstream server answers with an error
// status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.Code)
}

type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	HTML     string `json:"html,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

const (
	maxRedirects = 5
	maxBodySize  = 5 * 1024 * 1024
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type Fetcher struct {
	client       *http.Client
	allowPrivate bool
	logger       *slog.Logger
}

type Option func(*Fetcher)

// AllowPrivateAddresses lets the fetcher connect to loopback, private and
// link-local addresses, which are refused by default.
func AllowPrivateAddresses() Option {
	return func(f *Fetcher) {
		f.allowPrivate = true
	}
}

func NewFetcher(timeout time.Duration, logger *slog.Logger, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	f := &Fetcher{logger: logger}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !f.allowPrivate {
		dialer.Control = refusePrivate
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	f.client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return f
}

// refusePrivate runs after name resolution, so redirects and DNS names that
// point inwards are refused as well.
func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified() || ip.IsInterfaceLocalMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedHost, ip)
	}
	return nil
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string, format Format) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	body, err := f.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyPage
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	Sanitize(doc)

	page := &Page{
		URL:   u.String(),
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	base := fmt.Sprintf("%s://%s/", u.Scheme, u.Host)

	if format == FormatMarkdown {
		md, err := toMarkdown(doc, base)
		if err != nil {
			return nil, err
		}
		page.Markdown = md
		return page, nil
	}

	decorate(doc, base)
	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	page.HTML = html

	return page, nil
}

func (f *Fetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		f.logger.Info("upstream page error", slog.String("url", u), slog.Int("status", resp.StatusCode))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	return body, nil
}

func toMarkdown(doc *goquery.Document, base string) (string, error) {
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	md, err := htmltomarkdown.ConvertNode(root.Nodes[0], converter.WithDomain(base))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return strings.TrimSpace(string(md)), nil
}
