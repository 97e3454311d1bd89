// Package fetcher retrieves raw content for a submitted URL: clean article
// text for web pages, downloaded audio for video-hosting URLs.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
	"github.com/JohnTocci/KnowledgeHub/pkg/executor"
)

// ContentFetcher is the interface the pipeline depends on.
type ContentFetcher interface {
	Classify(rawURL string) models.SourceKind
	FetchArticle(ctx context.Context, rawURL string) (*models.ExtractedContent, error)
	FetchAudio(ctx context.Context, rawURL string) (*AudioRef, error)
}

// Options configures a Fetcher.
type Options struct {
	MinContentLength int           // extracted text shorter than this fails
	Timeout          time.Duration // per-request HTTP timeout
	YTDLPPath        string        // yt-dlp binary
	AudioQuality     string        // mp3 bitrate passed to yt-dlp
	UserAgent        string
}

// Fetcher retrieves and extracts content. Article pages go through
// readability with a goquery fallback; video URLs are handled by yt-dlp.
type Fetcher struct {
	opts      Options
	client    *http.Client
	converter *md.Converter
	exec      executor.Executor
}

var _ ContentFetcher = (*Fetcher)(nil)

// New creates a Fetcher with the given options.
func New(opts Options, exec executor.Executor) *Fetcher {
	if opts.MinContentLength <= 0 {
		opts.MinContentLength = 200
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.YTDLPPath == "" {
		opts.YTDLPPath = "yt-dlp"
	}
	if opts.AudioQuality == "" {
		opts.AudioQuality = "192"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "KnowledgeHub/1.0"
	}
	return &Fetcher{
		opts:      opts,
		client:    &http.Client{Timeout: opts.Timeout},
		converter: md.NewConverter("", true, nil),
		exec:      exec,
	}
}

var videoHostRe = regexp.MustCompile(`(?i)(youtube\.com/(watch|shorts)|youtu\.be/)`)

// Classify reports whether rawURL points at a known video host.
func (f *Fetcher) Classify(rawURL string) models.SourceKind {
	if videoHostRe.MatchString(rawURL) {
		return models.SourceVideo
	}
	return models.SourceArticle
}

// FetchArticle retrieves the page and extracts readable text plus
// best-effort title/author/published date.
func (f *Fetcher) FetchArticle(ctx context.Context, rawURL string) (*models.ExtractedContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Fetch(fmt.Errorf("build request for %s: %w", rawURL, err))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.FetchTransient(fmt.Errorf("fetching %s: %w", rawURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.FetchTransient(fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL))
		}
		return nil, apperr.Fetch(fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, apperr.FetchTransient(fmt.Errorf("reading %s: %w", rawURL, err))
	}

	content, err := f.extract(rawURL, body)
	if err != nil {
		return nil, apperr.Fetch(err)
	}
	if len(content.Text) < f.opts.MinContentLength {
		return nil, apperr.Fetch(fmt.Errorf("extracted text too short for %s: %d chars (minimum %d)",
			rawURL, len(content.Text), f.opts.MinContentLength))
	}
	return content, nil
}

// extract runs readability first and falls back to goquery-based stripping
// when readability cannot find an article body.
func (f *Fetcher) extract(rawURL string, body []byte) (*models.ExtractedContent, error) {
	parsedURL, _ := url.Parse(rawURL)

	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return f.extractWithGoquery(body)
	}

	text, convErr := f.converter.ConvertString(article.Content)
	if convErr != nil {
		text = article.TextContent
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return f.extractWithGoquery(body)
	}

	out := &models.ExtractedContent{
		Text:       text,
		Title:      strings.TrimSpace(article.Title),
		Author:     strings.TrimSpace(article.Byline),
		SourceKind: models.SourceArticle,
	}
	if article.PublishedTime != nil {
		out.PublishedAt = article.PublishedTime
	}
	return out, nil
}

// extractWithGoquery strips boilerplate elements and pulls text from the
// most article-shaped container it can find.
func (f *Fetcher) extractWithGoquery(body []byte) (*models.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
			title = strings.TrimSpace(og)
		}
	}
	author := ""
	if a, ok := doc.Find(`meta[name="author"]`).First().Attr("content"); ok {
		author = strings.TrimSpace(a)
	}

	doc.Find("script, style, noscript, iframe, svg, header, footer, nav, aside").Each(
		func(_ int, s *goquery.Selection) { s.Remove() })

	contentSel := doc.Find("article, main, .content, .post-content, .article-content, #content").First()
	if contentSel.Length() == 0 {
		contentSel = doc.Find("body")
	}

	text := strings.TrimSpace(contentSel.Text())
	text = regexp.MustCompile(`[ \t]+`).ReplaceAllString(text, " ")
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")

	return &models.ExtractedContent{
		Text:       text,
		Title:      title,
		Author:     author,
		SourceKind: models.SourceArticle,
	}, nil
}
