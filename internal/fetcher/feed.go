package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
)

// FeedEntry is one item advertised by a remote feed.
type FeedEntry struct {
	Title string
	URL   string
}

// FeedSnapshot is the parsed state of a remote feed at fetch time.
type FeedSnapshot struct {
	Title   string
	Entries []FeedEntry
}

// rssDoc covers RSS 2.0 documents.
type rssDoc struct {
	Channel struct {
		Title string `xml:"title"`
		Items []struct {
			Title string `xml:"title"`
			Link  string `xml:"link"`
		} `xml:"item"`
	} `xml:"channel"`
}

// atomDoc covers Atom documents. Atom entries may carry several <link>
// elements; the alternate (or rel-less) one points at the content.
type atomDoc struct {
	Title   string `xml:"title"`
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Rel  string `xml:"rel,attr"`
			Href string `xml:"href,attr"`
		} `xml:"link"`
	} `xml:"entry"`
}

// FetchFeed retrieves an RSS 2.0 or Atom feed and returns its entries in
// document order.
func (f *Fetcher) FetchFeed(ctx context.Context, rawURL string) (*FeedSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Fetch(fmt.Errorf("build request for %s: %w", rawURL, err))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.FetchTransient(fmt.Errorf("fetching feed %s: %w", rawURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.FetchTransient(fmt.Errorf("HTTP %d for feed %s", resp.StatusCode, rawURL))
		}
		return nil, apperr.Fetch(fmt.Errorf("HTTP %d for feed %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, apperr.FetchTransient(fmt.Errorf("reading feed %s: %w", rawURL, err))
	}

	snap, err := parseFeed(body)
	if err != nil {
		return nil, apperr.Fetch(fmt.Errorf("feed %s: %w", rawURL, err))
	}
	return snap, nil
}

// parseFeed dispatches on the document's root element.
func parseFeed(body []byte) (*FeedSnapshot, error) {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse feed: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "rss":
			var doc rssDoc
			if err := dec.DecodeElement(&doc, &start); err != nil {
				return nil, fmt.Errorf("parse rss: %w", err)
			}
			snap := &FeedSnapshot{Title: strings.TrimSpace(doc.Channel.Title)}
			for _, it := range doc.Channel.Items {
				link := strings.TrimSpace(it.Link)
				if link == "" {
					continue
				}
				snap.Entries = append(snap.Entries, FeedEntry{
					Title: strings.TrimSpace(it.Title),
					URL:   link,
				})
			}
			return snap, nil
		case "feed":
			var doc atomDoc
			if err := dec.DecodeElement(&doc, &start); err != nil {
				return nil, fmt.Errorf("parse atom: %w", err)
			}
			snap := &FeedSnapshot{Title: strings.TrimSpace(doc.Title)}
			for _, e := range doc.Entries {
				link := ""
				for _, l := range e.Links {
					if l.Rel == "" || l.Rel == "alternate" {
						link = strings.TrimSpace(l.Href)
						break
					}
				}
				if link == "" {
					continue
				}
				snap.Entries = append(snap.Entries, FeedEntry{
					Title: strings.TrimSpace(e.Title),
					URL:   link,
				})
			}
			return snap, nil
		default:
			return nil, fmt.Errorf("unsupported feed root element %q", start.Name.Local)
		}
	}
}
