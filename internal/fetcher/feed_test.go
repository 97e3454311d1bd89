package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
)

const rssXML = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <item><title>First Post</title><link>https://example.com/first</link></item>
    <item><title>Second Post</title><link>https://example.com/second</link></item>
    <item><title>No Link</title></item>
  </channel>
</rss>`

const atomXML = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Atom</title>
  <entry>
    <title>Atom Post</title>
    <link rel="self" href="https://example.com/entry.atom"/>
    <link rel="alternate" href="https://example.com/entry"/>
  </entry>
</feed>`

func TestFetchFeedRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssXML)
	}))
	defer srv.Close()

	f := newTestFetcher(10)
	snap, err := f.FetchFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchFeed: %v", err)
	}
	if snap.Title != "Example Blog" {
		t.Errorf("Title = %q", snap.Title)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("entries = %+v, want 2 (linkless item skipped)", snap.Entries)
	}
	if snap.Entries[0].URL != "https://example.com/first" || snap.Entries[0].Title != "First Post" {
		t.Errorf("first entry = %+v", snap.Entries[0])
	}
}

func TestFetchFeedAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, atomXML)
	}))
	defer srv.Close()

	f := newTestFetcher(10)
	snap, err := f.FetchFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchFeed: %v", err)
	}
	if snap.Title != "Example Atom" {
		t.Errorf("Title = %q", snap.Title)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].URL != "https://example.com/entry" {
		t.Errorf("entries = %+v, want the alternate link", snap.Entries)
	}
}

func TestFetchFeedRejectsNonFeedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>not a feed</body></html>")
	}))
	defer srv.Close()

	f := newTestFetcher(10)
	if _, err := f.FetchFeed(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-feed document")
	}
}

func TestFetchFeedStatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, true},
		{http.StatusTooManyRequests, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		f := newTestFetcher(10)
		_, err := f.FetchFeed(context.Background(), srv.URL)
		srv.Close()
		if err == nil {
			t.Errorf("status %d: expected error", tc.status)
			continue
		}
		if got := apperr.IsTransient(err); got != tc.transient {
			t.Errorf("status %d: transient = %v, want %v", tc.status, got, tc.transient)
		}
	}
}
