package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
)

// AudioRef is a handle to a downloaded audio file. Cleanup removes the
// backing temp directory and must be called by the pipeline once the
// transcript has been produced (or the run has failed).
type AudioRef struct {
	Path    string
	Title   string
	Channel string

	Uploaded *time.Time

	dir string
}

// Cleanup removes the temp directory holding the audio file. Safe to call
// more than once.
func (a *AudioRef) Cleanup() {
	if a.dir != "" {
		_ = os.RemoveAll(a.dir)
		a.dir = ""
	}
}

// ytdlpInfo is the subset of yt-dlp's --dump-single-json output we use.
type ytdlpInfo struct {
	Title      string `json:"title"`
	Channel    string `json:"channel"`
	Uploader   string `json:"uploader"`
	UploadDate string `json:"upload_date"` // YYYYMMDD
	AgeLimit   int    `json:"age_limit"`
}

// FetchAudio resolves metadata for a video URL and downloads its best audio
// stream as mp3 into a temp directory.
func (f *Fetcher) FetchAudio(ctx context.Context, rawURL string) (*AudioRef, error) {
	infoOut, err := f.exec.Execute(ctx, f.opts.YTDLPPath,
		"--dump-single-json", "--no-download", "--no-playlist", rawURL)
	if err != nil {
		return nil, classifyYTDLPError(rawURL, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(infoOut), &info); err != nil {
		return nil, apperr.Fetch(fmt.Errorf("parse yt-dlp metadata for %s: %w", rawURL, err))
	}

	dir, err := os.MkdirTemp("", "khub-audio-*")
	if err != nil {
		return nil, apperr.Fetch(fmt.Errorf("create temp dir: %w", err))
	}

	outTemplate := filepath.Join(dir, "audio.%(ext)s")
	_, err = f.exec.Execute(ctx, f.opts.YTDLPPath,
		"-f", "bestaudio/best",
		"-x", "--audio-format", "mp3",
		"--audio-quality", f.opts.AudioQuality,
		"--no-playlist",
		"-o", outTemplate,
		rawURL)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, classifyYTDLPError(rawURL, err)
	}

	audioPath := filepath.Join(dir, "audio.mp3")
	if _, err := os.Stat(audioPath); err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperr.Fetch(fmt.Errorf("no audio stream downloaded for %s: %w", rawURL, err))
	}

	ref := &AudioRef{
		Path:    audioPath,
		Title:   info.Title,
		Channel: info.Channel,
		dir:     dir,
	}
	if ref.Channel == "" {
		ref.Channel = info.Uploader
	}
	if t, parseErr := time.Parse("20060102", info.UploadDate); parseErr == nil {
		ref.Uploaded = &t
	}
	return ref, nil
}

// classifyYTDLPError maps yt-dlp failures onto the fetch taxonomy:
// restriction errors are terminal, everything else is treated as a
// transient network problem.
func classifyYTDLPError(rawURL string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, terminal := range []string{
		"age", "sign in to confirm", "not available in your country",
		"region", "private video", "video unavailable",
	} {
		if strings.Contains(msg, terminal) {
			return apperr.Fetch(fmt.Errorf("video restricted for %s: %w", rawURL, err))
		}
	}
	return apperr.FetchTransient(fmt.Errorf("downloading audio for %s: %w", rawURL, err))
}
