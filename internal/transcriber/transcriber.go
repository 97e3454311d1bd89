// Package transcriber converts downloaded audio into plain text using a
// local whisper.cpp binary.
package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/pkg/executor"
)

// ModelSize selects the accuracy/speed trade-off.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// ParseModelSize validates a configured model size string.
func ParseModelSize(s string) (ModelSize, error) {
	switch ModelSize(s) {
	case ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge:
		return ModelSize(s), nil
	default:
		return "", fmt.Errorf("transcriber: unknown model size %q", s)
	}
}

// Transcript is a language-tagged plain-text transcript.
type Transcript struct {
	Text     string
	Language string
}

// Transcriber is the interface the pipeline depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, size ModelSize) (*Transcript, error)
}

// Options configures a Whisper transcriber.
type Options struct {
	BinaryPath string // whisper.cpp main binary
	ModelDir   string // directory holding ggml-<size>.bin models
	Language   string // forced language, or "auto"
	Threads    int
}

// Whisper shells out to whisper.cpp and parses its SRT output. Whisper
// emits segments strictly in chronological order, so concatenation is
// unambiguous even for chunked long audio.
type Whisper struct {
	opts Options
	exec executor.Executor
}

var _ Transcriber = (*Whisper)(nil)

// New creates a Whisper transcriber.
func New(opts Options, exec executor.Executor) *Whisper {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "whisper"
	}
	if opts.Language == "" {
		opts.Language = "auto"
	}
	if opts.Threads <= 0 {
		opts.Threads = 4
	}
	return &Whisper{opts: opts, exec: exec}
}

// Transcribe runs whisper.cpp over the audio file and returns the
// concatenated transcript.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string, size ModelSize) (*Transcript, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, apperr.Transcription(fmt.Errorf("audio unreadable: %w", err))
	}

	modelPath := filepath.Join(w.opts.ModelDir, fmt.Sprintf("ggml-%s.bin", size))
	if _, err := os.Stat(modelPath); err != nil {
		return nil, apperr.Transcription(fmt.Errorf("model %s not found at %s: %w", size, modelPath, err))
	}

	outputPrefix := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))

	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-osrt",
		"-l", w.opts.Language,
		"-t", fmt.Sprintf("%d", w.opts.Threads),
		"--output-file", outputPrefix,
	}

	if _, err := w.exec.Execute(ctx, w.opts.BinaryPath, args...); err != nil {
		return nil, apperr.Transcription(fmt.Errorf("whisper transcribe: %w", err))
	}

	srtPath := outputPrefix + ".srt"
	data, err := os.ReadFile(srtPath)
	if err != nil {
		return nil, apperr.Transcription(fmt.Errorf("read transcript %s: %w", srtPath, err))
	}
	defer os.Remove(srtPath)

	text, err := ParseSRT(string(data))
	if err != nil {
		return nil, apperr.Transcription(fmt.Errorf("parse transcript: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Transcription(fmt.Errorf("empty transcript for %s", audioPath))
	}

	// whisper reports the auto-detected language only on its log stream,
	// which is not captured here. An auto run therefore yields an untagged
	// transcript; only an operator-forced language is trusted as a tag.
	lang := w.opts.Language
	if lang == "auto" {
		lang = ""
	}
	return &Transcript{Text: text, Language: lang}, nil
}
