package store

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/JohnTocci/KnowledgeHub/internal/models"
	"github.com/JohnTocci/KnowledgeHub/internal/parser"
	"github.com/JohnTocci/KnowledgeHub/internal/vault"
)

// Reconcile brings the record table in line with the vault directory. The
// vault file is the source of truth: files without a row get a row rebuilt
// from their frontmatter, and rows whose file is gone are removed. Running
// it twice is a no-op, which is what makes a crash between note write and
// record insert recoverable.
func Reconcile(db *DB, store vault.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	recorded, err := db.AllPaths()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if _, ok := recorded[m.Path]; ok {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("reconcile: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := insertFromFile(db, m.Path, data); err != nil {
			logger.Warn("reconcile: insert failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("reconcile: recorded", slog.String("path", m.Path))
		}
	}

	// Remove rows whose files are gone.
	for p := range recorded {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteByPath(p); err != nil {
				logger.Warn("reconcile: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("reconcile: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// insertFromFile rebuilds a record row from a rendered note file.
func insertFromFile(db *DB, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}

	title := res.Title
	if title == "" {
		title = strings.TrimSuffix(path, ".md")
	}
	kind := models.SourceKind(res.SourceKind)
	if kind != models.SourceVideo {
		kind = models.SourceArticle
	}

	rec := &models.Record{
		URL:        res.SourceURL,
		Title:      title,
		Tags:       res.Tags,
		Summary:    excerpt(res.Body, 500),
		FilePath:   path,
		SourceKind: kind,
		WordCount:  wordCount(res.Body),
		CreatedAt:  res.CreatedAt,
	}
	_, err = db.Insert(rec)
	return err
}

func excerpt(body string, max int) string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || line == "---" {
			continue
		}
		lines = append(lines, line)
	}
	out := strings.Join(lines, " ")
	if len(out) > max {
		for max > 0 && !utf8.RuneStart(out[max]) {
			max--
		}
		out = out[:max]
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
