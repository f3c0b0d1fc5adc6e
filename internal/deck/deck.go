// Package deck imports study material from registered sources: local
// directories or git repositories of plain-text deck files. Sync only ever
// adds cards; nothing is deleted on behalf of a source, so review state for
// material a deck later drops is preserved.
package deck

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/persist/internal/domain"
	"github.com/conorfennell/persist/internal/parser"
	"github.com/conorfennell/persist/internal/storage"
)

// Manager reconciles deck sources into the card store.
type Manager struct {
	db             *storage.DB
	reposDir       string
	cardDelim      string
	frontBackDelim string
}

// NewManager creates a deck manager. reposDir is where git sources are
// cloned; the delimiters are the ones deck files are written with.
func NewManager(db *storage.DB, reposDir, cardDelim, frontBackDelim string) *Manager {
	return &Manager{
		db:             db,
		reposDir:       reposDir,
		cardDelim:      cardDelim,
		frontBackDelim: frontBackDelim,
	}
}

// AddSource registers a new deck source, detecting whether it is a git URL
// or a local path.
func (m *Manager) AddSource(path string) (int64, error) {
	sourceType := "local"
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		sourceType = "git"
	}
	id, err := m.db.InsertSource(path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to add source %s: %w", path, err)
	}
	slog.Info("Registered deck source", "id", id, "type", sourceType, "path", path)
	return id, nil
}

// SyncAll iterates over all sources and imports any new cards. A failing
// source is logged and skipped so one bad deck cannot block the rest.
func (m *Manager) SyncAll() error {
	sources, err := m.db.GetAllSources()
	if err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		slog.Info("No deck sources configured. Add one with --add_source <path/or/url.git>")
		return nil
	}

	if err := os.MkdirAll(m.reposDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create repos directory: %w", err)
	}

	for _, source := range sources {
		slog.Info("Syncing deck source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == "git" {
			localPath, err := gitURLToLocalPath(m.reposDir, source.Path)
			if err != nil {
				slog.Error("Cannot determine local path for git source", "url", source.Path, "error", err)
				continue
			}
			if err := fetchRepo(source.Path, localPath); err != nil {
				slog.Error("Failed to sync git source", "url", source.Path, "error", err)
				continue
			}
			dir = localPath
		}

		added, err := m.importDir(dir)
		if err != nil {
			slog.Error("Failed to import deck source", "path", source.Path, "error", err)
			continue
		}
		if err := m.db.UpdateSourceLastScanned(source.ID); err != nil {
			slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
		}
		slog.Info("Deck source synced", "path", source.Path, "cards_added", added)
	}
	return nil
}

// importDir walks a directory of deck files (.txt or .md) and inserts every
// front/back pair that is not stored yet. New cards are tagged with the deck
// file's name.
func (m *Manager) importDir(dir string) (int, error) {
	added := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".txt" && ext != ".md" {
			return nil
		}

		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read deck file %s: %w", path, err)
		}

		tag := strings.TrimSuffix(d.Name(), ext)
		pairs, dropped := parser.ParseBulk(string(text), m.cardDelim, m.frontBackDelim)
		if dropped > 0 {
			slog.Warn("Dropped malformed segments in deck file", "path", path, "dropped", dropped)
		}

		var newCards []domain.NewCard
		for _, p := range pairs {
			exists, err := m.db.ExistsByContent(p.Front, p.Back)
			if err != nil {
				return fmt.Errorf("failed to check card %q: %w", p.Front, err)
			}
			if exists {
				continue
			}
			newCards = append(newCards, domain.NewCard{Front: p.Front, Back: p.Back, Tags: []string{tag}})
		}

		if len(newCards) > 0 {
			if _, err := m.db.BulkInsert(newCards); err != nil {
				return fmt.Errorf("failed to insert cards from %s: %w", path, err)
			}
			added += len(newCards)
		}
		return nil
	})

	return added, err
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		// scp-style URL: git@host:user/repo.git
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
