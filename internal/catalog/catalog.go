package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/match"
	"gopkg.in/yaml.v3"
)

// Song is one playable catalog entry.
type Song struct {
	Title   string   `yaml:"title"`
	Artist  string   `yaml:"artist,omitempty"`
	Path    string   `yaml:"path,omitempty"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Label is the display name spoken back to the user.
func (s Song) Label() string {
	if s.Artist == "" {
		return s.Title
	}
	return s.Title + " by " + s.Artist
}

// Target is what the player receives.
func (s Song) Target() string {
	if s.Path != "" {
		return s.Path
	}
	return s.Label()
}

// File is the on-disk song list.
type File struct {
	Songs []Song `yaml:"songs"`
}

// Catalog is an immutable, ordered song list with matcher candidates.
type Catalog struct {
	songs      []Song
	candidates []match.Candidate
}

func New(songs []Song) *Catalog {
	c := &Catalog{songs: append([]Song(nil), songs...)}
	c.candidates = make([]match.Candidate, len(c.songs))
	for i, s := range c.songs {
		c.candidates[i] = candidateFor(s)
	}
	return c
}

func candidateFor(s Song) match.Candidate {
	variants := []string{}
	if s.Artist != "" {
		variants = append(variants, s.Artist+" "+s.Title)
	}
	if s.Path != "" {
		variants = append(variants, stem(s.Path))
	}
	variants = append(variants, s.Aliases...)
	return match.NewCandidate(s.Title, variants...)
}

func (c *Catalog) Len() int { return len(c.songs) }

func (c *Catalog) Songs() []Song { return append([]Song(nil), c.songs...) }

// Candidates returns matcher candidates in insertion order.
func (c *Catalog) Candidates() []match.Candidate { return c.candidates }

// Song returns the entry at index.
func (c *Catalog) Song(index int) (Song, bool) {
	if index < 0 || index >= len(c.songs) {
		return Song{}, false
	}
	return c.songs[index], true
}

// Load builds the catalog from the songs file when configured, otherwise by
// scanning the music directory. Neither configured yields an empty catalog.
func Load(cfg config.CatalogConfig, log *slog.Logger) (*Catalog, error) {
	log = log.With(slog.String("component", "catalog"))
	var (
		songs []Song
		err   error
	)
	switch {
	case cfg.SongsFile != "":
		songs, err = LoadFile(cfg.SongsFile)
		if err != nil {
			return nil, fmt.Errorf("load songs file: %w", err)
		}
	case cfg.MusicDir != "":
		songs, err = Scan(cfg.MusicDir, cfg.Extensions)
		if err != nil {
			return nil, fmt.Errorf("scan music dir: %w", err)
		}
	default:
		log.Warn("no music catalog configured")
		return New(nil), nil
	}
	if len(songs) == 0 {
		log.Warn("music catalog is empty")
	} else {
		log.Info("music catalog loaded", slog.Int("songs", len(songs)))
	}
	return New(songs), nil
}

// LoadFile reads a YAML song list.
func LoadFile(path string) ([]Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for i, s := range f.Songs {
		if strings.TrimSpace(s.Title) == "" {
			return nil, fmt.Errorf("songs[%d]: title is required", i)
		}
	}
	return f.Songs, nil
}

// Scan walks dir and turns every audio file into a song. File stems of the
// form "Artist - Title" are split.
func Scan(dir string, extensions []string) ([]Song, error) {
	if dir == "" {
		return nil, errors.New("music directory not configured")
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	var songs []Song
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		song := Song{Title: stem(path), Path: filepath.ToSlash(rel)}
		if artist, title, ok := strings.Cut(song.Title, " - "); ok && strings.TrimSpace(title) != "" {
			song.Artist = strings.TrimSpace(artist)
			song.Title = strings.TrimSpace(title)
		}
		songs = append(songs, song)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return songs, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
