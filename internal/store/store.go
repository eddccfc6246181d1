// Package store implements the on-disk layout, discovery, atomic write
// discipline, and listing described in spec §4.3.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/mwaldstein/qipu/internal/config"
	"github.com/mwaldstein/qipu/internal/debug"
	"github.com/mwaldstein/qipu/internal/note"
)

// ErrNotFound is returned by Discover when no store directory is found
// walking up to the filesystem root (§7 StoreNotFound).
var ErrNotFound = errors.New("store: no .qipu or qipu directory found")

// ErrInvalid is returned when a directory looks like a store root but is
// missing required structure (§7 InvalidStore).
var ErrInvalid = errors.New("store: invalid store layout")

// Directory names under the store root (§2).
const (
	DirNotes       = "notes"
	DirMOCs        = "mocs"
	DirAttachments = "attachments"
	DirTemplates   = "templates"
	DirCache       = ".cache"
	DirWorkspaces  = "workspaces"
	ConfigFile     = "config.toml"
	DBFile         = "qipu.db"
	LockFile       = ".lock"
)

// candidateDirNames are tried in order by Discover, outermost first.
var candidateDirNames = []string{".qipu", "qipu"}

// Store represents one on-disk qipu store rooted at Root.
type Store struct {
	Root   string
	Config *config.Config
	lock   *flock.Flock
}

// Discover walks upward from start looking for ./.qipu/ then ./qipu/,
// stopping at the filesystem root (§4.3).
func Discover(start string) (*Store, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("store: resolving %s: %w", start, err)
	}
	for {
		for _, name := range candidateDirNames {
			candidate := filepath.Join(dir, name)
			if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
				return Open(candidate)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNotFound
		}
		dir = parent
	}
}

// Open loads an existing store at root without walking.
func Open(root string) (*Store, error) {
	cfgPath := filepath.Join(root, ConfigFile)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	for _, dir := range []string{DirNotes, DirMOCs} {
		if info, statErr := os.Stat(filepath.Join(root, dir)); statErr != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: missing %s/", ErrInvalid, dir)
		}
	}
	return &Store{Root: root, Config: cfg}, nil
}

// Init creates the directory skeleton, a default config.toml if absent,
// per-type templates if absent, and a local .gitignore excluding qipu.db
// and .cache/ (§4.3).
func Init(root string, stealth bool) (*Store, error) {
	dirs := []string{DirNotes, DirMOCs, DirAttachments, DirTemplates, DirCache, DirWorkspaces}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("store: init: creating %s: %w", d, err)
		}
	}

	cfgPath := filepath.Join(root, ConfigFile)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Save(config.Default(), cfgPath); err != nil {
			return nil, fmt.Errorf("store: init: %w", err)
		}
	}

	if err := writeTemplatesIfAbsent(filepath.Join(root, DirTemplates)); err != nil {
		return nil, err
	}

	if err := writeGitignore(root); err != nil {
		return nil, err
	}
	if stealth {
		if err := ensureParentGitignore(root); err != nil {
			debug.Logf("store: could not update parent .gitignore: %v", err)
		}
	}

	return Open(root)
}

func writeGitignore(root string) error {
	path := filepath.Join(root, ".gitignore")
	want := DBFile + "\n" + DirCache + "/\n"
	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == want {
		return nil
	}
	return os.WriteFile(path, []byte(want), 0o644)
}

// ensureParentGitignore appends the store directory to the enclosing
// project's .gitignore in stealth mode, so a store nested in a tracked
// repo doesn't get committed (§4.3).
func ensureParentGitignore(root string) error {
	parent := filepath.Dir(root)
	storeName := filepath.Base(root)
	path := filepath.Join(parent, ".gitignore")
	existing, _ := os.ReadFile(path)
	lines := strings.Split(string(existing), "\n")
	for _, l := range lines {
		if strings.TrimSpace(l) == storeName+"/" || strings.TrimSpace(l) == storeName {
			return nil
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(storeName + "/\n")
	return err
}

func writeTemplatesIfAbsent(dir string) error {
	for _, t := range []string{note.TypeFleeting, note.TypeLiterature, note.TypePermanent, note.TypeMOC} {
		path := filepath.Join(dir, t+".md")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(defaultTemplate(t)), 0o644); err != nil {
			return fmt.Errorf("store: init: writing template %s: %w", t, err)
		}
	}
	return nil
}

func defaultTemplate(noteType string) string {
	switch noteType {
	case note.TypeLiterature:
		return "## Source\n\n## Notes\n"
	case note.TypeMOC:
		return "## Overview\n\n## Contents\n"
	case note.TypePermanent:
		return "## Claim\n\n## Evidence\n"
	default:
		return ""
	}
}

// DirFor returns the subdirectory a note of this type belongs under.
func DirFor(noteType string) string {
	if noteType == note.TypeMOC {
		return DirMOCs
	}
	return DirNotes
}

// Lock acquires the store's advisory single-writer lock (§5), backed by
// gofrs/flock so concurrent qipu processes on the same machine serialize
// around index rebuilds and workspace merges.
func (s *Store) Lock() (func(), error) {
	lock := flock.New(filepath.Join(s.Root, LockFile))
	s.lock = lock
	ctx, cancel := context.WithTimeout(context.Background(), config.LockTimeout())
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("store: acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("store: another qipu process holds the write lock")
	}
	return func() { _ = lock.Unlock() }, nil
}

// Save writes a note to its canonical path, bumping Updated and writing
// only if content differs from what's already on disk (§4.3, §8 property 2).
func (s *Store) Save(n *note.Note, now time.Time) (changed bool, err error) {
	if err := n.Validate(); err != nil {
		return false, err
	}
	dir := DirFor(n.Frontmatter.NoteType)
	rel := filepath.Join(dir, n.Filename())
	full := filepath.Join(s.Root, rel)

	prevUpdated := n.Frontmatter.Updated
	n.Frontmatter.Updated = now

	proposed, err := note.Serialize(n)
	if err != nil {
		return false, err
	}

	existing, readErr := os.ReadFile(full)
	if readErr == nil && bytes.Equal(existing, proposed) {
		n.Frontmatter.Updated = prevUpdated
		return false, nil
	}
	// Content changed (or file is new): re-serialize once more in case the
	// bumped timestamp itself was the only diff relative to a no-op edit
	// is not special-cased further -- any content difference, including a
	// changed Updated, is a real write per §4.3 ("write only if content
	// differs").
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return false, fmt.Errorf("store: save: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, proposed, 0o644); err != nil {
		return false, fmt.Errorf("store: save: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return false, fmt.Errorf("store: save: renaming temp file: %w", err)
	}
	n.Path = rel
	return true, nil
}

// List walks notes/ and mocs/, parsing every .md file. Parse errors on
// individual files are logged and skipped, not propagated (§4.3, §7).
func (s *Store) List() ([]*note.Note, []error) {
	var notes []*note.Note
	var errs []error
	for _, dir := range []string{DirNotes, DirMOCs} {
		root := filepath.Join(s.Root, dir)
		entries, err := listMarkdown(root)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("store: listing %s: %w", dir, err))
			}
			continue
		}
		for _, path := range entries {
			raw, err := os.ReadFile(path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			rel, _ := filepath.Rel(s.Root, path)
			n, err := note.Parse(raw, rel)
			if err != nil {
				debug.Logf("store: skipping unparseable note %s: %v", rel, err)
				errs = append(errs, err)
				continue
			}
			n.Path = rel
			notes = append(notes, n)
		}
	}
	return notes, errs
}

func listMarkdown(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".md") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// AttachmentPath returns the on-disk path for an attachment referenced by
// relative markdown link (§6).
func (s *Store) AttachmentPath(rel string) string {
	return filepath.Join(s.Root, DirAttachments, rel)
}
