package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/compact"
	"github.com/mwaldstein/qipu/internal/config"
	"github.com/mwaldstein/qipu/internal/debug"
	"github.com/mwaldstein/qipu/internal/index"
	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/ontology"
	"github.com/mwaldstein/qipu/internal/store"
)

// Cross-cutting flags shared by every verb (§6 CLI surface).
var (
	flagStore                  string
	flagRoot                   string
	flagFormat                 string
	flagQuiet                  bool
	flagVerbose                bool
	flagNoResolveCompaction    bool
	flagWithCompactionIDs      bool
	flagCompactionDepth        int
	flagCompactionMaxNodes     int
	flagExpandCompaction       bool
	flagNoSemanticInversion    bool
)

var rootCmd = &cobra.Command{
	Use:           "qipu",
	Short:         "A local, file-backed knowledge store for humans and agents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			debug.Enable(".qipu/.cache/debug.log")
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagStore, "store", "", "path to the store directory (overrides discovery)")
	pf.StringVar(&flagRoot, "root", "", "directory to start store discovery from (default: cwd)")
	pf.StringVar(&flagFormat, "format", "human", "output format: human, json, records")
	pf.BoolVar(&flagQuiet, "quiet", false, "suppress non-essential output")
	pf.BoolVar(&flagVerbose, "verbose", false, "enable verbose debug logging")
	pf.BoolVar(&flagNoResolveCompaction, "no-resolve-compaction", false, "report ids as written, without canonicalizing compacted notes")
	pf.BoolVar(&flagWithCompactionIDs, "with-compaction-ids", false, "include compacted_ids lists in output")
	pf.IntVar(&flagCompactionDepth, "compaction-depth", 3, "max depth for compacted-id expansion")
	pf.IntVar(&flagCompactionMaxNodes, "compaction-max-nodes", 100, "max nodes returned by compacted-id expansion")
	pf.BoolVar(&flagExpandCompaction, "expand-compaction", false, "inline full compacted notes instead of listing ids")
	pf.BoolVar(&flagNoSemanticInversion, "no-semantic-inversion", false, "report inbound edges in their raw direction instead of inverted")
}

// exitCode maps qipu's error taxonomy to the process exit codes
// documented in spec §6: 0 success, 1 user/runtime error, 2 usage error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*usageError); ok {
		return 2
	}
	return 1
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// openStore resolves --store/--root into an opened Store, discovering
// upward from the working directory when neither flag is set (§4.3).
func openStore() (*store.Store, error) {
	if flagStore != "" {
		return store.Open(flagStore)
	}
	start := flagRoot
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		start = wd
	}
	return store.Discover(start)
}

// state is what loadState returns: it loads every note, builds the derived
// index and compaction context, and reports the note-parse errors
// doctor-style (logged, not fatal) so a single bad file never blinds a
// whole command.
type state struct {
	Store   *store.Store
	Ont     *ontology.Ontology
	Idx     *index.Index
	Compact *compact.Context
	Notes   []*note.Note
}

func loadState(s *store.Store) (*state, error) {
	ont, err := ontology.Build(ontologyMode(s.Config), ontologyNoteTypeDecls(s.Config), ontologyLinkTypeDecls(s.Config))
	if err != nil {
		return nil, err
	}

	notes, parseErrs := s.List()
	for _, e := range parseErrs {
		debug.Logf("load: %v", e)
	}

	idx := index.Build(notes, ont, s.Config.Stemming)
	syncIndexDB(s, idx, notes)

	compacts := map[string][]string{}
	var ids []string
	for _, n := range notes {
		ids = append(ids, n.Frontmatter.ID)
		if len(n.Frontmatter.Compacts) > 0 {
			compacts[n.Frontmatter.ID] = n.Frontmatter.Compacts
		}
	}
	compactCtx, err := compact.Build(ids, compacts)
	if err != nil {
		return nil, err
	}

	return &state{Store: s, Ont: ont, Idx: idx, Compact: compactCtx, Notes: notes}, nil
}

func ontologyMode(cfg *config.Config) ontology.Mode {
	switch cfg.Ontology.Mode {
	case "extended":
		return ontology.ModeExtended
	case "replacement":
		return ontology.ModeReplacement
	default:
		return ontology.ModeDefault
	}
}

func ontologyNoteTypeDecls(cfg *config.Config) []ontology.Declaration {
	var out []ontology.Declaration
	for _, nt := range cfg.Ontology.NoteTypes {
		out = append(out, ontology.Declaration{Name: nt})
	}
	return out
}

func ontologyLinkTypeDecls(cfg *config.Config) []ontology.Declaration {
	var out []ontology.Declaration
	for name, lt := range cfg.Ontology.LinkTypes {
		out = append(out, ontology.Declaration{Name: name, Inverse: lt.Inverse, Cost: lt.Cost})
	}
	return out
}

func now() time.Time { return time.Now() }

// syncIndexDB persists the in-memory index into qipu.db, the derived
// SQLite+FTS5 cache (§4.6). Failures are logged, not fatal: the
// in-memory index built fresh from disk on every invocation is always
// authoritative, and the database is purely a regenerable cache that other
// tooling (outside the embedded Go search path, which prunes directly
// against in-memory TermFreqs) can query against.
func syncIndexDB(s *store.Store, idx *index.Index, notes []*note.Note) {
	db, err := index.Open(filepath.Join(s.Root, store.DBFile))
	if err != nil {
		debug.Logf("index: opening db: %v", err)
		return
	}
	defer db.Close()

	ctx := context.Background()
	mtimes := map[string]time.Time{}
	bodies := map[string]string{}
	var diskNotes []index.NoteStat
	for _, n := range notes {
		full := filepath.Join(s.Root, n.Path)
		info, statErr := os.Stat(full)
		mtime := time.Time{}
		if statErr == nil {
			mtime = info.ModTime()
		}
		mtimes[n.Frontmatter.ID] = mtime
		bodies[n.Frontmatter.ID] = n.Body
		diskNotes = append(diskNotes, index.NoteStat{ID: n.Frontmatter.ID, Path: n.Path, MTime: mtime})
	}

	needsRebuild, reason, err := db.NeedsRebuild(ctx, diskNotes)
	if err != nil {
		debug.Logf("index: checking db consistency: %v", err)
		return
	}
	if !needsRebuild {
		return
	}
	debug.Logf("index: rebuilding db: %s", reason)
	unlock, err := s.Lock()
	if err != nil {
		debug.Logf("index: acquiring write lock for rebuild: %v", err)
		return
	}
	defer unlock()
	if err := db.Rebuild(ctx, idx, mtimes, bodies); err != nil {
		debug.Logf("index: rebuilding db: %v", err)
	}
}
