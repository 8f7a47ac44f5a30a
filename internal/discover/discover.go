package discover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kastheco/specwave/config/auditlog"
	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/model"
	"github.com/kastheco/specwave/internal/wave"
	"github.com/kastheco/specwave/log"
)

// Options configures Discover.
type Options struct {
	// Root is the project root; change paths are relative to it.
	Root  string
	Store *metadata.Store
	// SourceDirs limits discovery to files under these root-relative
	// directories. Empty means everywhere.
	SourceDirs  []string
	SpecPathFor func(sourceFile string) string
	EntryPoints wave.EntryPoints
	Parallelism int
	Audit       auditlog.Logger
	Project     string
	RunID       string
}

// Skip is a changed file discovery ignored.
type Skip struct {
	Path   string
	Reason string
}

// Result is the outcome of a discovery pass.
type Result struct {
	// Records are the written records, sorted by slug.
	Records  []*metadata.Record
	Schedule wave.Schedule
	// Reused lists the units whose source was unchanged since the last
	// pass; their recorded methods were kept.
	Reused  []string
	Skipped []Skip
}

type source struct {
	change Change
	unit   *Unit
	mtime  time.Time
	sha256 string
}

// Discover parses the Ruby units among changes, schedules them into
// dependency waves and writes one record per unit, marking discovery
// complete. A unit depends on another unit of the set when it references
// that unit's class or module.
func Discover(ctx context.Context, changes []Change, opts Options) (*Result, error) {
	res := &Result{}
	var candidates []Change
	for _, c := range changes {
		if reason := skipReason(c, opts.SourceDirs); reason != "" {
			res.Skipped = append(res.Skipped, Skip{Path: c.Path, Reason: reason})
			continue
		}
		candidates = append(candidates, c)
	}

	sources, skipped, err := parseAll(ctx, opts, candidates)
	if err != nil {
		return nil, err
	}
	res.Skipped = append(res.Skipped, skipped...)
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Path < res.Skipped[j].Path })

	resolve := resolver(sources)
	for _, src := range sources {
		rec, reused, err := buildRecord(opts, src)
		if err != nil {
			return nil, err
		}
		if reused {
			res.Reused = append(res.Reused, rec.Slug)
		}
		rec.Dependencies = resolve(src.unit)
		rec.EntryPoint = opts.EntryPoints.Match(rec.ClassName)
		res.Records = append(res.Records, rec)
	}
	sort.Slice(res.Records, func(i, j int) bool { return res.Records[i].Slug < res.Records[j].Slug })

	nodes, edges, index := metadata.Graph(res.Records)
	res.Schedule = wave.Compute(nodes, edges)
	for id, rec := range index {
		if w, ok := res.Schedule.WaveOf(id); ok {
			rec.Wave = w
		}
	}
	for _, bc := range res.Schedule.BrokenCycles {
		rec := index[bc.Node]
		msg := bc.String()
		rec.AddWarning(msg)
		log.WarningLog.Printf("%s", msg)
		emit(opts, auditlog.EventCycleBroken, msg, auditlog.WithUnit(rec.Slug), auditlog.WithLevel("warn"))
	}

	for _, rec := range res.Records {
		rec.MarkCompleted(metadata.StageDiscovery)
		if err := opts.Store.Save(rec); err != nil {
			return nil, fmt.Errorf("save %s: %w", rec.Slug, err)
		}
		emit(opts, auditlog.EventRecordWritten,
			fmt.Sprintf("%s: wave %d, %d method(s)", rec.Slug, rec.Wave, len(rec.Methods)),
			auditlog.WithUnit(rec.Slug), auditlog.WithWave(rec.Wave))
	}
	log.InfoLog.Printf("discovery: %d unit(s) in %d wave(s), %d reused, %d skipped",
		len(res.Records), res.Schedule.Len(), len(res.Reused), len(res.Skipped))
	return res, nil
}

func emit(opts Options, kind auditlog.EventKind, msg string, extra ...auditlog.EventOption) {
	if opts.Audit == nil {
		return
	}
	evOpts := append([]auditlog.EventOption{
		auditlog.WithRun(opts.RunID),
		auditlog.WithStage(string(metadata.StageDiscovery)),
	}, extra...)
	opts.Audit.Emit(auditlog.New(kind, opts.Project, msg, evOpts...))
}

func isRubySource(path string) bool {
	return strings.HasSuffix(path, ".rb") && !strings.HasSuffix(path, "_spec.rb")
}

func skipReason(c Change, sourceDirs []string) string {
	switch {
	case c.Status == ChangeDeleted:
		return "deleted"
	case strings.HasSuffix(c.Path, "_spec.rb"):
		return "spec file"
	case !strings.HasSuffix(c.Path, ".rb"):
		return "not a Ruby source"
	case !underAny(c.Path, sourceDirs):
		return "outside source_dirs"
	}
	return ""
}

func underAny(path string, dirs []string) bool {
	if len(dirs) == 0 {
		return true
	}
	for _, d := range dirs {
		d = strings.TrimSuffix(filepath.ToSlash(filepath.Clean(d)), "/")
		if d == "." || strings.HasPrefix(path, d+"/") {
			return true
		}
	}
	return false
}

// parseAll reads and parses the candidates in parallel. Files that define
// no unit are skipped; any other failure aborts the pass.
func parseAll(ctx context.Context, opts Options, changes []Change) ([]*source, []Skip, error) {
	results := make([]*source, len(changes))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, c := range changes {
		g.Go(func() error {
			src, err := parseSource(gctx, opts.Root, c)
			if err != nil {
				return err
			}
			results[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		out     []*source
		skipped []Skip
	)
	for i, src := range results {
		if src.unit == nil {
			skipped = append(skipped, Skip{Path: changes[i].Path, Reason: ErrNoUnit.Error()})
			continue
		}
		if len(src.unit.Methods) == 0 {
			skipped = append(skipped, Skip{Path: changes[i].Path, Reason: ErrNoMethods.Error()})
			continue
		}
		out = append(out, src)
	}
	return out, skipped, nil
}

func parseSource(ctx context.Context, root string, c Change) (*source, error) {
	path := filepath.Join(root, filepath.FromSlash(c.Path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.Path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", c.Path, err)
	}
	sum := sha256.Sum256(data)
	src := &source{change: c, mtime: info.ModTime().UTC(), sha256: hex.EncodeToString(sum[:])}

	unit, err := ParseRuby(ctx, c.Path, data)
	if errors.Is(err, ErrNoUnit) {
		return src, nil
	}
	if err != nil {
		return nil, err
	}
	src.unit = unit
	return src, nil
}

// resolver maps a unit's constant references to the class names of other
// units in the set, resolving each reference through the unit's lexical
// namespace the way Ruby does.
func resolver(sources []*source) func(*Unit) []string {
	known := make(map[string]bool, len(sources))
	for _, s := range sources {
		known[s.unit.ClassName] = true
	}
	return func(u *Unit) []string {
		deps := make(map[string]bool)
		ns := u.Namespace()
		for _, ref := range u.References {
			for i := len(ns); i >= 0; i-- {
				name := strings.Join(append(append([]string{}, ns[:i]...), ref), "::")
				if known[name] {
					if name != u.ClassName {
						deps[name] = true
					}
					break
				}
			}
		}
		out := make([]string, 0, len(deps))
		for d := range deps {
			out = append(out, d)
		}
		sort.Strings(out)
		return out
	}
}

// buildRecord loads or starts the unit's record and refreshes it from the
// parsed source. A source whose mtime and checksum match the record keeps
// its methods as recorded.
func buildRecord(opts Options, src *source) (*metadata.Record, bool, error) {
	slug := metadata.Slug(src.change.Path)
	rec, err := opts.Store.Load(slug)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		rec = metadata.NewRecord(src.change.Path, src.unit.ClassName)
	case err != nil:
		return nil, false, err
	}

	if rec.SourceMtime.Equal(src.mtime) && rec.SourceSHA256 == src.sha256 && len(rec.Methods) > 0 {
		return rec, true, nil
	}

	rec.ClassName = src.unit.ClassName
	rec.SourceMtime = src.mtime
	rec.SourceSHA256 = src.sha256
	if rec.SpecPath == "" && opts.SpecPathFor != nil {
		rec.SpecPath = filepath.ToSlash(opts.SpecPathFor(src.change.Path))
	}
	if src.unit.SyntaxErrors {
		rec.AddWarning("source has syntax errors; method spans may be incomplete")
	}

	analysed := rec.Completed(metadata.StageCodeAnalyzer)
	previous := make(map[string]model.Method, len(rec.Methods))
	for _, m := range rec.Methods {
		previous[m.Descriptor()] = m
	}
	var stale []string
	methods := make([]model.Method, 0, len(src.unit.Methods))
	for _, def := range src.unit.Methods {
		m := model.Method{Name: def.Name, Type: def.Type}
		if prev, ok := previous[def.Descriptor()]; ok {
			m = prev
		}
		m.LineStart, m.LineEnd = def.LineStart, def.LineEnd
		m.MethodMode = src.change.ModeFor(def.LineStart, def.LineEnd)
		if m.MethodMode != model.ModeUnchanged && analysed {
			stale = append(stale, def.Descriptor())
		}
		methods = append(methods, m)
	}
	rec.Methods = methods
	if len(stale) > 0 {
		rec.AddWarning("source changed after code_analyzer ran; re-analyse " + strings.Join(stale, ", "))
	}
	return rec, false, nil
}
