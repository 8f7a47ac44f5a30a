package discover

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	utildiff "github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/kastheco/specwave/internal/model"
)

// ChangeStatus is what happened to a file.
type ChangeStatus string

const (
	ChangeAdded    ChangeStatus = "added"
	ChangeModified ChangeStatus = "modified"
	ChangeDeleted  ChangeStatus = "deleted"
)

// Change is one changed file. Line numbers refer to the new version of the
// file.
type Change struct {
	Path   string
	Status ChangeStatus
	// Added holds the lines that are new in this version.
	Added map[int]bool
	// Touched holds added lines plus the lines bordering a removal.
	Touched map[int]bool
	// Explicit is set for files named on the command line, which carry no
	// line information.
	Explicit bool
}

func newChange(path string, status ChangeStatus) Change {
	return Change{
		Path:    filepath.ToSlash(path),
		Status:  status,
		Added:   make(map[int]bool),
		Touched: make(map[int]bool),
	}
}

func (c *Change) add(line int) {
	c.Added[line] = true
	c.Touched[line] = true
}

// remove marks a removal just before line.
func (c *Change) remove(line int) {
	c.Touched[line] = true
	if line > 1 {
		c.Touched[line-1] = true
	}
}

// ModeFor classifies the method spanning lines start..end.
func (c Change) ModeFor(start, end int) model.MethodMode {
	switch {
	case c.Status == ChangeAdded:
		return model.ModeNew
	case c.Explicit, start <= 0, end < start:
		return model.ModeModified
	}
	allAdded, touched := true, false
	for l := start; l <= end; l++ {
		if !c.Added[l] {
			allAdded = false
		}
		if c.Touched[l] {
			touched = true
		}
	}
	switch {
	case allAdded:
		return model.ModeNew
	case touched:
		return model.ModeModified
	}
	return model.ModeUnchanged
}

// FromDiff reads the changed files of a unified diff, as produced by git
// diff.
func FromDiff(r io.Reader) ([]Change, error) {
	fds, err := diff.NewMultiFileDiffReader(r).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	var out []Change
	for _, fd := range fds {
		var c Change
		switch {
		case fd.NewName == "/dev/null":
			c = newChange(stripDiffPrefix(fd.OrigName), ChangeDeleted)
		case fd.OrigName == "/dev/null":
			c = newChange(stripDiffPrefix(fd.NewName), ChangeAdded)
		default:
			c = newChange(stripDiffPrefix(fd.NewName), ChangeModified)
		}
		for _, h := range fd.Hunks {
			markHunk(&c, h)
		}
		out = append(out, c)
	}
	sortChanges(out)
	return out, nil
}

func markHunk(c *Change, h *diff.Hunk) {
	line := int(h.NewStartLine)
	for _, l := range strings.Split(string(h.Body), "\n") {
		if l == "" {
			continue
		}
		switch l[0] {
		case '+':
			c.add(line)
			line++
		case '-':
			c.remove(line)
		case ' ':
			line++
		}
	}
}

func stripDiffPrefix(name string) string {
	for _, p := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, p) {
			return name[len(p):]
		}
	}
	return name
}

// FromWorktree lists the changes of the git worktree containing dir
// against HEAD, with paths relative to the worktree root. Modified files
// carry a line diff of HEAD's blob against the file on disk.
func FromWorktree(dir string) ([]Change, string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, "", fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, "", fmt.Errorf("open worktree: %w", err)
	}
	root := wt.Filesystem.Root()
	status, err := wt.Status()
	if err != nil {
		return nil, "", fmt.Errorf("worktree status: %w", err)
	}

	head, err := headTree(repo)
	if err != nil {
		return nil, "", err
	}

	var out []Change
	for path, st := range status {
		switch {
		case st.Worktree == git.Unmodified && st.Staging == git.Unmodified:
			continue
		case st.Worktree == git.Deleted || st.Staging == git.Deleted:
			out = append(out, newChange(path, ChangeDeleted))
			continue
		case st.Worktree == git.Untracked || st.Staging == git.Added:
			out = append(out, newChange(path, ChangeAdded))
			continue
		}

		c, err := lineDiff(head, root, path)
		if err != nil {
			return nil, "", err
		}
		out = append(out, c)
	}
	sortChanges(out)
	return out, root, nil
}

// headTree returns HEAD's tree, or nil in a repository without commits.
func headTree(repo *git.Repository) (*object.Tree, error) {
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read HEAD tree: %w", err)
	}
	return tree, nil
}

func lineDiff(head *object.Tree, root, path string) (Change, error) {
	if head == nil {
		return newChange(path, ChangeAdded), nil
	}
	f, err := head.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return newChange(path, ChangeAdded), nil
	}
	if err != nil {
		return Change{}, fmt.Errorf("read %s at HEAD: %w", path, err)
	}
	before, err := f.Contents()
	if err != nil {
		return Change{}, fmt.Errorf("read %s at HEAD: %w", path, err)
	}
	after, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	if err != nil {
		return Change{}, fmt.Errorf("read %s: %w", path, err)
	}

	c := newChange(path, ChangeModified)
	line := 1
	for _, d := range utildiff.Do(before, string(after)) {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			line += n
		case diffmatchpatch.DiffInsert:
			for i := 0; i < n; i++ {
				c.add(line)
				line++
			}
		case diffmatchpatch.DiffDelete:
			c.remove(line)
		}
	}
	return c, nil
}

func countLines(text string) int {
	n := strings.Count(text, "\n")
	if text != "" && !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// FromPaths treats every named file as modified throughout. Directories
// are expanded to the Ruby files below them. Paths are made relative to
// root when they lie under it.
func FromPaths(root string, paths []string) ([]Change, error) {
	seen := make(map[string]bool)
	var out []Change
	addFile := func(p string) {
		rel := relativeTo(root, p)
		if seen[rel] {
			return
		}
		seen[rel] = true
		c := newChange(rel, ChangeModified)
		c.Explicit = true
		out = append(out, c)
	}

	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, p)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			addFile(abs)
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isRubySource(path) {
				addFile(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	sortChanges(out)
	return out, nil
}

func relativeTo(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

func sortChanges(cs []Change) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Path < cs[j].Path })
}
