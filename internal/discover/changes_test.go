package discover

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/specwave/internal/model"
)

const sampleDiff = `diff --git a/app/models/user.rb b/app/models/user.rb
index 3b18e51..a9c1f2d 100644
--- a/app/models/user.rb
+++ b/app/models/user.rb
@@ -1,9 +1,13 @@
 class User
   def name
-    first
+    [first, last].join(' ')
   end
 
   def email
     address
   end
+
+  def admin?
+    role == 'admin'
+  end
 end
diff --git a/app/models/tag.rb b/app/models/tag.rb
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/app/models/tag.rb
@@ -0,0 +1,2 @@
+class Tag
+end
diff --git a/app/models/legacy.rb b/app/models/legacy.rb
deleted file mode 100644
index e69de29..0000000
--- a/app/models/legacy.rb
+++ /dev/null
@@ -1,2 +0,0 @@
-class Legacy
-end
`

func TestFromDiff(t *testing.T) {
	changes, err := FromDiff(strings.NewReader(sampleDiff))
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, "app/models/legacy.rb", changes[0].Path)
	assert.Equal(t, ChangeDeleted, changes[0].Status)
	assert.Equal(t, "app/models/tag.rb", changes[1].Path)
	assert.Equal(t, ChangeAdded, changes[1].Status)

	user := changes[2]
	assert.Equal(t, "app/models/user.rb", user.Path)
	assert.Equal(t, ChangeModified, user.Status)
	assert.True(t, user.Added[3])
	assert.True(t, user.Added[9])
	assert.True(t, user.Added[11])

	assert.Equal(t, model.ModeModified, user.ModeFor(2, 4), "name")
	assert.Equal(t, model.ModeUnchanged, user.ModeFor(6, 8), "email")
	assert.Equal(t, model.ModeNew, user.ModeFor(10, 12), "admin?")
	assert.Equal(t, model.ModeNew, changes[1].ModeFor(1, 2))
}

func TestChange_ModeFor(t *testing.T) {
	c := newChange("a.rb", ChangeModified)
	c.remove(5)

	tests := []struct {
		name       string
		start, end int
		want       model.MethodMode
	}{
		{"removal inside span", 3, 6, model.ModeModified},
		{"removal just after span", 1, 4, model.ModeModified},
		{"far from removal", 10, 12, model.ModeUnchanged},
		{"no span", 0, 0, model.ModeModified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ModeFor(tt.start, tt.end))
		})
	}

	explicit := newChange("b.rb", ChangeModified)
	explicit.Explicit = true
	assert.Equal(t, model.ModeModified, explicit.ModeFor(10, 12))
}

func TestFromPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/models/user.rb", "class User\nend\n")
	writeFile(t, root, "app/models/tag.rb", "class Tag\nend\n")
	writeFile(t, root, "app/models/user_spec.rb", "")
	writeFile(t, root, "app/models/README.md", "")
	writeFile(t, root, "lib/money.rb", "class Money\nend\n")

	changes, err := FromPaths(root, []string{"app", "lib/money.rb", filepath.Join(root, "lib", "money.rb")})
	require.NoError(t, err)

	var paths []string
	for _, c := range changes {
		paths = append(paths, c.Path)
		assert.True(t, c.Explicit)
		assert.Equal(t, ChangeModified, c.Status)
	}
	assert.Equal(t, []string{"app/models/tag.rb", "app/models/user.rb", "lib/money.rb"}, paths)

	_, err = FromPaths(root, []string{"missing.rb"})
	assert.Error(t, err)
}

func TestFromWorktree(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, root, "app/models/user.rb", "class User\n  def name\n    first\n  end\n\n  def email\n    address\n  end\nend\n")
	writeFile(t, root, "app/models/legacy.rb", "class Legacy\nend\n")
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	writeFile(t, root, "app/models/user.rb", "class User\n  def name\n    full_name\n  end\n\n  def email\n    address\n  end\nend\n")
	writeFile(t, root, "app/models/tag.rb", "class Tag\nend\n")
	require.NoError(t, os.Remove(filepath.Join(root, "app", "models", "legacy.rb")))

	changes, gotRoot, err := FromWorktree(filepath.Join(root, "app"))
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot)
	require.Len(t, changes, 3)

	assert.Equal(t, "app/models/legacy.rb", changes[0].Path)
	assert.Equal(t, ChangeDeleted, changes[0].Status)
	assert.Equal(t, "app/models/tag.rb", changes[1].Path)
	assert.Equal(t, ChangeAdded, changes[1].Status)

	user := changes[2]
	assert.Equal(t, ChangeModified, user.Status)
	assert.True(t, user.Added[3])
	assert.Equal(t, model.ModeModified, user.ModeFor(2, 4))
	assert.Equal(t, model.ModeUnchanged, user.ModeFor(6, 8))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("a"))
	assert.Equal(t, 2, countLines("a\nb\n"))
	assert.Equal(t, 2, countLines("a\nb"))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
