package check

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/kastheco/specwave/config/metadata"
)

// AuditSources checks that every record's source file still exists and
// still has the checksum discovery recorded. A changed source means the
// record needs another discovery pass.
func AuditSources(root string, records []*metadata.Record) []Entry {
	var results []Entry
	for _, r := range records {
		e := Entry{Unit: r.Slug, Status: StatusOK}
		data, err := os.ReadFile(resolve(root, r.SourceFile))
		switch {
		case os.IsNotExist(err):
			e.Status = StatusMissing
			e.Details = []string{r.SourceFile + " does not exist"}
		case err != nil:
			e.Status = StatusMissing
			e.Details = []string{err.Error()}
		case r.SourceSHA256 != "":
			sum := sha256.Sum256(data)
			if hex.EncodeToString(sum[:]) != r.SourceSHA256 {
				e.Status = StatusStale
				e.Details = []string{r.SourceFile + " changed since discovery; run specwave discover"}
			}
		}
		results = append(results, e)
	}
	return results
}

func resolve(root, path string) string {
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) || root == "" {
		return path
	}
	return filepath.Join(root, path)
}
