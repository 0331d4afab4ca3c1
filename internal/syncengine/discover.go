package syncengine

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jakekausler/stagework/internal/workitem"
)

// discoveredFile is one Markdown file found under epics/, classified by
// its filename's ID prefix per the naming convention (§4.B step 1).
type discoveredFile struct {
	Path string
	Kind workitem.Kind
	ID   string
}

// discoverFiles enumerates every *.md file under <repoPath>/epics and
// classifies it. Files whose basename doesn't parse to a prefix-typed ID
// are skipped (not an error — e.g. stray README files).
func discoverFiles(repoPath string) ([]discoveredFile, error) {
	root := filepath.Join(repoPath, "epics")
	var files []discoveredFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		base := strings.TrimSuffix(filepath.Base(path), ".md")
		kind, ok := workitem.KindOf(base)
		if !ok {
			return nil
		}
		files = append(files, discoveredFile{Path: path, Kind: kind, ID: base})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return files, nil
}
