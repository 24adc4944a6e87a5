package fs

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"prdgen/internal/port"
)

// Walker lists analyzable source files under a root, filtered by doublestar
// include/exclude patterns and a size cap. Paths are reported relative to
// the root so they serve as stable manifest keys.
type Walker struct {
	includes []string
	excludes []string
	maxBytes int64
}

func NewWalker(includes, excludes []string, maxFileSizeMB float64) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	maxBytes := int64(maxFileSizeMB * 1024 * 1024)
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
		maxBytes: maxBytes,
	}
}

func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	var files []port.FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if w.shouldExclude(relPath + "/") {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Size() > w.maxBytes {
			return nil
		}

		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			files = append(files, port.FileInfo{
				Path:    path,
				RelPath: relPath,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			})
		}

		return nil
	})

	return files, err
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// ReadFile returns a file's contents for extraction and prompt assembly.
func (w *Walker) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
