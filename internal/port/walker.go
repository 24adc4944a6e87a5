package port

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

// FileReader loads file contents for token estimation, extraction, and
// prompt assembly.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

type FileInfo struct {
	Path    string
	RelPath string
	ModTime int64
	Size    int64
}
