package port

// ImportExport holds the structural facts extracted from one source file.
type ImportExport struct {
	Imports []string
	Exports []string
	Lang    string
}

// SymbolExtractor produces import/export facts for a file. Failures are
// reported as *domain.ExtractError and degrade gracefully: the caller skips
// the unit and continues.
type SymbolExtractor interface {
	Extract(path, lang string, content []byte) (ImportExport, error)

	// Supported reports whether the extractor can parse the language tag.
	Supported(lang string) bool

	// LangForPath maps a file path to its language tag, "unknown" when the
	// extension is not recognized.
	LangForPath(path string) string
}
