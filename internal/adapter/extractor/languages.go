package extractor

import "path/filepath"

// LangForPath maps a file extension to the language tag used by the
// extractor and the structure manifest.
func LangForPath(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".py", ".pyw":
		return "python"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	default:
		return "unknown"
	}
}
