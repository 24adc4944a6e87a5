// Package extractor produces import/export facts from source files using
// Tree-sitter grammars. It is the only component that touches source text;
// everything downstream works on the extracted facts.
package extractor

import (
	"context"
	"strings"
	"sync"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"prdgen/internal/domain"
	"prdgen/internal/port"
)

// TreeSitter implements port.SymbolExtractor for the languages the grammars
// below cover. A parse failure yields *domain.ExtractError and the caller
// skips the unit.
type TreeSitter struct {
	mu        sync.Mutex
	parser    *sitter.Parser
	languages map[string]*sitter.Language
}

func NewTreeSitter() *TreeSitter {
	return &TreeSitter{
		parser: sitter.NewParser(),
		languages: map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": typescript.GetLanguage(),
			"java":       java.GetLanguage(),
		},
	}
}

func (t *TreeSitter) Supported(lang string) bool {
	_, ok := t.languages[lang]
	return ok
}

func (t *TreeSitter) LangForPath(path string) string {
	return LangForPath(path)
}

func (t *TreeSitter) Extract(path, lang string, content []byte) (port.ImportExport, error) {
	language, ok := t.languages[lang]
	if !ok {
		return port.ImportExport{}, &domain.ExtractError{Path: path, Lang: lang, Unsupported: true}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.parser.SetLanguage(language)
	tree, err := t.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return port.ImportExport{}, &domain.ExtractError{Path: path, Lang: lang, Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	facts := port.ImportExport{Lang: lang}

	switch lang {
	case "go":
		t.walkGo(root, content, &facts)
	case "python":
		t.walkPython(root, content, &facts)
	case "javascript", "typescript":
		t.walkJS(root, content, &facts)
	case "java":
		t.walkJava(root, content, &facts)
	}

	facts.Imports = dedup(facts.Imports)
	facts.Exports = dedup(facts.Exports)
	return facts, nil
}

func (t *TreeSitter) walkGo(root *sitter.Node, src []byte, out *port.ImportExport) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_declaration":
			collectGoImports(child, src, out)
		case "function_declaration", "method_declaration":
			if name := fieldText(child, "name", src); exportedGo(name) {
				out.Exports = append(out.Exports, name)
			}
		case "type_declaration":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() == "type_spec" {
					if name := fieldText(spec, "name", src); exportedGo(name) {
						out.Exports = append(out.Exports, name)
					}
				}
			}
		}
	}
}

func collectGoImports(node *sitter.Node, src []byte, out *port.ImportExport) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_spec":
			if p := child.ChildByFieldName("path"); p != nil {
				out.Imports = append(out.Imports, unquote(p.Content(src)))
			}
		case "import_spec_list":
			collectGoImports(child, src, out)
		}
	}
}

func (t *TreeSitter) walkPython(root *sitter.Node, src []byte, out *port.ImportExport) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				name := child.NamedChild(j)
				switch name.Type() {
				case "dotted_name":
					out.Imports = append(out.Imports, name.Content(src))
				case "aliased_import":
					if inner := name.ChildByFieldName("name"); inner != nil {
						out.Imports = append(out.Imports, inner.Content(src))
					}
				}
			}
		case "import_from_statement":
			if mod := child.ChildByFieldName("module_name"); mod != nil {
				out.Imports = append(out.Imports, mod.Content(src))
			}
		case "function_definition", "class_definition":
			if name := fieldText(child, "name", src); name != "" && !strings.HasPrefix(name, "_") {
				out.Exports = append(out.Exports, name)
			}
		case "decorated_definition":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				inner := child.NamedChild(j)
				if inner.Type() == "function_definition" || inner.Type() == "class_definition" {
					if name := fieldText(inner, "name", src); name != "" && !strings.HasPrefix(name, "_") {
						out.Exports = append(out.Exports, name)
					}
				}
			}
		}
	}
}

func (t *TreeSitter) walkJS(root *sitter.Node, src []byte, out *port.ImportExport) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			if source := child.ChildByFieldName("source"); source != nil {
				out.Imports = append(out.Imports, unquote(source.Content(src)))
			}
		case "export_statement":
			if source := child.ChildByFieldName("source"); source != nil {
				// re-export counts as an import of the source module
				out.Imports = append(out.Imports, unquote(source.Content(src)))
			}
			if decl := child.ChildByFieldName("declaration"); decl != nil {
				collectJSDeclNames(decl, src, out)
			}
		}
	}
}

func collectJSDeclNames(decl *sitter.Node, src []byte, out *port.ImportExport) {
	switch decl.Type() {
	case "function_declaration", "class_declaration", "generator_function_declaration":
		if name := fieldText(decl, "name", src); name != "" {
			out.Exports = append(out.Exports, name)
		}
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			child := decl.NamedChild(i)
			if child.Type() == "variable_declarator" {
				if name := fieldText(child, "name", src); name != "" {
					out.Exports = append(out.Exports, name)
				}
			}
		}
	}
}

func (t *TreeSitter) walkJava(root *sitter.Node, src []byte, out *port.ImportExport) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_declaration":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				inner := child.NamedChild(j)
				if inner.Type() == "scoped_identifier" || inner.Type() == "identifier" {
					out.Imports = append(out.Imports, inner.Content(src))
				}
			}
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			if name := fieldText(child, "name", src); name != "" {
				out.Exports = append(out.Exports, name)
			}
		}
	}
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	n := node.ChildByFieldName(field)
	if n == nil {
		return ""
	}
	return n.Content(src)
}

func exportedGo(name string) bool {
	if name == "" {
		return false
	}
	return unicode.IsUpper([]rune(name)[0])
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}

func dedup(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
