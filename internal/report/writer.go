// Package report renders the final documents from a validated doc manifest.
// It writes only what the manifest holds; no model calls happen here.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"prdgen/internal/usecase"
)

type Writer struct {
	outDir string
}

func NewWriter(outDir string) *Writer {
	return &Writer{outDir: outDir}
}

// Write renders index.md plus one document per functional domain and returns
// the written paths.
func (w *Writer) Write(manifest *usecase.DocManifest) ([]string, error) {
	if err := os.MkdirAll(w.outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string

	indexPath := filepath.Join(w.outDir, "index.md")
	if err := os.WriteFile(indexPath, []byte(w.renderIndex(manifest)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}
	written = append(written, indexPath)

	for _, dom := range manifest.Domains {
		doc, ok := manifest.Documents[dom.Name]
		if !ok {
			return nil, fmt.Errorf("manifest has no document for domain %q", dom.Name)
		}
		path := filepath.Join(w.outDir, slug(dom.Name)+".md")
		if err := os.WriteFile(path, []byte(renderDomain(dom.Description, doc)), 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func (w *Writer) renderIndex(manifest *usecase.DocManifest) string {
	var b strings.Builder
	b.WriteString("# Product Requirements\n\n")
	if manifest.ProductOverview != "" {
		b.WriteString(manifest.ProductOverview)
		b.WriteString("\n\n")
	}
	b.WriteString("## Functional Domains\n\n")
	for _, dom := range manifest.Domains {
		fmt.Fprintf(&b, "- [%s](%s.md): %s\n", dom.Name, slug(dom.Name), dom.Description)
	}
	return b.String()
}

func renderDomain(description string, doc usecase.DomainDoc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Name)
	if description != "" {
		fmt.Fprintf(&b, "_%s_\n\n", description)
	}
	fmt.Fprintf(&b, "## Overview\n\n%s\n\n", doc.Overview)
	fmt.Fprintf(&b, "## Behavior\n\n%s\n\n", doc.Behavior)
	fmt.Fprintf(&b, "## Interactions\n\n%s\n\n", doc.Interactions)
	fmt.Fprintf(&b, "## Constraints\n\n%s\n", doc.Constraints)
	return b.String()
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
