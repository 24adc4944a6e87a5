package usecase

import (
	"fmt"
	"sort"
	"strings"

	"prdgen/internal/domain"
)

// Prompt builders for the three stages. Every prompt demands a single JSON
// object so the validator has a stable surface to check.

const structureSystemPrompt = `You are a senior software architect analyzing an unfamiliar repository.
You reason from file paths, import relationships, and exported symbols.
Always answer with a single JSON object and nothing else.`

const semanticSystemPrompt = `You are a senior engineer producing a functional analysis of source code.
Describe what the code does for its users, not how it is written.
Always answer with a single JSON object and nothing else.`

const docSystemPrompt = `You are a product manager writing requirements documentation for a
non-technical audience. Describe capabilities, user value and business rules.
Never mention code-level constructs. Always answer with a single JSON object
and nothing else.`

// overviewPrompt asks for a project-level summary from the file inventory.
func overviewPrompt(root string, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository %q contains the following source files:\n\n", root)
	for _, f := range files {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	b.WriteString(`
Summarize what this project is and does in 2-4 sentences.

Respond with JSON:
{"overview": "<summary>", "primary_language": "<language>", "kind": "<service|library|cli|application>"}`)
	return b.String()
}

// modulesPrompt asks the model to group every file into named modules. The
// validator enforces that each listed file appears in exactly one group.
func modulesPrompt(files map[string]FileRecord) string {
	var b strings.Builder
	b.WriteString("Group every file below into coherent modules by responsibility.\n")
	b.WriteString("A module is a set of files that change together and serve one purpose.\n\n")
	b.WriteString("Files (path, language, exported symbols):\n")
	for _, path := range sortedKeys(files) {
		rec := files[path]
		fmt.Fprintf(&b, "  %s [%s]", path, rec.Lang)
		if len(rec.Exports) > 0 {
			fmt.Fprintf(&b, " exports: %s", strings.Join(capList(rec.Exports, 8), ", "))
		}
		b.WriteByte('\n')
	}
	b.WriteString(`
Every file must appear in exactly one module. Do not invent files.

Respond with JSON:
{"modules": [{"name": "<short-name>", "layer": "core|business|utility", "responsibility": "<one sentence>", "files": ["<path>", ...], "key_files": ["<path>", ...]}]}`)
	return b.String()
}

// moduleOverviewPrompt opens a module's shared session with the framing the
// later detail passes build on.
func moduleOverviewPrompt(mod domain.Module, projectOverview string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project context: %s\n\n", projectOverview)
	fmt.Fprintf(&b, "You are analyzing the module %q (%s layer): %s\n", mod.Name, mod.Layer, mod.Responsibility)
	b.WriteString("Its files:\n")
	for _, f := range mod.Files {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	b.WriteString(`
Describe the module's role in the system.

Respond with JSON:
{"overview": "<2-4 sentences>", "responsibilities": ["<one per line>", ...], "interactions": ["<other modules it depends on or serves>", ...]}`)
	return b.String()
}

// batchDetailPrompt carries the source of one batch into the module's
// session. Response must analyze every file in the batch.
func batchDetailPrompt(batch domain.Batch, contents map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze each of the following %d files from this module in detail.\n\n", len(batch.Units))
	for _, u := range batch.Units {
		fmt.Fprintf(&b, "=== FILE: %s ===\n%s\n\n", u.Path, contents[u.Path])
	}
	b.WriteString(`Cover every file listed above; omit none.

Respond with JSON:
{"files": [{"path": "<path exactly as given>", "purpose": "<what this file does>", "key_behaviors": ["<behavior>", ...]}]}`)
	return b.String()
}

// groupingPrompt asks the doc stage to partition modules into functional
// domains. Full module coverage is enforced by the validator.
func groupingPrompt(overview string, modules map[string]ModuleAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n\n", overview)
	b.WriteString("Analyzed modules:\n")
	for _, name := range sortedKeys(modules) {
		m := modules[name]
		fmt.Fprintf(&b, "  %s: %s\n", name, m.Overview)
	}
	b.WriteString(`
Group these modules into functional domains a product manager would
recognize. Every module must belong to exactly one domain.

Respond with JSON:
{"domains": [{"domain_name": "<name>", "domain_description": "<what it covers>", "business_value": "<why it matters>", "modules": ["<module name>", ...]}]}`)
	return b.String()
}

// domainDocPrompt produces the four sections of one domain's document. The
// forbidden-term policy is restated because it is validated, not trusted.
func domainDocPrompt(dom domain.FunctionalDomain, modules map[string]ModuleAnalysis, files map[string]FileAnalysis, forbidden []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the requirements documentation for the %q domain.\n", dom.Name)
	fmt.Fprintf(&b, "Domain scope: %s\nBusiness value: %s\n\n", dom.Description, dom.Value)

	b.WriteString("Module analyses in this domain:\n")
	for _, name := range dom.Modules {
		if m, ok := modules[name]; ok {
			fmt.Fprintf(&b, "## %s\n%s\nResponsibilities: %s\n\n",
				name, m.Overview, strings.Join(m.Responsibilities, "; "))
		}
	}

	var inDomain []string
	domainModules := make(map[string]bool, len(dom.Modules))
	for _, name := range dom.Modules {
		domainModules[name] = true
	}
	for _, path := range sortedKeys(files) {
		if domainModules[files[path].Module] {
			inDomain = append(inDomain, path)
		}
	}
	if len(inDomain) > 0 {
		b.WriteString("Behaviors observed in this domain:\n")
		for _, path := range inDomain {
			f := files[path]
			fmt.Fprintf(&b, "  - %s\n", f.Purpose)
			for _, kb := range f.KeyBehaviors {
				fmt.Fprintf(&b, "    - %s\n", kb)
			}
		}
		b.WriteByte('\n')
	}

	sort.Strings(forbidden)
	fmt.Fprintf(&b, `Write for business readers. These technical terms are forbidden anywhere
in your answer: %s.

Respond with JSON:
{"overview": "<what this domain does for users>", "behavior": "<detailed behavior in business terms>", "interactions": "<how it relates to other domains>", "constraints": "<business rules and limits>"}`,
		strings.Join(forbidden, ", "))
	return b.String()
}

// productOverviewPrompt produces the index document's framing text.
func productOverviewPrompt(overview string, domains []domain.FunctionalDomain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n\nFunctional domains:\n", overview)
	for _, d := range domains {
		fmt.Fprintf(&b, "  %s: %s\n", d.Name, d.Description)
	}
	b.WriteString(`
Write a product-level overview tying these domains together for a
business reader.

Respond with JSON:
{"product_overview": "<3-6 sentences>"}`)
	return b.String()
}

func capList(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
