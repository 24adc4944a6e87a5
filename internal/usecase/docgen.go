package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"prdgen/internal/domain"
	"prdgen/internal/gateway"
	"prdgen/internal/port"
	"prdgen/internal/retry"
	"prdgen/internal/validate"
)

// DocGen runs the final stage: group modules into functional domains, then
// write each domain's document in its own session so domain content never
// bleeds across sessions. Documents must pass the forbidden-term policy.
type DocGen struct {
	policy    domain.SessionPolicy
	gw        *gateway.Gateway
	retry     *retry.Controller
	store     port.StateStore
	log       *zap.Logger
	forbidden []string
}

func NewDocGen(policy domain.SessionPolicy, gw *gateway.Gateway, retryCtl *retry.Controller,
	store port.StateStore, log *zap.Logger, forbidden []string) *DocGen {
	return &DocGen{policy: policy, gw: gw, retry: retryCtl, store: store, log: log, forbidden: forbidden}
}

// Run produces and persists the doc manifest from the two earlier manifests.
func (d *DocGen) Run(ctx context.Context, structure *StructureManifest, semantic *SemanticManifest) (*DocManifest, error) {
	d.log.Info("doc stage starting",
		zap.Int("modules", len(semantic.Modules)),
		zap.Stringer("session_policy", d.policy))

	domains, err := d.groupDomains(ctx, structure, semantic)
	if err != nil {
		return nil, err
	}
	d.snapshot("grouping", domains)

	manifest := &DocManifest{
		Domains:   domains,
		Documents: make(map[string]DomainDoc, len(domains)),
	}

	docs := NewPutOnce[DomainDoc]()
	for _, dom := range domains {
		doc, err := d.writeDomainDoc(ctx, dom, semantic)
		if err != nil {
			return nil, err
		}
		if err := docs.Put(dom.Name, doc); err != nil {
			return nil, err
		}
		d.snapshot("domain/"+dom.Name, doc)
	}
	manifest.Documents = docs.Snapshot()

	overview, err := d.productOverview(ctx, structure.Overview, domains)
	if err != nil {
		return nil, err
	}
	manifest.ProductOverview = overview

	data, err := marshalManifest(manifest)
	if err != nil {
		return nil, err
	}
	if err := d.store.PutManifest(domain.StageDoc, data); err != nil {
		return nil, fmt.Errorf("failed to persist doc manifest: %w", err)
	}
	d.log.Info("doc stage complete", zap.Int("domains", len(domains)))
	return manifest, nil
}

// groupDomains partitions modules into functional domains. Every module name
// must be covered; orphans trigger a repair naming them.
func (d *DocGen) groupDomains(ctx context.Context, structure *StructureManifest, semantic *SemanticManifest) ([]domain.FunctionalDomain, error) {
	moduleNames := sortedKeys(semantic.Modules)
	prompt := groupingPrompt(structure.Overview, semantic.Modules)
	rule := validate.Rule{
		RequiredKeys:  []string{"domains"},
		CoverageField: "domains",
		CoverageKey:   "modules",
		CoverageSet:   moduleNames,
		UniqueKey:     "domain_name",
	}

	// Grouping precedes any domain scope, so it always gets a fresh session
	// per attempt.
	action := scopedAction(d.gw, domain.PerSubstep, "doc/grouping", docSystemPrompt, prompt, nil)
	raw, _, err := d.retry.Run(ctx, "doc/grouping", action,
		func(r string) domain.ValidationResult { return validate.Validate(r, rule) })
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Domains []domain.FunctionalDomain `json:"domains"`
	}
	decodeObject(raw, &parsed)

	// Validation already rejected repeated modules, so this only drops
	// names the model invented.
	known := make(map[string]bool, len(moduleNames))
	for _, m := range moduleNames {
		known[m] = true
	}
	seen := make(map[string]bool, len(moduleNames))
	for i := range parsed.Domains {
		var kept []string
		for _, m := range parsed.Domains[i].Modules {
			if known[m] && !seen[m] {
				seen[m] = true
				kept = append(kept, m)
			}
		}
		sort.Strings(kept)
		parsed.Domains[i].Modules = kept
	}
	sort.Slice(parsed.Domains, func(i, j int) bool {
		return parsed.Domains[i].Name < parsed.Domains[j].Name
	})
	return parsed.Domains, nil
}

// writeDomainDoc generates one domain's document in an isolated session.
// Repair attempts continue the same session, so the hint alone is enough.
func (d *DocGen) writeDomainDoc(ctx context.Context, dom domain.FunctionalDomain, semantic *SemanticManifest) (DomainDoc, error) {
	prompt := domainDocPrompt(dom, semantic.Modules, semantic.Files, d.forbidden)
	rule := validate.Rule{
		RequiredKeys:   []string{"overview", "behavior", "interactions", "constraints"},
		ForbiddenTerms: d.forbidden,
	}

	scope := "doc/domain/" + dom.Name
	sess, err := d.gw.Open(ctx, scope, docSystemPrompt)
	if err != nil {
		return DomainDoc{}, err
	}
	defer sess.Close()

	action := scopedAction(d.gw, d.policy, scope, docSystemPrompt, prompt, sess)
	raw, _, err := d.retry.Run(ctx, scope, action,
		func(r string) domain.ValidationResult { return validate.Validate(r, rule) })
	if err != nil {
		return DomainDoc{}, err
	}

	var doc DomainDoc
	decodeObject(raw, &doc)
	doc.Name = dom.Name
	return doc, nil
}

func (d *DocGen) productOverview(ctx context.Context, overview string, domains []domain.FunctionalDomain) (string, error) {
	prompt := productOverviewPrompt(overview, domains)
	rule := validate.Rule{
		RequiredKeys:   []string{"product_overview"},
		ForbiddenTerms: d.forbidden,
	}

	action := scopedAction(d.gw, domain.PerSubstep, "doc/overview", docSystemPrompt, prompt, nil)
	raw, _, err := d.retry.Run(ctx, "doc/overview", action,
		func(r string) domain.ValidationResult { return validate.Validate(r, rule) })
	if err != nil {
		return "", err
	}

	obj := validate.ExtractJSON(raw)
	text, _ := obj["product_overview"].(string)
	return text, nil
}

func (d *DocGen) snapshot(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := d.store.PutSnapshot(domain.StageDoc, name, data); err != nil {
		d.log.Warn("failed to write snapshot", zap.String("name", name), zap.Error(err))
	}
}
