package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prdgen/internal/domain"
)

func semanticFixture() *SemanticManifest {
	return &SemanticManifest{
		Modules: map[string]ModuleAnalysis{
			"auth": {Name: "auth", Overview: "Sign-in and account access.",
				Responsibilities: []string{"verify users"}},
			"pay": {Name: "pay", Overview: "Invoicing and payments.",
				Responsibilities: []string{"charge customers"}},
		},
		Files: map[string]FileAnalysis{
			"auth/login.go": {Path: "auth/login.go", Module: "auth", Purpose: "lets users sign in"},
			"pay/bill.go":   {Path: "pay/bill.go", Module: "pay", Purpose: "creates invoices"},
		},
	}
}

const domainDocJSON = `{"overview": "Users can access their accounts.",
"behavior": "People sign in once and stay signed in.",
"interactions": "Works with billing for paid features.",
"constraints": "Access expires after inactivity."}`

func (e *testEnv) newDocGen(forbidden []string) *DocGen {
	return NewDocGen(domain.PerDomain, e.gw, e.retry, e.store, zap.NewNop(), forbidden)
}

func TestDocGenGroupsAndWritesDocuments(t *testing.T) {
	env := newTestEnv(t)
	structure := &StructureManifest{Overview: "An auth and billing service."}
	semantic := semanticFixture()

	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		switch {
		case strings.Contains(prompt, "Group these modules"):
			return `{"domains": [
				{"domain_name": "Access", "domain_description": "sign-in", "business_value": "trust", "modules": ["auth"]},
				{"domain_name": "Billing", "domain_description": "money", "business_value": "revenue", "modules": ["pay"]}
			]}`, nil
		case strings.Contains(prompt, "requirements documentation"):
			return domainDocJSON, nil
		case strings.Contains(prompt, "product-level overview"):
			return `{"product_overview": "One product serving access and billing."}`, nil
		}
		return "", nil
	}

	manifest, err := env.newDocGen(nil).Run(context.Background(), structure, semantic)
	require.NoError(t, err)

	require.Len(t, manifest.Domains, 2)
	require.Len(t, manifest.Documents, 2)
	require.Equal(t, "Users can access their accounts.", manifest.Documents["Access"].Overview)
	require.Equal(t, "One product serving access and billing.", manifest.ProductOverview)

	_, ok, err := env.store.GetManifest(domain.StageDoc)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDocGenRepairsUncoveredModules(t *testing.T) {
	env := newTestEnv(t)
	structure := &StructureManifest{Overview: "A service."}
	semantic := semanticFixture()

	groupingCalls := 0
	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		switch {
		case strings.Contains(prompt, "Group these modules"):
			groupingCalls++
			if groupingCalls == 1 {
				return `{"domains": [{"domain_name": "Access", "domain_description": "d", "business_value": "v", "modules": ["auth"]}]}`, nil
			}
			// The repair names the uncovered module.
			if !strings.Contains(prompt, "pay") {
				return `{"domains": []}`, nil
			}
			return `{"domains": [
				{"domain_name": "Access", "domain_description": "d", "business_value": "v", "modules": ["auth"]},
				{"domain_name": "Billing", "domain_description": "d", "business_value": "v", "modules": ["pay"]}
			]}`, nil
		case strings.Contains(prompt, "requirements documentation"):
			return domainDocJSON, nil
		case strings.Contains(prompt, "product-level overview"):
			return `{"product_overview": "All covered."}`, nil
		}
		return "", nil
	}

	manifest, err := env.newDocGen(nil).Run(context.Background(), structure, semantic)
	require.NoError(t, err)
	require.Equal(t, 2, groupingCalls)
	require.Len(t, manifest.Domains, 2)
}

func TestDocGenRepairsDuplicateDomainNames(t *testing.T) {
	env := newTestEnv(t)
	structure := &StructureManifest{Overview: "A service."}
	semantic := semanticFixture()

	groupingCalls := 0
	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		switch {
		case strings.Contains(prompt, "Group these modules"):
			groupingCalls++
			if groupingCalls == 1 {
				// Every module covered, but the name repeats.
				return `{"domains": [
					{"domain_name": "Access", "domain_description": "d", "business_value": "v", "modules": ["auth"]},
					{"domain_name": "Access", "domain_description": "d", "business_value": "v", "modules": ["pay"]}
				]}`, nil
			}
			if !strings.Contains(prompt, "Access") {
				return `{"domains": []}`, nil
			}
			return `{"domains": [
				{"domain_name": "Access", "domain_description": "d", "business_value": "v", "modules": ["auth"]},
				{"domain_name": "Billing", "domain_description": "d", "business_value": "v", "modules": ["pay"]}
			]}`, nil
		case strings.Contains(prompt, "requirements documentation"):
			return domainDocJSON, nil
		case strings.Contains(prompt, "product-level overview"):
			return `{"product_overview": "All covered."}`, nil
		}
		return "", nil
	}

	manifest, err := env.newDocGen(nil).Run(context.Background(), structure, semantic)
	require.NoError(t, err)
	require.Equal(t, 2, groupingCalls)
	require.Len(t, manifest.Domains, 2)
	require.Len(t, manifest.Documents, 2)
}

func TestDocGenRejectsForbiddenTerms(t *testing.T) {
	env := newTestEnv(t)
	structure := &StructureManifest{Overview: "A service."}
	semantic := &SemanticManifest{
		Modules: map[string]ModuleAnalysis{
			"auth": {Name: "auth", Overview: "Sign-in."},
		},
		Files: map[string]FileAnalysis{},
	}

	docCalls := 0
	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		switch {
		case strings.Contains(prompt, "Group these modules"):
			return `{"domains": [{"domain_name": "Access", "domain_description": "d", "business_value": "v", "modules": ["auth"]}]}`, nil
		case strings.Contains(prompt, "requirements documentation") || docCalls > 0 && strings.Contains(prompt, "not allowed"):
			docCalls++
			if docCalls == 1 {
				return `{"overview": "The SQL layer signs users in.",
"behavior": "b", "interactions": "i", "constraints": "c"}`, nil
			}
			return domainDocJSON, nil
		case strings.Contains(prompt, "product-level overview"):
			return `{"product_overview": "Clean."}`, nil
		}
		return "", nil
	}

	manifest, err := env.newDocGen([]string{"SQL", "endpoint"}).Run(context.Background(), structure, semantic)
	require.NoError(t, err)
	require.Equal(t, 2, docCalls)
	require.NotContains(t, manifest.Documents["Access"].Overview, "SQL")
}
