package branding

import "testing"

func TestEmbeddedIdentity(t *testing.T) {
	if got := CLIName(); got != "scenariocat" {
		t.Errorf("CLIName() = %q, want %q", got, "scenariocat")
	}
	if got := HomeDir(); got != ".scenariocat" {
		t.Errorf("HomeDir() = %q, want %q", got, ".scenariocat")
	}
	if got := EnvVar("catalog_repo"); got != "SCENARIOCAT_CATALOG_REPO" {
		t.Errorf("EnvVar(catalog_repo) = %q", got)
	}
	if CatalogRepoURL() == "" {
		t.Error("CatalogRepoURL() is empty")
	}
}
