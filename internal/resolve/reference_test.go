package resolve

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/schema"
)

func node(t *testing.T, src string) *doctree.Node {
	t.Helper()
	n, err := doctree.DecodeXML(strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeXML: %v", err)
	}
	return n
}

func TestReferenceFromNode(t *testing.T) {
	n := node(t, `<CatalogReference catalogName="controllers" entryName="aggressive">
  <ParameterAssignments>
    <ParameterAssignment parameterRef="gain" value="${boost}"/>
    <ParameterAssignment parameterRef="mode" value="sport"/>
  </ParameterAssignments>
</CatalogReference>`)

	got, err := ReferenceFromNode(n, schema.KindController)
	if err != nil {
		t.Fatalf("ReferenceFromNode error: %v", err)
	}
	want := Reference{
		Catalog:  "controllers",
		Entry:    "aggressive",
		Kind:     schema.KindController,
		Bindings: map[string]string{"gain": "${boost}", "mode": "sport"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReferenceFromNode mismatch (-want +got):\n%s", diff)
	}
	if got.String() != "controllers/aggressive" {
		t.Errorf("String() = %q", got.String())
	}
}

func TestReferenceFromNode_Errors(t *testing.T) {
	tests := map[string]string{
		"wrong tag":     `<Vehicle name="x"/>`,
		"no entry":      `<CatalogReference catalogName="a"/>`,
		"no catalog":    `<CatalogReference entryName="a"/>`,
		"no paramRef":   `<CatalogReference catalogName="a" entryName="b"><ParameterAssignments><ParameterAssignment value="1"/></ParameterAssignments></CatalogReference>`,
		"double assign": `<CatalogReference catalogName="a" entryName="b"><ParameterAssignments><ParameterAssignment parameterRef="x" value="1"/><ParameterAssignment parameterRef="x" value="2"/></ParameterAssignments></CatalogReference>`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReferenceFromNode(node(t, src), "")
			if caterr.KindOf(err) != caterr.MalformedCatalog {
				t.Errorf("error = %v, want MalformedCatalog", err)
			}
		})
	}
}

func TestWithBindingCopies(t *testing.T) {
	base := Reference{Catalog: "a", Entry: "b", Bindings: map[string]string{"x": "1"}}
	next := base.WithBinding("x", "2")
	if base.Bindings["x"] != "1" {
		t.Errorf("WithBinding mutated the original: %v", base.Bindings)
	}
	if next.Bindings["x"] != "2" {
		t.Errorf("WithBinding = %v", next.Bindings)
	}
}

func TestFingerprint(t *testing.T) {
	r := Reference{Catalog: "vehicles", Entry: "sedan"}
	base := Fingerprint(r, map[string]string{"a": "1", "b": "2"}, "")

	if got := Fingerprint(r, map[string]string{"b": "2", "a": "1"}, ""); got != base {
		t.Error("fingerprint depends on binding order")
	}
	variants := map[string]string{
		"value":  Fingerprint(r, map[string]string{"a": "1", "b": "3"}, ""),
		"scope":  Fingerprint(r, map[string]string{"a": "1", "b": "2"}, "digest"),
		"kind":   Fingerprint(Reference{Catalog: "vehicles", Entry: "sedan", Kind: schema.KindVehicle}, map[string]string{"a": "1", "b": "2"}, ""),
		"entry":  Fingerprint(Reference{Catalog: "vehicles", Entry: "van"}, map[string]string{"a": "1", "b": "2"}, ""),
		"merged": Fingerprint(r, map[string]string{"a": "1=b", "": "2"}, ""),
	}
	for name, fp := range variants {
		if fp == base {
			t.Errorf("fingerprint ignores %s", name)
		}
	}
}

func TestParseBinding(t *testing.T) {
	name, value, err := ParseBinding("speed=30=fast")
	if err != nil || name != "speed" || value != "30=fast" {
		t.Errorf("ParseBinding = %q, %q, %v", name, value, err)
	}
	for _, bad := range []string{"speed", "=30", ""} {
		if _, _, err := ParseBinding(bad); err == nil {
			t.Errorf("ParseBinding(%q) succeeded", bad)
		}
	}
}

func TestKindFor(t *testing.T) {
	if got := KindFor("AssignRouteAction"); got != schema.KindRoute {
		t.Errorf("KindFor(AssignRouteAction) = %q", got)
	}
	if got := KindFor("Properties"); got != "" {
		t.Errorf("KindFor(Properties) = %q, want any kind", got)
	}
}
