package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zclconf/go-cty/cty"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/entity"
	"github.com/scenariokit/scenariocat/internal/params"
	"github.com/scenariokit/scenariocat/internal/schema"
	"github.com/scenariokit/scenariocat/internal/store"
)

// doc wraps body in a catalog document called name.
func doc(name, body string) string {
	return `<OpenSCENARIO>
  <FileHeader revMajor="1" revMinor="2" author="test" date="2024-01-01T00:00:00" description="test"/>
  <Catalog name="` + name + `">` + body + `</Catalog>
</OpenSCENARIO>`
}

const sedanCatalog = `
<Vehicle name="sedan" vehicleCategory="car" mass_kg="${mass}">
  <ParameterDeclarations>
    <ParameterDeclaration name="mass" parameterType="double" value="1500"/>
  </ParameterDeclarations>
  <Performance maxSpeed="69.4" maxAcceleration="10" maxDeceleration="10"/>
</Vehicle>`

func newTestResolver(t *testing.T, files map[string]string, lenient bool) (*Resolver, *store.FSSource) {
	t.Helper()
	src := store.NewMemSource()
	for p, content := range files {
		if err := src.WriteFile(p, []byte(content)); err != nil {
			t.Fatalf("writing %s: %v", p, err)
		}
	}
	return newResolverOn(src, src, lenient), src
}

func newResolverOn(src store.Source, fs *store.FSSource, lenient bool) *Resolver {
	loc := store.NewLocator(fs, []store.Dir{{Name: "test", Path: "catalogs"}}, nil)
	return New(Config{Store: store.New(src), Locator: loc, Lenient: lenient})
}

func ref(catalog, entry string, kv ...string) Reference {
	r := Reference{Catalog: catalog, Entry: entry}
	for i := 0; i+1 < len(kv); i += 2 {
		r = r.WithBinding(kv[i], kv[i+1])
	}
	return r
}

func mustResolve(t *testing.T, r *Resolver, rf Reference, enclosing *params.Scope) *entity.Entity {
	t.Helper()
	e, err := r.Resolve(context.Background(), rf, enclosing)
	if err != nil {
		t.Fatalf("Resolve(%s) error: %v", rf, err)
	}
	return e
}

// wantKind fails unless err is a *caterr.Error of the given kind.
func wantKind(t *testing.T, err error, kind caterr.Kind) *caterr.Error {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
	var ce *caterr.Error
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not a *caterr.Error", err)
	}
	return ce
}

func property(t *testing.T, e *entity.Entity) string {
	t.Helper()
	p := e.Root.Child("Properties").Child("Property")
	if p == nil {
		t.Fatalf("entity %s has no Property", e.Reference)
	}
	return p.String("value")
}

func floatAttr(t *testing.T, el *entity.Element, name string) float64 {
	t.Helper()
	v, err := el.Float(name)
	if err != nil {
		t.Fatalf("Float(%s) error: %v", name, err)
	}
	return v
}

func catalogPath(name string) string {
	return filepath.Join("catalogs", name+".xosc")
}

func TestResolve_Sedan(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/vehicles.cat": doc("vehicles", sedanCatalog),
	}, false)

	e := mustResolve(t, r, ref("vehicles", "sedan"), nil)
	if e.Kind != schema.KindVehicle || e.Name != "sedan" {
		t.Errorf("Kind, Name = %q, %q; want %q, sedan", e.Kind, e.Name, schema.KindVehicle)
	}
	if want := filepath.Join("catalogs", "vehicles.cat"); e.SourcePath != want {
		t.Errorf("SourcePath = %q, want %q", e.SourcePath, want)
	}
	if got := floatAttr(t, e.Root, "mass_kg"); got != 1500 {
		t.Errorf("mass_kg = %v, want 1500", got)
	}
	if e.Root.Origin != e {
		t.Error("Root.Origin does not point back at the entity")
	}

	heavy := mustResolve(t, r, ref("vehicles", "sedan", "mass", "1800"), nil)
	if got := floatAttr(t, heavy.Root, "mass_kg"); got != 1800 {
		t.Errorf("mass_kg = %v, want 1800", got)
	}
	if !heavy.Parameters["mass"].Equals(cty.NumberIntVal(1800)).True() {
		t.Errorf("Parameters[mass] = %#v, want 1800", heavy.Parameters["mass"])
	}

	_, err := r.Resolve(context.Background(), ref("vehicles", "missing"), nil)
	wantKind(t, err, caterr.EntryNotFound)
}

func TestResolve_Idempotent(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/vehicles.cat": doc("vehicles", sedanCatalog),
	}, false)

	first := mustResolve(t, r, ref("vehicles", "sedan", "mass", "1600"), nil)
	second := mustResolve(t, r, ref("vehicles", "sedan", "mass", "1600"), nil)

	if first != second {
		t.Error("second Resolve returned a different entity")
	}
	stats := r.Stats()
	if stats.Parses != 1 || stats.Substitutions != 1 || stats.Entities.Writes != 1 {
		t.Errorf("Stats = %+v, want one parse, substitution and write", stats)
	}
	if stats.Entities.Hits != 1 {
		t.Errorf("Entities.Hits = %d, want 1", stats.Entities.Hits)
	}
}

func TestResolve_BindingOrderSharesFingerprint(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/ctl.xosc": doc("ctl", `
<Controller name="pid">
  <ParameterDeclarations>
    <ParameterDeclaration name="kp" parameterType="double" value="1"/>
    <ParameterDeclaration name="ki" parameterType="double" value="0"/>
  </ParameterDeclarations>
  <Properties><Property name="gains" value="${kp}/${ki}"/></Properties>
</Controller>`),
	}, false)

	a := mustResolve(t, r, ref("ctl", "pid", "kp", "2", "ki", "0.5"), nil)
	b := mustResolve(t, r, ref("ctl", "pid", "ki", "0.5", "kp", "2"), nil)

	if a != b {
		t.Error("binding order changed the resolved entity")
	}
	if got := property(t, a); got != "2/0.5" {
		t.Errorf("gains = %q, want 2/0.5", got)
	}
	if got := r.Stats().Entities.Writes; got != 1 {
		t.Errorf("Entities.Writes = %d, want 1", got)
	}

	c := mustResolve(t, r, ref("ctl", "pid", "kp", "3"), nil)
	if a.Fingerprint == c.Fingerprint {
		t.Error("different bindings share a fingerprint")
	}
}

const cyclicCatalogs = `
<Controller name="x"><Properties><CatalogReference catalogName="b" entryName="y"/></Properties></Controller>`

func TestResolve_CatalogCycle(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/a.xosc": doc("a", cyclicCatalogs),
		"catalogs/b.xosc": doc("b", `
<Controller name="y"><Properties><CatalogReference catalogName="a" entryName="x"/></Properties></Controller>`),
	}, false)

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), ref("a", "x"), nil)
		done <- err
	}()

	select {
	case err := <-done:
		ce := wantKind(t, err, caterr.CircularDependency)
		want := []string{catalogPath("a"), catalogPath("b"), catalogPath("a")}
		if diff := cmp.Diff(want, ce.Cycle); diff != "" {
			t.Errorf("Cycle mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cyclic resolution did not return")
	}
	if got := r.Stats().Entities.Writes; got != 0 {
		t.Errorf("Entities.Writes = %d, want 0", got)
	}
	if diff := cmp.Diff([][]string{{catalogPath("a"), catalogPath("b"), catalogPath("a")}}, r.Graph().Cycles()); diff != "" {
		t.Errorf("Graph cycles mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_CycleThroughCachedEntity(t *testing.T) {
	// a/x -> b/y -> a/z: b/y resolves on its own, but not inside a.
	files := map[string]string{
		"catalogs/a.xosc": doc("a", `
<Controller name="x"><Properties><CatalogReference catalogName="b" entryName="y"/></Properties></Controller>
<Controller name="z"/>`),
		"catalogs/b.xosc": doc("b", `
<Controller name="y"><Properties><CatalogReference catalogName="a" entryName="z"/></Properties></Controller>`),
	}

	cold, _ := newTestResolver(t, files, false)
	_, coldErr := cold.Resolve(context.Background(), ref("a", "x"), nil)
	coldCE := wantKind(t, coldErr, caterr.CircularDependency)

	warm, _ := newTestResolver(t, files, false)
	mustResolve(t, warm, ref("b", "y"), nil)
	_, warmErr := warm.Resolve(context.Background(), ref("a", "x"), nil)
	warmCE := wantKind(t, warmErr, caterr.CircularDependency)

	want := &caterr.Error{
		Kind:  caterr.CircularDependency,
		Ref:   "a/z",
		Top:   "a/x",
		Path:  catalogPath("a"),
		Cycle: []string{catalogPath("a"), catalogPath("b"), catalogPath("a")},
	}
	if diff := cmp.Diff(want, coldCE); diff != "" {
		t.Errorf("cold cache error mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(coldCE, warmCE); diff != "" {
		t.Errorf("warm cache error differs from cold (-cold +warm):\n%s", diff)
	}
	if coldErr.Error() != warmErr.Error() {
		t.Errorf("messages differ:\ncold: %s\nwarm: %s", coldErr, warmErr)
	}
}

func TestResolve_SameCatalogReferenceIsCycle(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/a.xosc": doc("a", `
<Controller name="x"><Properties><CatalogReference catalogName="a" entryName="y"/></Properties></Controller>
<Controller name="y"/>`),
	}, false)

	_, err := r.Resolve(context.Background(), ref("a", "x"), nil)
	ce := wantKind(t, err, caterr.CircularDependency)
	if diff := cmp.Diff([]string{catalogPath("a"), catalogPath("a")}, ce.Cycle); diff != "" {
		t.Errorf("Cycle mismatch (-want +got):\n%s", diff)
	}

	// Resolved alone, a/y is fine and cached; a/x still fails.
	mustResolve(t, r, ref("a", "y"), nil)
	_, err = r.Resolve(context.Background(), ref("a", "x"), nil)
	wantKind(t, err, caterr.CircularDependency)
}

func TestResolve_DiamondIsNotACycle(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/top.xosc": doc("top", `
<Controller name="t"><Properties>
  <CatalogReference catalogName="left" entryName="l"/>
  <CatalogReference catalogName="right" entryName="r"/>
</Properties></Controller>`),
		"catalogs/left.xosc":  doc("left", `<Controller name="l"><Properties><CatalogReference catalogName="base" entryName="b"/></Properties></Controller>`),
		"catalogs/right.xosc": doc("right", `<Controller name="r"><Properties><CatalogReference catalogName="base" entryName="b"/></Properties></Controller>`),
		"catalogs/base.xosc":  doc("base", `<Controller name="b" controllerType="movement"/>`),
	}, false)

	e := mustResolve(t, r, ref("top", "t"), nil)
	if len(e.Nested) != 2 {
		t.Fatalf("len(Nested) = %d, want 2", len(e.Nested))
	}
	if got := e.Nested[0].Reference; got != "left/l" {
		t.Errorf("Nested[0] = %q, want left/l", got)
	}
	if got := e.Nested[0].Nested[0].Reference; got != "base/b" {
		t.Errorf("Nested[0].Nested[0] = %q, want base/b", got)
	}

	// Both branches see the same empty scope, so the shared entry is
	// substituted once.
	if e.Nested[0].Nested[0] != e.Nested[1].Nested[0] {
		t.Error("shared entry was resolved twice")
	}
	if got := r.Graph().Cycles(); len(got) != 0 {
		t.Errorf("Cycles() = %v, want none", got)
	}
	if diff := cmp.Diff([]string{catalogPath("base")}, r.Graph().Dependencies(catalogPath("right"))); diff != "" {
		t.Errorf("Dependencies(right) mismatch (-want +got):\n%s", diff)
	}
	deps := r.Graph().Dependencies(catalogPath("top"))
	sort.Strings(deps)
	if diff := cmp.Diff([]string{catalogPath("left"), catalogPath("right")}, deps); diff != "" {
		t.Errorf("Dependencies(top) mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_ParameterCycle(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/p.xosc": doc("p", `
<Controller name="loop">
  <ParameterDeclarations>
    <ParameterDeclaration name="x" parameterType="string" value="${y}"/>
    <ParameterDeclaration name="y" parameterType="string" value="${x}"/>
  </ParameterDeclarations>
</Controller>`),
	}, false)

	_, err := r.Resolve(context.Background(), ref("p", "loop"), nil)
	ce := wantKind(t, err, caterr.ParameterCycle)
	if len(ce.Cycle) != 3 || ce.Cycle[0] != ce.Cycle[2] {
		t.Errorf("Cycle = %v, want a closed cycle of two names", ce.Cycle)
	}
}

func TestResolve_UnknownParameter(t *testing.T) {
	files := map[string]string{
		"catalogs/plain.xosc": doc("plain", `<Controller name="c" controllerType="all"/>`),
	}
	r, _ := newTestResolver(t, files, false)

	_, err := r.Resolve(context.Background(), ref("plain", "c", "foo", "1"), nil)
	if ce := wantKind(t, err, caterr.UnknownParameter); ce.Name != "foo" {
		t.Errorf("Name = %q, want foo", ce.Name)
	}

	_, err = r.Resolve(context.Background(), ref("plain", "c", "1foo", "1"), nil)
	wantKind(t, err, caterr.UnknownParameter)
}

func TestResolve_LenientDropsUnknownBindings(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/plain.xosc": doc("plain", `<Controller name="c" controllerType="all"/>`),
	}, true)

	e := mustResolve(t, r, ref("plain", "c", "foo", "1"), nil)
	if len(e.Parameters) != 0 {
		t.Errorf("Parameters = %v, want none", e.Parameters)
	}
}

func TestResolve_BindingTypeMismatch(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/vehicles.cat": doc("vehicles", sedanCatalog),
	}, false)

	_, err := r.Resolve(context.Background(), ref("vehicles", "sedan", "mass", "heavy"), nil)
	ce := wantKind(t, err, caterr.ParameterTypeMismatch)
	if ce.Name != "mass" || ce.Ref != "vehicles/sedan" {
		t.Errorf("Name, Ref = %q, %q; want mass, vehicles/sedan", ce.Name, ce.Ref)
	}
	if strings.Contains(err.Error(), "within") {
		t.Errorf("top-level failure rendered a second reference: %v", err)
	}
}

func TestResolve_SubstitutedFieldTypeMismatch(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/v.xosc": doc("v", `
<Vehicle name="box" vehicleCategory="truck">
  <ParameterDeclarations>
    <ParameterDeclaration name="top" parameterType="string" value="fast"/>
  </ParameterDeclarations>
  <Performance maxSpeed="${top}" maxAcceleration="1" maxDeceleration="1"/>
</Vehicle>`),
	}, false)

	_, err := r.Resolve(context.Background(), ref("v", "box"), nil)
	if ce := wantKind(t, err, caterr.ParameterTypeMismatch); ce.Name != "top" {
		t.Errorf("Name = %q, want top", ce.Name)
	}
}

func TestResolve_ScopeShadowing(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/speeds.xosc": doc("speeds", `
<ParameterDeclarations>
  <ParameterDeclaration name="speed" parameterType="double" value="10"/>
</ParameterDeclarations>
<Controller name="declares">
  <ParameterDeclarations>
    <ParameterDeclaration name="speed" parameterType="double" value="20"/>
  </ParameterDeclarations>
  <Properties><Property name="speed" value="${speed}"/></Properties>
</Controller>
<Controller name="inherits">
  <Properties><Property name="speed" value="${speed}"/></Properties>
</Controller>`),
	}, false)

	tests := []struct {
		name string
		ref  Reference
		want string
	}{
		{"caller", ref("speeds", "declares", "speed", "30"), "30"},
		{"entry", ref("speeds", "declares"), "20"},
		{"catalog", ref("speeds", "inherits"), "10"},
		{"caller over catalog", ref("speeds", "inherits", "speed", "40"), "40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustResolve(t, r, tt.ref, nil)
			if got := property(t, e); got != tt.want {
				t.Errorf("speed = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_Ambiguous(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/mixed.xosc": doc("mixed", `
<Vehicle name="x" vehicleCategory="car"/>
<Controller name="x"/>`),
	}, false)

	_, err := r.Resolve(context.Background(), ref("mixed", "x"), nil)
	wantKind(t, err, caterr.AmbiguousEntry)

	typed := ref("mixed", "x")
	typed.Kind = schema.KindController
	if e := mustResolve(t, r, typed, nil); e.Kind != schema.KindController {
		t.Errorf("Kind = %q, want %q", e.Kind, schema.KindController)
	}
}

const maneuverCatalogs = `
<Maneuver name="overtake">
  <ParameterDeclarations>
    <ParameterDeclaration name="boost" parameterType="double" value="3"/>
  </ParameterDeclarations>
  <Event name="accelerate" priority="override">
    <Action name="speed_up">
      <AbsoluteTargetSpeed value="${boost}"/>
      <CatalogReference catalogName="controllers" entryName="aggressive">
        <ParameterAssignments>
          <ParameterAssignment parameterRef="gain" value="${boost}"/>
        </ParameterAssignments>
      </CatalogReference>
    </Action>
  </Event>
</Maneuver>`

const controllerCatalog = `
<Controller name="aggressive" controllerType="longitudinal">
  <ParameterDeclarations>
    <ParameterDeclaration name="gain" parameterType="double" value="1"/>
  </ParameterDeclarations>
  <Properties><Property name="gain" value="${gain}"/></Properties>
</Controller>`

func TestResolve_NestedUsesEnclosingScope(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/maneuvers.xosc":   doc("maneuvers", maneuverCatalogs),
		"catalogs/controllers.xosc": doc("controllers", controllerCatalog),
	}, false)

	e := mustResolve(t, r, ref("maneuvers", "overtake", "boost", "4"), nil)
	if len(e.Nested) != 1 {
		t.Fatalf("len(Nested) = %d, want 1", len(e.Nested))
	}

	ctl := e.Nested[0]
	if ctl.Reference != "controllers/aggressive" {
		t.Errorf("Nested[0] = %q, want controllers/aggressive", ctl.Reference)
	}
	if got := property(t, ctl); got != "4" {
		t.Errorf("gain = %q, want 4", got)
	}
	if !ctl.Parameters["gain"].Equals(cty.NumberIntVal(4)).True() {
		t.Errorf("Parameters[gain] = %#v, want 4", ctl.Parameters["gain"])
	}

	action := e.Root.Child("Event").Child("Action")
	if action == nil {
		t.Fatal("overtake has no Event/Action")
	}
	if action.Child(schema.KindController) != ctl.Root {
		t.Error("CatalogReference was not replaced by the controller root")
	}
	if got := floatAttr(t, action.Child("AbsoluteTargetSpeed"), "value"); got != 4 {
		t.Errorf("AbsoluteTargetSpeed = %v, want 4", got)
	}

	if diff := cmp.Diff([]string{catalogPath("controllers")}, r.Graph().Dependencies(catalogPath("maneuvers"))); diff != "" {
		t.Errorf("Dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_NestedFailureNamesBothReferences(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/maneuvers.xosc": doc("maneuvers", `
<Maneuver name="overtake">
  <Event name="e"><Action name="a">
    <CatalogReference catalogName="controllers" entryName="ghost"/>
  </Action></Event>
</Maneuver>`),
		"catalogs/controllers.xosc": doc("controllers", controllerCatalog),
	}, false)

	_, err := r.Resolve(context.Background(), ref("maneuvers", "overtake"), nil)
	ce := wantKind(t, err, caterr.EntryNotFound)
	if ce.Ref != "controllers/ghost" || ce.Top != "maneuvers/overtake" {
		t.Errorf("Ref, Top = %q, %q; want controllers/ghost, maneuvers/overtake", ce.Ref, ce.Top)
	}
	for _, want := range []string{"reference controllers/ghost", "within maneuvers/overtake"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
}

func TestResolve_NestedKindFromParent(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/m.xosc": doc("m", `
<Maneuver name="m">
  <Event name="e">
    <Action name="a">
      <AssignControllerAction>
        <CatalogReference catalogName="mixed" entryName="x"/>
      </AssignControllerAction>
    </Action>
  </Event>
</Maneuver>`),
		"catalogs/mixed.xosc": doc("mixed", `
<Vehicle name="x" vehicleCategory="car"/>
<Controller name="x"/>`),
	}, false)

	e := mustResolve(t, r, ref("m", "m"), nil)
	if len(e.Nested) != 1 {
		t.Fatalf("len(Nested) = %d, want 1", len(e.Nested))
	}
	if got := e.Nested[0].Kind; got != schema.KindController {
		t.Errorf("Nested[0].Kind = %q, want %q", got, schema.KindController)
	}
}

func TestResolve_EnclosingScopeChangesFingerprint(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/controllers.xosc": doc("controllers", controllerCatalog),
	}, false)

	outer := func(v string) *params.Scope {
		l := params.NewLayer("scenario")
		l.Set(params.Binding{Name: "g", Type: schema.TDouble, Value: v})
		return params.NewScope(l)
	}

	a := mustResolve(t, r, ref("controllers", "aggressive", "gain", "${g}"), outer("5"))
	b := mustResolve(t, r, ref("controllers", "aggressive", "gain", "${g}"), outer("6"))

	if a.Fingerprint == b.Fingerprint {
		t.Error("different enclosing values share a fingerprint")
	}
	if got := property(t, a); got != "5" {
		t.Errorf("gain under g=5 = %q", got)
	}
	if got := property(t, b); got != "6" {
		t.Errorf("gain under g=6 = %q", got)
	}

	_, err := r.Resolve(context.Background(), ref("controllers", "aggressive", "gain", "${nope}"), outer("5"))
	wantKind(t, err, caterr.UndeclaredParameter)
}

func TestResolve_ConcurrentSameFingerprint(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/vehicles.cat": doc("vehicles", sedanCatalog),
	}, false)

	const n = 32
	results := make([]*entity.Entity, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), ref("vehicles", "sedan", "mass", "1700"), nil)
		}()
	}
	wg.Wait()

	for i, e := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if e != results[0] {
			t.Errorf("caller %d got a different entity", i)
		}
	}
	if s := r.Stats(); s.Substitutions != 1 || s.Parses != 1 {
		t.Errorf("Stats = %+v, want one parse and one substitution", s)
	}
}

// sharedControllerFiles holds catalogs p..q whose maneuver m references
// the same controller with an empty scope.
func sharedControllerFiles(names ...string) map[string]string {
	files := map[string]string{
		"catalogs/controllers.xosc": doc("controllers", controllerCatalog),
	}
	for _, name := range names {
		files["catalogs/"+name+".xosc"] = doc(name, `
<Maneuver name="m">
  <Event name="e"><Action name="act">
    <CatalogReference catalogName="controllers" entryName="aggressive"/>
  </Action></Event>
</Maneuver>`)
	}
	return files
}

func TestResolve_NestedChainsShareOneResolution(t *testing.T) {
	mem := store.NewMemSource()
	for p, content := range sharedControllerFiles("p", "q") {
		if err := mem.WriteFile(p, []byte(content)); err != nil {
			t.Fatalf("writing %s: %v", p, err)
		}
	}
	gs := &gatedSource{FSSource: mem, release: make(chan struct{}), gate: "controllers.xosc"}
	r := newResolverOn(gs, mem, false)

	var wg sync.WaitGroup
	results := make([]*entity.Entity, 2)
	errs := make([]error, 2)
	for i, name := range []string{"p", "q"} {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), ref(name, "m"), nil)
		}()
	}
	// Both chains reach the shared controller while its catalog read is
	// held back.
	time.Sleep(50 * time.Millisecond)
	close(gs.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("chain %d: %v", i, err)
		}
	}
	if results[0].Nested[0] != results[1].Nested[0] {
		t.Error("chains hold different controller entities")
	}
	if got := r.Stats().Substitutions; got != 3 {
		t.Errorf("Substitutions = %d, want 3 (p, q and one controller)", got)
	}
}

func TestResolve_ConcurrentCyclicChainsReturn(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/a.xosc": doc("a", cyclicCatalogs),
		"catalogs/b.xosc": doc("b", `
<Controller name="y"><Properties><CatalogReference catalogName="a" entryName="x"/></Properties></Controller>`),
	}, false)

	for i := 0; i < 20; i++ {
		done := make(chan error, 2)
		for _, rf := range []Reference{ref("a", "x"), ref("b", "y")} {
			rf := rf
			go func() {
				_, err := r.Resolve(context.Background(), rf, nil)
				done <- err
			}()
		}
		for i := 0; i < 2; i++ {
			select {
			case err := <-done:
				wantKind(t, err, caterr.CircularDependency)
			case <-time.After(5 * time.Second):
				t.Fatal("concurrent cyclic chains deadlocked")
			}
		}
	}
}

func TestResolveAll_SharedCatalogIsNotACycle(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	var refs []Reference
	for _, name := range names {
		refs = append(refs, ref(name, "m"))
	}
	r, _ := newTestResolver(t, sharedControllerFiles(names...), false)

	for i := 0; i < 5; i++ {
		got, err := r.ResolveAll(context.Background(), refs, nil)
		if err != nil {
			t.Fatalf("ResolveAll error: %v", err)
		}
		if len(got) != len(refs) {
			t.Fatalf("len = %d, want %d", len(got), len(refs))
		}
		for j, e := range got {
			if e.Reference != refs[j].String() {
				t.Errorf("result %d = %q, want %q", j, e.Reference, refs[j])
			}
		}
	}
	if got := r.Stats().Substitutions; got != int64(len(names)+1) {
		t.Errorf("Substitutions = %d, want %d", got, len(names)+1)
	}
}

func TestResolveAll_FirstError(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/vehicles.cat": doc("vehicles", sedanCatalog),
	}, false)

	_, err := r.ResolveAll(context.Background(), []Reference{
		ref("vehicles", "sedan"),
		ref("nowhere", "sedan"),
	}, nil)
	wantKind(t, err, caterr.NotFound)
}

// gatedSource blocks reads of paths ending in gate, or of every path when
// gate is empty, until release is closed.
type gatedSource struct {
	*store.FSSource
	release chan struct{}
	gate    string
	reads   atomic.Int64
}

func (g *gatedSource) ReadFile(ctx context.Context, path string) ([]byte, error) {
	g.reads.Add(1)
	if strings.HasSuffix(path, g.gate) {
		<-g.release
	}
	return g.FSSource.ReadFile(ctx, path)
}

func TestResolve_AbandonedWaiter(t *testing.T) {
	mem := store.NewMemSource()
	if err := mem.WriteFile("catalogs/vehicles.cat", []byte(doc("vehicles", sedanCatalog))); err != nil {
		t.Fatal(err)
	}
	gs := &gatedSource{FSSource: mem, release: make(chan struct{})}
	r := newResolverOn(gs, mem, false)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, ref("vehicles", "sedan"), nil)
		first <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type result struct {
		e   *entity.Entity
		err error
	}
	second := make(chan result, 1)
	go func() {
		e, err := r.Resolve(context.Background(), ref("vehicles", "sedan"), nil)
		second <- result{e, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned Resolve error = %v, want context.Canceled", err)
	}

	close(gs.release)
	res := <-second
	if res.err != nil {
		t.Fatalf("second Resolve error: %v", res.err)
	}
	if res.e.Name != "sedan" {
		t.Errorf("Name = %q, want sedan", res.e.Name)
	}
	if got := gs.reads.Load(); got != 1 {
		t.Errorf("reads = %d, want 1", got)
	}
	if got := r.Stats().Substitutions; got != 1 {
		t.Errorf("Substitutions = %d, want 1", got)
	}
}

func TestResolve_FailuresAreNotCached(t *testing.T) {
	r, src := newTestResolver(t, map[string]string{}, false)

	_, err := r.Resolve(context.Background(), ref("vehicles", "sedan"), nil)
	wantKind(t, err, caterr.NotFound)

	if err := src.WriteFile("catalogs/vehicles.cat", []byte(doc("vehicles", sedanCatalog))); err != nil {
		t.Fatal(err)
	}
	if e := mustResolve(t, r, ref("vehicles", "sedan"), nil); e.Name != "sedan" {
		t.Errorf("Name = %q, want sedan", e.Name)
	}
	if got := r.Stats().Entities.Writes; got != 1 {
		t.Errorf("Entities.Writes = %d, want 1", got)
	}
}

func TestResolve_MalformedCatalog(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		"catalogs/broken.xosc": "<OpenSCENARIO><Catalog",
		"catalogs/nohdr.xosc":  `<OpenSCENARIO><Catalog name="x"/></OpenSCENARIO>`,
	}, false)

	for _, name := range []string{"broken", "nohdr"} {
		_, err := r.Resolve(context.Background(), ref(name, "x"), nil)
		ce := wantKind(t, err, caterr.MalformedCatalog)
		if ce.Path != catalogPath(name) {
			t.Errorf("%s: Path = %q, want %q", name, ce.Path, catalogPath(name))
		}
	}
}
