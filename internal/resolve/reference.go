package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/schema"
)

// Reference identifies a catalog entry and the parameter values to resolve
// it with. Kind narrows the lookup to one entity kind; empty searches every
// kind. Treat a Reference as immutable: WithBinding returns a copy.
type Reference struct {
	Catalog  string            `json:"catalog"`
	Entry    string            `json:"entry"`
	Kind     string            `json:"kind,omitempty"`
	Bindings map[string]string `json:"bindings,omitempty"`
}

// String renders the reference as catalog/entry.
func (r Reference) String() string {
	return r.Catalog + "/" + r.Entry
}

// WithBinding returns a copy of r with name bound to value.
func (r Reference) WithBinding(name, value string) Reference {
	b := make(map[string]string, len(r.Bindings)+1)
	for k, v := range r.Bindings {
		b[k] = v
	}
	b[name] = value
	r.Bindings = b
	return r
}

// impliedKinds maps the element holding a CatalogReference to the entity
// kind the reference must name. Parents not listed accept any kind.
var impliedKinds = map[string]string{
	"ObjectController":       schema.KindController,
	"AssignControllerAction": schema.KindController,
	"ManeuverGroup":          schema.KindManeuver,
	"AssignRouteAction":      schema.KindRoute,
	"TrajectoryRef":          schema.KindTrajectory,
	"FollowTrajectoryAction": schema.KindTrajectory,
	"EnvironmentAction":      schema.KindEnvironment,
}

// KindFor returns the entity kind implied by a CatalogReference's parent
// element, or "" when any kind may be referenced.
func KindFor(parentTag string) string {
	return impliedKinds[parentTag]
}

// ReferenceFromNode reads a CatalogReference element. Assignment values
// are kept as written; placeholders in them are expanded against the
// enclosing scope at resolution time.
func ReferenceFromNode(n *doctree.Node, kind string) (Reference, error) {
	if n == nil || n.Tag != schema.TagCatalogReference {
		return Reference{}, caterr.New(caterr.MalformedCatalog, "not a %s element", schema.TagCatalogReference)
	}
	ref := Reference{
		Catalog: n.AttrOr("catalogName", ""),
		Entry:   n.AttrOr("entryName", ""),
		Kind:    kind,
	}
	if ref.Catalog == "" || ref.Entry == "" {
		return Reference{}, caterr.New(caterr.MalformedCatalog,
			"line %d: %s needs catalogName and entryName", n.Line, schema.TagCatalogReference)
	}

	for _, block := range n.ChildrenByTag(schema.TagParameterAssignments) {
		for _, a := range block.ChildrenByTag(schema.TagParameterAssignment) {
			name := a.AttrOr("parameterRef", "")
			if name == "" {
				return Reference{}, caterr.New(caterr.MalformedCatalog,
					"line %d: %s without parameterRef", a.Line, schema.TagParameterAssignment)
			}
			if ref.Bindings == nil {
				ref.Bindings = make(map[string]string)
			}
			if _, dup := ref.Bindings[name]; dup {
				return Reference{}, caterr.New(caterr.MalformedCatalog,
					"line %d: parameter %q assigned twice in reference %s", a.Line, name, ref)
			}
			ref.Bindings[name] = a.AttrOr("value", "")
		}
	}
	return ref, nil
}

// Fingerprint is the cache key of a reference: the catalog, entry and kind,
// the normalized bindings in name order, and the digest of the scope the
// reference is resolved in.
func Fingerprint(ref Reference, normalized map[string]string, scopeDigest string) string {
	names := make([]string, 0, len(normalized))
	for n := range normalized {
		names = append(names, n)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", ref.Catalog, ref.Entry, ref.Kind)
	for _, n := range names {
		h.Write([]byte(n))
		h.Write([]byte{'='})
		h.Write([]byte(normalized[n]))
		h.Write([]byte{0})
	}
	h.Write([]byte{0})
	h.Write([]byte(scopeDigest))
	return hex.EncodeToString(h.Sum(nil))
}

// ParseBinding splits a "name=value" argument.
func ParseBinding(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("binding %q: want name=value", s)
	}
	return name, value, nil
}
