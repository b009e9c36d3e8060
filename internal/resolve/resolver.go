// Package resolve turns catalog references into resolved entities. It
// locates and parses catalogs through the store and cache layers, guards
// every resolution chain against catalog cycles, builds the parameter
// scope of each entry and substitutes its payload into a typed tree,
// resolving nested references on the way.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/scenariokit/scenariocat/internal/cache"
	"github.com/scenariokit/scenariocat/internal/catalog"
	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/entity"
	"github.com/scenariokit/scenariocat/internal/graph"
	"github.com/scenariokit/scenariocat/internal/logging"
	"github.com/scenariokit/scenariocat/internal/params"
	"github.com/scenariokit/scenariocat/internal/schema"
	"github.com/scenariokit/scenariocat/internal/store"
)

// Config configures a Resolver. Store and Locator are required.
type Config struct {
	Store    *store.Store
	Locator  *store.Locator
	Registry *schema.Registry // defaults to schema.Default()
	Graph    *graph.Graph     // defaults to a fresh graph

	// Lenient drops caller bindings that neither the catalog nor the entry
	// declares instead of failing with UnknownParameter.
	Lenient bool
}

// Stats counts resolver activity.
type Stats struct {
	Parses        int64 // catalog files parsed
	Substitutions int64 // entry payloads substituted
	Store         store.Stats
	Files         cache.Stats
	Entities      cache.Stats
}

// Resolver resolves references. It is safe for concurrent use; all state
// shared between calls lives in its store and cache layers.
type Resolver struct {
	store    *store.Store
	locator  *store.Locator
	parser   *catalog.Parser
	registry *schema.Registry
	graph    *graph.Graph
	lenient  bool

	files    *cache.Layer[*catalog.File]
	entities *cache.Layer[*entity.Entity]
	flights  *flights

	parses        atomic.Int64
	substitutions atomic.Int64
}

// New returns a Resolver.
func New(cfg Config) *Resolver {
	reg := cfg.Registry
	if reg == nil {
		reg = schema.Default()
	}
	g := cfg.Graph
	if g == nil {
		g = graph.New()
	}
	return &Resolver{
		store:    cfg.Store,
		locator:  cfg.Locator,
		parser:   &catalog.Parser{Registry: reg},
		registry: reg,
		graph:    g,
		lenient:  cfg.Lenient,
		files:    cache.NewLayer[*catalog.File](),
		entities: cache.NewLayer[*entity.Entity](),
		flights:  newFlights(),
	}
}

// Graph returns the dependencies discovered so far.
func (r *Resolver) Graph() *graph.Graph { return r.graph }

// Stats returns a snapshot of the resolver counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Parses:        r.parses.Load(),
		Substitutions: r.substitutions.Load(),
		Store:         r.store.Stats(),
		Files:         r.files.Stats(),
		Entities:      r.entities.Stats(),
	}
}

// Resolve resolves ref. enclosing is the scope of the element holding the
// reference and may be nil. Concurrent calls with the same fingerprint
// share one resolution; a caller that gives up gets ctx.Err() while the
// resolution completes for the others. A failure inside a nested reference
// keeps that reference in Ref and records ref as the top-level one.
func (r *Resolver) Resolve(ctx context.Context, ref Reference, enclosing *params.Scope) (*entity.Entity, error) {
	key, bindings, err := r.prepare(ref, enclosing)
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx)
	for {
		if e, ok := r.entities.Lookup(key); ok {
			log.Debug("entity cache hit", "ref", ref.String(), "fingerprint", short(key))
			return e, nil
		}
		tr := r.graph.NewTraversal()
		c, owned, _ := r.flights.acquire(key, tr)
		if owned {
			log.Debug("resolving", "ref", ref.String(), "fingerprint", short(key))
			go r.own(context.WithoutCancel(ctx), tr, c, ref, key, bindings, enclosing)
		}
		if err := r.flights.wait(ctx, tr, c); err != nil {
			return nil, err
		}
		switch {
		case c.retry:
			continue
		case c.err != nil:
			return nil, caterr.WithTop(c.err, ref.String())
		}
		return c.entity, nil
	}
}

// ResolveAll resolves independent references concurrently and returns the
// entities in input order. The first failure cancels the rest.
func (r *Resolver) ResolveAll(ctx context.Context, refs []Reference, enclosing *params.Scope) ([]*entity.Entity, error) {
	out := make([]*entity.Entity, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			e, err := r.Resolve(ctx, ref, enclosing)
			if err != nil {
				return err
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveNested resolves a reference met while substituting a payload on
// chain tr. It joins an in-flight resolution of the same fingerprint
// unless the owning chain is itself waiting on tr; then it resolves on its
// own. A result it did not compute is checked for catalogs still open on
// tr, so a warm cache reports the same cycle as a cold one.
func (r *Resolver) resolveNested(ctx context.Context, tr *graph.Traversal, ref Reference, enclosing *params.Scope) (*entity.Entity, error) {
	key, bindings, err := r.prepare(ref, enclosing)
	if err != nil {
		return nil, err
	}
	for {
		if e, ok := r.entities.Lookup(key); ok {
			logging.FromContext(ctx).Debug("entity cache hit", "ref", ref.String(), "fingerprint", short(key))
			return reuse(tr, e)
		}
		c, owned, join := r.flights.acquire(key, tr)
		if owned {
			return r.own(ctx, tr, c, ref, key, bindings, enclosing)
		}
		if !join {
			e, err := r.compute(ctx, tr, ref, key, bindings, enclosing)
			if err != nil {
				return nil, err
			}
			e, _ = r.entities.Store(key, e)
			return e, nil
		}
		if err := r.flights.wait(ctx, tr, c); err != nil {
			return nil, err
		}
		switch {
		case c.retry:
			continue
		case c.err != nil:
			return nil, c.err
		}
		return reuse(tr, c.entity)
	}
}

// own computes the call c on chain tr, caches a success and releases the
// waiters.
func (r *Resolver) own(ctx context.Context, tr *graph.Traversal, c *call, ref Reference, key string, bindings map[string]string, enclosing *params.Scope) (*entity.Entity, error) {
	e, ok := r.entities.Peek(key)
	if ok {
		r.flights.finish(key, c, e, nil, false)
		return reuse(tr, e)
	}
	e, err := r.compute(ctx, tr, ref, key, bindings, enclosing)
	if err != nil {
		r.flights.finish(key, c, nil, err, chainSpecific(ctx, tr, err))
		return nil, err
	}
	e, _ = r.entities.Store(key, e)
	r.flights.finish(key, c, e, nil, false)
	return e, nil
}

// chainSpecific reports whether err came from tr rather than from the
// fingerprint: a cycle through a catalog still open on tr, or a cancelled
// context. Waiters on other chains resolve again instead of taking it.
func chainSpecific(ctx context.Context, tr *graph.Traversal, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var ce *caterr.Error
	if !errors.As(err, &ce) || ce.Kind != caterr.CircularDependency || len(ce.Cycle) == 0 {
		return false
	}
	return slices.Contains(tr.Stack(), ce.Cycle[0])
}

// reuse links a resolved entity into chain tr. It fails with
// CircularDependency when e or one of its nested entities comes from a
// catalog still open on tr.
func reuse(tr *graph.Traversal, e *entity.Entity) (*entity.Entity, error) {
	tr.Link(e.SourcePath)
	if err := reentry(tr.Stack(), e); err != nil {
		return nil, err
	}
	return e, nil
}

// reentry walks e and its nested entities in substitution order and
// returns the first one whose catalog is on stack, as the cycle the chain
// would have met resolving e itself.
func reentry(stack []string, e *entity.Entity) error {
	if len(stack) == 0 {
		return nil
	}
	seen := make(map[*entity.Entity]bool)
	var visit func(e *entity.Entity, via []string) error
	visit = func(e *entity.Entity, via []string) error {
		if i := slices.Index(stack, e.SourcePath); i >= 0 {
			cycle := append(slices.Clone(stack[i:]), via...)
			cycle = append(cycle, e.SourcePath)
			return &caterr.Error{Kind: caterr.CircularDependency, Ref: e.Reference, Path: e.SourcePath, Cycle: cycle}
		}
		if seen[e] {
			return nil
		}
		seen[e] = true
		via = append(slices.Clone(via), e.SourcePath)
		for _, n := range e.Nested {
			if err := visit(n, via); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(e, nil)
}

// prepare normalizes the caller bindings against the enclosing scope and
// computes the fingerprint.
func (r *Resolver) prepare(ref Reference, enclosing *params.Scope) (string, map[string]string, error) {
	normalized := make(map[string]string, len(ref.Bindings))
	for name, raw := range ref.Bindings {
		if !params.IsIdent(name) {
			return "", nil, &caterr.Error{Kind: caterr.UnknownParameter, Name: name, Ref: ref.String(), Reason: "not a valid parameter name"}
		}
		v, err := enclosing.Expand(raw)
		if err != nil {
			return "", nil, caterr.WithContext(err, ref.String(), "")
		}
		normalized[name] = v
	}
	return Fingerprint(ref, normalized, enclosing.Digest()), normalized, nil
}

func (r *Resolver) compute(ctx context.Context, tr *graph.Traversal, ref Reference, key string, bindings map[string]string, enclosing *params.Scope) (*entity.Entity, error) {
	path, err := r.locator.Locate(ctx, ref.Catalog)
	if err != nil {
		return nil, caterr.WithContext(err, ref.String(), "")
	}

	release, err := tr.Enter(path)
	if err != nil {
		return nil, caterr.WithContext(err, ref.String(), path)
	}
	defer release()

	file, err := r.file(ctx, path)
	if err != nil {
		return nil, caterr.WithContext(err, ref.String(), path)
	}

	entry, err := file.Lookup(ref.Kind, ref.Entry)
	if err != nil {
		return nil, caterr.WithContext(err, ref.String(), path)
	}

	scope, err := r.scope(ctx, ref, file, entry, bindings, enclosing)
	if err != nil {
		return nil, caterr.WithContext(err, ref.String(), path)
	}

	e := &entity.Entity{
		Kind:        entry.Kind,
		Name:        entry.Name,
		Catalog:     ref.Catalog,
		SourcePath:  path,
		Reference:   ref.String(),
		Fingerprint: key,
	}

	sub := &substitution{resolver: r, traversal: tr, scope: scope}
	root, err := sub.element(ctx, entry.Payload, "")
	if err != nil {
		return nil, caterr.WithContext(err, ref.String(), path)
	}
	r.substitutions.Add(1)

	e.Parameters, err = typedParameters(scope, entry.Parameters)
	if err != nil {
		return nil, caterr.WithContext(err, ref.String(), path)
	}
	e.Root = root
	e.Nested = sub.nested
	root.Origin = e
	return e, nil
}

// file returns the parsed catalog at path through the parsed-file layer.
func (r *Resolver) file(ctx context.Context, path string) (*catalog.File, error) {
	return r.files.Get(ctx, path, func(ctx context.Context) (*catalog.File, error) {
		data, err := r.store.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		tree, err := doctree.Decode(path, data)
		if err != nil {
			return nil, &caterr.Error{Kind: caterr.MalformedCatalog, Path: path, Err: err}
		}
		r.parses.Add(1)
		logging.FromContext(ctx).Debug("parsing catalog", "path", path)
		return r.parser.Parse(tree, path)
	})
}

// scope stacks the enclosing scope, the catalog defaults, the entry
// defaults and the caller bindings, lowest priority first.
func (r *Resolver) scope(ctx context.Context, ref Reference, file *catalog.File, entry *catalog.Entry, bindings map[string]string, enclosing *params.Scope) (*params.Scope, error) {
	var layers []*params.Layer
	if names := enclosing.Names(); len(names) > 0 {
		layers = append(layers, enclosing.AsLayer("enclosing"))
	}
	layers = append(layers,
		params.DeclarationLayer("catalog "+file.Name, file.Parameters),
		params.DeclarationLayer("entry "+entry.Name, entry.Parameters),
	)

	caller := params.NewLayer("bindings")
	for _, name := range sortedKeys(bindings) {
		decl, ok := declaration(name, entry.Parameters, file.Parameters)
		if !ok {
			if r.lenient {
				logging.FromContext(ctx).Warn("dropping undeclared binding", "ref", ref.String(), "parameter", name)
				continue
			}
			return nil, &caterr.Error{
				Kind:   caterr.UnknownParameter,
				Name:   name,
				Reason: fmt.Sprintf("%s declares no such parameter", ref),
			}
		}
		value := bindings[name]
		if _, err := decl.Type.Convert(value); err != nil {
			return nil, params.TypeMismatch(name, err)
		}
		caller.Set(params.Binding{Name: name, Type: decl.Type, Value: value, Expanded: true})
	}
	layers = append(layers, caller)
	return params.NewScope(layers...), nil
}

// declaration finds name among the entry's declarations, then the
// catalog's.
func declaration(name string, entryDecls, catalogDecls []params.Declaration) (params.Declaration, bool) {
	for _, decls := range [][]params.Declaration{entryDecls, catalogDecls} {
		for _, d := range decls {
			if d.Name == name {
				return d, true
			}
		}
	}
	return params.Declaration{}, false
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
