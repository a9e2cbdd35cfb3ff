package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Reserved vertex names. Neither may be registered as a node
const (
	Start = "__start__"
	End   = "__end__"
)

// Route is the outcome of the graph's conditional edge
type Route int

const (
	RouteContinue Route = iota
	RouteSkipToReport
)

func (r Route) String() string {
	switch r {
	case RouteContinue:
		return "continue"
	case RouteSkipToReport:
		return "skip_to_report"
	default:
		return fmt.Sprintf("route(%d)", int(r))
	}
}

// Router selects the outgoing route of a branching node from the merged state
type Router func(s *State) Route

// NodeFunc runs a stage against a private snapshot of the state
type NodeFunc func(ctx context.Context, s *State) (Delta, error)

// RecoverFunc converts a stage error (or panic) into a placeholder delta
type RecoverFunc func(s *State, err error) Delta

// Node is a named stage. A node without Recover aborts the run on error
type Node struct {
	Name    string
	Run     NodeFunc
	Recover RecoverFunc
}

// Edge is a directed connection. Conditional edges carry the Route that
// activates them
type Edge struct {
	From        string
	To          string
	Conditional bool
	Route       Route
}

type branch struct {
	from    string
	router  Router
	targets map[Route]string
}

// Builder assembles and validates a graph definition
type Builder struct {
	nodes  map[string]Node
	order  []string
	edges  []Edge
	branch *branch
	errs   []error
}

// NewBuilder returns an empty builder
func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]Node)}
}

// AddNode registers a stage
func (b *Builder) AddNode(n Node) *Builder {
	switch {
	case n.Name == "" || n.Name == Start || n.Name == End:
		b.errs = append(b.errs, fmt.Errorf("%w: name %q", ErrInvalidNode, n.Name))
		return b
	case n.Run == nil:
		b.errs = append(b.errs, fmt.Errorf("%w: %s has no Run func", ErrInvalidNode, n.Name))
		return b
	}
	if _, exists := b.nodes[n.Name]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateNode, n.Name))
		return b
	}
	b.nodes[n.Name] = n
	b.order = append(b.order, n.Name)
	return b
}

// AddEdge adds a static edge. Several edges out of one node fan out;
// several edges into one node fan in
func (b *Builder) AddEdge(from, to string) *Builder {
	for _, e := range b.edges {
		if !e.Conditional && e.From == from && e.To == to {
			return b
		}
	}
	b.edges = append(b.edges, Edge{From: from, To: to})
	return b
}

// AddConditionalEdge installs the graph's single branch. Every Route must
// be mapped to a target
func (b *Builder) AddConditionalEdge(from string, router Router, targets map[Route]string) *Builder {
	if b.branch != nil {
		b.errs = append(b.errs, fmt.Errorf("%w: only one conditional edge is supported (already on %s)", ErrBranch, b.branch.from))
		return b
	}
	if router == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: nil router on %s", ErrBranch, from))
		return b
	}
	br := &branch{from: from, router: router, targets: make(map[Route]string, len(targets))}
	for r, to := range targets {
		br.targets[r] = to
	}
	b.branch = br

	routes := make([]Route, 0, len(targets))
	for r := range targets {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i] < routes[j] })
	for _, r := range routes {
		b.edges = append(b.edges, Edge{From: from, To: targets[r], Conditional: true, Route: r})
	}
	return b
}

// Build validates the definition: endpoints exist, the branch is complete,
// there are no cycles and every node is reachable from Start
func (b *Builder) Build() (*Graph, error) {
	errs := append([]error(nil), b.errs...)

	known := func(name string) bool {
		_, ok := b.nodes[name]
		return ok
	}

	hasEntry := false
	for _, e := range b.edges {
		if e.From == Start {
			hasEntry = true
		}
		if e.From == End || (e.From != Start && !known(e.From)) {
			errs = append(errs, fmt.Errorf("%w: edge source %q", ErrNodeNotFound, e.From))
		}
		if e.To == Start || (e.To != End && !known(e.To)) {
			errs = append(errs, fmt.Errorf("%w: edge target %q", ErrNodeNotFound, e.To))
		}
	}
	if !hasEntry {
		errs = append(errs, ErrNoEntry)
	}

	if br := b.branch; br != nil {
		if !known(br.from) {
			errs = append(errs, fmt.Errorf("%w: branch source %q is not a node", ErrBranch, br.from))
		}
		for _, r := range []Route{RouteContinue, RouteSkipToReport} {
			if _, ok := br.targets[r]; !ok {
				errs = append(errs, fmt.Errorf("%w: route %s has no target", ErrBranch, r))
			}
		}
		for _, e := range b.edges {
			if !e.Conditional && e.From == br.from {
				errs = append(errs, fmt.Errorf("%w: %s mixes static and conditional edges", ErrBranch, br.from))
				break
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g := &Graph{
		nodes:  b.nodes,
		order:  append([]string(nil), b.order...),
		edges:  append([]Edge(nil), b.edges...),
		branch: b.branch,
		in:     make(map[string][]int),
		out:    make(map[string][]int),
	}
	for i, e := range g.edges {
		g.out[e.From] = append(g.out[e.From], i)
		g.in[e.To] = append(g.in[e.To], i)
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	if err := g.checkReachable(); err != nil {
		return nil, err
	}
	return g, nil
}

// Graph is a validated, immutable stage DAG. One Graph may run many times,
// including concurrently
type Graph struct {
	nodes  map[string]Node
	order  []string
	edges  []Edge
	branch *branch
	in     map[string][]int
	out    map[string][]int
}

// Nodes returns node names in registration order
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Edges returns all edges, static and conditional
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// checkAcyclic runs Kahn's algorithm over nodes plus the two reserved vertices
func (g *Graph) checkAcyclic() error {
	vertices := append([]string{Start, End}, g.order...)
	indeg := make(map[string]int, len(vertices))
	for _, v := range vertices {
		indeg[v] = len(g.in[v])
	}

	var queue []string
	for _, v := range vertices {
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}

	visited := 0
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		visited++
		for _, ei := range g.out[v] {
			to := g.edges[ei].To
			indeg[to]--
			if indeg[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if visited != len(vertices) {
		var stuck []string
		for _, v := range g.order {
			if indeg[v] > 0 {
				stuck = append(stuck, v)
			}
		}
		return fmt.Errorf("%w: involving %v", ErrCycle, stuck)
	}
	return nil
}

func (g *Graph) checkReachable() error {
	seen := map[string]bool{Start: true}
	queue := []string{Start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, ei := range g.out[v] {
			to := g.edges[ei].To
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}

	var missing []string
	for _, name := range g.order {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnreachable, missing)
	}
	return nil
}

// Snapshot is the state after a completed superstep
type Snapshot struct {
	RunID string   `json:"run_id"`
	Step  int      `json:"step"`
	Nodes []string `json:"nodes"`
	State *State   `json:"state"`
}

// Checkpointer persists snapshots. Failures are reported as events and
// never abort the run
type Checkpointer interface {
	Save(ctx context.Context, snap Snapshot) error
}

// RunConfig tunes a single execution
type RunConfig struct {
	MaxParallel  int // Concurrent nodes per superstep, 0 = unbounded
	Observer     Observer
	Checkpointer Checkpointer
}

type edgeStatus int

const (
	edgePending edgeStatus = iota
	edgeFired
	edgeDead
)

type nodeStatus int

const (
	nodePending nodeStatus = iota
	nodeDone
	nodeSkipped
)

// run holds the bookkeeping of one execution
type run struct {
	g     *Graph
	edges []edgeStatus
	nodes map[string]nodeStatus
}

// Run executes the graph in supersteps. Every node whose incoming edges are
// all resolved (and at least one fired) runs in the next step, concurrently
// with its siblings, on its own clone of the state. Deltas are applied in
// node-name order after the whole step finished, so the merged state does
// not depend on completion order. A node whose incoming edges are all dead
// (its branch was not taken) is skipped and its outgoing edges die too.
//
// The caller's state is not modified; the final state is returned
func (g *Graph) Run(ctx context.Context, initial *State, cfg RunConfig) (*State, error) {
	state := initial.Clone()
	obs := cfg.Observer
	r := &run{
		g:     g,
		edges: make([]edgeStatus, len(g.edges)),
		nodes: make(map[string]nodeStatus, len(g.order)),
	}
	for _, ei := range g.out[Start] {
		r.edges[ei] = edgeFired
	}

	started := time.Now()
	step := 0
	for {
		if err := ctx.Err(); err != nil {
			emit(obs, Event{Type: EventRunError, Step: step, Error: err})
			return state, err
		}

		r.propagateSkips(obs, step)
		ready := r.ready()
		if len(ready) == 0 {
			break
		}
		step++

		deltas, err := g.runStep(ctx, step, state, ready, cfg)
		if err != nil {
			emit(obs, Event{Type: EventRunError, Step: step, Error: err})
			return state, err
		}
		for i, name := range ready {
			state.Apply(deltas[i])
			r.nodes[name] = nodeDone
		}
		for _, name := range ready {
			if err := r.release(name, state, obs, step); err != nil {
				emit(obs, Event{Type: EventRunError, Step: step, Node: name, Error: err})
				return state, err
			}
		}

		if cfg.Checkpointer != nil {
			snap := Snapshot{RunID: state.RunID, Step: step, Nodes: ready, State: state.Clone()}
			if err := cfg.Checkpointer.Save(ctx, snap); err != nil {
				emit(obs, Event{Type: EventCheckpoint, Step: step, Error: err})
			} else {
				emit(obs, Event{Type: EventCheckpoint, Step: step})
			}
		}
		emit(obs, Event{
			Type:     EventStepComplete,
			Step:     step,
			Metadata: map[string]any{"nodes": ready, "evidence": state.EvidenceCount(), "opinions": len(state.Opinions)},
		})
	}

	emit(obs, Event{Type: EventRunComplete, Step: step, Elapsed: time.Since(started)})
	return state, nil
}

// ready returns pending nodes whose inputs are all resolved with at least
// one fired edge, sorted by name
func (r *run) ready() []string {
	var out []string
	for _, name := range r.g.order {
		if r.nodes[name] != nodePending {
			continue
		}
		fired, resolved := r.inputs(name)
		if resolved && fired > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (r *run) inputs(name string) (fired int, resolved bool) {
	for _, ei := range r.g.in[name] {
		switch r.edges[ei] {
		case edgePending:
			return fired, false
		case edgeFired:
			fired++
		}
	}
	return fired, true
}

// propagateSkips marks nodes with only dead inputs as skipped until nothing changes
func (r *run) propagateSkips(obs Observer, step int) {
	for changed := true; changed; {
		changed = false
		for _, name := range r.g.order {
			if r.nodes[name] != nodePending {
				continue
			}
			fired, resolved := r.inputs(name)
			if !resolved || fired > 0 {
				continue
			}
			r.nodes[name] = nodeSkipped
			for _, ei := range r.g.out[name] {
				r.edges[ei] = edgeDead
			}
			emit(obs, Event{Type: EventNodeSkipped, Node: name, Step: step})
			changed = true
		}
	}
}

// release fires the outgoing edges of a finished node. For the branching
// node the router picks one route on the merged state; the others die
func (r *run) release(name string, s *State, obs Observer, step int) error {
	br := r.g.branch
	if br == nil || br.from != name {
		for _, ei := range r.g.out[name] {
			r.edges[ei] = edgeFired
		}
		return nil
	}

	route := br.router(s)
	if _, ok := br.targets[route]; !ok {
		return fmt.Errorf("%w: router on %s returned unmapped %s", ErrBranch, name, route)
	}
	for _, ei := range r.g.out[name] {
		if r.g.edges[ei].Route == route {
			r.edges[ei] = edgeFired
		} else {
			r.edges[ei] = edgeDead
		}
	}
	emit(obs, Event{Type: EventRoute, Node: name, Step: step, Route: route.String()})
	return nil
}

func (g *Graph) runStep(ctx context.Context, step int, state *State, ready []string, cfg RunConfig) ([]Delta, error) {
	results := make([]Delta, len(ready))
	eg, gctx := errgroup.WithContext(ctx)
	if cfg.MaxParallel > 0 {
		eg.SetLimit(cfg.MaxParallel)
	}

	for i, name := range ready {
		i, name := i, name
		node := g.nodes[name]
		snap := state.Clone()
		eg.Go(func() error {
			emit(cfg.Observer, Event{Type: EventNodeEnter, Node: name, Step: step})
			started := time.Now()

			d, err := invoke(gctx, node, snap)
			if err != nil {
				if node.Recover == nil {
					return &NodeError{Node: name, Err: err}
				}
				d = node.Recover(snap, err)
				emit(cfg.Observer, Event{Type: EventNodeRecovered, Node: name, Step: step, Error: err})
			}

			results[i] = d
			emit(cfg.Observer, Event{Type: EventNodeExit, Node: name, Step: step, Elapsed: time.Since(started)})
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func invoke(ctx context.Context, node Node, s *State) (d Delta, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v}
		}
	}()
	return node.Run(ctx, s)
}
