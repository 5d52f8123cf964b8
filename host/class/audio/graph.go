package audio

import (
	"context"
	"slices"

	"github.com/ardnew/softuac/pkg"
)

// Graph is the unit and terminal graph of one audio control interface.
// Nodes live in an arena indexed by id; committed paths own the in-use
// marks of their interior nodes.
type Graph struct {
	ctl     *controller
	nodes   map[uint8]Node
	inUse   map[uint8]bool
	claimed map[uint8]bool // output terminals starting a committed path
	paths   []*Path
	found   bool
}

// NewGraph decodes the units and terminals of the first audio control
// interface in blob. Malformed and duplicate records are logged and
// skipped. bus may be nil when the graph is only inspected.
func NewGraph(bus Bus, blob []byte, cfg Config) *Graph {
	g := &Graph{
		nodes:   make(map[uint8]Node),
		inUse:   make(map[uint8]bool),
		claimed: make(map[uint8]bool),
	}

	var inControl bool
	c := NewCursor(blob)
	for ; c.Valid(); c.Next() {
		h := c.Header()
		if h.Type == descTypeInterface {
			inControl = false
			d := As[InterfaceDescriptor](c)
			if d == nil || d.Class != ClassAudio || d.Subclass != SubclassAudioControl {
				continue
			}
			if g.found {
				pkg.LogWarn(pkg.ComponentGraph, "additional audio control interface ignored",
					"interface", d.Number)
				continue
			}
			g.found = true
			inControl = true
			g.ctl = &controller{bus: bus, iface: d.Number, timeout: cfg.ControlTimeout}
			continue
		}
		if inControl && h.Type == descTypeCSInterface {
			g.add(c)
		}
	}

	pkg.LogDebug(pkg.ComponentGraph, "graph decoded", "nodes", len(g.nodes))
	return g
}

func (g *Graph) add(c *Cursor) {
	h := c.Header()
	var n Node
	switch h.Subtype {
	case acHeader:
		return
	case acInputTerminal:
		n = nodeOrNil(As[InputTerminal](c))
	case acOutputTerminal:
		n = nodeOrNil(As[OutputTerminal](c))
	case acMixerUnit:
		n = nodeOrNil(As[MixerUnit](c))
	case acSelectorUnit:
		n = nodeOrNil(As[SelectorUnit](c))
	case acFeatureUnit:
		if u := As[FeatureUnit](c); u != nil {
			if g.ctl.bus != nil {
				u.ctl = g.ctl
			}
			n = u
		}
	case acProcessingUnit:
		n = nodeOrNil(As[ProcessingUnit](c))
	case acExtensionUnit:
		n = nodeOrNil(As[ExtensionUnit](c))
	default:
		pkg.LogWarn(pkg.ComponentDescriptor, "unknown audio control record skipped",
			"subtype", h.Subtype,
			"offset", c.Offset())
		return
	}

	if n == nil {
		pkg.LogWarn(pkg.ComponentDescriptor, "malformed audio control record skipped",
			"subtype", h.Subtype,
			"length", h.Length,
			"offset", c.Offset())
		return
	}
	if _, dup := g.nodes[n.ID()]; dup {
		pkg.LogWarn(pkg.ComponentGraph, "duplicate node id skipped",
			"id", n.ID(),
			"kind", n.Kind())
		return
	}
	g.nodes[n.ID()] = n
}

// nodeOrNil converts a typed nil pointer to a nil Node.
func nodeOrNil[P interface {
	Node
	comparable
}](p P) Node {
	var zero P
	if p == zero {
		return nil
	}
	return p
}

// ControlInterface returns the audio control interface number and whether
// one was found.
func (g *Graph) ControlInterface() (uint8, bool) {
	if !g.found {
		return 0, false
	}
	return g.ctl.iface, true
}

// Node returns the node with the given id.
func (g *Graph) Node(id uint8) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in ascending id order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, id := range g.ids() {
		out = append(out, g.nodes[id])
	}
	return out
}

func (g *Graph) ids() []uint8 {
	ids := make([]uint8, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// InUse reports whether a node is interior to a committed path.
func (g *Graph) InUse(id uint8) bool {
	return g.inUse[id]
}

// Paths returns the committed paths in commit order.
func (g *Graph) Paths() []*Path {
	return slices.Clone(g.paths)
}

// ResolvePaths commits one path per reachable Output Terminal, in
// ascending id order, then mutes every Feature Unit no path claims.
func (g *Graph) ResolvePaths(ctx context.Context) []*Path {
	for _, id := range g.ids() {
		ot, ok := g.nodes[id].(*OutputTerminal)
		if !ok || g.claimed[id] {
			continue
		}
		s := search{graph: g, ctx: ctx, start: ot, visited: make(map[uint8]bool)}
		if !s.walk(ot) {
			pkg.LogDebug(pkg.ComponentGraph, "no path from output terminal", "id", id)
			continue
		}
		g.commit(ctx, &s)
	}
	g.cleanup(ctx)
	return g.Paths()
}

// pin records the input pin a selector routes to.
type pin struct {
	unit uint8
	pin  uint8 // 1-based
}

// search is the state of one depth-first walk from an Output Terminal.
// visited only holds the nodes on the current recursion stack.
type search struct {
	graph   *Graph
	ctx     context.Context
	start   *OutputTerminal
	visited map[uint8]bool
	trail   []Node
	pins    []pin
}

func (s *search) walk(n Node) bool {
	if s.graph.inUse[n.ID()] {
		return false
	}
	s.trail = append(s.trail, n)
	if it, ok := n.(*InputTerminal); ok {
		if s.accept(it) {
			return true
		}
		s.trail = s.trail[:len(s.trail)-1]
		return false
	}

	s.visited[n.ID()] = true
	for i := 0; i < n.SourceCount(); i++ {
		id := n.SourceID(i)
		if s.visited[id] {
			pkg.LogDebug(pkg.ComponentGraph, "cycle skipped", "from", n.ID(), "to", id)
			continue
		}
		src, ok := s.graph.nodes[id]
		if !ok {
			pkg.LogWarn(pkg.ComponentGraph, "dangling source abandoned",
				"node", n.ID(),
				"source", id)
			continue
		}
		if _, sel := n.(*SelectorUnit); sel {
			s.pins = append(s.pins, pin{unit: n.ID(), pin: uint8(i + 1)})
		}
		if s.walk(src) {
			return true
		}
		if _, sel := n.(*SelectorUnit); sel {
			s.pins = s.pins[:len(s.pins)-1]
		}
	}
	delete(s.visited, n.ID())
	s.trail = s.trail[:len(s.trail)-1]
	return false
}

// accept validates a complete branch ending at it.
func (s *search) accept(it *InputTerminal) bool {
	if s.start.HostFacing() == it.HostFacing() {
		return false
	}
	if fu := s.gainUnit(); fu != nil {
		if err := fu.Probe(s.ctx); err != nil {
			return false
		}
	}
	return true
}

func (s *search) gainUnit() *FeatureUnit {
	for _, n := range s.trail {
		if fu, ok := n.(*FeatureUnit); ok {
			return fu
		}
	}
	return nil
}

func (g *Graph) commit(ctx context.Context, s *search) {
	p := &Path{
		ids:  make([]uint8, len(s.trail)),
		gain: s.gainUnit(),
	}
	for i, n := range s.trail {
		p.ids[i] = n.ID()
	}
	if s.start.HostFacing() {
		p.direction = DirectionCapture
	} else {
		p.direction = DirectionRender
	}

	for _, sp := range s.pins {
		if g.ctl.bus == nil {
			break
		}
		if err := g.ctl.selectPin(ctx, sp.unit, sp.pin); err != nil {
			pkg.LogWarn(pkg.ComponentGraph, "selector not programmed",
				"unit", sp.unit,
				"pin", sp.pin,
				"error", err)
		}
	}

	for _, id := range p.ids[1 : len(p.ids)-1] {
		g.inUse[id] = true
	}
	g.claimed[p.OutputTerminal()] = true
	g.paths = append(g.paths, p)

	pkg.LogDebug(pkg.ComponentGraph, "path committed",
		"nodes", p.ids,
		"direction", p.direction,
		"gain", p.gain != nil)
}

// cleanup mutes every Feature Unit outside the committed paths.
func (g *Graph) cleanup(ctx context.Context) {
	for _, id := range g.ids() {
		fu, ok := g.nodes[id].(*FeatureUnit)
		if !ok || g.inUse[id] {
			continue
		}
		if err := fu.forceMute(ctx); err != nil {
			pkg.LogDebug(pkg.ComponentGraph, "unclaimed feature unit not muted",
				"unit", id,
				"error", err)
		}
	}
}
