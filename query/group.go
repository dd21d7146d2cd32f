package query

// BooleanGroup owns an ordered list of children joined by one combinator.
type BooleanGroup struct {
	combinator Combinator
	children   []Node
}

func newGroup(c Combinator) *BooleanGroup { return &BooleanGroup{combinator: c} }

func (g *BooleanGroup) Combinator() Combinator { return g.combinator }

// Children returns a copy of the children in insertion order.
func (g *BooleanGroup) Children() []Node {
	return append([]Node(nil), g.children...)
}

func (g *BooleanGroup) Len() int { return len(g.children) }

func (g *BooleanGroup) clone() *BooleanGroup {
	out := &BooleanGroup{combinator: g.combinator, children: make([]Node, len(g.children))}
	for i, c := range g.children {
		if sub, ok := c.(*BooleanGroup); ok {
			out.children[i] = sub.clone()
			continue
		}
		out.children[i] = c
	}
	return out
}
