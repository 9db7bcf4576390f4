package chanlun

// DefaultMinStrokeGap is the number of unclassified points that must separate
// two endpoints of a full stroke.
const DefaultMinStrokeGap = 3

// StrokeBuilder chains alternating turning points into strokes.
type StrokeBuilder struct {
	MinGap int
}

// NewStrokeBuilder creates a stroke builder. A non-positive gap falls back to
// DefaultMinStrokeGap.
func NewStrokeBuilder(minGap int) *StrokeBuilder {
	if minGap <= 0 {
		minGap = DefaultMinStrokeGap
	}
	return &StrokeBuilder{MinGap: minGap}
}

func (b *StrokeBuilder) Name() string {
	return "StrokeBuilder"
}

// strokeNode is one appended candidate. Nodes are only ever flagged as
// dropped, never removed, until the final compaction.
type strokeNode struct {
	pos     int
	point   TurningPoint
	dropped bool
}

type strokeState struct {
	nodes []strokeNode
	run   []int
}

func (s *strokeState) lastKept() int {
	for i := len(s.nodes) - 1; i >= 0; i-- {
		if !s.nodes[i].dropped {
			return i
		}
	}
	return -1
}

// opens reports whether no kept node precedes idx.
func (s *strokeState) opens(idx int) bool {
	for i := 0; i < idx; i++ {
		if !s.nodes[i].dropped {
			return false
		}
	}
	return true
}

// Transform returns the kept endpoints in time order. Endpoints appended after
// the last full stroke stay in the result as provisional endpoints.
func (b *StrokeBuilder) Transform(points []TurningPoint) []Endpoint {
	if len(points) == 0 {
		return nil
	}

	st := &strokeState{}
	for pos, tp := range points {
		if tp.Polarity == PolarityNone {
			continue
		}

		prevPos := -1
		if last := st.lastKept(); last >= 0 {
			if st.nodes[last].point.Polarity == tp.Polarity {
				continue
			}
			prevPos = st.nodes[last].pos
		}

		switch {
		case b.full(points, prevPos, pos):
			st.nodes = append(st.nodes, strokeNode{pos: pos, point: tp})
			st.run = append(st.run, len(st.nodes)-1)
			b.resolve(st)
		case b.short(points, pos):
			st.nodes = append(st.nodes, strokeNode{pos: pos, point: tp})
			st.run = append(st.run, len(st.nodes)-1)
		}
	}

	return compact(st.nodes)
}

// full reports whether at least MinGap consecutive unclassified points
// precede pos without reaching back past from.
func (b *StrokeBuilder) full(points []TurningPoint, from, pos int) bool {
	gap := 0
	for j := pos - 1; j > from && points[j].Polarity == PolarityNone; j-- {
		gap++
		if gap >= b.MinGap {
			return true
		}
	}
	return false
}

// short reports whether the candidate at pos is worth keeping provisionally:
// either a later opposite point forms a full stroke from it, or the next
// point of the same polarity is less extreme.
func (b *StrokeBuilder) short(points []TurningPoint, pos int) bool {
	cur := points[pos]
	for j := pos + 1; j < len(points); j++ {
		next := points[j]
		switch next.Polarity {
		case PolarityNone:
			continue
		case cur.Polarity:
			if cur.IsTop() {
				return cur.Price > next.Price
			}
			return cur.Price < next.Price
		default:
			if b.full(points, pos, j) {
				return true
			}
		}
	}
	return false
}

// resolve collapses the current run once its last member is a full stroke.
func (b *StrokeBuilder) resolve(st *strokeState) {
	run := st.run
	st.run = nil
	if len(run) < 2 {
		return
	}

	first, last := &st.nodes[run[0]], &st.nodes[run[len(run)-1]]

	if first.point.Polarity == last.point.Polarity {
		keep := run[0]
		for _, idx := range run[1:] {
			n := st.nodes[idx]
			if n.point.Polarity != first.point.Polarity {
				continue
			}
			if first.point.IsTop() && n.point.Price > st.nodes[keep].point.Price ||
				first.point.IsBottom() && n.point.Price < st.nodes[keep].point.Price {
				keep = idx
			}
		}
		for _, idx := range run {
			if idx != keep {
				st.nodes[idx].dropped = true
			}
		}
		return
	}

	for _, idx := range run[1 : len(run)-1] {
		st.nodes[idx].dropped = true
	}

	if crossed(first.point, last.point) {
		first.dropped = true
		last.dropped = true
		return
	}

	if last.pos-first.pos < b.MinGap+1 {
		if st.opens(run[0]) {
			first.dropped = true
			return
		}
		st.run = []int{run[0], run[len(run)-1]}
	}
}

// crossed reports whether a top sits at or below the bottom it pairs with.
func crossed(a, b TurningPoint) bool {
	if a.IsTop() {
		return a.Price <= b.Price
	}
	return b.Price <= a.Price
}

func compact(nodes []strokeNode) []Endpoint {
	var out []Endpoint
	for _, n := range nodes {
		if n.dropped {
			continue
		}
		out = append(out, Endpoint{
			Index:     n.point.Index,
			Timestamp: n.point.Timestamp,
			Polarity:  n.point.Polarity,
			Price:     n.point.Price,
		})
	}
	return out
}
