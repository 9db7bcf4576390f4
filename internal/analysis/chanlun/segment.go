package chanlun

// SegmentBuilder groups stroke endpoints into segments of at least three
// strokes.
type SegmentBuilder struct{}

// NewSegmentBuilder creates a new segment builder.
func NewSegmentBuilder() *SegmentBuilder {
	return &SegmentBuilder{}
}

func (b *SegmentBuilder) Name() string {
	return "SegmentBuilder"
}

// Transform returns confirmed segment boundaries. Strokes after the last
// confirmed boundary stay pending and are not emitted.
func (b *SegmentBuilder) Transform(endpoints []Endpoint) []Endpoint {
	n := len(endpoints)
	if n < 4 {
		return nil
	}

	var out []Endpoint
	anchor := 0
	for anchor+3 < n {
		end, cont := b.window(endpoints, anchor)
		switch {
		case cont >= 0:
			if len(out) == 0 {
				anchor++
				continue
			}
			// the previous segment keeps going
			out[len(out)-1] = endpoints[cont]
			anchor = cont
		case end < 0:
			return out
		default:
			end = b.extend(endpoints, end)
			if end+2 >= n {
				return out
			}
			if len(out) == 0 {
				out = append(out, endpoints[anchor])
			}
			out = append(out, endpoints[end])
			anchor = end
		}
	}

	return out
}

// window widens the move from anchor two strokes at a time. It returns the
// index of a continuation endpoint when one of the anchor's polarity is at
// least as extreme as the anchor, or the index of the first opposite endpoint
// that passes the first interior extreme. Both are -1 when neither occurs.
func (b *SegmentBuilder) window(e []Endpoint, anchor int) (end, cont int) {
	a, first := e[anchor], e[anchor+1]
	for k := anchor + 2; k+1 < len(e); k += 2 {
		if e[k].moreExtreme(a) {
			return -1, k
		}
		if beyond(e[k+1], first) {
			return k + 1, -1
		}
	}
	return -1, -1
}

// extend moves the boundary forward while each next endpoint of the same
// polarity is at least as extreme, landing on the window's extreme point.
func (b *SegmentBuilder) extend(e []Endpoint, end int) int {
	for end+2 < len(e) && e[end+2].moreExtreme(e[end]) {
		end += 2
	}
	return end
}

// beyond reports whether e strictly passes ref in their shared polarity.
func beyond(e, ref Endpoint) bool {
	if e.Polarity == PolarityTop {
		return e.Price > ref.Price
	}
	return e.Price < ref.Price
}
