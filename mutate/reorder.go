package mutate

import (
	"github.com/daniellavrushin/weaver/packet"
)

// Reorder permutes opts to follow layout. For each layout name the first
// unused option of that name is placed next; options the layout does not
// claim follow in their original order. End-of-list options, with the
// padding they carry, always stay at the end. The result holds exactly the
// input options, so the option area keeps its length. moved is false when
// the order did not change.
func Reorder(opts []packet.Option, layout []string) (out []packet.Option, moved bool) {
	used := make([]bool, len(opts))
	order := make([]int, 0, len(opts))

	for _, name := range layout {
		if name == packet.OptEOL {
			continue
		}
		for i, o := range opts {
			if used[i] || o.Kind == packet.KindEOL || o.Name() != name {
				continue
			}
			used[i] = true
			order = append(order, i)
			break
		}
	}
	for i, o := range opts {
		if !used[i] && o.Kind != packet.KindEOL {
			order = append(order, i)
		}
	}
	for i, o := range opts {
		if o.Kind == packet.KindEOL {
			order = append(order, i)
		}
	}

	for pos, i := range order {
		if pos != i {
			moved = true
			break
		}
	}
	if !moved {
		return opts, false
	}
	out = make([]packet.Option, len(order))
	for pos, i := range order {
		out[pos] = opts[i]
	}
	return out, true
}
