package magnet

import "sort"

type cell struct{ row, col int }

// ring directions, clockwise from the upper left.
var directions = [8]cell{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

type grid struct {
	columns int
	rows    int
	slots   map[cell]Slot
}

func newGrid(slots []Slot, columns int) grid {
	if columns < 1 {
		columns = 1
	}
	g := grid{columns: columns, slots: make(map[cell]Slot, len(slots))}
	for _, s := range slots {
		if s.Position < 0 {
			continue
		}
		c := g.cellOf(s.Position)
		g.slots[c] = s
		if c.row+1 > g.rows {
			g.rows = c.row + 1
		}
	}
	return g
}

func (g grid) cellOf(position int) cell {
	return cell{row: position / g.columns, col: position % g.columns}
}

// alternatives walks rings of growing radius around origin, probing the 8
// straight and diagonal directions at each radius, and stops once limit free
// slots are found or the grid is exhausted. Only the returned set is sorted
// by distance: a closer slot off those 8 rays, or at a larger radius than
// the point where the limit was hit, is never considered.
func (g grid) alternatives(origin Slot, occupied map[int]bool, limit int) []Alternative {
	if limit <= 0 {
		return nil
	}
	center := origin.Bounds.Center()
	at := g.cellOf(origin.Position)
	maxRadius := g.rows
	if g.columns > maxRadius {
		maxRadius = g.columns
	}

	found := make([]Alternative, 0, limit)
	seen := make(map[int]bool)
	for r := 1; r <= maxRadius && len(found) < limit; r++ {
		for _, d := range directions {
			c := cell{row: at.row + d.row*r, col: at.col + d.col*r}
			if c.row < 0 || c.row >= g.rows || c.col < 0 || c.col >= g.columns {
				continue
			}
			s, ok := g.slots[c]
			if !ok || occupied[s.Position] || seen[s.Position] {
				continue
			}
			seen[s.Position] = true
			found = append(found, Alternative{Position: s.Position, Distance: distance(center, s.Bounds.Center())})
			if len(found) == limit {
				break
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Distance != found[j].Distance {
			return found[i].Distance < found[j].Distance
		}
		return found[i].Position < found[j].Position
	})
	return found
}
