// Package board holds the pure grid logic: fleet composition, placement
// legality and shot resolution. Nothing here blocks or shares state.
package board

import (
	"sort"

	"github.com/wfunc/battleserver/gameerr"
)

// Size is the width and height of the grid.
const Size = 10

// Coord is a cell on the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// InBounds reports whether c lies in [0,Size)x[0,Size).
func (c Coord) InBounds() bool {
	return c.X >= 0 && c.X < Size && c.Y >= 0 && c.Y < Size
}

// Orientation is the axis a ship extends along from its origin.
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// Kind names a ship class.
type Kind string

const (
	Carrier    Kind = "carrier"
	Battleship Kind = "battleship"
	Cruiser    Kind = "cruiser"
	Submarine  Kind = "submarine"
	Destroyer  Kind = "destroyer"
)

var kindSizes = map[Kind]int{
	Carrier:    5,
	Battleship: 4,
	Cruiser:    3,
	Submarine:  3,
	Destroyer:  2,
}

// FleetSizes is the required multiset of ship sizes, largest first.
var FleetSizes = []int{5, 4, 3, 3, 2}

// Size returns the length of the kind, or 0 when the kind is unknown.
func (k Kind) Size() int {
	return kindSizes[k]
}

// Ship is a placed ship and the cells of it that have been hit.
type Ship struct {
	Kind  Kind
	Size  int
	Cells []Coord
	hits  []bool
}

// NewShip lays out a ship of the given size from origin along o. A zero size
// takes the kind's size. Bounds are not checked here; see CanPlace and
// ValidateFleet.
func NewShip(kind Kind, size int, origin Coord, o Orientation) (Ship, error) {
	if size == 0 {
		size = kind.Size()
	}
	if size <= 0 {
		return Ship{}, gameerr.InvalidFleet("ship %q has no size", kind)
	}
	if size > Size {
		return Ship{}, gameerr.InvalidFleet("ship %q of size %d does not fit the grid", kind, size)
	}
	if o != Horizontal && o != Vertical {
		return Ship{}, gameerr.InvalidFleet("unknown orientation %q", o)
	}
	return Ship{Kind: kind, Size: size, Cells: layout(size, origin, o)}, nil
}

func layout(size int, origin Coord, o Orientation) []Coord {
	cells := make([]Coord, size)
	for i := range cells {
		if o == Horizontal {
			cells[i] = Coord{X: origin.X + i, Y: origin.Y}
		} else {
			cells[i] = Coord{X: origin.X, Y: origin.Y + i}
		}
	}
	return cells
}

func (s *Ship) index(c Coord) int {
	for i, cell := range s.Cells {
		if cell == c {
			return i
		}
	}
	return -1
}

// Sunk reports whether every cell has been hit.
func (s *Ship) Sunk() bool {
	if len(s.Cells) == 0 || len(s.hits) != len(s.Cells) {
		return false
	}
	for _, h := range s.hits {
		if !h {
			return false
		}
	}
	return true
}

// Hits returns the hit cells in cell order.
func (s *Ship) Hits() []Coord {
	var out []Coord
	for i, h := range s.hits {
		if h {
			out = append(out, s.Cells[i])
		}
	}
	return out
}

func (s *Ship) markHit(i int) {
	if s.hits == nil {
		s.hits = make([]bool, len(s.Cells))
	}
	s.hits[i] = true
}

// straight reports whether the cells form one contiguous horizontal or
// vertical run in order.
func (s *Ship) straight() bool {
	if len(s.Cells) < 2 {
		return true
	}
	dx := s.Cells[1].X - s.Cells[0].X
	dy := s.Cells[1].Y - s.Cells[0].Y
	if !(dx == 1 && dy == 0) && !(dx == 0 && dy == 1) {
		return false
	}
	for i := 1; i < len(s.Cells); i++ {
		if s.Cells[i].X-s.Cells[i-1].X != dx || s.Cells[i].Y-s.Cells[i-1].Y != dy {
			return false
		}
	}
	return true
}

// Fleet is a player's set of ships.
type Fleet []Ship

// Clone returns a deep copy so callers cannot mutate a stored fleet.
func (f Fleet) Clone() Fleet {
	out := make(Fleet, len(f))
	for i, s := range f {
		out[i] = Ship{Kind: s.Kind, Size: s.Size, Cells: append([]Coord(nil), s.Cells...)}
		if s.hits != nil {
			out[i].hits = append([]bool(nil), s.hits...)
		}
	}
	return out
}

// Occupies reports whether any ship covers c.
func (f Fleet) Occupies(c Coord) bool {
	for i := range f {
		if f[i].index(c) >= 0 {
			return true
		}
	}
	return false
}

// AllSunk reports whether the fleet is non-empty and every ship is sunk.
func (f Fleet) AllSunk() bool {
	if len(f) == 0 {
		return false
	}
	for i := range f {
		if !f[i].Sunk() {
			return false
		}
	}
	return true
}

// CanPlace reports whether a ship of size placed at origin along o stays on
// the grid without overlapping fleetSoFar. Ships may touch.
func CanPlace(fleetSoFar Fleet, size int, origin Coord, o Orientation) bool {
	if size <= 0 || size > Size || (o != Horizontal && o != Vertical) {
		return false
	}
	for _, c := range layout(size, origin, o) {
		if !c.InBounds() || fleetSoFar.Occupies(c) {
			return false
		}
	}
	return true
}

// ValidateFleet checks the fleet composition and placement. Every ship needs
// a distinct known kind; run AssignKinds first for unnamed ships. The returned
// error matches gameerr.ErrInvalidFleet and names the first problem found.
func ValidateFleet(ships Fleet) error {
	if len(ships) != len(FleetSizes) {
		return gameerr.InvalidFleet("expected %d ships, got %d", len(FleetSizes), len(ships))
	}

	sizes := make([]int, 0, len(ships))
	kinds := make(map[Kind]int, len(ships))
	occupied := make(map[Coord]int, 17)
	for i := range ships {
		s := &ships[i]
		if s.Size <= 0 || len(s.Cells) != s.Size {
			return gameerr.InvalidFleet("ship %d declares size %d but has %d cells", i, s.Size, len(s.Cells))
		}
		want := s.Kind.Size()
		if want == 0 {
			return gameerr.InvalidFleet("ship %d has unknown kind %q", i, s.Kind)
		}
		if want != s.Size {
			return gameerr.InvalidFleet("%s must have size %d", s.Kind, want)
		}
		if other, dup := kinds[s.Kind]; dup {
			return gameerr.InvalidFleet("ships %d and %d are both %s", other, i, s.Kind)
		}
		kinds[s.Kind] = i
		if !s.straight() {
			return gameerr.InvalidFleet("ship %d is not a straight line", i)
		}
		for _, c := range s.Cells {
			if !c.InBounds() {
				return gameerr.InvalidFleet("ship %d is out of bounds at (%d,%d)", i, c.X, c.Y)
			}
			if other, taken := occupied[c]; taken {
				return gameerr.InvalidFleet("ships %d and %d overlap at (%d,%d)", other, i, c.X, c.Y)
			}
			occupied[c] = i
		}
		sizes = append(sizes, s.Size)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	for i, want := range FleetSizes {
		if sizes[i] != want {
			return gameerr.InvalidFleet("ship sizes %v do not match %v", sizes, FleetSizes)
		}
	}
	return nil
}

// AssignKinds names ships that arrived without a kind after the standard
// class of their size. The two size-3 ships become a cruiser and a submarine.
func AssignKinds(f Fleet) {
	used := make(map[Kind]bool, len(f))
	for _, s := range f {
		if s.Kind != "" {
			used[s.Kind] = true
		}
	}
	order := []Kind{Carrier, Battleship, Cruiser, Submarine, Destroyer}
	for i := range f {
		if f[i].Kind != "" {
			continue
		}
		for _, k := range order {
			if !used[k] && k.Size() == f[i].Size {
				f[i].Kind = k
				used[k] = true
				break
			}
		}
	}
}
