package board

import "github.com/wfunc/battleserver/gameerr"

// ShotSet is the set of coordinates a player has received fire on.
type ShotSet map[Coord]struct{}

// Has reports whether c was already fired on.
func (s ShotSet) Has(c Coord) bool {
	_, ok := s[c]
	return ok
}

// ShotOutcome is the result of one accepted shot.
type ShotOutcome struct {
	Hit     bool
	Sunk    Kind // set only when this shot sank a ship
	AllSunk bool
}

// ResolveShot fires at c against fleet. A repeated coordinate fails with
// gameerr.ErrAlreadyShot and changes nothing; otherwise the shot is added to
// received and a hit is marked on the struck ship.
func ResolveShot(fleet Fleet, received ShotSet, c Coord) (ShotOutcome, error) {
	if !c.InBounds() {
		return ShotOutcome{}, gameerr.ErrInvalidCoordinate.WithDetail("(%d,%d) is off the grid", c.X, c.Y)
	}
	if received.Has(c) {
		return ShotOutcome{}, gameerr.ErrAlreadyShot.WithDetail("(%d,%d)", c.X, c.Y)
	}
	received[c] = struct{}{}

	for i := range fleet {
		idx := fleet[i].index(c)
		if idx < 0 {
			continue
		}
		fleet[i].markHit(idx)
		out := ShotOutcome{Hit: true}
		if fleet[i].Sunk() {
			out.Sunk = fleet[i].Kind
			out.AllSunk = fleet.AllSunk()
		}
		return out, nil
	}
	return ShotOutcome{}, nil
}
