package geom

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the box as [x1, y1, x2, y2].
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

// UnmarshalJSON decodes [x1, y1, x2, y2]. Box validity is checked by the
// caller, not here.
func (b *Box) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("geom: box needs 4 coordinates, got %d", len(v))
	}
	*b = Box{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	return nil
}

// MarshalJSON encodes the point as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON decodes [x, y].
func (p *Point) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 2 {
		return fmt.Errorf("geom: point needs 2 coordinates, got %d", len(v))
	}
	*p = Point{X: v[0], Y: v[1]}
	return nil
}

// Round returns the box with every coordinate rounded to the given number of
// decimals.
func (b Box) Round(decimals int) Box {
	return Box{X1: RoundTo(b.X1, decimals), Y1: RoundTo(b.Y1, decimals), X2: RoundTo(b.X2, decimals), Y2: RoundTo(b.Y2, decimals)}
}

// Round returns the point rounded to the given number of decimals.
func (p Point) Round(decimals int) Point {
	return Point{X: RoundTo(p.X, decimals), Y: RoundTo(p.Y, decimals)}
}
