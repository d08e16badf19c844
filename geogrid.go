package rtc

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Unset marks a grid edge or snap step as not configured.
func Unset() float64 { return math.NaN() }

func isSet(v float64) bool { return !math.IsNaN(v) }

// Geogrid describes the rectangular grid an output raster is produced on:
// top-left origin in projected units, pixel spacing (SpacingY is negative,
// rows run north to south) and pixel counts. A Geogrid is mutated in place
// by Assign/Intersect/Snap and consumed once to size the output raster.
type Geogrid struct {
	StartX, StartY     float64
	SpacingX, SpacingY float64
	Width, Height      int
	EPSG               int
}

// GeogridFromBounds builds a grid covering [xmin,xmax]×[ymin,ymax] with the
// given spacing (spacingY negative).
func GeogridFromBounds(xmin, ymax, xmax, ymin, spacingX, spacingY float64, epsg int) Geogrid {
	return Geogrid{
		StartX:   xmin,
		StartY:   ymax,
		SpacingX: spacingX,
		SpacingY: spacingY,
		Width:    gridSize(xmax, xmin, spacingX),
		Height:   gridSize(ymin, ymax, spacingY),
		EPSG:     epsg,
	}
}

// gridSize is the pixel count needed to cover [start,end] at the given
// spacing, rounding outward.
func gridSize(end, start, spacing float64) int {
	return int(math.Ceil((end - start) / spacing))
}

// EndX returns the grid's east edge.
func (g *Geogrid) EndX() float64 { return g.StartX + float64(g.Width)*g.SpacingX }

// EndY returns the grid's south edge (SpacingY is negative).
func (g *Geogrid) EndY() float64 { return g.StartY + float64(g.Height)*g.SpacingY }

// Assign overrides grid edges with explicit coordinates, recomputing the
// pixel count on each axis from the opposite, currently-set edge. Pass
// Unset() to leave an edge untouched.
func (g *Geogrid) Assign(xmin, ymax, xmax, ymin float64) {
	if isSet(xmin) {
		endX := g.EndX()
		g.StartX = xmin
		g.Width = gridSize(endX, xmin, g.SpacingX)
	}
	if isSet(xmax) {
		g.Width = gridSize(xmax, g.StartX, g.SpacingX)
	}
	if isSet(ymax) {
		endY := g.EndY()
		g.StartY = ymax
		g.Height = gridSize(endY, ymax, g.SpacingY)
	}
	if isSet(ymin) {
		g.Height = gridSize(ymin, g.StartY, g.SpacingY)
	}
}

// Intersect clips the grid to the given bounds. Bounds outside the current
// extent are ignored: intersection only shrinks, never grows.
func (g *Geogrid) Intersect(xmin, ymax, xmax, ymin float64) {
	if isSet(xmin) && xmin > g.StartX {
		endX := g.EndX()
		g.StartX = xmin
		g.Width = gridSize(endX, xmin, g.SpacingX)
	}
	if isSet(xmax) && xmax < g.EndX() {
		g.Width = gridSize(xmax, g.StartX, g.SpacingX)
	}
	if isSet(ymax) && ymax < g.StartY {
		endY := g.EndY()
		g.StartY = ymax
		g.Height = gridSize(endY, ymax, g.SpacingY)
	}
	if isSet(ymin) && ymin > g.EndY() {
		g.Height = gridSize(ymin, g.StartY, g.SpacingY)
	}
}

// Snap rounds the grid edges outward to multiples of the given steps so
// that the snapped grid always contains the unsnapped one: west/north edges
// round down (ceiling on Y, whose axis is inverted), east/south edges round
// the opposite way. Pass Unset() to skip an axis. A non-positive step, or a
// step that is not an exact multiple of the axis spacing, is rejected with
// ErrInvalidSnapValue.
func (g *Geogrid) Snap(snapX, snapY float64) error {
	if err := checkSnapValues(snapX, snapY, g.SpacingX, g.SpacingY); err != nil {
		return err
	}
	endX, endY := g.EndX(), g.EndY()
	if isSet(snapX) {
		g.StartX = snapCoord(g.StartX, snapX, math.Floor)
		g.Width = gridSize(snapCoord(endX, snapX, math.Ceil), g.StartX, g.SpacingX)
	}
	if isSet(snapY) {
		g.StartY = snapCoord(g.StartY, snapY, math.Ceil)
		g.Height = gridSize(snapCoord(endY, snapY, math.Floor), g.StartY, g.SpacingY)
	}
	return nil
}

func snapCoord(val, snap float64, round func(float64) float64) float64 {
	return round(val/snap) * snap
}

func checkSnapValues(snapX, snapY, spacingX, spacingY float64) error {
	if isSet(snapX) {
		if snapX <= 0 {
			return ErrInvalidSnapValue{Axis: "X", Snap: snapX, Spacing: spacingX}
		}
		if math.Mod(snapX, math.Abs(spacingX)) != 0 {
			return ErrInvalidSnapValue{Axis: "X", Snap: snapX, Spacing: spacingX}
		}
	}
	if isSet(snapY) {
		if snapY <= 0 {
			return ErrInvalidSnapValue{Axis: "Y", Snap: snapY, Spacing: spacingY}
		}
		if math.Mod(snapY, math.Abs(spacingY)) != 0 {
			return ErrInvalidSnapValue{Axis: "Y", Snap: snapY, Spacing: spacingY}
		}
	}
	return nil
}

// GridParams carries the user-configurable grid parameters for one grid
// (per-unit or mosaic). PostingX/PostingY are positive pixel postings;
// edges and snap steps may be Unset().
type GridParams struct {
	EPSG                   int // 0: resolve from the first unit's center
	XMin, YMax, XMax, YMin float64
	PostingX, PostingY     float64
	SnapX, SnapY           float64
}

// allEdgesSet reports whether all four edges are configured.
func (p GridParams) allEdgesSet() bool {
	return isSet(p.XMin) && isSet(p.YMax) && isSet(p.XMax) && isSet(p.YMin)
}

// GeogridEstimator supplies the external bounding-box-to-grid conversion
// for a unit's radar footprint.
type GeogridEstimator interface {
	EstimateGeogrid(ctx context.Context, grid RadarGrid, orbit Orbit, spacingX, spacingY float64, epsg int) (Geogrid, error)
}

// GenerateGeogrids computes one snapped geogrid per unit plus the snapped
// mosaic grid enclosing them. Units sharing an ID are processed once. A
// unit whose grid cannot be estimated is excluded from the mosaic fold and
// reported in the joined error without aborting its siblings; any mosaic
// edge left unconfigured defaults to the min/max fold over the surviving
// unit grids.
func GenerateGeogrids(ctx context.Context, est GeogridEstimator, units []*Burst, unit, mosaic GridParams) (Geogrid, map[string]Geogrid, error) {
	if len(units) == 0 {
		return Geogrid{}, nil, fmt.Errorf("no processing units")
	}

	epsg := mosaic.EPSG
	if epsg == 0 {
		var err error
		if epsg, err = PointEPSG(units[0].Center.Y, units[0].Center.X); err != nil {
			return Geogrid{}, nil, fmt.Errorf("resolve mosaic EPSG: %w", err)
		}
	}
	spacingX, spacingY := unit.PostingX, -unit.PostingY

	xminAll, ymaxAll := math.Inf(1), math.Inf(-1)
	xmaxAll, yminAll := math.Inf(-1), math.Inf(1)

	grids := make(map[string]Geogrid, len(units))
	var errs []error
	for _, u := range units {
		if _, ok := grids[u.ID]; ok {
			continue
		}
		g, err := unitGeogrid(ctx, est, u, unit, spacingX, spacingY, epsg, len(units))
		if err != nil {
			errs = append(errs, fmt.Errorf("unit %s: %w", u.ID, err))
			continue
		}
		xminAll = math.Min(xminAll, g.StartX)
		ymaxAll = math.Max(ymaxAll, g.StartY)
		xmaxAll = math.Max(xmaxAll, g.EndX())
		yminAll = math.Min(yminAll, g.EndY())
		grids[u.ID] = g
	}
	if len(grids) == 0 {
		return Geogrid{}, nil, errors.Join(errs...)
	}

	xmin, ymax, xmax, ymin := mosaic.XMin, mosaic.YMax, mosaic.XMax, mosaic.YMin
	if !isSet(xmin) {
		xmin = xminAll
	}
	if !isSet(ymax) {
		ymax = ymaxAll
	}
	if !isSet(xmax) {
		xmax = xmaxAll
	}
	if !isSet(ymin) {
		ymin = yminAll
	}
	all := GeogridFromBounds(xmin, ymax, xmax, ymin, mosaic.PostingX, -mosaic.PostingY, epsg)
	if err := all.Snap(mosaic.SnapX, mosaic.SnapY); err != nil {
		return Geogrid{}, nil, fmt.Errorf("mosaic grid: %w", err)
	}
	return all, grids, errors.Join(errs...)
}

func unitGeogrid(ctx context.Context, est GeogridEstimator, u *Burst, p GridParams, spacingX, spacingY float64, epsg, nunits int) (Geogrid, error) {
	var g Geogrid
	if nunits > 1 || !p.allEdgesSet() {
		var err error
		g, err = est.EstimateGeogrid(ctx, u.RadarGrid, u.Orbit, spacingX, spacingY, epsg)
		if err != nil {
			return Geogrid{}, fmt.Errorf("estimate geogrid: %w", err)
		}
		if nunits == 1 {
			// A lone unit may pin individual edges directly.
			g.Assign(p.XMin, p.YMax, p.XMax, p.YMin)
		}
		g.Intersect(p.XMin, p.YMax, p.XMax, p.YMin)
	} else {
		g = GeogridFromBounds(p.XMin, p.YMax, p.XMax, p.YMin, spacingX, spacingY, epsg)
	}
	if err := g.Snap(p.SnapX, p.SnapY); err != nil {
		return Geogrid{}, err
	}
	return g, nil
}
