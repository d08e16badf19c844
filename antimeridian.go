package rtc

import (
	"math"
	"sort"
)

// earthCircumference is the approximate equatorial circumference in meters,
// used for all km to degree margin conversions.
const earthCircumference = 40075017.0

// Point is a 2D coordinate, X=longitude Y=latitude for geographic data.
type Point struct {
	X, Y float64
}

// Polygon is a simple ring of vertices. The ring is implicitly closed:
// the last vertex connects back to the first.
type Polygon []Point

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	XMin, YMin, XMax, YMax float64
}

// Box returns the rectangle polygon covering b.
func Box(b Bounds) Polygon {
	return Polygon{
		{b.XMin, b.YMin},
		{b.XMax, b.YMin},
		{b.XMax, b.YMax},
		{b.XMin, b.YMax},
	}
}

// Bounds returns the polygon's bounding box.
func (p Polygon) Bounds() Bounds {
	b := Bounds{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, pt := range p {
		b.XMin = math.Min(b.XMin, pt.X)
		b.YMin = math.Min(b.YMin, pt.Y)
		b.XMax = math.Max(b.XMax, pt.X)
		b.YMax = math.Max(b.YMax, pt.Y)
	}
	return b
}

// Area returns the unsigned shoelace area of the ring.
func (p Polygon) Area() float64 {
	if len(p) < 3 {
		return 0
	}
	var s float64
	for i, a := range p {
		b := p[(i+1)%len(p)]
		s += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(s) / 2
}

// MarginKmToDeg converts a kilometer margin to degrees at the equator.
func MarginKmToDeg(km float64) float64 {
	return km * 1000.0 / (earthCircumference / 360.0)
}

// MarginKmToLonDeg converts a kilometer margin to degrees of longitude at
// the given latitude.
func MarginKmToLonDeg(km, lat float64) float64 {
	return MarginKmToDeg(km) / math.Cos(lat*math.Pi/180)
}

// footprintMarginKm is the margin applied around a granule bounding box
// before staging DEM data, so geocoding never runs off the DEM edge.
const footprintMarginKm = 50.0

// PolygonFromBounds buffers a geographic bounding box by the standard DEM
// margin. Longitude margin uses the worst-case latitude of the box; the
// latitude edges are clamped to ±90. A box already spanning more than 180°
// of longitude has its lon edges swapped so the result straddles the
// antimeridian and splits cleanly afterwards.
func PolygonFromBounds(b Bounds) Polygon {
	latWorst := math.Max(b.YMin, b.YMax)
	latMargin := MarginKmToDeg(footprintMarginKm)
	lonMargin := MarginKmToLonDeg(footprintMarginKm, latWorst)

	lonMin, lonMax := b.XMin, b.XMax
	if lonMax-lonMin > 180 {
		lonMin, lonMax = lonMax, lonMin
	}
	return Box(Bounds{
		XMin: lonMin - lonMargin,
		YMin: math.Max(b.YMin-latMargin, -90),
		XMax: lonMax + lonMargin,
		YMax: math.Min(b.YMax+latMargin, 90),
	})
}

// SplitAntimeridian splits a geographic polygon crossing the 180° meridian
// into sub-polygons whose longitudes stay within [-180, 180]. A polygon
// that does not cross is returned unchanged as a single-element slice. The
// function is pure and idempotent: feeding an output back in returns it
// unchanged. Sub-polygons come back westmost first.
func SplitAntimeridian(poly Polygon) []Polygon {
	b := poly.Bounds()
	if !(b.XMax-b.XMin > 180.0 || (b.XMin <= 180.0 && 180.0 <= b.XMax)) {
		return []Polygon{poly}
	}

	// Remap onto [0, 360] so the ring is contiguous across the seam.
	shifted := make(Polygon, len(poly))
	for i, pt := range poly {
		if pt.X <= 0 {
			pt.X += 360
		}
		shifted[i] = pt
	}

	const eps = 1e-12
	var polys []Polygon
	if west := clipRing(shifted, west180); west.Area() > eps {
		polys = append(polys, west)
	}
	if east := clipRing(shifted, east180); east.Area() > eps {
		for i := range east {
			east[i].X -= 360
		}
		polys = append(polys, east)
	}
	sort.Slice(polys, func(i, j int) bool {
		return polys[i].Bounds().XMin < polys[j].Bounds().XMin
	})
	return polys
}

type halfPlane struct {
	inside func(Point) bool
	// cross returns the point where segment a-b meets the boundary.
	cross func(a, b Point) Point
}

func at180(a, b Point) Point {
	t := (180.0 - a.X) / (b.X - a.X)
	return Point{180.0, a.Y + t*(b.Y-a.Y)}
}

var (
	west180 = halfPlane{inside: func(p Point) bool { return p.X <= 180.0 }, cross: at180}
	east180 = halfPlane{inside: func(p Point) bool { return p.X >= 180.0 }, cross: at180}
)

// clipRing clips a ring against a half plane (Sutherland-Hodgman).
func clipRing(ring Polygon, hp halfPlane) Polygon {
	var out Polygon
	for i, cur := range ring {
		prev := ring[(i+len(ring)-1)%len(ring)]
		switch {
		case hp.inside(cur) && hp.inside(prev):
			out = append(out, cur)
		case hp.inside(cur):
			out = append(out, hp.cross(prev, cur), cur)
		case hp.inside(prev):
			out = append(out, hp.cross(prev, cur))
		}
	}
	return out
}
