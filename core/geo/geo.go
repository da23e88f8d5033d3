package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceKm returns the haversine great-circle distance between two points.
func DistanceKm(a, b Point) float64 {
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// BearingDeg returns the initial bearing from a to b in degrees [0,360).
func BearingDeg(a, b Point) float64 {
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	y := math.Sin(dLon) * math.Cos(la2)
	x := math.Cos(la1)*math.Sin(la2) - math.Sin(la1)*math.Cos(la2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Offset returns the point reached from p travelling distKm along bearingDeg.
func Offset(p Point, bearingDeg, distKm float64) Point {
	br := bearingDeg * math.Pi / 180
	la1 := p.Lat * math.Pi / 180
	lo1 := p.Lon * math.Pi / 180
	ad := distKm / earthRadiusKm
	la2 := math.Asin(math.Sin(la1)*math.Cos(ad) + math.Cos(la1)*math.Sin(ad)*math.Cos(br))
	lo2 := lo1 + math.Atan2(math.Sin(br)*math.Sin(ad)*math.Cos(la1), math.Cos(ad)-math.Sin(la1)*math.Sin(la2))
	return Point{Lat: la2 * 180 / math.Pi, Lon: lo2 * 180 / math.Pi}
}

// Circle is a geofence with a center and radius.
type Circle struct {
	Center   Point   `json:"center"`
	RadiusKm float64 `json:"radius_km"`
}

// Contains reports whether p lies inside the circle.
func (c Circle) Contains(p Point) bool {
	return DistanceKm(c.Center, p) <= c.RadiusKm
}

// Polygon is a closed ring of vertices. The last vertex is implicitly
// connected back to the first.
type Polygon []Point

// Contains reports whether p lies inside the polygon using the ray-casting
// rule. Degenerate polygons (fewer than three vertices) contain nothing.
func (pg Polygon) Contains(p Point) bool {
	if len(pg) < 3 {
		return false
	}
	inside := false
	j := len(pg) - 1
	for i := 0; i < len(pg); i++ {
		vi, vj := pg[i], pg[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lon < (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lon {
			inside = !inside
		}
		j = i
	}
	return inside
}

// SegmentIntersectsCircle reports whether the great-circle segment a-b passes
// through the circle. The segment is sampled; for the short legs used in
// route planning a flat-earth approximation of the closest approach is
// sufficient.
func SegmentIntersectsCircle(a, b Point, c Circle) bool {
	if c.Contains(a) || c.Contains(b) {
		return true
	}
	const steps = 32
	for i := 1; i < steps; i++ {
		t := float64(i) / steps
		p := Point{
			Lat: a.Lat + (b.Lat-a.Lat)*t,
			Lon: a.Lon + (b.Lon-a.Lon)*t,
		}
		if c.Contains(p) {
			return true
		}
	}
	return false
}

// SegmentIntersectsPolygon samples the segment a-b against the polygon.
func SegmentIntersectsPolygon(a, b Point, pg Polygon) bool {
	if pg.Contains(a) || pg.Contains(b) {
		return true
	}
	const steps = 32
	for i := 1; i < steps; i++ {
		t := float64(i) / steps
		p := Point{
			Lat: a.Lat + (b.Lat-a.Lat)*t,
			Lon: a.Lon + (b.Lon-a.Lon)*t,
		}
		if pg.Contains(p) {
			return true
		}
	}
	return false
}
