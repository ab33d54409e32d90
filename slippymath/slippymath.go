package slippymath

import "math"

const (
	TileSizePx = 256

	// first eccentricity of the WGS84 ellipsoid
	Eccentricity = 0.0818191908426215

	maxInverseIterations = 15
	inverseTolerance     = 1e-12
)

// ProjectionModel selects the Web-Mercator flavour used to place
// geographic coordinates into world-pixel space.
type ProjectionModel string

const (
	// Spherical is EPSG:3857.
	Spherical ProjectionModel = "spherical"
	// Ellipsoidal is the EPSG:3395-like ellipsoidal Mercator.
	Ellipsoidal ProjectionModel = "ellipsoidal"
)

func (m ProjectionModel) Valid() bool {
	return m == Spherical || m == Ellipsoidal
}

type Tile struct {
	Z uint32
	X float64
	Y float64
}

type GeoCoord struct {
	Lon float64
	Lat float64
}

// WorldSize returns the edge length in pixels of the whole map at zoom.
func WorldSize(zoom int, tileSize float64) float64 {
	return math.Ldexp(tileSize, zoom)
}

// Project converts lon/lat (degrees) to world-pixel coordinates at zoom.
// Latitudes outside ±90 give non-finite results.
func Project(lon, lat float64, zoom int, tileSize float64, model ProjectionModel) (x, y float64) {
	w := WorldSize(zoom, tileSize)
	x = ((lon + 180) / 360) * w

	phi := lat * math.Pi / 180
	sin := math.Sin(phi)

	if model == Spherical {
		y = (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * w
		return x, y
	}

	e := Eccentricity
	t := math.Tan(math.Pi/4+phi/2) * math.Pow((1-e*sin)/(1+e*sin), e/2)
	y = (0.5 - math.Log(t)/(2*math.Pi)) * w
	return x, y
}

// Unproject is the inverse of Project.
func Unproject(x, y float64, zoom int, tileSize float64, model ProjectionModel) (lon, lat float64) {
	if model == Spherical {
		return TileToLonLat(uint32(zoom), x/tileSize, y/tileSize)
	}

	w := WorldSize(zoom, tileSize)
	lon = x/w*360 - 180

	// solve tan(pi/4 - phi/2) = t * ((1 - e sin phi)/(1 + e sin phi))^(e/2)
	e := Eccentricity
	t := math.Exp((y/w - 0.5) * 2 * math.Pi)
	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < maxInverseIterations; i++ {
		sin := e * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-sin)/(1+sin), e/2))
		done := math.Abs(next-phi) < inverseTolerance
		phi = next
		if done {
			break
		}
	}

	return lon, phi * 180 / math.Pi
}

// Returns lat/lon coordinates of top left corner of requested tile
func TileToLonLat(zoom uint32, x float64, y float64) (lon, lat float64) {
	maxtiles := float64(uint64(1 << zoom))

	lon = 360.0 * (x/maxtiles - 0.5)
	lat = 2.0*math.Atan(math.Exp(math.Pi-(2*math.Pi)*(y/maxtiles)))*(180.0/math.Pi) - 90.0

	return lon, lat
}

// TileCount is the number of tiles along one axis at zoom.
func TileCount(zoom int) int {
	return 1 << uint(zoom)
}
