// Package tiles caches slippy-map raster tiles keyed by zoom/x/y.
package tiles

import (
	"fmt"
	"math"

	"github.com/packrat-app/packrat/internal/domain"
)

// Coord addresses one tile.
type Coord struct {
	Z int
	X int
	Y int
}

// Key returns the storage key for a tile, "{z}-{x}-{y}".
func (c Coord) Key() string {
	return TileKey(c.X, c.Y, c.Z)
}

// TileKey builds the deterministic out-of-line storage key for a tile.
func TileKey(x, y, z int) string {
	return fmt.Sprintf("%d-%d-%d", z, x, y)
}

// LonToTileX converts longitude to a tile column at the given zoom.
func LonToTileX(lon float64, zoom int) int {
	n := float64(int(1) << uint(zoom))
	x := int(math.Floor((lon + 180.0) / 360.0 * n))
	return clampTile(x, zoom)
}

// LatToTileY converts latitude to a tile row at the given zoom, using the
// Mercator tile formula.
func LatToTileY(lat float64, zoom int) int {
	n := float64(int(1) << uint(zoom))
	rad := lat * math.Pi / 180.0
	y := int(math.Floor((1.0 - math.Log(math.Tan(rad)+1.0/math.Cos(rad))/math.Pi) / 2.0 * n))
	return clampTile(y, zoom)
}

func clampTile(v, zoom int) int {
	max := (1 << uint(zoom)) - 1
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// CoordsForBounds returns every tile coordinate covering the bounding box
// at one zoom level.
func CoordsForBounds(b domain.Bounds, zoom int) []Coord {
	minX := LonToTileX(b.MinLon, zoom)
	maxX := LonToTileX(b.MaxLon, zoom)
	// Tile rows grow southward, so the north edge yields the smaller row.
	minY := LatToTileY(b.MaxLat, zoom)
	maxY := LatToTileY(b.MinLat, zoom)

	coords := make([]Coord, 0, (maxX-minX+1)*(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			coords = append(coords, Coord{Z: zoom, X: x, Y: y})
		}
	}
	return coords
}

// CoordsForRegion returns the tile set covering the bounding box across a
// zoom range, lowest zoom first.
func CoordsForRegion(b domain.Bounds, minZoom, maxZoom int) []Coord {
	var coords []Coord
	for z := minZoom; z <= maxZoom; z++ {
		coords = append(coords, CoordsForBounds(b, z)...)
	}
	return coords
}
