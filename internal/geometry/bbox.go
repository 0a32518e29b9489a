// Package geometry implements bounding-box computation and best-effort
// repair over GeoJSON geometries represented as plain maps, plus the
// hydration of partial items from defaults.
package geometry

// EnsureBBox computes [minx, miny, maxx, maxy] for any GeoJSON geometry
// (Point, LineString, Polygon, Multi*, GeometryCollection). A null
// geometry yields a null bbox.
func EnsureBBox(geom map[string]any) []float64 {
	if geom == nil {
		return nil
	}

	minX, minY := posInf, posInf
	maxX, maxY := negInf, negInf

	visit(geom, func(x, y float64) {
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	})

	if minX == posInf {
		return nil
	}
	return []float64{minX, minY, maxX, maxY}
}

const (
	posInf = float64(1) << 62
	negInf = -posInf
)

// visit walks every coordinate pair reachable from a GeoJSON geometry
// value (or a GeometryCollection's nested geometries) and calls fn for
// each [x, y].
func visit(geom map[string]any, fn func(x, y float64)) {
	gtype, _ := geom["type"].(string)

	if gtype == "GeometryCollection" {
		geoms, _ := geom["geometries"].([]any)
		for _, g := range geoms {
			if gm, ok := g.(map[string]any); ok {
				visit(gm, fn)
			}
		}
		return
	}

	coords, ok := geom["coordinates"]
	if !ok {
		return
	}
	walkCoordinates(coords, fn)
}

// walkCoordinates recurses through arbitrarily nested coordinate arrays
// until it finds leaf [x, y(, z)] tuples.
func walkCoordinates(v any, fn func(x, y float64)) {
	arr, ok := v.([]any)
	if !ok {
		return
	}

	if isCoordinatePair(arr) {
		x, y, ok := toXY(arr)
		if ok {
			fn(x, y)
		}
		return
	}

	for _, item := range arr {
		walkCoordinates(item, fn)
	}
}

func isCoordinatePair(arr []any) bool {
	if len(arr) < 2 || len(arr) > 3 {
		return false
	}
	for _, v := range arr {
		if !isNumber(v) {
			return false
		}
	}
	return true
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64:
		return true
	default:
		return false
	}
}

func toXY(arr []any) (float64, float64, bool) {
	x, ok1 := toFloat(arr[0])
	y, ok2 := toFloat(arr[1])
	return x, y, ok1 && ok2
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
