package geometry

import "fmt"

// ValidateAndRepair checks a GeoJSON geometry for the common defects the
// engine knows how to fix (unclosed polygon rings) and returns either the
// geometry unchanged, a repaired copy, or null with a diagnostic warning
// when repair is not possible. Valid geometries pass through unchanged
// with no warnings.
func ValidateAndRepair(geom map[string]any) (map[string]any, []string) {
	if geom == nil {
		return nil, nil
	}

	gtype, _ := geom["type"].(string)
	var warnings []string

	switch gtype {
	case "Polygon":
		repaired, warns, ok := repairPolygon(geom)
		if !ok {
			return nil, append(warns, fmt.Sprintf("geometry of type %q could not be repaired", gtype))
		}
		return repaired, warns
	case "MultiPolygon":
		polys, ok := geom["coordinates"].([]any)
		if !ok {
			return nil, []string{"MultiPolygon missing coordinates"}
		}
		repairedPolys := make([]any, 0, len(polys))
		for _, p := range polys {
			rings, ok := p.([]any)
			if !ok {
				return nil, []string{"MultiPolygon contains a malformed polygon"}
			}
			repairedRings, warns, ok := repairRings(rings)
			warnings = append(warnings, warns...)
			if !ok {
				return nil, append(warnings, "MultiPolygon member could not be repaired")
			}
			repairedPolys = append(repairedPolys, repairedRings)
		}
		out := cloneGeom(geom)
		out["coordinates"] = repairedPolys
		return out, warnings
	case "Point", "MultiPoint", "LineString", "MultiLineString":
		return geom, nil
	case "GeometryCollection":
		geoms, _ := geom["geometries"].([]any)
		repaired := make([]any, 0, len(geoms))
		for _, g := range geoms {
			gm, ok := g.(map[string]any)
			if !ok {
				return nil, []string{"GeometryCollection contains a malformed member"}
			}
			r, warns := ValidateAndRepair(gm)
			warnings = append(warnings, warns...)
			if r == nil {
				return nil, append(warnings, "GeometryCollection member could not be repaired")
			}
			repaired = append(repaired, r)
		}
		out := cloneGeom(geom)
		out["geometries"] = repaired
		return out, warnings
	default:
		return nil, []string{fmt.Sprintf("unrecognized geometry type %q", gtype)}
	}
}

func repairPolygon(geom map[string]any) (map[string]any, []string, bool) {
	rings, ok := geom["coordinates"].([]any)
	if !ok {
		return nil, []string{"Polygon missing coordinates"}, false
	}
	repairedRings, warns, ok := repairRings(rings)
	if !ok {
		return nil, warns, false
	}
	out := cloneGeom(geom)
	out["coordinates"] = repairedRings
	return out, warns, true
}

func repairRings(rings []any) ([]any, []string, bool) {
	var warnings []string
	out := make([]any, 0, len(rings))
	for _, r := range rings {
		ring, ok := r.([]any)
		if !ok || len(ring) < 3 {
			return nil, append(warnings, "polygon ring has fewer than 3 points"), false
		}
		first, fok := ring[0].([]any)
		last, lok := ring[len(ring)-1].([]any)
		if fok && lok && !coordsEqual(first, last) {
			ring = append(append([]any{}, ring...), first)
			warnings = append(warnings, "closed an unclosed polygon ring")
		}
		out = append(out, ring)
	}
	return out, warnings, true
}

func coordsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x1, ok1 := toFloat(a[i])
		x2, ok2 := toFloat(b[i])
		if !ok1 || !ok2 || x1 != x2 {
			return false
		}
	}
	return true
}

func cloneGeom(geom map[string]any) map[string]any {
	out := make(map[string]any, len(geom))
	for k, v := range geom {
		out[k] = v
	}
	return out
}
