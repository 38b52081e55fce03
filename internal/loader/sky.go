package loader

import (
	"iter"

	"github.com/quakeview/server/pkg/qdata"
)

// SkyMaxEdge2 is the largest squared edge length of a sky triangle.
const SkyMaxEdge2 = 5000

// SkyMaxCoord bounds sky vertex coordinates. Within it, skyMaxDepth splits
// always bring every edge under SkyMaxEdge2.
const SkyMaxCoord = 65536

const skyMaxDepth = 12

// Triangle is three corners in game axes.
type Triangle [3]qdata.Vec3

func dist2(a, b qdata.Vec3) float64 {
	dx := float64(b[0] - a[0])
	dy := float64(b[1] - a[1])
	dz := float64(b[2] - a[2])
	return dx*dx + dy*dy + dz*dz
}

func mid(a, b qdata.Vec3) qdata.Vec3 {
	return qdata.Vec3{(a[0] + b[0]) * 0.5, (a[1] + b[1]) * 0.5, (a[2] + b[2]) * 0.5}
}

// Fan triangulates a polygon around its centroid, one triangle per edge.
func Fan(poly []qdata.Vec3) iter.Seq[Triangle] {
	return func(yield func(Triangle) bool) {
		if len(poly) == 0 {
			return
		}
		var sum [3]float64
		for _, v := range poly {
			for i := range sum {
				sum[i] += float64(v[i])
			}
		}
		n := float64(len(poly))
		center := qdata.Vec3{float32(sum[0] / n), float32(sum[1] / n), float32(sum[2] / n)}
		prev := poly[len(poly)-1]
		for _, v := range poly {
			if !yield(Triangle{center, prev, v}) {
				return
			}
			prev = v
		}
	}
}

// Subdivide splits t at its edge midpoints until no edge is longer than
// SkyMaxEdge2 squared. Each split quarters the squared edge lengths. A
// triangle is emitted as is once float32 midpoints stop moving or after
// skyMaxDepth splits. Non-finite triangles are emitted unsplit. Beyond
// SkyMaxCoord edges may stay longer than the limit.
func Subdivide(t Triangle) iter.Seq[Triangle] {
	return func(yield func(Triangle) bool) {
		if !finite(t[:]) {
			yield(t)
			return
		}
		subdivide(t, skyMaxDepth, yield)
	}
}

func subdivide(t Triangle, depth int, yield func(Triangle) bool) bool {
	v1, v2, v3 := t[0], t[1], t[2]
	if depth <= 0 || !(dist2(v1, v2) > SkyMaxEdge2 || dist2(v2, v3) > SkyMaxEdge2 || dist2(v1, v3) > SkyMaxEdge2) {
		return yield(t)
	}
	c1, c2, c3 := mid(v2, v3), mid(v1, v3), mid(v1, v2)
	if c1 == v2 || c1 == v3 || c2 == v1 || c2 == v3 || c3 == v1 || c3 == v2 {
		return yield(t)
	}
	depth--
	return subdivide(Triangle{v1, c3, c2}, depth, yield) &&
		subdivide(Triangle{v2, c1, c3}, depth, yield) &&
		subdivide(Triangle{v3, c2, c1}, depth, yield) &&
		subdivide(Triangle{c1, c2, c3}, depth, yield)
}

// SkyTriangles is the sky surface of a polygon: its centroid fan, finely
// subdivided for the screen space sky shader.
func SkyTriangles(poly []qdata.Vec3) iter.Seq[Triangle] {
	return func(yield func(Triangle) bool) {
		for t := range Fan(poly) {
			for s := range Subdivide(t) {
				if !yield(s) {
					return
				}
			}
		}
	}
}
