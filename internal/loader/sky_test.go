package loader

import (
	"math"
	"math/rand"
	"testing"

	"github.com/quakeview/server/pkg/qdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(seq func(func(Triangle) bool)) []Triangle {
	var out []Triangle
	for t := range seq {
		out = append(out, t)
	}
	return out
}

func TestSubdivide_Small(t *testing.T) {
	tri := Triangle{{0, 0, 0}, {10, 0, 0}, {0, 10, 0}}
	assert.Equal(t, []Triangle{tri}, collect(Subdivide(tri)))
}

func TestSubdivide_Split(t *testing.T) {
	tri := Triangle{{0, 0, 0}, {100, 0, 0}, {0, 100, 0}}
	out := collect(Subdivide(tri))
	// 100^2 > 5000 but 50^2 and 50^2+50^2 are not
	require.Len(t, out, 4)
	assert.Equal(t, Triangle{{0, 0, 0}, {50, 0, 0}, {0, 50, 0}}, out[0])
	assert.Equal(t, Triangle{{50, 50, 0}, {0, 50, 0}, {50, 0, 0}}, out[3])
}

func TestSubdivide_Terminates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	coord := func() float32 { return float32(rng.Intn(2000) - 1000) }
	for i := 0; i < 50; i++ {
		tri := Triangle{{coord(), coord(), coord()}, {coord(), coord(), coord()}, {coord(), coord(), coord()}}
		for _, s := range collect(Subdivide(tri)) {
			assert.LessOrEqual(t, dist2(s[0], s[1]), float64(SkyMaxEdge2))
			assert.LessOrEqual(t, dist2(s[1], s[2]), float64(SkyMaxEdge2))
			assert.LessOrEqual(t, dist2(s[0], s[2]), float64(SkyMaxEdge2))
		}
	}
}

func TestSubdivide_Degenerate(t *testing.T) {
	inf := float32(math.Inf(1))
	nan := float32(math.NaN())
	tests := []struct {
		name string
		tri  Triangle
	}{
		{"midpoint rounds onto endpoint", Triangle{{1e10, 0, 0}, {math.Nextafter32(1e10, inf), 0, 0}, {1e10, 0, 0}}},
		{"infinite vertex", Triangle{{inf, 0, 0}, {0, 0, 0}, {0, 100, 0}}},
		{"nan vertex", Triangle{{nan, 0, 0}, {0, 0, 0}, {0, 1000, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, collect(Subdivide(tt.tri)), 1)
		})
	}
}

func TestSubdivide_DepthLimit(t *testing.T) {
	tri := Triangle{{0, 0, 0}, {1e6, 0, 0}, {0, 1e6, 0}}
	var out []Triangle
	subdivide(tri, 2, func(s Triangle) bool {
		out = append(out, s)
		return true
	})
	assert.Len(t, out, 16)
}

func TestFan(t *testing.T) {
	square := []qdata.Vec3{{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0}}
	out := collect(Fan(square))
	require.Len(t, out, 4)
	center := qdata.Vec3{5, 5, 0}
	assert.Equal(t, Triangle{center, {0, 10, 0}, {0, 0, 0}}, out[0])
	assert.Equal(t, Triangle{center, {0, 0, 0}, {10, 0, 0}}, out[1])

	assert.Empty(t, collect(Fan(nil)))
}

func TestSkyTriangles_Restartable(t *testing.T) {
	poly := []qdata.Vec3{{0, 0, 0}, {200, 0, 0}, {200, 200, 0}}
	seq := SkyTriangles(poly)
	first := collect(seq)
	assert.Equal(t, first, collect(seq))
	assert.Greater(t, len(first), 3)

	// stopping early is allowed
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
