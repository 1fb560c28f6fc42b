package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ufs-archive/ufs2arco/internal/config"
)

var requested = config.ChunkMap{
	{Dim: "time", Size: 1},
	{Dim: "pfull", Size: 5},
	{Dim: "grid_yt", Size: 30},
	{Dim: "grid_xt", Size: 30},
}

func TestNew_IntersectsDims(t *testing.T) {
	dims := map[string]int{"time": 4, "grid_yt": 190, "grid_xt": 384, "phalf": 128}

	p := New(requested, dims)

	// key set is exactly requested ∩ dataset dims, in mapping order
	assert.Equal(t, []string{"time", "grid_yt", "grid_xt"}, p.Dims())
	assert.Equal(t, map[string]int{"time": 1, "grid_yt": 30, "grid_xt": 30}, p.Sizes())
}

func TestNew_WholeDimSentinel(t *testing.T) {
	req := config.ChunkMap{{Dim: "grid_yt", Size: config.WholeDim}, {Dim: "grid_xt", Size: 0}}
	p := New(req, map[string]int{"grid_yt": 190, "grid_xt": 384})
	assert.Equal(t, map[string]int{"grid_yt": 190, "grid_xt": 384}, p.Sizes())
}

func TestNew_ClampsOversized(t *testing.T) {
	req := config.ChunkMap{{Dim: "time", Size: 100}}
	p := New(req, map[string]int{"time": 4})
	assert.Equal(t, map[string]int{"time": 4}, p.Sizes())
}

func TestNew_Empty(t *testing.T) {
	p := New(requested, map[string]int{"lat": 10, "lon": 20})
	assert.True(t, p.Empty())
	assert.Empty(t, p.Dims())
}

func TestBounded_NoCeiling(t *testing.T) {
	p := New(requested, map[string]int{"time": 4, "grid_yt": 30, "grid_xt": 30})
	assert.Equal(t, p.Sizes(), p.Bounded(0, 8).Sizes())
}

func TestBounded_SplitsEvenly(t *testing.T) {
	p := New(config.ChunkMap{{Dim: "y", Size: 30}, {Dim: "x", Size: 30}},
		map[string]int{"y": 30, "x": 30})

	// 30*30*8 = 7200 bytes; ceiling 2000 forces a split on y
	b := p.Bounded(2000, 8)

	sizes := b.Sizes()
	assert.Equal(t, 30, sizes["x"])
	assert.Less(t, sizes["y"], 30)
	assert.Zero(t, 30%sizes["y"], "intermediate chunk must divide the target chunk")
	assert.LessOrEqual(t, int64(sizes["y"]*sizes["x"]*8), int64(2000))
}

func TestBounded_FallsToOne(t *testing.T) {
	p := New(config.ChunkMap{{Dim: "y", Size: 7}}, map[string]int{"y": 7})
	b := p.Bounded(8, 8) // only a single element fits
	assert.Equal(t, map[string]int{"y": 1}, b.Sizes())
}
