package pipeline_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufs-archive/ufs2arco/internal/cftime"
	"github.com/ufs-archive/ufs2arco/internal/dataset"
	"github.com/ufs-archive/ufs2arco/internal/pipeline"
)

var cycle = time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC)

// rawFV3Dataset builds a dataset shaped like a freshly merged replay cycle:
// julian-calendar time axis, level and grid coordinates, ak/bk still global
// attributes, the misspelled latitude long_name.
func rawFV3Dataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()

	times := []cftime.Date{
		{Year: 1994, Month: 1, Day: 1},
		{Year: 1994, Month: 1, Day: 1, Hour: 6},
	}
	require.NoError(t, ds.AddDim("time", 2))
	require.NoError(t, ds.SetVar("time", dataset.NewVariable(times, []string{"time"}, map[string]any{
		"units":    "hours since 1994-01-01 00:00:00",
		"calendar": "julian",
	})))

	require.NoError(t, ds.SetVar("phalf", dataset.NewVariable(
		[]float32{0, 500, 1000}, []string{"phalf"}, nil)))
	require.NoError(t, ds.SetVar("grid_yt", dataset.NewVariable(
		[]float64{-30, 0, 30}, []string{"grid_yt"}, map[string]any{
			"long_name": "T-cell latiitude",
		})))
	require.NoError(t, ds.SetVar("pressfc", dataset.NewVariable(
		[]float32{1, 2, 3, 4, 5, 6}, []string{"time", "grid_yt"}, nil)))
	require.NoError(t, ds.SetCoords("time", "phalf", "grid_yt"))

	ds.Attrs["ak"] = []float64{10, 20, 30}
	ds.Attrs["bk"] = []float64{0, 0.5, 1}
	return ds
}

func TestFV3_NormalizeTimeCoordinates(t *testing.T) {
	pipeline.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)))
	defer pipeline.SetClock(nil)

	ds := rawFV3Dataset(t)
	require.NoError(t, pipeline.FV3{}.Normalize(ds, cycle))

	// calendar-aware axis moved aside, standard timestamps index the dim
	require.True(t, ds.Has("cftime"))
	assert.Equal(t, []string{"time"}, ds.Var("cftime").Dims)
	assert.True(t, ds.IsCoord("cftime"))

	values, err := ds.Var("time").Values()
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1994, 1, 1, 6, 0, 0, 0, time.UTC),
	}, values.([]time.Time))
	assert.True(t, ds.IsCoord("time"))

	leads, err := ds.Var("ftime").Values()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{0, 6 * time.Hour}, leads.([]time.Duration))
	assert.True(t, ds.IsCoord("ftime"))
	assert.Equal(t, "time passed since 1994-01-01 00:00:00", ds.Var("ftime").Attrs["description"])

	assert.Equal(t, "processed by ufs2arco at 2026-08-23T12:00:00Z", ds.Attrs["history"])
}

func TestFV3_NormalizePromotesHybridCoefficients(t *testing.T) {
	ds := rawFV3Dataset(t)
	require.NoError(t, pipeline.FV3{}.Normalize(ds, cycle))

	for _, name := range []string{"ak", "bk"} {
		require.True(t, ds.Has(name), "%s should become a variable", name)
		assert.Equal(t, []string{"phalf"}, ds.Var(name).Dims)
		assert.True(t, ds.IsCoord(name))
		assert.NotContains(t, ds.Attrs, name)
	}
}

func TestFV3_NormalizeFixesLatitudeName(t *testing.T) {
	ds := rawFV3Dataset(t)
	require.NoError(t, pipeline.FV3{}.Normalize(ds, cycle))
	assert.Equal(t, "T-cell latitude", ds.Var("grid_yt").Attrs["long_name"])
}

func TestFV3_NormalizeWithoutTimeAxisFails(t *testing.T) {
	ds := dataset.New()
	require.NoError(t, ds.SetVar("pfull", dataset.NewVariable(
		[]float32{1, 2}, []string{"pfull"}, nil)))
	assert.Error(t, pipeline.FV3{}.Normalize(ds, cycle))
}

func TestForName(t *testing.T) {
	c, err := pipeline.ForName("FV3Dataset")
	require.NoError(t, err)
	assert.Equal(t, "FV3Dataset", c.Name())

	_, err = pipeline.ForName("MOM6Dataset")
	assert.Error(t, err)
}
