package selection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ppiankov/odcfit/internal/model"
)

func measurements() []model.Measurement {
	return []model.Measurement{
		{InspiredO2: 10, SpO2: 70, Sequence: 1, Included: true, Row: 1},
		{InspiredO2: 15, SpO2: 85, Sequence: 2, Included: false, Row: 2},
		{InspiredO2: 20, SpO2: 92, Sequence: 3, Included: true, Row: 3},
	}
}

func TestPartition(t *testing.T) {
	ms := WithAnchors(measurements())
	ms, err := Toggle(ms, 5, true) // P50 anchor
	require.NoError(t, err)

	included, excluded := Partition(ms, Options{})
	require.Len(t, included, 3)
	require.Len(t, excluded, 2)
	require.Equal(t, len(ms), len(included)+len(excluded))

	// Order is preserved
	require.Equal(t, []float64{10, 20, 9.7}, []float64{included[0].InspiredO2, included[1].InspiredO2, included[2].InspiredO2})
	require.True(t, included[2].Synthetic)
	require.Equal(t, 15.0, excluded[0].InspiredO2)
	require.Equal(t, 0.0, excluded[1].InspiredO2)
}

func TestPartition_SkipAnchors(t *testing.T) {
	ms, err := Toggle(WithAnchors(measurements()), 4, true)
	require.NoError(t, err)

	included, excluded := Partition(ms, Options{SkipAnchors: true})
	for _, m := range append(included, excluded...) {
		require.False(t, m.Synthetic)
	}
	require.Len(t, included, 2)
	require.Len(t, excluded, 1)
}

func TestPartition_NothingSelected(t *testing.T) {
	ms := measurements()
	for i := range ms {
		ms[i].Included = false
	}
	included, excluded := Partition(ms, Options{})
	require.Empty(t, included)
	require.Len(t, excluded, 3)
}

func TestSamples(t *testing.T) {
	xs, ys := Samples(measurements())
	require.Equal(t, []float64{10, 15, 20}, xs)
	require.Equal(t, []float64{70, 85, 92}, ys)
}

func TestSequence(t *testing.T) {
	ms := []model.Measurement{
		{InspiredO2: 30, Row: 1},
		{InspiredO2: 10, Row: 2},
		{InspiredO2: 20, Row: 3},
		{InspiredO2: 10, Row: 4},
	}
	out := Sequence(ms)

	require.Equal(t, []int{2, 4, 3, 1}, []int{out[0].Row, out[1].Row, out[2].Row, out[3].Row})
	for i, m := range out {
		require.Equal(t, i+1, m.Sequence)
	}
	require.Equal(t, 0, ms[0].Sequence, "input must not change")
}

func TestWithAnchors_Idempotent(t *testing.T) {
	once := WithAnchors(measurements())
	twice := WithAnchors(once)

	require.Len(t, once, 5)
	require.Equal(t, once, twice)
	require.True(t, once[3].Synthetic)
	require.False(t, once[3].Included, "anchors start excluded")

	plain := WithoutAnchors(once)
	require.Len(t, plain, 3)
	require.Equal(t, []int{1, 2, 3}, []int{plain[0].Sequence, plain[1].Sequence, plain[2].Sequence})
}

func TestWithAnchors_KeepsStoredNumbers(t *testing.T) {
	ms := WithAnchors(measurements())

	for i, m := range measurements() {
		require.Equal(t, m.Sequence, ms[i].Sequence)
		require.Equal(t, m.Row, ms[i].Row)
	}

	origin, err := AnchorSequence(3, 1)
	require.NoError(t, err)
	p50, err := AnchorSequence(3, 2)
	require.NoError(t, err)
	require.Equal(t, []int{4, 5}, []int{origin, p50})
	require.Equal(t, model.Anchors()[0].InspiredO2, ms[origin-1].InspiredO2)
	require.Equal(t, model.P50InspiredO2, ms[p50-1].InspiredO2)

	_, err = AnchorSequence(3, 3)
	require.Error(t, err)
}

func TestToggle(t *testing.T) {
	ms := measurements()
	out, err := Toggle(ms, 2, true)
	require.NoError(t, err)
	require.True(t, out[1].Included)
	require.False(t, ms[1].Included, "input must not change")

	_, err = Toggle(ms, 9, true)
	require.Error(t, err)
}

func TestPersistableFlags_DropsAnchors(t *testing.T) {
	ms := WithAnchors(measurements())
	ms, err := Toggle(ms, 4, true)
	require.NoError(t, err)

	flags := PersistableFlags(ms)
	require.Equal(t, map[int]bool{1: true, 2: false, 3: true}, flags)
}

func TestUpdate(t *testing.T) {
	p := &model.Patient{ID: 4, Ideal: true, Processed: true}
	ms, err := Toggle(measurements(), 1, false)
	require.NoError(t, err)

	u := Update(p, WithAnchors(ms))
	require.Equal(t, 4, u.PatientID)
	require.True(t, u.Ideal)
	require.True(t, u.Processed)
	require.False(t, u.Problematic)
	require.Equal(t, map[int]bool{1: false, 2: false, 3: true}, u.Included)
}
