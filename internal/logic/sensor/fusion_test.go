package sensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/SunGo/internal/hw/adc"
)

// orderSampler records the channel order and serves values per channel.
type orderSampler struct {
	values map[int]int
	order  []int
	failOn int
}

func (s *orderSampler) Read(ch int) (int, error) {
	if ch == s.failOn {
		return 0, errors.New("adc fault")
	}
	s.order = append(s.order, ch)
	return s.values[ch], nil
}

func (s *orderSampler) Close() error { return nil }

func newFusion(nw, ne, sw, se int) *Fusion {
	m := adc.NewMockSampler(0)
	m.Set(0, nw)
	m.Set(1, ne)
	m.Set(2, sw)
	m.Set(3, se)
	return NewFusion(m, DefaultChannels)
}

func TestFusion_EqualReadingsHaveNoError(t *testing.T) {
	for _, v := range []int{0, 1, 512, 1023} {
		f := newFusion(v, v, v, v)
		dh, err := f.HorizontalError()
		require.NoError(t, err)
		dv, err := f.VerticalError()
		require.NoError(t, err)
		assert.Zero(t, dh, "dh for %d", v)
		assert.Zero(t, dv, "dv for %d", v)
	}
}

func TestFusion_WestBrighter(t *testing.T) {
	f := newFusion(800, 200, 800, 200)
	dh, err := f.HorizontalError()
	require.NoError(t, err)
	assert.Equal(t, 600, dh)

	dv, err := f.VerticalError()
	require.NoError(t, err)
	assert.Equal(t, 0, dv)
}

func TestFusion_NorthBrighter(t *testing.T) {
	f := newFusion(700, 500, 100, 300)
	dv, err := f.VerticalError()
	require.NoError(t, err)
	assert.Equal(t, 600-200, dv)

	dh, err := f.HorizontalError()
	require.NoError(t, err)
	assert.Equal(t, 400-400, dh)
}

func TestReadings_IntegerDivision(t *testing.T) {
	r := Readings{3, 0, 0, 0}
	assert.Equal(t, 1, r.Horizontal()) // 3/2 - 0/2
	assert.Equal(t, 1, r.Vertical())

	neg := Readings{-3, 0, 0, 0}
	assert.Equal(t, -2, neg.Horizontal(), "floor division rounds toward -inf")
}

func TestReadings_Thresholds(t *testing.T) {
	r := Readings{100, 500, 200, 300}
	assert.False(t, r.AnyAbove(500), "strictly greater")
	assert.True(t, r.AnyAbove(499))
	assert.True(t, r.AllBelow(501))
	assert.False(t, r.AllBelow(500), "strictly less")
}

func TestFusion_ReadOrderAndChannels(t *testing.T) {
	s := &orderSampler{values: map[int]int{7: 1, 6: 2, 5: 3, 4: 4}, failOn: -1}
	f := NewFusion(s, Channels{7, 6, 5, 4})

	r, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, Readings{1, 2, 3, 4}, r)
	assert.Equal(t, []int{7, 6, 5, 4}, s.order)

	v, err := f.ReadOne(SouthWest)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestFusion_ErrorPropagates(t *testing.T) {
	s := &orderSampler{values: map[int]int{}, failOn: 2}
	f := NewFusion(s, DefaultChannels)

	_, err := f.ReadAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SW")

	_, err = f.AnyAbove(0)
	assert.Error(t, err)
	_, err = f.AllBelow(0)
	assert.Error(t, err)

	_, err = f.ReadOne(Position(9))
	assert.Error(t, err)
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "NW", NorthWest.String())
	assert.Equal(t, "SE", SouthEast.String())
	assert.Equal(t, "Position(7)", Position(7).String())
}
