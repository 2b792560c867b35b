package trace

import (
	"sync"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_AppendAndWrap(t *testing.T) {
	r := NewRing(5)
	r.Append(1, 2, 3)
	assert.Equal(t, []float32{1, 2, 3}, r.Snapshot(nil))

	r.Append(4, 5, 6, 7)
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []float32{3, 4, 5, 6, 7}, r.Snapshot(nil))

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot(nil))
}

func TestRing_AppendInt16WithGap(t *testing.T) {
	r := NewRing(16)
	r.AppendInt16([]int16{-100, -200}, 2)
	r.AppendInt16([]int16{300}, 1)

	got := r.Snapshot(nil)
	require.Len(t, got, 6)
	assert.Equal(t, float32(-100), got[0])
	assert.Equal(t, float32(-200), got[1])
	assert.True(t, math32.IsNaN(got[2]))
	assert.True(t, math32.IsNaN(got[3]))
	assert.Equal(t, float32(300), got[4])
	assert.True(t, math32.IsNaN(got[5]))
}

func TestRing_SnapshotReusesDestination(t *testing.T) {
	r := NewRing(8)
	r.Append(1, 2, 3)

	dst := make([]float32, 0, 8)
	got := r.Snapshot(dst)
	assert.Equal(t, cap(dst), cap(got))
	assert.Equal(t, []float32{1, 2, 3}, got)
}

func TestRing_ConcurrentAccess(t *testing.T) {
	r := NewRing(64)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			r.AppendInt16([]int16{int16(i)}, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for range 1000 {
			assert.LessOrEqual(t, len(r.Snapshot(nil)), 64)
		}
	}()
	wg.Wait()
	assert.Equal(t, 64, r.Len())
}

func TestDownsample_NoDownsampling(t *testing.T) {
	samples := []float32{1, 2, 3}

	result := Downsample(nil, samples, 10)
	assert.Equal(t, samples, result)

	dst := make([]float32, 0, 10)
	result = Downsample(dst, samples, 10)
	assert.Equal(t, samples, result)
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_KeepsPeaks(t *testing.T) {
	samples := make([]float32, 100)
	samples[37] = -5000 // A narrow negative pulse
	samples[81] = 20

	result := Downsample(nil, samples, 10)
	require.Len(t, result, 10)
	assert.Equal(t, float32(-5000), result[3])
	assert.Equal(t, float32(20), result[8])
	assert.Equal(t, float32(0), result[0])
}

func TestDownsample_GapBuckets(t *testing.T) {
	samples := make([]float32, 20)
	for i := 10; i < 20; i++ {
		samples[i] = math32.NaN()
	}
	result := Downsample(nil, samples, 2)
	require.Len(t, result, 2)
	assert.Equal(t, float32(0), result[0])
	assert.True(t, math32.IsNaN(result[1]))

	assert.Empty(t, Downsample(nil, samples, 0))
}
