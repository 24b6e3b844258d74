package mc

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Sampler) []float64 {
	var out []float64
	for {
		z, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, z)
	}
}

func TestSampler_DeterministicAndFinite(t *testing.T) {
	a := drain(NewSampler(42, 0, 1000, false))
	b := drain(NewSampler(42, 0, 1000, false))
	require.Len(t, a, 1000)
	assert.Equal(t, a, b)

	c := drain(NewSampler(42, 1, 1000, false))
	assert.NotEqual(t, a, c, "different streams must not share draws")

	d := drain(NewSampler(43, 0, 1000, false))
	assert.NotEqual(t, a, d)
}

func TestSampler_Reset(t *testing.T) {
	s := NewSampler(7, 3, 64, false)
	first := drain(s)
	_, ok := s.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Remaining())

	s.Reset()
	assert.Equal(t, 64, s.Remaining())
	assert.Equal(t, first, drain(s))
}

func TestSampler_Antithetic(t *testing.T) {
	s := NewSampler(11, 0, 10, true)
	for i := 0; i < 5; i++ {
		z1, z2, ok := s.NextPair()
		require.True(t, ok)
		assert.Equal(t, -z1, z2)
	}
	_, _, ok := s.NextPair()
	assert.False(t, ok)

	// Next 也按 z, -z 的顺序产出
	draws := drain(NewSampler(11, 0, 10, true))
	for i := 0; i < len(draws); i += 2 {
		assert.Equal(t, -draws[i], draws[i+1])
	}
}

func TestSampler_All(t *testing.T) {
	s := NewSampler(5, 0, 100, false)
	want := drain(s)

	got := slices.Collect(s.All())
	assert.Equal(t, want, got)
	assert.Equal(t, 100, s.Len())

	// 提前 break 不会出错，再次 All 仍从头开始
	for range s.All() {
		break
	}
	assert.Equal(t, want, slices.Collect(s.All()))
}

func TestSampler_Moments(t *testing.T) {
	s := NewSampler(2024, 0, 200_000, false)
	var sum, sumSq float64
	for z := range s.All() {
		sum += z
		sumSq += z * z
	}
	n := float64(s.Len())
	mean := sum / n
	variance := sumSq/n - mean*mean
	// 均值的标准误约 0.0022
	assert.InDelta(t, 0, mean, 0.01)
	assert.InDelta(t, 1, variance, 0.02)
	assert.False(t, math.IsNaN(variance))
}
