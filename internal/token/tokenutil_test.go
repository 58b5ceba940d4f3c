package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountEmpty(t *testing.T) {
	require.Zero(t, Count(""))
}

func TestCountSimple(t *testing.T) {
	got := Count("hello world")
	require.Positive(t, got)
	if encoding != nil {
		require.Equal(t, 2, got)
	}
}

func TestEstimateFast(t *testing.T) {
	require.Zero(t, EstimateFast(""))
	require.Zero(t, EstimateFast("   \n\t  "))
	// 4 words beat runes/4 for short word-dense text.
	require.Equal(t, 4, EstimateFast("a b c d"))
	require.Equal(t, 1, EstimateFast("hi"))
}
