package content

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixedIntn always returns the same index.
type fixedIntn int

// IntN implements Intn.
func (f fixedIntn) IntN(int) int { return int(f) }

// TestTable verifies all eight couplets exist and every one has an animated tag on the left scroll.
func TestTable(t *testing.T) {
	t.Parallel()

	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, IDs())

	for _, id := range IDs() {
		c, err := Lookup(id)
		require.NoError(t, err)
		require.Equal(t, id, c.ID)
		require.NotEmpty(t, c.Left)
		require.NotEmpty(t, c.Right)
		require.NotEmpty(t, c.RightImages)

		hasTag := false
		for _, img := range c.LeftImages {
			hasTag = hasTag || img.Tag
		}

		require.True(t, hasTag, "couplet %d has no animated tag", id)
	}
}

// TestLookup_Images checks image paths and tag flags for a couplet with three left images.
func TestLookup_Images(t *testing.T) {
	t.Parallel()

	c, err := Lookup(6)
	require.NoError(t, err)
	require.Equal(t, []Image{
		{Src: "images/font/font-6-l-1.png"},
		{Src: "images/font/font-6-l-2.png", Tag: true},
		{Src: "images/font/font-6-l-3.png"},
	}, c.LeftImages)
	require.Equal(t, []Image{
		{Src: "images/font/font-6-r-1.png", Tag: true},
		{Src: "images/font/font-6-r-2.png"},
	}, c.RightImages)
	require.Equal(t, "新技能get显身手  逼格更上一层楼", c.Description())
}

// TestLookup_Unknown verifies ids outside the table are rejected.
func TestLookup_Unknown(t *testing.T) {
	t.Parallel()

	for _, id := range []int{0, 9, -1} {
		_, err := Lookup(id)
		require.ErrorIs(t, err, ErrUnknownCouplet)
	}
}

// TestPick verifies the drawn couplet follows the index source and stays in range.
func TestPick(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, Pick(fixedIntn(0)).ID)
	require.Equal(t, 8, Pick(fixedIntn(7)).ID)

	r := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // Deterministic test source.
	for range 100 {
		id := Pick(r).ID
		require.GreaterOrEqual(t, id, 1)
		require.LessOrEqual(t, id, 8)
	}

	require.NotZero(t, Pick(nil).ID)
}
