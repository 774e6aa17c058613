package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditBufferTrackAndGet(t *testing.T) {
	b := NewMemoryEditBuffer()

	b.TrackEdit("001/2024|Amina", "OPV1 at 6 weeks", "2024-06-14")

	v, ok := b.Get("001/2024|Amina", "OPV1 at 6 weeks")
	require.True(t, ok)
	assert.Equal(t, "2024-06-14", v)

	_, ok = b.Get("001/2024|Amina", "DPT-HepB-Hib1 at 6 weeks")
	assert.False(t, ok)
	_, ok = b.Get("002/2024|Kato", "OPV1 at 6 weeks")
	assert.False(t, ok)
}

func TestEditBufferOverwritesSameDose(t *testing.T) {
	b := NewMemoryEditBuffer()

	b.TrackEdit("001/2024|Amina", "OPV1 at 6 weeks", "2024-06-13")
	b.TrackEdit("001/2024|Amina", "OPV1 at 6 weeks", "2024-06-14")

	v, _ := b.Get("001/2024|Amina", "OPV1 at 6 weeks")
	assert.Equal(t, "2024-06-14", v)
	assert.Len(t, b.ForChild("001/2024|Amina"), 1)
}

func TestEditBufferClearIsPerChild(t *testing.T) {
	b := NewMemoryEditBuffer()

	b.TrackEdit("001/2024|Amina", "OPV1 at 6 weeks", "2024-06-14")
	b.TrackEdit("001/2024|Amina", "DPT-HepB-Hib1 at 6 weeks", "2024-06-14")
	b.TrackEdit("002/2024|Kato", "BCG at Birth", "2024-06-10")

	b.Clear("001/2024|Amina")

	assert.Empty(t, b.ForChild("001/2024|Amina"))
	assert.Len(t, b.ForChild("002/2024|Kato"), 1)
}

func TestEditBufferForChildReturnsCopy(t *testing.T) {
	b := NewMemoryEditBuffer()
	b.TrackEdit("001/2024|Amina", "OPV1 at 6 weeks", "2024-06-14")

	snapshot := b.ForChild("001/2024|Amina")
	snapshot["OPV1 at 6 weeks"] = "tampered"

	v, _ := b.Get("001/2024|Amina", "OPV1 at 6 weeks")
	assert.Equal(t, "2024-06-14", v)
}
