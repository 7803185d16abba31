package documents

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIDsDeterministic(t *testing.T) {
	gen, err := NewIDGenerator("hash")
	require.NoError(t, err)

	a := gen.Identify(Unit{Text: "the quick brown fox", NativeID: "n1"})
	b := gen.Identify(Unit{Text: "the quick brown fox", NativeID: "n2"})
	assert.Equal(t, a, b, "identical text must yield identical ids")
	assert.Len(t, a, 64, "id should be a fixed-width hex digest")
}

func TestHashIDsDistinct(t *testing.T) {
	gen, err := NewIDGenerator("hash")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	seen := make(map[string]string)
	for i := 0; i < 500; i++ {
		text := fmt.Sprintf("chunk %d %d", i, rng.Int63())
		id := gen.Identify(Unit{Text: text})
		if prev, ok := seen[id]; ok {
			t.Fatalf("id collision between %q and %q", prev, text)
		}
		seen[id] = text
	}
}

func TestNativeIDsPassThrough(t *testing.T) {
	gen, err := NewIDGenerator("native")
	require.NoError(t, err)

	id := gen.Identify(Unit{Text: "some text", NativeID: "unit-7"})
	assert.Equal(t, "unit-7", id)
}

func TestUnknownStrategyFailsFast(t *testing.T) {
	_, err := NewIDGenerator("uuid5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uuid5")
}
