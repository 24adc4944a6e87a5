package usecase

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutOnceRejectsDuplicateKey(t *testing.T) {
	p := NewPutOnce[string]()
	require.NoError(t, p.Put("auth/login.go", "first"))

	err := p.Put("auth/login.go", "second")
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth/login.go")

	// The accepted value is untouched.
	require.Equal(t, "first", p.Snapshot()["auth/login.go"])
}

func TestPutOnceConcurrentWritersOneWinner(t *testing.T) {
	p := NewPutOnce[int]()
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Put("shared", i)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		}
	}
	require.Equal(t, 1, accepted)
	require.Equal(t, 1, p.Len())
}

func TestStructureManifestUnitsSortedByPath(t *testing.T) {
	m := &StructureManifest{
		Files: map[string]FileRecord{
			"z/last.go":  {Lang: "go", TokenCost: 10, Module: "z"},
			"a/first.go": {Lang: "go", TokenCost: 20, Module: "a"},
		},
	}
	units := m.Units()
	require.Len(t, units, 2)
	require.Equal(t, "a/first.go", units[0].Path)
	require.Equal(t, "z/last.go", units[1].Path)
	require.Equal(t, "a", units[0].Module)
}
