package core_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dosco/pipejin/core"
	"github.com/dosco/pipejin/core/internal/sdata"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestWatchShapeFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file watcher test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "shape.json")
	require.NoError(t, os.WriteFile(path, sdata.GetTestShapeJSON(), 0o644))

	e, err := core.NewEngine(&core.Config{WatchShape: true},
		core.NewFileShapeProvider(afero.NewOsFs(), path))
	require.NoError(t, err)
	defer e.Close()

	before := e.ShapeInfo().Hash
	require.NotContains(t, e.ShapeInfo().Fields, "carrier")

	shape := `{
		"leg": {"type": "nested", "this_property_path": "legs", "name": "leg"},
		"status": {"type": "string", "parent_path": "leg", "this_property_path": "legs.status", "name": "status"},
		"carrier": {"type": "string", "this_property_path": "carrier", "name": "carrier"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(shape), 0o644))

	require.Eventually(t, func() bool {
		return e.ShapeInfo().Hash != before
	}, 5*time.Second, 50*time.Millisecond)

	require.Contains(t, e.ShapeInfo().Fields, "carrier")
}
