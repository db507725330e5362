//go:build windows

package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dimcode/pkg/contract"
)

func TestMapPathInvalidWindows(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	for _, id := range []string{"C:\\abs.csv", "..", "."} {
		_, err := w.mapPath(contract.ArtifactID(id))
		assert.Equal(t, contract.ErrPathInvalid, err, "id %s", id)
	}
}
