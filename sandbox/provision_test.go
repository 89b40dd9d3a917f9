package sandbox

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// failingFileSystem injects errors into individual file system operations.
type failingFileSystem struct {
	RealFileSystem
	mkdirTempErr error
	writeFileErr error
	removed      []string
}

func (f *failingFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	if f.mkdirTempErr != nil {
		return "", f.mkdirTempErr
	}
	return f.RealFileSystem.MkdirTemp(dir, pattern)
}

func (f *failingFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	if f.writeFileErr != nil {
		return f.writeFileErr
	}
	return f.RealFileSystem.WriteFile(filename, data, perm)
}

func (f *failingFileSystem) RemoveAll(path string) error {
	f.removed = append(f.removed, path)
	return f.RealFileSystem.RemoveAll(path)
}

func testPolicy() Policy {
	return Policy{
		Image:       "python:3.11-slim",
		TimeoutSec:  10,
		MemoryMB:    128,
		PidsLimit:   64,
		MaxOutputKB: 200,
	}
}

func TestProvision(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("WritesCodeToScratchDir", func(t *testing.T) {
		prov := NewProvisioner(logger, testPolicy())

		spec, err := prov.Provision("print('Hello World')")
		require.NoError(t, err)
		defer prov.Cleanup(spec)

		assert.NotEmpty(t, spec.RunID)
		assert.Equal(t, "runbox-"+spec.RunID, spec.ContainerName)
		assert.DirExists(t, spec.ScratchDir)

		data, err := os.ReadFile(spec.CodePath)
		require.NoError(t, err)
		assert.Equal(t, "print('Hello World')", string(data))

		info, err := os.Stat(spec.CodePath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm(), "code must be readable by the container user")
	})

	t.Run("ScratchPathsAreUnique", func(t *testing.T) {
		prov := NewProvisioner(logger, testPolicy())

		seen := make(map[string]bool)
		for range 20 {
			spec, err := prov.Provision("pass")
			require.NoError(t, err)
			assert.False(t, seen[spec.ScratchDir], "scratch dir reused: %s", spec.ScratchDir)
			assert.False(t, seen[spec.ContainerName], "container name reused: %s", spec.ContainerName)
			seen[spec.ScratchDir] = true
			seen[spec.ContainerName] = true
			prov.Cleanup(spec)
		}
	})

	t.Run("CleanupRemovesScratchDir", func(t *testing.T) {
		prov := NewProvisioner(logger, testPolicy())

		spec, err := prov.Provision("pass")
		require.NoError(t, err)

		prov.Cleanup(spec)
		assert.NoDirExists(t, spec.ScratchDir)
	})

	t.Run("MkdirTempFailure", func(t *testing.T) {
		fs := &failingFileSystem{mkdirTempErr: errors.New("no space left on device")}
		prov := NewProvisioner(logger, testPolicy(), WithProvisionerFileSystem(fs))

		_, err := prov.Provision("pass")
		require.Error(t, err)

		var provErr *ProvisionError
		require.ErrorAs(t, err, &provErr)
		assert.Contains(t, provErr.Error(), "no space left on device")
	})

	t.Run("WriteFileFailureRemovesScratchDir", func(t *testing.T) {
		fs := &failingFileSystem{writeFileErr: errors.New("read-only file system")}
		prov := NewProvisioner(logger, testPolicy(), WithProvisionerFileSystem(fs))

		_, err := prov.Provision("pass")
		require.Error(t, err)

		var provErr *ProvisionError
		require.ErrorAs(t, err, &provErr)
		require.Len(t, fs.removed, 1, "scratch dir must not leak when provisioning fails halfway")
		assert.NoDirExists(t, fs.removed[0])
	})

	t.Run("PolicyIsCarriedIntoSpec", func(t *testing.T) {
		pol := testPolicy()
		prov := NewProvisioner(logger, pol)

		spec, err := prov.Provision("pass")
		require.NoError(t, err)
		defer prov.Cleanup(spec)

		assert.Equal(t, pol, spec.Policy)
	})
}
