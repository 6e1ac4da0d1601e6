package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapping = `
stream "people" {
  format = "delimited"

  record "person" {
    field "first" {}
    field "last"  {}
    field "age"   { type = "int" }
  }
}
`

func writeTestMapping(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "people.hcl")
	require.NoError(t, os.WriteFile(path, []byte(testMapping), 0o644))
	return path
}

func TestRunConvert(t *testing.T) {
	mapping := writeTestMapping(t)
	dir := filepath.Dir(mapping)

	inPath := filepath.Join(dir, "in.txt")
	outPath := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(inPath, []byte("joe,smith,41\namy,jones,39\n"), 0o644))

	var sb strings.Builder
	err := run(&sb, []string{"-m", mapping, "convert", inPath, outPath})
	require.NoError(t, err)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "joe,smith,41\namy,jones,39\n", string(out))
}

func TestRunDescribe(t *testing.T) {
	mapping := writeTestMapping(t)

	var sb strings.Builder
	err := run(&sb, []string{"-m", mapping, "describe"})
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "people")
}

func TestRunArgumentErrors(t *testing.T) {
	t.Run("missing mapping", func(t *testing.T) {
		var sb strings.Builder
		err := run(&sb, []string{"convert", "a", "b"})
		exitErr, ok := err.(*ExitError)
		require.True(t, ok)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("missing command", func(t *testing.T) {
		mapping := writeTestMapping(t)
		var sb strings.Builder
		err := run(&sb, []string{"-m", mapping})
		exitErr, ok := err.(*ExitError)
		require.True(t, ok)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("unknown command", func(t *testing.T) {
		mapping := writeTestMapping(t)
		var sb strings.Builder
		err := run(&sb, []string{"-m", mapping, "transmogrify"})
		assert.ErrorContains(t, err, "unknown command")
	})
}
