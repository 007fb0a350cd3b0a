package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVetInput_Args(t *testing.T) {
	names, err := vetInput([]string{"Water", "Parfum"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Water", "Parfum"}, names)
}

func TestVetInput_SingleCommaSeparatedArg(t *testing.T) {
	names, err := vetInput([]string{"Water, Glycerin, Parfum"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Water", "Glycerin", "Parfum"}, names)
}

func TestVetInput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingredients.txt")
	require.NoError(t, os.WriteFile(path, []byte("Water, Glycerin\nTalc"), 0644))

	names, err := vetInput(nil, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Water", "Glycerin", "Talc"}, names)
}

func TestVetInput_MissingFile(t *testing.T) {
	_, err := vetInput(nil, filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
