package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHelp(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, []string{"-h"}))
	assert.Contains(t, out.String(), "-config")
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("session:\n  backend: sqlite\n"), 0o600))

	tcs := map[string][]string{
		"unknown flag":    {"-nope"},
		"missing config":  {"-config", filepath.Join(dir, "missing.yaml")},
		"invalid backend": {"-config", bad, "-env-file", ""},
	}
	for name, args := range tcs {
		assert.Error(t, run(context.Background(), &bytes.Buffer{}, args), name)
	}
}

func TestRunServesUntilCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "molsimd.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("server:\n  addr: 127.0.0.1:0\nartifacts:\n  root: "+dir+"\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, run(ctx, &bytes.Buffer{}, []string{"-config", cfg, "-env-file", ""}))
}
