// Package testhelper provides shared test scaffolding.
package testhelper

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Context returns a cancellable context.
func Context() (context.Context, func()) {
	return context.WithCancel(context.Background())
}

// TempDir is a wrapper around ioutil.TempDir that registers cleanup
// with the test.
func TempDir(t testing.TB) string {
	t.Helper()

	tmpDir, err := ioutil.TempDir("", "reposync-test-")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, os.RemoveAll(tmpDir)) })

	return tmpDir
}

// MustMkdirAll creates the directory path below root, failing the test
// on error, and returns the absolute path.
func MustMkdirAll(t testing.TB, root, path string) string {
	t.Helper()

	dir := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

// MustWriteFile writes content to path below root, creating parent
// directories as needed.
func MustWriteFile(t testing.TB, root, path string, content []byte) string {
	t.Helper()

	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, ioutil.WriteFile(full, content, 0644))
	return full
}
