package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumarlokesh/cow-trie/internal/store"
	"github.com/kumarlokesh/cow-trie/internal/wal"
)

func runCommand(t *testing.T, st *store.Store, name string, args ...string) (string, error) {
	t.Helper()
	cmd := findCommand(name)
	require.NotNil(t, cmd, name)

	var buf bytes.Buffer
	stdout = &buf
	err := cmd.Run(st, args)
	return buf.String(), err
}

func TestCommands(t *testing.T) {
	st, err := store.Open(store.Config{Dir: t.TempDir(), WAL: wal.Config{Sync: true}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer st.Close()

	_, err = runCommand(t, st, "put", "fruit/apple", "red")
	require.NoError(t, err)
	_, err = runCommand(t, st, "put", "fruit/banana", "yellow")
	require.NoError(t, err)

	out, err := runCommand(t, st, "get", "fruit/apple")
	require.NoError(t, err)
	assert.Equal(t, "red\n", out)

	_, err = runCommand(t, st, "get", "fruit/cherry")
	assert.ErrorContains(t, err, "not found")

	_, err = runCommand(t, st, "put", "only-key")
	assert.Error(t, err)

	out, err = runCommand(t, st, "txn", "-put", "fruit/cherry=dark", "-delete", "fruit/banana")
	require.NoError(t, err)
	assert.Contains(t, out, "writes=2")

	out, err = runCommand(t, st, "list", "-prefix", "fruit/", "-values")
	require.NoError(t, err)
	assert.Equal(t, "fruit/apple\tred\nfruit/cherry\tdark\n", out)

	_, err = runCommand(t, st, "txn", "-put", "missing-equals")
	assert.Error(t, err)

	out, err = runCommand(t, st, "delete", "fruit/apple")
	require.NoError(t, err)
	assert.Contains(t, out, "OK version=")

	out, err = runCommand(t, st, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "fruit/cherry")
	assert.Contains(t, out, "delete")

	out, err = runCommand(t, st, "checkpoint")
	require.NoError(t, err)
	assert.Contains(t, out, "Checkpoint written")

	assert.Nil(t, findCommand("bogus"))
}

func TestLoadConfig_LogLevel(t *testing.T) {
	oldPath, oldVerbose := *configPath, *verbose
	t.Cleanup(func() { *configPath, *verbose = oldPath, oldVerbose })

	writeConfig := func(content string) string {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	*configPath = writeConfig("store:\n  dir: /tmp/cowtrie\n")
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)

	*configPath = writeConfig("log:\n  level: info\n")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)

	*verbose = true
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}
