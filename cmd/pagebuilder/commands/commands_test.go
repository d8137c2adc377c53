package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/livetemplate/pagebuilder"
	"github.com/livetemplate/pagebuilder/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup writes a config that keeps the snapshot in dir and returns its path
// and the snapshot path.
func setup(t *testing.T) (configPath, snapshotPath string) {
	t.Helper()
	dir := t.TempDir()
	snapshotPath = filepath.Join(dir, "doc.json")
	configPath = filepath.Join(dir, "pagebuilder.yaml")
	cfg := "storage:\n  backend: file\n  path: " + snapshotPath + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0644))
	return configPath, snapshotPath
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("1.2.3", "abc")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSnapshot(t *testing.T, path string, e *pagebuilder.Editor) {
	t.Helper()
	data, err := e.Marshal()
	require.NoError(t, err)
	require.NoError(t, persist.NewFileStore(path).Save(context.Background(), data))
}

func TestRootCmdIncludesSubcommands(t *testing.T) {
	cmd := NewRootCmd("dev", "none")
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"serve", "inspect", "validate", "reset", "version"} {
		assert.True(t, names[name], "missing subcommand %q", name)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "pagebuilder version 1.2.3 (commit abc)\n", out)
}

func TestInspectTree(t *testing.T) {
	configPath, snapshotPath := setup(t)

	n := 0
	e := pagebuilder.New(pagebuilder.WithIDGenerator(func() string {
		n++
		return []string{"", "p1", "r1", "c1", "c2"}[n]
	}))
	require.NoError(t, e.SelectRow("r1"))
	_, err := e.AddColumn("")
	require.NoError(t, err)
	require.NoError(t, e.UpdateImageColumn(pagebuilder.ImageUpdate{URL: "https://example.com/a.png"}))
	writeSnapshot(t, snapshotPath, e)

	out, err := run(t, "", "inspect", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, `page p1 [active]
  row r1 [selected]
    column c1 text center "# Untitled"
    column c2 image https://example.com/a.png [active]
`, out)
}

func TestInspectYAML(t *testing.T) {
	configPath, snapshotPath := setup(t)
	writeSnapshot(t, snapshotPath, pagebuilder.New())

	out, err := run(t, "", "inspect", "--config", configPath, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "pages:")
	assert.Contains(t, out, "type: text")
	assert.Contains(t, out, "# Untitled")
}

func TestInspectErrors(t *testing.T) {
	configPath, snapshotPath := setup(t)

	_, err := run(t, "", "inspect", "--config", configPath)
	assert.ErrorContains(t, err, "nothing stored")

	require.NoError(t, os.WriteFile(snapshotPath, []byte("{"), 0644))
	_, err = run(t, "", "inspect", "--config", configPath)
	assert.ErrorIs(t, err, pagebuilder.ErrCorruptSnapshot)

	writeSnapshot(t, snapshotPath, pagebuilder.New())
	_, err = run(t, "", "inspect", "--config", configPath, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestValidate(t *testing.T) {
	configPath, snapshotPath := setup(t)
	writeSnapshot(t, snapshotPath, pagebuilder.New())

	out, err := run(t, "", "validate", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot OK: 1 page(s), 1 row(s), 1 column(s)")

	broken := `{"pages":{"p":{"id":"p","rowIds":["gone"]}},"rows":{},"columns":{},"activePageId":"p","activeRowId":"","activeColumnId":"","selectedRowId":"x"}`
	require.NoError(t, os.WriteFile(snapshotPath, []byte(broken), 0644))
	out, err = run(t, "", "validate", "--config", configPath)
	require.Error(t, err)
	assert.Contains(t, out, "Found 2 problem(s)")
}

func TestReset(t *testing.T) {
	configPath, snapshotPath := setup(t)
	e := pagebuilder.New()
	_, err := e.AddRow()
	require.NoError(t, err)
	writeSnapshot(t, snapshotPath, e)

	out, err := run(t, "n\n", "reset", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")

	out, err = run(t, "", "reset", "--config", configPath, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset the file snapshot")

	data, err := os.ReadFile(snapshotPath)
	require.NoError(t, err)
	s, err := pagebuilder.UnmarshalState(data)
	require.NoError(t, err)
	assert.Len(t, s.Rows, 1)
	for _, col := range s.Columns {
		assert.Equal(t, "# Untitled", col.Text())
	}
}

func TestServeRejectsBadFlags(t *testing.T) {
	configPath, _ := setup(t)
	_, err := run(t, "", "serve", "--config", configPath, "--backend", "mongo")
	assert.Error(t, err)
}
