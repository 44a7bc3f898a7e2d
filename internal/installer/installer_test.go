package installer

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookia/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError)
}

func twoLeafAssets() fstest.MapFS {
	return fstest.MapFS{
		"models/m1/a.bin":     {Data: []byte("alpha")},
		"models/m1/sub/b.bin": {Data: []byte("bravo")},
	}
}

func recordProgress(events *[]Progress) func(Progress) {
	return func(p Progress) { *events = append(*events, p) }
}

func TestInstallIfNeeded_CopiesTreeWithProgress(t *testing.T) {
	root := t.TempDir()
	inst := New(twoLeafAssets(), root, testLogger())

	var events []Progress
	dst, err := inst.InstallIfNeeded(context.Background(), "m1", recordProgress(&events))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "mlc-llm", "weights", "m1"), dst)
	assert.Equal(t, []Progress{{TotalFiles: 2, CopiedFiles: 1}, {TotalFiles: 2, CopiedFiles: 2}}, events)

	a, err := os.ReadFile(filepath.Join(dst, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(a))

	b, err := os.ReadFile(filepath.Join(dst, "sub", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(b))
}

func TestInstallIfNeeded_Idempotent(t *testing.T) {
	root := t.TempDir()
	inst := New(twoLeafAssets(), root, testLogger())

	var first []Progress
	dst1, err := inst.InstallIfNeeded(context.Background(), "m1", recordProgress(&first))
	require.NoError(t, err)
	require.Len(t, first, 2)

	var second []Progress
	dst2, err := inst.InstallIfNeeded(context.Background(), "m1", recordProgress(&second))
	require.NoError(t, err)

	assert.Equal(t, dst1, dst2)
	assert.Empty(t, second, "second install must not report progress")
}

func TestInstallIfNeeded_PartialDestinationCountsAsInstalled(t *testing.T) {
	root := t.TempDir()
	inst := New(twoLeafAssets(), root, testLogger())

	dst := inst.Destination("m1")
	require.NoError(t, os.MkdirAll(dst, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "a.bin"), []byte("alpha"), 0o600))

	var events []Progress
	got, err := inst.InstallIfNeeded(context.Background(), "m1", recordProgress(&events))
	require.NoError(t, err)
	assert.Equal(t, dst, got)
	assert.Empty(t, events)
	assert.NoFileExists(t, filepath.Join(dst, "sub", "b.bin"))
}

func TestInstallIfNeeded_EmptyDestinationIsInstalled(t *testing.T) {
	root := t.TempDir()
	inst := New(twoLeafAssets(), root, testLogger())
	require.NoError(t, os.MkdirAll(inst.Destination("m1"), 0o750))

	var events []Progress
	_, err := inst.InstallIfNeeded(context.Background(), "m1", recordProgress(&events))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestInstallIfNeeded_ProgressIsMonotonic(t *testing.T) {
	assets := fstest.MapFS{}
	names := []string{"z.bin", "a/1.bin", "a/2.bin", "b/c/d/deep.bin", "m.bin", "b/x.bin"}
	for _, n := range names {
		assets["models/big/"+n] = &fstest.MapFile{Data: []byte(n)}
	}
	inst := New(assets, t.TempDir(), testLogger())

	var events []Progress
	_, err := inst.InstallIfNeeded(context.Background(), "big", recordProgress(&events))
	require.NoError(t, err)

	require.Len(t, events, len(names))
	for i, p := range events {
		assert.Equal(t, len(names), p.TotalFiles)
		assert.Equal(t, i+1, p.CopiedFiles)
	}
}

func TestScan_LexicographicOrder(t *testing.T) {
	assets := fstest.MapFS{
		"models/m/b.bin":     {Data: []byte("b")},
		"models/m/a/z.bin":   {Data: []byte("z")},
		"models/m/a/y.bin":   {Data: []byte("y")},
		"models/m/c/d/e.bin": {Data: []byte("e")},
	}
	inst := New(assets, t.TempDir(), testLogger())

	leaves, err := inst.scan("models/m")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/y.bin", "a/z.bin", "b.bin", "c/d/e.bin"}, leaves)
}

func TestInstallIfNeeded_MirrorsStructure(t *testing.T) {
	assets := fstest.MapFS{
		"models/m/config.json":          {Data: []byte(`{"a":1}`)},
		"models/m/params/shard_0.bin":   {Data: bytes.Repeat([]byte{0xAB}, 300*1024)},
		"models/m/params/shard_1.bin":   {Data: []byte{}},
		"models/m/tokenizer/vocab.json": {Data: []byte("{}")},
		"models/other/ignored.bin":      {Data: []byte("nope")},
	}
	inst := New(assets, t.TempDir(), testLogger())

	dst, err := inst.InstallIfNeeded(context.Background(), "m", nil)
	require.NoError(t, err)

	err = fs.WalkDir(assets, "models/m", func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		rel, _ := filepath.Rel("models/m", p)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			assert.DirExists(t, target)
			return nil
		}
		got, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, assets[p].Data, got, "content of %s", rel)
		return nil
	})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dst, "ignored.bin"))
}

func TestInstallIfNeeded_MissingSource(t *testing.T) {
	inst := New(twoLeafAssets(), t.TempDir(), testLogger())

	_, err := inst.InstallIfNeeded(context.Background(), "unknown", nil)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "read", ioErr.Op)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestInstallIfNeeded_UnwritableDestination(t *testing.T) {
	root := filepath.Join(t.TempDir(), "files")
	require.NoError(t, os.WriteFile(root, []byte("not a dir"), 0o600))
	inst := New(twoLeafAssets(), root, testLogger())

	_, err := inst.InstallIfNeeded(context.Background(), "m1", nil)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
}

// failingFS fails to open one named file.
type failingFS struct {
	fstest.MapFS
	fail string
}

func (f failingFS) Open(name string) (fs.File, error) {
	if name == f.fail {
		return nil, &fs.PathError{Op: "open", Path: name, Err: errors.New("asset unreadable")}
	}
	return f.MapFS.Open(name)
}

func TestInstallIfNeeded_FailureLeavesPartialContent(t *testing.T) {
	root := t.TempDir()
	assets := failingFS{MapFS: twoLeafAssets(), fail: "models/m1/sub/b.bin"}
	inst := New(assets, root, testLogger())

	var events []Progress
	_, err := inst.InstallIfNeeded(context.Background(), "m1", recordProgress(&events))

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "open", ioErr.Op)
	assert.Equal(t, []Progress{{TotalFiles: 2, CopiedFiles: 1}}, events)
	assert.FileExists(t, filepath.Join(inst.Destination("m1"), "a.bin"))

	_, err = inst.LoadReceipt("m1")
	assert.ErrorIs(t, err, os.ErrNotExist, "failed install must not write a receipt")
}

func TestInstallIfNeeded_CancelledContext(t *testing.T) {
	inst := New(twoLeafAssets(), t.TempDir(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	var events []Progress
	_, err := inst.InstallIfNeeded(ctx, "m1", func(p Progress) {
		events = append(events, p)
		cancel()
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, events, 1)
}

func TestVerify(t *testing.T) {
	root := t.TempDir()
	inst := New(twoLeafAssets(), root, testLogger())

	_, err := inst.InstallIfNeeded(context.Background(), "m1", nil)
	require.NoError(t, err)

	report, err := inst.Verify("m1")
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Checked)

	dst := inst.Destination("m1")
	require.NoError(t, os.WriteFile(filepath.Join(dst, "a.bin"), []byte("tampered"), 0o600))
	require.NoError(t, os.Remove(filepath.Join(dst, "sub", "b.bin")))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stray.bin"), []byte("?"), 0o600))

	report, err = inst.Verify("m1")
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"a.bin"}, report.Mismatched)
	assert.Equal(t, []string{"sub/b.bin"}, report.Missing)
	assert.Equal(t, []string{"stray.bin"}, report.Extra)
}

func TestVerify_NoReceipt(t *testing.T) {
	inst := New(twoLeafAssets(), t.TempDir(), testLogger())
	_, err := inst.Verify("m1")
	assert.Error(t, err)
}

func TestRemove_AllowsReinstall(t *testing.T) {
	inst := New(twoLeafAssets(), t.TempDir(), testLogger())

	_, err := inst.InstallIfNeeded(context.Background(), "m1", nil)
	require.NoError(t, err)

	require.NoError(t, inst.Remove("m1"))
	assert.NoDirExists(t, inst.Destination("m1"))

	var events []Progress
	_, err = inst.InstallIfNeeded(context.Background(), "m1", recordProgress(&events))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRemove_NotInstalled(t *testing.T) {
	inst := New(twoLeafAssets(), t.TempDir(), testLogger())
	assert.NoError(t, inst.Remove("m1"))
}

func TestValidateModelID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"m1", true},
		{"Llama-3.2-1B-Instruct-q4f16_1-MLC", true},
		{"", false},
		{"  ", false},
		{".", false},
		{"..", false},
		{"../m1", false},
		{"a/b", false},
		{`a\b`, false},
		{"/abs", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateModelID(tt.id)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidModelID)
			}
		})
	}
}

func TestInvalidModelIDNeverTouchesOtherInstalls(t *testing.T) {
	inst := New(twoLeafAssets(), t.TempDir(), testLogger())
	_, err := inst.InstallIfNeeded(context.Background(), "m1", nil)
	require.NoError(t, err)
	installed := filepath.Join(inst.Destination("m1"), "a.bin")

	for _, id := range []string{"..", ".", "m1/sub", `..\m1`} {
		path, err := inst.InstallIfNeeded(context.Background(), id, nil)
		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr, "install %q", id)
		assert.ErrorIs(t, err, ErrInvalidModelID)
		assert.Empty(t, path)

		assert.ErrorIs(t, inst.Remove(id), ErrInvalidModelID, "remove %q", id)

		_, err = inst.Verify(id)
		assert.ErrorIs(t, err, ErrInvalidModelID, "verify %q", id)

		assert.FileExists(t, installed)
	}
}
