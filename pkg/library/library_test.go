package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBuiltins(t *testing.T) {
	l := Default()

	assert.True(t, l.IsKnownFunction("strlen"))
	assert.True(t, l.IsFunctionSideEffectFree("strlen"))
	assert.False(t, l.IsFunctionSideEffectFree("memcpy"))

	assert.True(t, l.IsAllocation("malloc"))
	assert.True(t, l.IsAllocation("calloc"))
	assert.True(t, l.IsDeallocation("free"))
	assert.True(t, l.IsDeallocation("fclose"))
	assert.False(t, l.IsAllocation("free"))

	assert.False(t, l.IsKnownFunction("my_private_helper"))
}

func TestDefaultArgumentDirections(t *testing.T) {
	l := Default()

	written, known := l.IsArgumentWritten("memcpy", 1)
	assert.True(t, known)
	assert.True(t, written)

	written, known = l.IsArgumentWritten("memcpy", 2)
	assert.True(t, known)
	assert.False(t, written)

	_, known = l.IsArgumentWritten("totally_unknown", 1)
	assert.False(t, known)
}

func TestValueTypes(t *testing.T) {
	l := Default()

	assert.True(t, l.IsValueType("std::string"))
	assert.True(t, l.IsValueType("std::vector<int>"), "template arguments are stripped")
	assert.False(t, l.IsValueType("MyClass"))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.yml")
	content := `functions:
  my_alloc:
    alloc: true
  my_free:
    dealloc: true
  my_pure:
    pure: true
  my_fill:
    args:
      1:
        write: true
value_types:
  - MyHandle
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l := Default()
	require.NoError(t, l.Load(path))

	assert.True(t, l.IsAllocation("my_alloc"))
	assert.True(t, l.IsDeallocation("my_free"))
	assert.True(t, l.IsFunctionSideEffectFree("my_pure"))
	assert.True(t, l.IsValueType("MyHandle"))

	written, known := l.IsArgumentWritten("my_fill", 1)
	assert.True(t, known)
	assert.True(t, written)
}

func TestLoadJSONOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.json")
	content := `{"functions": {"strlen": {"pure": false}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l := Default()
	require.True(t, l.IsFunctionSideEffectFree("strlen"))
	require.NoError(t, l.Load(path))
	assert.False(t, l.IsFunctionSideEffectFree("strlen"))
	assert.True(t, l.IsKnownFunction("strlen"))
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.toml")
	content := `[functions.custom_log]
pure = false

[functions.lookup_table]
pure = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l := Default()
	require.NoError(t, l.Load(path))
	assert.True(t, l.IsKnownFunction("custom_log"))
	assert.False(t, l.IsFunctionSideEffectFree("custom_log"))
	assert.True(t, l.IsFunctionSideEffectFree("lookup_table"))
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	l := Default()
	err := l.Load("lib.ini")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported library config format")
}

func TestLoadMissingFile(t *testing.T) {
	l := Default()
	err := l.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
