package capability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type describedCapability struct {
	description string
	schema      map[string]interface{}
}

func (d describedCapability) Run(ctx context.Context, args Args) (Result, error) {
	return Result{"ok": true}, nil
}

func (d describedCapability) Description() string { return d.description }

func (d describedCapability) InputSchema() map[string]interface{} { return d.schema }

type panickyDescriber struct{}

func (panickyDescriber) Run(ctx context.Context, args Args) (Result, error) { return Result{}, nil }

func (panickyDescriber) Description() string { panic("malformed metadata") }

func (panickyDescriber) InputSchema() map[string]interface{} { return nil }

func testKinds() map[string]Factory {
	return map[string]Factory{
		"echo": func(unit Unit) (Capability, error) {
			name := unit.Name
			return Func(func(ctx context.Context, args Args) (Result, error) {
				return Result{"tool": name, "result": map[string]interface{}(args)}, nil
			}), nil
		},
		"described": func(unit Unit) (Capability, error) {
			return describedCapability{
				description: "Described capability",
				schema: map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"city"},
					"properties": map[string]interface{}{
						"city": map[string]interface{}{"type": "string"},
					},
				},
			}, nil
		},
		"broken": func(unit Unit) (Capability, error) {
			return nil, errors.New("missing credentials")
		},
		"panicky": func(unit Unit) (Capability, error) {
			return panickyDescriber{}, nil
		},
	}
}

func writeUnit(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0644))
}

func newTestRegistry(t *testing.T, dir string) *Registry {
	t.Helper()
	return NewRegistry(Options{
		Dir:     dir,
		Exclude: []string{"_*"},
		Kinds:   testKinds(),
		Logger:  zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
}

func TestRegistry_ListNames(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "echo.yaml", "kind: echo\n")
	writeUnit(t, dir, "weather.yaml", "kind: described\n")
	writeUnit(t, dir, "_init.yaml", "kind: echo\n")
	writeUnit(t, dir, "_private.yaml", "kind: echo\n")
	writeUnit(t, dir, "README.md", "# tools\n")
	writeUnit(t, dir, "notes.yaml.bak", "kind: echo\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested.yaml"), 0755))

	registry := newTestRegistry(t, dir)
	stats, err := registry.Reload()
	require.NoError(t, err)

	assert.Equal(t, []string{"echo", "weather"}, registry.ListNames())
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, []string{"echo", "weather"}, stats.Added)
	assert.Equal(t, 2, registry.Len())
}

func TestRegistry_ListNames_DunderGlob(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "_private.yaml", "kind: echo\n")
	writeUnit(t, dir, "__draft.yaml", "kind: echo\n")
	writeUnit(t, dir, "_init.yaml", "kind: echo\n")

	registry := NewRegistry(Options{
		Dir:     dir,
		Exclude: []string{"__*"},
		Kinds:   testKinds(),
		Logger:  zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	_, err := registry.Reload()
	require.NoError(t, err)

	assert.Equal(t, []string{"_private"}, registry.ListNames())
}

func TestRegistry_ConcurrentReloads(t *testing.T) {
	dir := t.TempDir()
	registry := newTestRegistry(t, dir)
	_, err := registry.Reload()
	require.NoError(t, err)

	writeUnit(t, dir, "a.yaml", "kind: echo\n")
	writeUnit(t, dir, "b.yaml", "kind: echo\n")
	writeUnit(t, dir, "c.yaml", "kind: echo\n")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added []string
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := registry.Reload()
			assert.NoError(t, err)
			mu.Lock()
			added = append(added, stats.Added...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, added)
	assert.Equal(t, []string{"a", "b", "c"}, registry.ListNames())
}

func TestRegistry_ListNames_InitializerExcludedWithoutGlobs(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "_init.yaml", "kind: echo\n")
	writeUnit(t, dir, "echo.yaml", "kind: echo\n")

	registry := NewRegistry(Options{
		Dir:    dir,
		Kinds:  testKinds(),
		Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	_, err := registry.Reload()
	require.NoError(t, err)

	assert.Equal(t, []string{"echo"}, registry.ListNames())
}

func TestRegistry_Reload_MissingDirectory(t *testing.T) {
	registry := newTestRegistry(t, filepath.Join(t.TempDir(), "missing"))

	stats, err := registry.Reload()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Empty(t, registry.ListNames())
}

func TestRegistry_Reload_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "file.yaml", "kind: echo\n")

	registry := newTestRegistry(t, filepath.Join(dir, "file.yaml"))
	_, err := registry.Reload()
	assert.Error(t, err)
}

func TestRegistry_Reload_TracksChanges(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "echo.yaml", "kind: echo\n")

	registry := newTestRegistry(t, dir)
	_, err := registry.Reload()
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "echo.yaml")))
	writeUnit(t, dir, "shout.yaml", "kind: echo\n")
	writeUnit(t, dir, "bad.yaml", "kind: [\n")

	stats, err := registry.Reload()
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "shout"}, stats.Added)
	assert.Equal(t, []string{"echo"}, stats.Removed)
	assert.Equal(t, []string{"bad"}, stats.Invalid)
	assert.Equal(t, []string{"bad", "shout"}, registry.ListNames())
}

func TestRegistry_Resolve(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "echo.yaml", "kind: echo\n")
	writeUnit(t, dir, "mystery.yaml", "kind: mystery\n")
	writeUnit(t, dir, "creds.yaml", "kind: broken\n")
	writeUnit(t, dir, "invalid.yaml", "description: no kind here\n")

	registry := newTestRegistry(t, dir)
	_, err := registry.Reload()
	require.NoError(t, err)

	t.Run("builds the unit's kind", func(t *testing.T) {
		c, err := registry.Resolve("echo")
		require.NoError(t, err)

		result, err := c.Run(context.Background(), Args{"x": 1})
		require.NoError(t, err)
		assert.Equal(t, Result{"tool": "echo", "result": map[string]interface{}{"x": 1}}, result)
	})

	t.Run("absent name is not found", func(t *testing.T) {
		_, err := registry.Resolve("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := registry.Resolve("mystery")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "unknown capability kind 'mystery'")
	})

	t.Run("factory failure", func(t *testing.T) {
		_, err := registry.Resolve("creds")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing credentials")
	})

	t.Run("invalid manifest", func(t *testing.T) {
		_, err := registry.Resolve("invalid")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "capability 'invalid' is invalid")
	})
}

func TestRegistry_Resolve_SeesReloadedUnit(t *testing.T) {
	dir := t.TempDir()
	registry := newTestRegistry(t, dir)
	_, err := registry.Reload()
	require.NoError(t, err)

	_, err = registry.Resolve("echo")
	require.ErrorIs(t, err, ErrNotFound)

	writeUnit(t, dir, "echo.yaml", "kind: echo\n")
	_, err = registry.Reload()
	require.NoError(t, err)

	_, err = registry.Resolve("echo")
	assert.NoError(t, err)
}

func TestRegistry_Register(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "shadow.yaml", "kind: echo\n")

	registry := newTestRegistry(t, dir)
	_, err := registry.Reload()
	require.NoError(t, err)

	inProcess := Func(func(ctx context.Context, args Args) (Result, error) {
		return Result{"tool": "inproc"}, nil
	})

	require.NoError(t, registry.Register("inproc", inProcess))
	require.NoError(t, registry.Register("shadow", inProcess))
	assert.Error(t, registry.Register("", inProcess))
	assert.Error(t, registry.Register("a/b", inProcess))
	assert.Error(t, registry.Register("nil", nil))

	assert.Equal(t, []string{"inproc", "shadow"}, registry.ListNames())

	c, err := registry.Resolve("shadow")
	require.NoError(t, err)
	result, err := c.Run(context.Background(), Args{})
	require.NoError(t, err)
	assert.Equal(t, "shadow", result["tool"], "unit file takes precedence")

	// in-process registrations survive reloads
	_, err = registry.Reload()
	require.NoError(t, err)
	assert.Contains(t, registry.ListNames(), "inproc")

	registry.Unregister("inproc")
	assert.Equal(t, []string{"shadow"}, registry.ListNames())
}

func TestRegistry_Describe(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "echo.yaml", "kind: echo\n")
	writeUnit(t, dir, "weather.yaml", "kind: described\n")
	writeUnit(t, dir, "override.yaml", `kind: described
description: Overridden description
schema:
  type: object
  properties:
    query:
      type: string
`)
	writeUnit(t, dir, "badschema.yaml", `kind: echo
description: Has a broken schema
schema:
  type: 12
`)
	writeUnit(t, dir, "creds.yaml", "kind: broken\n")
	writeUnit(t, dir, "panicky.yaml", "kind: panicky\n")
	writeUnit(t, dir, "garbage.yaml", "::: not yaml :::\n  - [")

	registry := newTestRegistry(t, dir)
	_, err := registry.Reload()
	require.NoError(t, err)

	t.Run("defaults for a capability without metadata", func(t *testing.T) {
		desc, err := registry.Describe("echo")
		require.NoError(t, err)
		assert.Equal(t, "echo", desc.Name)
		assert.Equal(t, "Execute echo tool", desc.Description)
		assert.Equal(t, DefaultSchema(), desc.InputSchema)
	})

	t.Run("kind metadata", func(t *testing.T) {
		desc, err := registry.Describe("weather")
		require.NoError(t, err)
		assert.Equal(t, "Described capability", desc.Description)
		assert.Equal(t, []interface{}{"city"}, desc.InputSchema["required"])
	})

	t.Run("manifest overrides kind metadata", func(t *testing.T) {
		desc, err := registry.Describe("override")
		require.NoError(t, err)
		assert.Equal(t, "Overridden description", desc.Description)
		assert.Contains(t, desc.InputSchema["properties"], "query")
	})

	for _, name := range []string{"badschema", "creds", "panicky", "garbage"} {
		t.Run("falls back to defaults for "+name, func(t *testing.T) {
			desc, err := registry.Describe(name)
			require.NoError(t, err)
			assert.Equal(t, DefaultDescriptor(name), desc)
		})
	}

	t.Run("unknown name", func(t *testing.T) {
		_, err := registry.Describe("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := registry.Describe("weather")
		require.NoError(t, err)
		second, err := registry.Describe("weather")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestDescriptorError(t *testing.T) {
	cause := errors.New("boom")
	err := &DescriptorError{Name: "x", Err: cause}

	assert.Equal(t, "describe x: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}
