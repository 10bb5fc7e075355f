package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlugin(t *testing.T, root, dir, manifest string, withEntry bool) string {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, ManifestFileName), []byte(manifest), 0o644))
	if withEntry {
		require.NoError(t, os.WriteFile(filepath.Join(pluginDir, DefaultEntryPoint), []byte("print('hi')\n"), 0o644))
	}
	return pluginDir
}

const multiToolManifest = `
name: comfy-server
version: 1.2.0
description: ComfyUI bridge
author: filmeto
engine: comfyui
tools:
  - name: text2image
    description: generate images from text
    parameters:
      - name: prompt
        type: string
  - name: image2image
    description: transform images
startup:
  timeout: 120
`

const legacyManifest = `
name: bailian
version: 0.9.1
description: Bailian wrapper
tool_type: text2video
`

func TestDiscover(t *testing.T) {
	ctx := context.Background()

	t.Run("finds multi-tool and legacy plugins", func(t *testing.T) {
		root := t.TempDir()
		writePlugin(t, root, "comfy", multiToolManifest, true)
		writePlugin(t, root, "bailian", legacyManifest, true)

		reg := NewRegistry(root, "")
		require.NoError(t, reg.Discover(ctx))
		assert.Len(t, reg.List(), 2)

		comfy, ok := reg.GetByName("comfy-server")
		require.True(t, ok)
		assert.Equal(t, "1.2.0", comfy.Version)
		assert.Len(t, comfy.Tools, 2)
		assert.Equal(t, 120, comfy.StartupTimeoutSeconds())
		assert.True(t, comfy.SupportsTool("text2image"))

		// Legacy tool_type becomes a single-entry tool list.
		bailian, ok := reg.GetByName("bailian")
		require.True(t, ok)
		require.Len(t, bailian.Tools, 1)
		assert.Equal(t, "text2video", bailian.Tools[0].Name)
		assert.Zero(t, bailian.StartupTimeoutSeconds())
	})

	t.Run("skips bad plugins without failing discovery", func(t *testing.T) {
		root := t.TempDir()
		writePlugin(t, root, "good", legacyManifest, true)
		writePlugin(t, root, "no-entry", multiToolManifest, false)
		writePlugin(t, root, "no-tools", "name: x\nversion: 1.0\ndescription: d\n", true)
		writePlugin(t, root, "missing-fields", "name: y\n", true)
		require.NoError(t, os.MkdirAll(filepath.Join(root, "no-manifest"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "_disabled"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "stray-file"), []byte("x"), 0o644))

		reg := NewRegistry(root, "")
		require.NoError(t, reg.Discover(ctx))
		require.Len(t, reg.List(), 1)
		assert.Equal(t, "bailian", reg.List()[0].Name)
	})

	t.Run("missing root is an error", func(t *testing.T) {
		reg := NewRegistry(filepath.Join(t.TempDir(), "nope"), "")
		assert.Error(t, reg.Discover(ctx))
	})

	t.Run("rediscovery replaces the catalogue", func(t *testing.T) {
		root := t.TempDir()
		dir := writePlugin(t, root, "bailian", legacyManifest, true)

		reg := NewRegistry(root, "")
		require.NoError(t, reg.Discover(ctx))
		require.Len(t, reg.List(), 1)

		require.NoError(t, os.RemoveAll(dir))
		writePlugin(t, root, "comfy", multiToolManifest, true)
		require.NoError(t, reg.Discover(ctx))
		require.Len(t, reg.List(), 1)
		_, ok := reg.GetByName("bailian")
		assert.False(t, ok)
	})

	t.Run("lookup by tool", func(t *testing.T) {
		root := t.TempDir()
		writePlugin(t, root, "comfy", multiToolManifest, true)
		writePlugin(t, root, "bailian", legacyManifest, true)

		reg := NewRegistry(root, "")
		require.NoError(t, reg.Discover(ctx))

		byTool := reg.GetByTool("text2image")
		require.Len(t, byTool, 1)
		assert.Equal(t, "comfy-server", byTool[0].Name)
		assert.Empty(t, reg.GetByTool("text2hologram"))
	})

	t.Run("notes the requirements file", func(t *testing.T) {
		root := t.TempDir()
		dir := writePlugin(t, root, "comfy", multiToolManifest, true)
		require.NoError(t, os.WriteFile(filepath.Join(dir, RequirementsFileName), []byte("torch\n"), 0o644))

		reg := NewRegistry(root, "")
		require.NoError(t, reg.Discover(ctx))
		info, ok := reg.GetByName("comfy-server")
		require.True(t, ok)
		assert.NotEmpty(t, info.RequirementsFile)
	})
}
