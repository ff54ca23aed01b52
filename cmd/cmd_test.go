package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/watcher"
)

// syncBuffer is a bytes.Buffer safe for a command writing from another
// goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("GLANCE_CONFIG_FILE", "")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetViper(t)

	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBackendValue(t *testing.T) {
	v := newBackendValue(watcher.BackendNotify)
	assert.Equal(t, "notify", v.String())
	assert.Equal(t, "backend", v.Type())

	require.NoError(t, v.Set(" POLL "))
	assert.Equal(t, "poll", v.String())

	err := v.Set("inotify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify, poll")
	assert.Equal(t, "poll", v.String())
}

func TestBackendFlagRejectsUnknownBackend(t *testing.T) {
	_, _, err := execute(t, "serve", "--backend", "kqueue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kqueue")
}

func TestBindServeFlags(t *testing.T) {
	resetViper(t)

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--address", "0.0.0.0:9000",
		"--backend", "poll",
		"--dark",
		"--stylesheet", "/custom.css",
	}))
	require.NoError(t, bindServeFlags(cmd))

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "poll", cfg.Watch.Backend)
	assert.True(t, cfg.Page.Dark)
	assert.Equal(t, "/custom.css", cfg.Page.Stylesheet)
	assert.Equal(t, time.Second, cfg.Server.Heartbeat)
}

func TestBindServeFlagsInvalidAddress(t *testing.T) {
	resetViper(t)

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--address", "no-port"}))

	err := bindServeFlags(cmd)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestServeMissingFile(t *testing.T) {
	_, _, err := execute(t, filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)

	var ge *errors.GlanceError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, errors.ErrCodeFileNotFound, ge.Code)
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "doc.md", "# Hello\n\nSome *text*.")

	t.Run("html", func(t *testing.T) {
		out, _, err := execute(t, "render", doc)
		require.NoError(t, err)
		assert.Contains(t, out, "<h1>Hello</h1>")
		assert.Contains(t, out, "<em>text</em>")
	})

	t.Run("ansi", func(t *testing.T) {
		out, _, err := execute(t, "render", doc, "--format", "ansi", "--width", "40")
		require.NoError(t, err)
		assert.Contains(t, out, "Hello")
		assert.NotContains(t, out, "<h1>")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := execute(t, "render", doc, "--format", "pdf")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "render", filepath.Join(dir, "missing.md"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeRead))
	})
}

func TestRenderWatch(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	doc := writeFile(t, dir, "doc.md", "# Version 1")

	var stdout syncBuffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"render", doc, "--watch"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "<h1>Version 1</h1>")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(doc, []byte("# Version 2"), 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "<h1>Version 2</h1>")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("render --watch did not stop")
	}
}

func TestConfigShow(t *testing.T) {
	cfgFile := writeFile(t, t.TempDir(), "glance.yml", "server:\n  port: 5000\nwatch:\n  backend: poll\n")

	out, _, err := execute(t, "config", "show", "--config", cfgFile)
	require.NoError(t, err)

	assert.Contains(t, out, "# "+cfgFile)
	assert.Contains(t, out, "port: 5000")
	assert.Contains(t, out, "backend: poll")
	assert.Contains(t, out, "heartbeat: 1s")
}

func TestConfigFileFromEnvironment(t *testing.T) {
	cfgFile := writeFile(t, t.TempDir(), "glance.yml", "server:\n  port: 6000\n")

	resetViper(t)
	t.Setenv("GLANCE_CONFIG_FILE", cfgFile)

	var stdout bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"config", "show"})

	require.NoError(t, root.Execute())
	assert.Contains(t, stdout.String(), "port: 6000")
}

func TestConfigFileMissing(t *testing.T) {
	_, _, err := execute(t, "config", "show", "--config", filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		cfgFile := writeFile(t, dir, "valid.yml", "server:\n  port: 4000\n")
		out, _, err := execute(t, "config", "validate", "--config", cfgFile)
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration is valid")
	})

	t.Run("errors", func(t *testing.T) {
		cfgFile := writeFile(t, dir, "invalid.yml", "server:\n  port: 99999\nwatch:\n  backend: kqueue\n")
		out, _, err := execute(t, "config", "validate", "--config", cfgFile)
		require.Error(t, err)
		assert.Contains(t, out, "server.port")
		assert.Contains(t, out, "watch.backend")
		assert.Contains(t, err.Error(), "2 error(s)")
	})

	t.Run("strict warnings", func(t *testing.T) {
		cfgFile := writeFile(t, dir, "warn.yml", "render:\n  dangerous: true\n")

		_, _, err := execute(t, "config", "validate", "--config", cfgFile)
		require.NoError(t, err)

		_, _, err = execute(t, "config", "validate", "--config", cfgFile, "--strict")
		require.Error(t, err)
	})
}

func TestVersionCommand(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, _, err := execute(t, "version")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "glance "))
		assert.Contains(t, out, "Go: ")
	})

	t.Run("short", func(t *testing.T) {
		out, _, err := execute(t, "version", "--short")
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(out, "\n"))
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "version", "--format", "json")
		require.NoError(t, err)

		var info map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		assert.Contains(t, info, "version")
		assert.Contains(t, info, "go_version")
	})

	t.Run("unsupported", func(t *testing.T) {
		_, _, err := execute(t, "version", "--format", "xml")
		require.Error(t, err)
	})
}

func TestLogLevelFlag(t *testing.T) {
	_, _, err := execute(t, "render", filepath.Join(t.TempDir(), "x.md"), "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}
