package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/glance/internal/config"
	"github.com/conneroisu/glance/internal/errors"
	glancews "github.com/conneroisu/glance/internal/websocket"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "localhost",
			Port:        0,
			Root:        root,
			Heartbeat:   time.Second,
			StreamRate:  100,
			StreamBurst: 100,
		},
		Watch: config.WatchConfig{
			Backend:      "poll",
			PollInterval: 20 * time.Millisecond,
			ReadAttempts: 3,
			ReadBackoff:  10 * time.Millisecond,
		},
		Render: config.RenderConfig{Emoji: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()

	srv, err := New(cfg, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return srv, ts
}

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// readEvent returns the data of the next SSE event, skipping comments.
func readEvent(br *bufio.Reader) (string, string, error) {
	var event string
	var data []string

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimSuffix(line, "\n")

		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				return event, strings.Join(data, "\n"), nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
}

func openStream(t *testing.T, ctx context.Context, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

func TestStreamPushesEveryRender(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "doc.md")
	writeDoc(t, doc, "# Hello")

	srv, ts := newTestServer(t, testConfig(root))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp := openStream(t, ctx, ts.URL+"/sse/doc.md")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)

	event, data, err := readEvent(br)
	require.NoError(t, err)
	assert.Equal(t, "body", event)
	assert.Equal(t, "<h1>Hello</h1>\n", data)
	assert.Equal(t, int64(1), srv.Sessions())

	writeDoc(t, doc, "## World")

	for {
		_, data, err = readEvent(br)
		require.NoError(t, err)
		if strings.Contains(data, "<h2>World</h2>") {
			break
		}
	}
}

func TestStreamSessionEndsWithViewer(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "doc.md"), "text")

	srv, ts := newTestServer(t, testConfig(root))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	resp := openStream(t, ctx, ts.URL+"/sse/doc.md")

	_, _, err := readEvent(bufio.NewReader(resp.Body))
	require.NoError(t, err)
	require.Equal(t, int64(1), srv.Sessions())

	cancel()
	_ = resp.Body.Close()

	assert.Eventually(t, func() bool { return srv.Sessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestStreamHeartbeat(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "doc.md"), "text")

	cfg := testConfig(root)
	cfg.Server.Heartbeat = 20 * time.Millisecond
	_, ts := newTestServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := openStream(t, ctx, ts.URL+"/sse/doc.md")
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == ": keep-alive-text\n" {
			return
		}
	}
}

func TestStreamDirectoryIndex(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "notes")
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeDoc(t, filepath.Join(dir, "todo.md"), "# Todo")

	_, ts := newTestServer(t, testConfig(root))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := openStream(t, ctx, ts.URL+"/sse/notes")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, data, err := readEvent(bufio.NewReader(resp.Body))
	require.NoError(t, err)
	assert.Contains(t, data, "<code>todo.md</code>")
	assert.NotContains(t, data, `<pre class="glance-error">`)
}

func TestStreamErrors(t *testing.T) {
	root := t.TempDir()
	_, ts := newTestServer(t, testConfig(root))

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "missing file", path: "/sse/missing.md", status: http.StatusNotFound},
		{name: "missing file over websocket", path: "/ws/missing.md", status: http.StatusNotFound},
		{name: "traversal", path: "/sse/..%2F..%2Fetc%2Fpasswd", status: http.StatusForbidden},
		{name: "page traversal", path: "/..%2Fsecret.md", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestPage(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Page.Stylesheet = "/theme.css"
	_, ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/docs/guide.md")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	body := readAll(t, resp)
	assert.Contains(t, body, `sse-connect="/sse/docs/guide.md"`)
	assert.Contains(t, body, `sse-swap="body"`)
	assert.Contains(t, body, `href="/theme.css"`)
}

func TestIndex(t *testing.T) {
	root := t.TempDir()

	t.Run("without target", func(t *testing.T) {
		_, ts := newTestServer(t, testConfig(root))

		resp, err := http.Get(ts.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("with target", func(t *testing.T) {
		cfg := testConfig(root)
		cfg.TargetFile = filepath.Join(root, "README.md")
		_, ts := newTestServer(t, cfg)

		resp, err := http.Get(ts.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, readAll(t, resp), `sse-connect="/sse/README.md"`)
	})

	t.Run("target outside root", func(t *testing.T) {
		elsewhere := t.TempDir()
		notes := filepath.Join(elsewhere, "notes.md")
		writeDoc(t, notes, "# Notes")

		cfg := testConfig(root)
		cfg.TargetFile = notes
		_, ts := newTestServer(t, cfg)

		resp, err := http.Get(ts.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, readAll(t, resp), `sse-connect="/sse/notes.md"`)

		stream, err := http.Get(ts.URL + "/sse/notes.md")
		require.NoError(t, err)
		defer stream.Body.Close()

		require.Equal(t, http.StatusOK, stream.StatusCode)
		event, data, err := readEvent(bufio.NewReader(stream.Body))
		require.NoError(t, err)
		assert.Equal(t, "body", event)
		assert.Contains(t, data, "<h1>Notes</h1>")
	})
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t.TempDir()))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "poll", health.Backend)
	assert.Equal(t, int64(0), health.Sessions)
	assert.NotEmpty(t, health.Version)
}

func TestStreamRateLimit(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Server.StreamRate = 0.001
	cfg.Server.StreamBurst = 1
	_, ts := newTestServer(t, cfg)

	first, err := http.Get(ts.URL + "/sse/missing.md")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusNotFound, first.StatusCode)

	second, err := http.Get(ts.URL + "/sse/missing.md")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "1", second.Header.Get("Retry-After"))

	page, err := http.Get(ts.URL + "/missing.md")
	require.NoError(t, err)
	page.Body.Close()
	assert.Equal(t, http.StatusOK, page.StatusCode)
}

func TestWebsocketStream(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "doc.md")
	writeDoc(t, doc, "# Hello")

	_, ts := newTestServer(t, testConfig(root))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/doc.md", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg glancews.UpdateMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "body", msg.Type)
	assert.Equal(t, uint64(1), msg.Seq)
	assert.Equal(t, "<h1>Hello</h1>\n", msg.Content)
	assert.False(t, msg.Failed)

	writeDoc(t, doc, "## World")

	for !strings.Contains(msg.Content, "<h2>World</h2>") {
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
	}
	assert.Greater(t, msg.Seq, uint64(1))
}

func TestResolve(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	srv, err := New(testConfig(root), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	tests := []struct {
		name string
		in   string
		want string
		code string
	}{
		{name: "plain", in: "doc.md", want: filepath.Join(root, "doc.md")},
		{name: "nested", in: "a/b/doc.md", want: filepath.Join(root, "a", "b", "doc.md")},
		{name: "inner dots", in: "a/../doc.md", want: filepath.Join(root, "doc.md")},
		{name: "leading slash stays inside", in: "/etc/passwd", want: filepath.Join(root, "etc", "passwd")},
		{name: "escape", in: "../doc.md", code: errors.ErrCodePathTraversal},
		{name: "deep escape", in: "a/../../doc.md", code: errors.ErrCodePathTraversal},
		{name: "empty", in: "", code: errors.ErrCodeInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := srv.resolve(tt.in)
			if tt.code != "" {
				var ge *errors.GlanceError
				require.True(t, errors.As(err, &ge))
				assert.Equal(t, tt.code, ge.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRefusesLinksOutOfRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeDoc(t, filepath.Join(outside, "secret.md"), "# Secret")
	writeDoc(t, filepath.Join(root, "real.md"), "# Real")

	if err := os.Symlink(filepath.Join(outside, "secret.md"), filepath.Join(root, "secret.md")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linked")))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.md"), filepath.Join(root, "alias.md")))

	srv, err := New(testConfig(root), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for _, rel := range []string{"secret.md", "linked/secret.md", "linked/missing.md"} {
		_, err := srv.resolve(rel)
		assert.True(t, errors.IsType(err, errors.ErrorTypeSecurity), rel)
	}

	_, err = srv.resolve("alias.md")
	assert.NoError(t, err)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not exist", err: os.ErrNotExist, want: http.StatusNotFound},
		{name: "file not found", err: errors.ErrFileNotFound("x", nil), want: http.StatusNotFound},
		{name: "traversal", err: errors.ErrPathTraversal("../x"), want: http.StatusForbidden},
		{name: "invalid path", err: errors.ErrInvalidPath(""), want: http.StatusBadRequest},
		{name: "watch backend", err: errors.WrapWatch(errors.New("boom"), "failed"), want: http.StatusInternalServerError},
		{name: "plain", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteEvent(t *testing.T) {
	var b strings.Builder
	require.NoError(t, writeEvent(&b, "body", "<p>one</p>\r\n<p>two</p>"))
	assert.Equal(t, "event: body\ndata: <p>one</p>\ndata: <p>two</p>\n\n", b.String())
}

func TestServeAndShutdown(t *testing.T) {
	srv, err := New(testConfig(t.TempDir()), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := listen(t)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func listen(t *testing.T) (net.Listener, error) {
	t.Helper()
	return net.Listen("tcp", "127.0.0.1:0")
}
