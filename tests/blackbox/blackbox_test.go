package blackbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	bbDir := filepath.Dir(thisFile)
	return filepath.Dir(filepath.Dir(bbDir))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	root := projectRootFromThisFile(t)
	binPath := filepath.Join(t.TempDir(), "bridged")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/bridged")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// fakeBackend stands in for the Python assistant: a WebSocket echo on /ws and
// the HTTP endpoints the bridge calls after connecting.
type fakeBackend struct {
	srv      *httptest.Server
	syncHits atomic.Int32
}

func startFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	up := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var frame struct {
				ID      string `json:"id"`
				Type    string `json:"type"`
				Message string `json:"message"`
			}
			if err := ws.ReadJSON(&frame); err != nil {
				return
			}
			reply := map[string]any{
				"type": "chat_response",
				"id":   frame.ID,
				"data": map[string]any{"response": "echo: " + frame.Message},
			}
			if err := ws.WriteJSON(reply); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/settings/sync-frontend", func(w http.ResponseWriter, r *http.Request) {
		fb.syncHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true}`)
	})
	fb.srv = httptest.NewServer(mux)
	return fb
}

func (fb *fakeBackend) port() int {
	return fb.srv.Listener.Addr().(*net.TCPAddr).Port
}

// writeBackendScript produces the supervised subprocess: it announces the fake
// backend's port on stdout the way the real backend does, then idles.
func writeBackendScript(t *testing.T, dir string, port int) string {
	t.Helper()
	path := filepath.Join(dir, "backend.py")
	body := fmt.Sprintf("#!/bin/sh\necho \"Auto-selected port: %d\"\nsleep 60\n", port)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

type daemonProc struct {
	cmd  *exec.Cmd
	base string
}

func startDaemon(t *testing.T, bin string, backendPort int) *daemonProc {
	t.Helper()
	dir := t.TempDir()
	script := writeBackendScript(t, dir, backendPort)
	apiPort := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", apiPort)

	cmd := exec.Command(bin,
		"--addr", fmt.Sprintf("127.0.0.1:%d", apiPort),
		"--backend-script", script,
		"--backend-dir", dir,
		"--python-bin", "/bin/sh",
		"--prefs", filepath.Join(dir, "preferences.json"),
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() { _ = cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
		}
	})
	return &daemonProc{cmd: cmd, base: base}
}

func waitHTTP(t *testing.T, url string, timeout time.Duration, ok func(*http.Response) bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			good := ok == nil || ok(resp)
			resp.Body.Close()
			if good {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", url)
}

func getJSON(t *testing.T, url string, dst any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status=%d body=%s", url, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestDaemonEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}
	bin := buildBinary(t)
	fb := startFakeBackend(t)
	defer fb.srv.Close()
	d := startDaemon(t, bin, fb.port())

	waitHTTP(t, d.base+"/healthz", 10*time.Second, nil)

	// the connection loop must discover the announced port and connect
	type status struct {
		Connected      bool `json:"connected"`
		BackendRunning bool `json:"backend_running"`
		Port           int  `json:"port"`
		PortConfirmed  bool `json:"port_confirmed"`
	}
	deadline := time.Now().Add(15 * time.Second)
	var st status
	for time.Now().Before(deadline) {
		getJSON(t, d.base+"/status", &st)
		if st.Connected {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !st.Connected || !st.BackendRunning {
		t.Fatalf("never connected: %+v", st)
	}
	if st.Port != fb.port() || !st.PortConfirmed {
		t.Fatalf("port not confirmed: %+v", st)
	}

	// settings were synced to the backend on connect
	if fb.syncHits.Load() == 0 {
		t.Fatalf("no settings sync after connect")
	}

	// full chat round trip through the live session
	body, _ := json.Marshal(map[string]string{"message": "ping"})
	resp, err := http.Post(d.base+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status=%d body=%s", resp.StatusCode, raw)
	}
	if !strings.Contains(string(raw), "echo: ping") {
		t.Fatalf("chat body=%s", raw)
	}

	// persisted defaults are served by the settings endpoint
	var settings struct {
		Settings map[string]string `json:"settings"`
	}
	getJSON(t, d.base+"/settings", &settings)
	if settings.Settings["jarvis-theme"] == "" {
		t.Fatalf("missing default settings: %+v", settings.Settings)
	}
}
