package supervisor

import (
	"bufio"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bridged/internal/common/fsutil"
	"bridged/internal/events"
)

// SidecarFile is written by the backend next to its working directory and
// contains the chosen port as plain text.
const SidecarFile = "current_port.txt"

// portAnnouncement matches the backend's startup log line.
var portAnnouncement = regexp.MustCompile(`Auto-selected port: (\d+)`)

// Config holds subprocess parameters for the supervisor.
type Config struct {
	// PythonBin is the interpreter binary, e.g. python3.
	PythonBin string
	// Script is the backend entry point path.
	Script string
	// Dir is the subprocess working directory; the sidecar file is read
	// relative to it.
	Dir string
	// SidecarDelay is the settle delay before reading the sidecar file.
	SidecarDelay time.Duration
	// StopGrace is how long Stop waits after SIGTERM before killing.
	StopGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.PythonBin == "" {
		c.PythonBin = "python3"
	}
	if c.SidecarDelay <= 0 {
		c.SidecarDelay = 3 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 2 * time.Second
	}
}

// Supervisor spawns the assistant backend as a child process, discovers its
// listening port and observes its lifecycle. It does not auto-restart.
type Supervisor struct {
	cfg Config
	log zerolog.Logger
	pub events.Publisher

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	port    Port
	exited  chan struct{}
}

func New(cfg Config, log zerolog.Logger, pub events.Publisher) *Supervisor {
	cfg.applyDefaults()
	if pub == nil {
		pub = events.Noop()
	}
	return &Supervisor{cfg: cfg, log: log, pub: pub}
}

// Start launches the backend subprocess. A missing entry point yields
// ErrScriptMissing; the caller reports it and the shell keeps running.
func (s *Supervisor) Start() error {
	script, err := fsutil.ExpandHome(s.cfg.Script)
	if err != nil {
		return err
	}
	if !fsutil.PathExists(script) {
		return ErrScriptMissing(script)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return alreadyRunningError{}
	}
	s.mu.Unlock()

	cmd := exec.Command(s.cfg.PythonBin, script)
	cmd.Dir = s.cfg.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout // python logging may land on either stream

	if err := cmd.Start(); err != nil {
		return err
	}
	s.log.Info().Str("event", "start").Int("pid", cmd.Process.Pid).Str("script", script).Msg("backend spawned")
	s.pub.Publish(events.Event{Name: "backend_start", Fields: map[string]any{"pid": cmd.Process.Pid}})

	exited := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.running = true
	s.port = Port{}
	s.exited = exited
	s.mu.Unlock()

	go s.scanOutput(stdout)
	go s.watchExit(cmd, exited)
	time.AfterFunc(s.cfg.SidecarDelay, s.readSidecar)
	return nil
}

// scanOutput watches the subprocess output for the port announcement.
func (s *Supervisor) scanOutput(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		m := portAnnouncement.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		p, err := strconv.Atoi(m[1])
		if err != nil || p <= 0 {
			continue
		}
		s.setPort(p, PortSourceStdout)
	}
}

// readSidecar reads the port file once, after the settle delay. A successful
// read overrides any stdout hint; the file is the authoritative discovery
// source.
func (s *Supervisor) readSidecar() {
	path := filepath.Join(s.cfg.Dir, SidecarFile)
	txt, err := fsutil.ReadFileTrim(path)
	if err != nil {
		s.log.Debug().Str("event", "sidecar_miss").Str("path", path).Err(err).Msg("no sidecar port file")
		return
	}
	p, err := strconv.Atoi(txt)
	if err != nil || p <= 0 {
		s.log.Warn().Str("event", "sidecar_bad").Str("path", path).Str("value", txt).Msg("unparseable sidecar port")
		return
	}
	s.setPort(p, PortSourceFile)
}

// setPort applies the precedence rules: confirmed beats everything, file
// beats stdout, stdout fills in only when nothing better is known.
func (s *Supervisor) setPort(value int, src PortSource) {
	s.mu.Lock()
	cur := s.port
	switch {
	case cur.Source == PortSourceConfirmed:
		s.mu.Unlock()
		return
	case src == PortSourceStdout && cur.Source == PortSourceFile:
		s.mu.Unlock()
		return
	}
	s.port = Port{Value: value, Source: src}
	s.mu.Unlock()
	s.log.Info().Str("event", "port").Int("port", value).Str("source", src.String()).Msg("backend port discovered")
	s.pub.Publish(events.Event{Name: "backend_port", Fields: map[string]any{"port": value, "source": src.String()}})
}

// ConfirmPort marks the port as validated by a live connection. From then on
// discovery sources no longer override it.
func (s *Supervisor) ConfirmPort(value int) {
	s.mu.Lock()
	s.port = Port{Value: value, Source: PortSourceConfirmed}
	s.mu.Unlock()
}

// Port returns the current port snapshot.
func (s *Supervisor) Port() Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Running reports whether the subprocess is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// watchExit waits for the subprocess and flips state when it goes away.
func (s *Supervisor) watchExit(cmd *exec.Cmd, exited chan struct{}) {
	werr := cmd.Wait()
	close(exited)
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	ev := s.log.Info().Str("event", "exit").Int("pid", cmd.Process.Pid)
	if werr != nil {
		ev = ev.Err(werr)
	}
	ev.Msg("backend exited")
	fields := map[string]any{"pid": cmd.Process.Pid}
	if werr != nil {
		fields["error"] = werr.Error()
	}
	s.pub.Publish(events.Event{Name: "backend_exit", Fields: fields})
}

// Stop terminates the subprocess: SIGTERM first, Kill after the grace delay.
// Best effort; safe to call when nothing is running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(s.cfg.StopGrace):
		_ = cmd.Process.Kill()
		<-exited
	}
	s.mu.Lock()
	s.cmd = nil
	s.mu.Unlock()
	s.pub.Publish(events.Event{Name: "backend_stop", Fields: map[string]any{}})
}
