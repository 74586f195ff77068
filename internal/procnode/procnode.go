// Package procnode implements the process-backed node variant (spec
// §4.4): it owns an OS child process spawned in its own session, drains
// stdout/stderr line-by-line with clamping, and signals the whole
// process group to stop. Grounded on manager/runner/process_runnable.py
// (ProcessRunnable), with spawn mechanics mirroring the teacher's
// internal/daemon/manager.go startDaemon (syscall.SysProcAttr{Setsid:
// true}).
package procnode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/latch"
	"station.fm/stationd/internal/node"
)

// maxLineLen is the hard cap a drained stdout/stderr line is truncated
// to before being emitted to the log sink (spec §4.4).
const maxLineLen = 4096

// Command is the declarative, immutable-per-start process spec (spec
// §3 ProcessCommand).
type Command struct {
	Exe  string
	Args []string
	Cwd  string
	Env  map[string]string
}

// ReadyProbe runs under ready_timeout during MarkReady. The default
// probe (nil) means "process started"; concrete nodes may supply one
// (e.g. a telnet connect probe) per spec §4.4.
type ReadyProbe func(ctx context.Context, h *Handle) control.Result

// Handle is the process node's NodeHandle implementation.
type Handle struct {
	cmd     *exec.Cmd
	started time.Time

	mu      sync.Mutex
	drainWG sync.WaitGroup
}

func (h *Handle) StartedAt() time.Time { return h.started }

func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *Handle) IsAlive() bool {
	if h.cmd == nil || h.cmd.Process == nil {
		return false
	}
	// Signal 0 probes existence without affecting the process (spec
	// §4.4: is_alive predicate).
	return h.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Node is a concrete node.Runnable backed by an OS subprocess.
type Node struct {
	Command     func() Command
	ReadyProbe  ReadyProbe
	EnvExtra    map[string]string

	exited chan struct{}
}

var _ node.Runnable = (*Node)(nil)

// Start spawns the child in its own session/process group with stdin
// attached to /dev/null and stdout/stderr as readable pipes drained to
// logOut (spec §4.4).
func (n *Node) Start(ctx context.Context, logEvent, logOut *slog.Logger) (node.Handle, error) {
	command := n.Command()

	cmd := exec.Command(command.Exe, command.Args...)
	cmd.Dir = command.Cwd
	cmd.Env = mergeEnv(os.Environ(), command.Env, n.EnvExtra)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		logEvent.Error("proc.spawn_failed", "exe", command.Exe, "error", err)
		return nil, fmt.Errorf("procnode: open devnull: %w", err)
	}
	cmd.Stdin = devNull

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logEvent.Error("proc.spawn_failed", "exe", command.Exe, "error", err)
		return nil, fmt.Errorf("procnode: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		logEvent.Error("proc.spawn_failed", "exe", command.Exe, "error", err)
		return nil, fmt.Errorf("procnode: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		logEvent.Error("proc.spawn_failed", "exe", command.Exe, "error", err)
		return nil, fmt.Errorf("procnode: start: %w", err)
	}

	h := &Handle{cmd: cmd, started: time.Now()}
	n.exited = make(chan struct{})

	h.drainWG.Add(2)
	go drainStream(&h.drainWG, stdout, "stdout", command.Exe, logOut)
	go drainStream(&h.drainWG, stderr, "stderr", command.Exe, logOut)

	go func() {
		cmd.Wait()
		close(n.exited)
	}()

	logEvent.Info("proc.started", "exe", command.Exe, "pid", h.PID())
	return h, nil
}

func mergeEnv(osEnv []string, layers ...map[string]string) []string {
	merged := make(map[string]string, len(osEnv))
	for _, kv := range osEnv {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

// drainStream reads line by line, clamping each line to maxLineLen with
// an ellipsis marker, and logs at debug level with process/stream
// fields (spec §4.4; grounded on manager/runner/utils.py
// drain_process_stream).
func drainStream(wg *sync.WaitGroup, r io.Reader, stream, exe string, logOut *slog.Logger) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > maxLineLen {
			line = line[:maxLineLen] + "…"
		}
		logOut.Debug("proc.out", "exe", exe, "stream", stream, "line", line)
	}
}

// MarkReady runs the ready probe (default: process already started)
// under ReadyTimeout, set by the caller via ctx.
func (n *Node) MarkReady(ctx context.Context, readyEvent *latch.Latch, logEvent *slog.Logger) control.Result {
	h, _ := ctx.Value(handleCtxKey{}).(*Handle)
	if n.ReadyProbe == nil {
		readyEvent.Set()
		return control.Success("process started")
	}
	result := n.ReadyProbe(ctx, h)
	if result.Ok() {
		readyEvent.Set()
	} else {
		logEvent.Warn("proc.ready_probe_failed", "reason", result.Message())
	}
	return result
}

type handleCtxKey struct{}

// WithHandle attaches h to ctx so MarkReady's probe can reach the
// process handle (e.g. to open a side-channel connection).
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleCtxKey{}, h)
}

// Check has no default implementation at the process-node level beyond
// liveness; concrete nodes override via ReadyProbe-style composition if
// a deeper health probe is needed. Absent an override this reports
// Success whenever the process is alive.
func (n *Node) Check(ctx context.Context, logEvent *slog.Logger) control.Result {
	h, _ := ctx.Value(handleCtxKey{}).(*Handle)
	if h == nil || !h.IsAlive() {
		return control.Err("process not alive")
	}
	return control.Success("alive")
}

// Receive has no default behavior; process nodes that accept control
// messages (e.g. LiquidSoap's SKIP/PUSH/POP) override this in
// internal/stationnodes by embedding Node and shadowing Receive.
func (n *Node) Receive(ctx context.Context, readyEvent *latch.Latch, msg control.Message, logEvent *slog.Logger) control.Result {
	return control.Err("unhandled action %s", msg.Action)
}

// WaitOrShutdown races the child's exit against shutdownEvent; on
// shutdown it calls Stop before returning (spec §4.5 shape, reused
// verbatim for process nodes per §4.4's own wording "must cooperate
// promptly with shutdown").
func (n *Node) WaitOrShutdown(ctx context.Context, hAny node.Handle, shutdownEvent *latch.Latch, logEvent *slog.Logger) *int {
	h := hAny.(*Handle)
	select {
	case <-n.exited:
		code := exitCodeOf(h.cmd)
		return &code
	case <-shutdownEvent.Done():
		if err := n.Stop(ctx, h, "shutdown", logEvent); err != nil {
			logEvent.Warn("proc.stop_error", "error", err)
		}
		return nil
	}
}

func exitCodeOf(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// Stop implements the idempotent stop protocol of spec §4.4: TERM the
// process group, wait stop_timeout, KILL the process group if still
// alive, wait kill_timeout, then wait for the drainers, which end when
// the child's pipes close; they are not cancelled. Signaling errors are
// logged but never raised (spec §7).
func (n *Node) Stop(ctx context.Context, hAny node.Handle, reason string, logEvent *slog.Logger) error {
	h := hAny.(*Handle)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	if !h.IsAlive() {
		h.drainWG.Wait()
		return nil
	}

	pgid := h.cmd.Process.Pid
	logEvent.Info("proc.stopping", "pid", pgid, "reason", reason)

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		logEvent.Warn("proc.term_failed", "pid", pgid, "error", err)
	}

	stopTimeout := deadlineFrom(ctx, stopTimeoutCtxKey{}, 15*time.Second)
	if waitAlive(h, stopTimeout) {
		killTimeout := deadlineFrom(ctx, killTimeoutCtxKey{}, 5*time.Second)
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
			logEvent.Warn("proc.kill_failed", "pid", pgid, "error", err)
		}
		waitAlive(h, killTimeout)
	}

	h.drainWG.Wait()
	logEvent.Info("proc.stopped", "pid", pgid, "reason", reason)
	return nil
}

type stopTimeoutCtxKey struct{}
type killTimeoutCtxKey struct{}

// WithStopTimeout / WithKillTimeout let the supervisor pass per-node
// tunables into Stop without widening the node.Runnable interface.
func WithStopTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, stopTimeoutCtxKey{}, d)
}

func WithKillTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, killTimeoutCtxKey{}, d)
}

func deadlineFrom(ctx context.Context, key any, fallback time.Duration) time.Duration {
	if d, ok := ctx.Value(key).(time.Duration); ok {
		return d
	}
	return fallback
}

// waitAlive polls IsAlive until it's false or timeout elapses, returning
// whether the process is still alive at the end of the wait.
func waitAlive(h *Handle, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !h.IsAlive() {
			return false
		}
		time.Sleep(25 * time.Millisecond)
	}
	return h.IsAlive()
}
