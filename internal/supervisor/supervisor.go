// Package supervisor implements the master process: daemonizing,
// baseline worker spawn, non-blocking reap, crash back-off, the
// backlog-driven autoscaler, and the PID-file-driven drain protocol.
//
// Go's runtime cannot fork() safely once goroutines and threads exist,
// so "forking" a worker here means exec'ing a fresh copy of the running
// binary with an environment variable telling it which role to assume
// (see selfExec). This is the same self-re-exec technique Go daemonizing
// tools use in place of a raw fork(2).
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"queuesupervisor/internal/job"
	"queuesupervisor/internal/logwriter"
	"queuesupervisor/internal/pidfile"
	"queuesupervisor/internal/procutil"
	"queuesupervisor/internal/worker"
)

// Environment variables used to hand off role and topic assignment to a
// self-exec'd copy of the binary.
const (
	EnvRole      = "QSUP_ROLE"
	EnvTopic     = "QSUP_TOPIC"
	EnvDynamic   = "QSUP_DYNAMIC"
	EnvMasterPID = "QSUP_MASTER_PID"

	RoleMaster = "master"
	RoleWorker = "worker"
)

const (
	pollNormal   = 1 * time.Second
	pollDraining = 100 * time.Millisecond
	backoffAfterCrash = 60 * time.Second
	statusCheckEvery  = 60 * time.Second
)

// Supervisor is the master process's in-memory state.
type Supervisor struct {
	Registry   *job.Registry
	RuntimeDir string
	PIDFile    *pidfile.Registry
	Log        *logwriter.Writer

	pidToTopic    map[int]string
	shuttingDown  bool
	lastStatusChk time.Time
	pollInterval  time.Duration

	sigCh chan os.Signal
}

// New builds a Supervisor rooted at runtimeDir, with master.pid and
// logs/process.log laid out per spec.md §6.
func New(registry *job.Registry, runtimeDir string) *Supervisor {
	return &Supervisor{
		Registry:     registry,
		RuntimeDir:   runtimeDir,
		PIDFile:      pidfile.New(runtimeDir + "/master.pid"),
		Log:          logwriter.New(runtimeDir + "/logs/process.log"),
		pidToTopic:   make(map[int]string),
		pollInterval: pollNormal,
	}
}

// Start is the "start" CLI verb: singleton-checks, then daemonizes a
// detached master. It returns once the master has been launched (or
// once it determines one is already running) — it does not block for
// the master's lifetime.
func (s *Supervisor) Start() (alreadyRunning bool, err error) {
	if pid := s.PIDFile.ReadLiveMaster(); pid != 0 {
		return true, nil
	}
	cmd, err := s.selfExec(RoleMaster, "", false, 0)
	if err != nil {
		return false, fmt.Errorf("daemonize: %w", err)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("daemonize: %w", err)
	}
	return false, nil
}

// RunMaster is the entry point for the self-exec'd master process. It
// never returns under normal operation; it calls os.Exit when done.
func (s *Supervisor) RunMaster() {
	_ = syscall.Umask(0)
	_ = os.Chdir("/")
	procutil.SetTitle("queuesupervisor: master")

	if err := s.PIDFile.WriteMaster(os.Getpid()); err != nil {
		s.Log.Error(fmt.Sprintf("master failed to write pid file: %v", err))
		os.Exit(1)
	}
	s.Log.Info(fmt.Sprintf("master started pid=%d", os.Getpid()))

	for _, d := range s.Registry.All() {
		for i := 0; i < d.StaticWorkerCount; i++ {
			if err := s.spawnWorker(d, false); err != nil {
				s.Log.Error(fmt.Sprintf("baseline spawn failed topic=%s: %v", d.Topic, err))
			}
		}
	}

	s.installSignals()
	s.runLoop()
	os.Exit(0)
}

func (s *Supervisor) installSignals() {
	s.sigCh = make(chan os.Signal, 1)
	signal.Notify(s.sigCh, syscall.SIGUSR1)
	go func() {
		for range s.sigCh {
			s.beginDrain()
		}
	}()
}

func (s *Supervisor) beginDrain() {
	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	s.pollInterval = pollDraining
	s.Log.Info("master draining")
	for pid := range s.pidToTopic {
		_ = syscall.Kill(pid, syscall.SIGUSR1)
	}
}

// runLoop is the master's main poll: dispatch signals (automatic via
// the channel goroutine), non-blocking reap, periodic self-check, and
// sleep.
func (s *Supervisor) runLoop() {
	for {
		s.reapOnce()

		if s.shuttingDown && len(s.pidToTopic) == 0 {
			s.Log.Info("master drain complete, exiting")
			return
		}

		now := time.Now()
		if !s.shuttingDown && now.Sub(s.lastStatusChk) >= statusCheckEvery {
			s.lastStatusChk = now
			if s.PIDFile.ReadLiveMaster() != os.Getpid() {
				s.Log.Error("master pid file no longer matches this process, self-draining")
				_ = syscall.Kill(os.Getpid(), syscall.SIGUSR1)
			} else {
				s.autoscale()
			}
		}

		s.writeStatusSnapshot()
		time.Sleep(s.pollInterval)
	}
}

// reapOnce performs one non-blocking WNOHANG reap of at most one child,
// matching spec.md's "one PID per iteration" monotone reap guarantee.
func (s *Supervisor) reapOnce() {
	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
	if err != nil || pid <= 0 {
		return
	}

	topic, ok := s.pidToTopic[pid]
	if !ok {
		return
	}
	d, ok := s.Registry.Get(topic)
	if !ok {
		delete(s.pidToTopic, pid)
		return
	}

	info := d.Workers[pid]
	exitCode := exitCodeOf(ws)

	if exitCode != 0 {
		s.Log.Error(fmt.Sprintf("worker topic=%s pid=%d exited code=%d", topic, pid, exitCode))
		d.WorkerEnabledTime = time.Now().Add(backoffAfterCrash)
	} else {
		s.Log.Info(fmt.Sprintf("worker topic=%s pid=%d exited normally", topic, pid))
	}

	delete(d.Workers, pid)
	delete(s.pidToTopic, pid)

	if !s.shuttingDown && !info.IsDynamic {
		if err := s.spawnWorker(d, false); err != nil {
			s.Log.Error(fmt.Sprintf("replacement spawn failed topic=%s: %v", topic, err))
		}
	}
}

func exitCodeOf(ws syscall.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return 0
	}
}

// spawnWorker execs a fresh worker process for d and tracks its PID.
func (s *Supervisor) spawnWorker(d *job.Descriptor, dynamic bool) error {
	cmd, err := s.selfExec(RoleWorker, d.Topic, dynamic, os.Getpid())
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	pid := cmd.Process.Pid
	d.Workers[pid] = job.WorkerInfo{IsDynamic: dynamic}
	s.pidToTopic[pid] = d.Topic
	// Do not wait on cmd.Process here: exit status is collected centrally
	// via syscall.Wait4 in reapOnce, and a second concurrent wait4 on the
	// same PID would race it for the exit status, starving reapOnce.
	cmd.Process.Release()
	return nil
}

// selfExec builds (but does not start) a copy of the running binary
// configured to assume the given role.
func (s *Supervisor) selfExec(role, topic string, dynamic bool, masterPID int) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(),
		EnvRole+"="+role,
		EnvTopic+"="+topic,
		EnvDynamic+"="+boolEnv(dynamic),
		EnvMasterPID+"="+fmt.Sprint(masterPID),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// RunWorker is the entry point for a self-exec'd worker process. It
// never returns; it calls os.Exit with the worker's final status.
func RunWorker(d *job.Descriptor, masterPID int, logger *logwriter.Writer) {
	l := &worker.Loop{
		Descriptor: d,
		Queue:      d.Queue(),
		MasterPID:  masterPID,
		Log:        logger,
	}
	os.Exit(l.Run(context.Background()))
}
