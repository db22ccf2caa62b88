// Package cli implements the Command Dispatcher: translating the four
// CLI verbs (start/stop/restart/status) into supervisor actions, and the
// internal role hand-off used when the binary re-execs itself as a
// master or worker process.
package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"queuesupervisor/internal/job"
	"queuesupervisor/internal/logwriter"
	"queuesupervisor/internal/pidfile"
	"queuesupervisor/internal/supervisor"
)

// Execute is the single entry point cmd/queuesupervisor/main.go calls.
// It first checks whether this process is actually a self-exec'd master
// or worker (see supervisor.EnvRole) before falling through to ordinary
// CLI parsing — the role hand-off bypasses the TTY gate below, since it
// is never an interactive invocation.
func Execute(registry *job.Registry, runtimeDir, logLevel string) {
	if role := os.Getenv(supervisor.EnvRole); role != "" {
		runInternalRole(role, registry, runtimeDir)
		return
	}

	logger := newLogger(logLevel)
	defer logger.Sync() //nolint:errcheck

	reg := pidfile.New(runtimeDir + "/master.pid")

	root := &cobra.Command{
		Use:           "queuesupervisor",
		Short:         "supervise FIFO and delay queue worker processes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isInteractive() {
				return fmt.Errorf("refusing to run outside an interactive terminal")
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		startCmd(registry, runtimeDir, logger),
		stopCmd(reg, logger),
		restartCmd(registry, runtimeDir, reg, logger),
		statusCmd(reg, runtimeDir),
	)

	if err := root.Execute(); err != nil {
		fmt.Println("command usage: queuesupervisor [start|stop|restart|status]")
		os.Exit(0)
	}
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// newLogger builds the CLI/operational diagnostics logger (distinct from
// the on-disk Log Writer) at the configured level, defaulting to info
// for an empty or unrecognized value.
func newLogger(level string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func runInternalRole(role string, registry *job.Registry, runtimeDir string) {
	switch role {
	case supervisor.RoleMaster:
		sup := supervisor.New(registry, runtimeDir)
		sup.RunMaster()
	case supervisor.RoleWorker:
		topic := os.Getenv(supervisor.EnvTopic)
		masterPID, _ := strconv.Atoi(os.Getenv(supervisor.EnvMasterPID))
		d, ok := registry.Get(topic)
		if !ok {
			os.Exit(1)
		}
		logger := logwriter.New(runtimeDir + "/logs/process.log")
		supervisor.RunWorker(d, masterPID, logger)
	}
}
