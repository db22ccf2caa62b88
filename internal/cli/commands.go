package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"queuesupervisor/internal/job"
	"queuesupervisor/internal/pidfile"
	"queuesupervisor/internal/supervisor"
)

func startCmd(registry *job.Registry, runtimeDir string, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "daemonize the master process, spawning baseline workers",
		Run: func(cmd *cobra.Command, args []string) {
			sup := supervisor.New(registry, runtimeDir)
			alreadyRunning, err := sup.Start()
			if err != nil {
				logger.Error("start failed", zap.Error(err))
				fmt.Println("failed to start process")
				os.Exit(1)
			}
			if alreadyRunning {
				fmt.Println("process is already running")
				os.Exit(0)
			}
			fmt.Println("process started")
			os.Exit(0)
		},
	}
}

func stopCmd(reg *pidfile.Registry, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "signal the master to drain workers and exit",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runStop(reg, logger))
		},
	}
}

func runStop(reg *pidfile.Registry, logger *zap.Logger) int {
	running, exited, err := supervisor.Stop(reg)
	if err != nil {
		logger.Error("stop failed", zap.Error(err))
		fmt.Println("failed to stop process")
		return 1
	}
	if !running {
		fmt.Println("process is not running")
		return 0
	}
	if !exited {
		fmt.Println("process did not stop within the timeout")
		return 1
	}
	fmt.Println("process stopped")
	return 0
}

func restartCmd(registry *job.Registry, runtimeDir string, reg *pidfile.Registry, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "stop the master if running, then start a fresh one",
		Run: func(cmd *cobra.Command, args []string) {
			running, exited, err := supervisor.Stop(reg)
			if err != nil {
				logger.Error("restart: stop failed", zap.Error(err))
				fmt.Println("failed to stop process")
				os.Exit(1)
			}
			if running && !exited {
				fmt.Println("process did not stop within the timeout, aborting restart")
				os.Exit(1)
			}

			sup := supervisor.New(registry, runtimeDir)
			if _, err := sup.Start(); err != nil {
				logger.Error("restart: start failed", zap.Error(err))
				fmt.Println("failed to start process")
				os.Exit(1)
			}
			fmt.Println("process restarted")
			os.Exit(0)
		},
	}
}

func statusCmd(reg *pidfile.Registry, runtimeDir string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether the master is running, and per-topic detail",
		Run: func(cmd *cobra.Command, args []string) {
			pid := reg.ReadLiveMaster()
			if pid == 0 {
				fmt.Println("process is not running")
				os.Exit(0)
			}
			fmt.Printf("process is running, pid=%d\n", pid)

			if snap, ok := supervisor.ReadSnapshot(runtimeDir); ok {
				for _, t := range snap.Topics {
					fmt.Printf("  topic=%s live_workers=%d in_backoff=%t\n", t.Topic, t.LiveWorkers, t.InBackoff)
				}
			}
			os.Exit(0)
		},
	}
}
