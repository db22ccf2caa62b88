// Command queuesupervisor supervises a fixed set of FIFO and delay queue
// worker pools against a Redis-shaped backend: daemonizing a master,
// keeping a configured number of workers alive per topic, and
// autoscaling a topic's pool when its backlog exceeds a health
// threshold.
package main

import (
	"fmt"
	"log"

	"queuesupervisor/internal/cli"
	"queuesupervisor/internal/config"
	"queuesupervisor/internal/job"
	"queuesupervisor/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	registry := job.NewRegistry()
	registerTopics(registry, cfg)

	cli.Execute(registry, cfg.RuntimeDir, cfg.LogLevel)
}

// registerTopics wires the example topics this binary ships with: an
// "emails" FIFO pool and a "reports" delay pool, both against the same
// Redis-shaped backend.
func registerTopics(registry *job.Registry, cfg config.Config) {
	backend := queue.Config{Host: "127.0.0.1", Port: 6379, DB: 0}

	registry.Register(job.Config{
		Topic:              "emails",
		IsDelay:            false,
		StaticWorkerCount:  4,
		DynamicWorkerCount: 4,
		HealthQueueLength:  100,
		MaxExecuteTime:     30,
		MaxConsumeCount:    0,
		QueueConfig:        backend,
		Handle:             sendEmail,
		Alarm:              logAlarm,
	})

	registry.Register(job.Config{
		Topic:              "reports",
		IsDelay:            true,
		StaticWorkerCount:  2,
		DynamicWorkerCount: 2,
		HealthQueueLength:  50,
		MaxExecuteTime:     300,
		MaxConsumeCount:    0,
		QueueConfig:        backend,
		Handle:             generateReport,
		Alarm:              logAlarm,
	})
}

func sendEmail(payload string) error {
	fmt.Printf("sending email: %s\n", payload)
	return nil
}

func generateReport(payload string) error {
	fmt.Printf("generating report: %s\n", payload)
	return nil
}

func logAlarm(topic string, err error) {
	log.Printf("alarm topic=%s err=%v", topic, err)
}
