package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/droidgram/droidgram/pkg/config"
	"github.com/droidgram/droidgram/pkg/queue"
)

func jobStorePath(cfg *config.Config) string {
	return filepath.Join(cfg.WorkspacePath(), "jobs", "jobs.json")
}

func jobsCmd() {
	if len(os.Args) < 3 {
		jobsHelp()
		return
	}

	subcommand := os.Args[2]

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	storePath := jobStorePath(cfg)

	switch subcommand {
	case "list":
		jobsListCmd(storePath)
	case "add":
		jobsAddCmd(storePath)
	case "remove":
		if len(os.Args) < 4 {
			fmt.Printf("Usage: %s jobs remove <id>\n", invokedCLIName())
			return
		}
		jobsRemoveCmd(storePath, os.Args[3])
	case "enable":
		jobsEnableCmd(storePath, false)
	case "disable":
		jobsEnableCmd(storePath, true)
	case "status":
		jobsStatusCmd(storePath)
	case "help", "--help", "-h":
		jobsHelp()
	default:
		fmt.Printf("Unknown jobs command: %s\n", subcommand)
		jobsHelp()
	}
}

func jobsHelp() {
	fmt.Println("\nJobs commands:")
	fmt.Println("  list              List jobs and schedules")
	fmt.Println("  add               Queue a job, or add a schedule with --every/--cron")
	fmt.Println("  remove <id>       Remove a job or schedule by ID")
	fmt.Println("  enable <id>       Enable a schedule")
	fmt.Println("  disable <id>      Disable a schedule")
	fmt.Println("  status            Show queue counts")
	fmt.Println()
	fmt.Println("Add options:")
	fmt.Println("  -m, --message     Prompt for the agent (required)")
	fmt.Println("  -n, --name        Schedule name (required with --every/--cron)")
	fmt.Println("  -e, --every       Run every N seconds")
	fmt.Println("  -c, --cron        Cron expression (e.g. '0 9 * * *')")
	fmt.Println("  --channel         Channel to deliver the result to")
	fmt.Println("  --to              Chat ID for delivery")
	fmt.Println("  --priority        Priority (higher runs first)")
}

func jobsListCmd(storePath string) {
	jobService := queue.NewService(storePath, nil)

	scheduled := jobService.Scheduled(true)
	if len(scheduled) > 0 {
		fmt.Println("\nSchedules:")
		fmt.Println("----------")
		for _, sj := range scheduled {
			status := "enabled"
			if !sj.Enabled {
				status = "disabled"
			}

			nextRun := "scheduled"
			if sj.NextRunAt != nil {
				nextRun = sj.NextRunAt.Format("2006-01-02 15:04")
			}

			fmt.Printf("  %s (%s)\n", sj.Name, sj.ID)
			fmt.Printf("    Schedule: %s\n", sj.Schedule.Describe())
			fmt.Printf("    Status: %s\n", status)
			fmt.Printf("    Next run: %s\n", nextRun)
		}
	}

	jobs := jobService.Jobs(true)
	if len(jobs) == 0 && len(scheduled) == 0 {
		fmt.Println("No jobs.")
		return
	}

	if len(jobs) > 0 {
		fmt.Println("\nJobs:")
		fmt.Println("-----")
		for _, job := range jobs {
			fmt.Printf("  [%s] %s\n", job.Status, job.ID)
			fmt.Printf("    Prompt: %s\n", truncatePrompt(job.Payload.Prompt, 70))
			if job.Source != "" {
				fmt.Printf("    Source: %s\n", job.Source)
			}
			if job.Attempts > 1 {
				fmt.Printf("    Attempts: %d\n", job.Attempts)
			}
			if job.Error != "" {
				fmt.Printf("    Error: %s\n", truncatePrompt(job.Error, 70))
			}
			if job.FinishedAt != nil {
				fmt.Printf("    Finished: %s\n", job.FinishedAt.Format("2006-01-02 15:04"))
			} else {
				fmt.Printf("    Created: %s\n", job.CreatedAt.Format("2006-01-02 15:04"))
			}
		}
	}
}

func truncatePrompt(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func jobsAddCmd(storePath string) {
	name := ""
	message := ""
	var everySec int64
	cronExpr := ""
	channel := ""
	to := ""
	priority := 0

	args := os.Args[3:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-n", "--name":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		case "-m", "--message":
			if i+1 < len(args) {
				message = args[i+1]
				i++
			}
		case "-e", "--every":
			if i+1 < len(args) {
				fmt.Sscanf(args[i+1], "%d", &everySec)
				i++
			}
		case "-c", "--cron":
			if i+1 < len(args) {
				cronExpr = args[i+1]
				i++
			}
		case "--channel":
			if i+1 < len(args) {
				channel = args[i+1]
				i++
			}
		case "--to":
			if i+1 < len(args) {
				to = args[i+1]
				i++
			}
		case "--priority":
			if i+1 < len(args) {
				fmt.Sscanf(args[i+1], "%d", &priority)
				i++
			}
		}
	}

	if message == "" {
		fmt.Println("Error: --message is required")
		return
	}

	jobService := queue.NewService(storePath, nil)
	payload := queue.Payload{
		Prompt:  message,
		Channel: channel,
		ChatID:  to,
	}

	if everySec == 0 && cronExpr == "" {
		job, err := jobService.Enqueue(payload, priority)
		if err != nil {
			fmt.Printf("Error queueing job: %v\n", err)
			return
		}
		fmt.Printf("✓ Queued job %s\n", job.ID)
		fmt.Println("  It runs the next time the gateway drains the queue.")
		return
	}

	if name == "" {
		fmt.Println("Error: --name is required for scheduled jobs")
		return
	}

	var schedule queue.Schedule
	if everySec > 0 {
		schedule = queue.Schedule{Kind: queue.ScheduleEvery, EverySec: everySec}
	} else {
		schedule = queue.Schedule{Kind: queue.ScheduleCron, Expr: cronExpr}
	}

	sj, err := jobService.AddScheduled(name, schedule, payload, priority)
	if err != nil {
		fmt.Printf("Error adding schedule: %v\n", err)
		return
	}

	fmt.Printf("✓ Added schedule '%s' (%s)\n", sj.Name, sj.ID)
	if sj.NextRunAt != nil {
		fmt.Printf("  Next run: %s\n", sj.NextRunAt.Format("2006-01-02 15:04"))
	}
}

func jobsRemoveCmd(storePath, id string) {
	jobService := queue.NewService(storePath, nil)
	if jobService.RemoveJob(id) {
		fmt.Printf("✓ Removed job %s\n", id)
		return
	}
	if jobService.RemoveScheduled(id) {
		fmt.Printf("✓ Removed schedule %s\n", id)
		return
	}
	fmt.Printf("✗ Job %s not found\n", id)
}

func jobsEnableCmd(storePath string, disable bool) {
	if len(os.Args) < 4 {
		fmt.Printf("Usage: %s jobs enable/disable <id>\n", invokedCLIName())
		return
	}

	id := os.Args[3]
	jobService := queue.NewService(storePath, nil)

	sj := jobService.EnableScheduled(id, !disable)
	if sj == nil {
		fmt.Printf("✗ Schedule %s not found\n", id)
		return
	}

	status := "enabled"
	if disable {
		status = "disabled"
	}
	fmt.Printf("✓ Schedule '%s' %s\n", sj.Name, status)
}

func jobsStatusCmd(storePath string) {
	jobService := queue.NewService(storePath, nil)
	queued, running, done, failed := jobService.Counts()

	fmt.Println("\nQueue:")
	fmt.Printf("  Queued: %d\n", queued)
	fmt.Printf("  Running: %d\n", running)
	fmt.Printf("  Done: %d\n", done)
	fmt.Printf("  Failed: %d\n", failed)

	schedules := jobService.Scheduled(true)
	enabled := 0
	for _, sj := range schedules {
		if sj.Enabled {
			enabled++
		}
	}
	fmt.Printf("  Schedules: %d (%d enabled)\n", len(schedules), enabled)

	if next := nextScheduledRun(schedules); next != nil {
		fmt.Printf("  Next scheduled run: %s\n", next.Format("2006-01-02 15:04"))
	}
}

func nextScheduledRun(schedules []*queue.ScheduledJob) *time.Time {
	var next *time.Time
	for _, sj := range schedules {
		if !sj.Enabled || sj.NextRunAt == nil {
			continue
		}
		if next == nil || sj.NextRunAt.Before(*next) {
			next = sj.NextRunAt
		}
	}
	return next
}
