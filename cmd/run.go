package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"filmeto.ai/engine/internal/core/domain"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task.json>",
		Short: "Execute a task described by a JSON file and stream progress",
		Long: `Run loads a task definition from a JSON file, executes it through the
targeted plugin, and prints progress updates followed by the final result.

Example:
  filmeto-engine run task.json
  FILMETO_PLUGINS_DIR=./plugins filmeto-engine run task.json`,
		Args: cobra.ExactArgs(1),
		RunE: runTask,
	}
	return cmd
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, api, _, err := setup(cmd)
	if err != nil {
		return err
	}
	defer api.Cleanup(ctx)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	task, err := loadTaskFile(args[0])
	if err != nil {
		return err
	}

	if valid, reason := api.ValidateTask(task); !valid {
		return fmt.Errorf("invalid task: %s", reason)
	}

	stream, err := api.ExecuteTaskStream(ctx, task)
	if err != nil {
		return err
	}

	for item := range stream {
		switch {
		case item.Progress != nil:
			p := item.Progress
			if p.Type == domain.ProgressHeartbeat {
				continue
			}
			fmt.Printf("[%5.1f%%] %s\n", p.Percent, p.Message)
		case item.Result != nil:
			return printResult(item.Result)
		}
	}
	return fmt.Errorf("stream ended without a result")
}

func loadTaskFile(path string) (*domain.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	return &task, nil
}

func printResult(result *domain.TaskResult) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !result.Success() {
		return fmt.Errorf("task failed: %s", result.ErrorMessage)
	}
	return nil
}
