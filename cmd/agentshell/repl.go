package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/hrygo/agentshell/internal/classifier"
	"github.com/hrygo/agentshell/internal/config"
	"github.com/hrygo/agentshell/internal/processor"
	"github.com/hrygo/agentshell/internal/queue"
)

// runREPL reads lines with github.com/chzyer/readline, classifies and
// submits each one through mgr, and prints the matching result once
// the Priority Queue reports it done (SPEC_FULL §6). Ctrl-C cancels
// only the in-flight task; Ctrl-D, `exit` or `quit` requests shutdown.
func runREPL(ctx context.Context, cfg config.Config, mgr *classifier.Manager, q *queue.Queue, proc *processor.Processor, router *resultRouter, shutdown context.CancelFunc) {
	sessionID := uuid.NewString()

	if !cfg.Silence {
		fmt.Println("agentshell — interactive agent shell (exit / Ctrl-D to quit, Ctrl-C aborts the current task)")
	}

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".cache", "agentshell", "history")
		_ = os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "agentshell> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline init error: %v\n", err)
		shutdown()
		return
	}
	defer rl.Close()

	// While a task is in flight readline is not reading, so Ctrl-C
	// arrives as SIGINT; catch it here instead of letting it end the process.
	intCh := make(chan os.Signal, 1)
	signal.Notify(intCh, os.Interrupt)
	defer signal.Stop(intCh)

	var currentTaskID string

	for {
		if ctx.Err() != nil {
			return
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if currentTaskID != "" {
				q.Cancel(currentTaskID)
				fmt.Println("^C (task cancelled)")
			}
			continue
		}
		if err != nil {
			// io.EOF (Ctrl-D) or other read error: shut down cleanly.
			_ = proc.EmergencyStop(context.Background())
			shutdown()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			_ = proc.EmergencyStop(context.Background())
			shutdown()
			return
		}

		taskID, err := mgr.Submit(input, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		currentTaskID = taskID
		waitCh := router.await(taskID)

		select {
		case <-ctx.Done():
			router.cancel(taskID)
			return
		case result := <-waitCh:
			printResult(result)
		case <-intCh:
			q.Cancel(taskID)
			router.cancel(taskID)
			fmt.Println("^C (task cancelled)")
		case <-time.After(2 * time.Minute):
			router.cancel(taskID)
			fmt.Println("(no response after 2m, giving up on this task)")
		}
		currentTaskID = ""
	}
}

func printResult(result queue.Result) {
	if result.WasCancelled {
		fmt.Println("(cancelled)")
		return
	}
	if !result.Success {
		fmt.Fprintf(os.Stderr, "error: %v\n", result.Err)
		return
	}
	switch v := result.Value.(type) {
	case string:
		fmt.Println(v)
	case processor.RunResult:
		fmt.Println(v.Text)
	default:
		fmt.Printf("%v\n", v)
	}
}
