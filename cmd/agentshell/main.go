package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/agentshell/internal/agentstate"
	"github.com/hrygo/agentshell/internal/classifier"
	"github.com/hrygo/agentshell/internal/config"
	"github.com/hrygo/agentshell/internal/httpapi"
	"github.com/hrygo/agentshell/internal/llmrunner"
	"github.com/hrygo/agentshell/internal/metrics"
	"github.com/hrygo/agentshell/internal/processor"
	"github.com/hrygo/agentshell/internal/queue"
	"github.com/hrygo/agentshell/internal/streamer"
	"github.com/hrygo/agentshell/internal/supervisor"
	"github.com/hrygo/agentshell/internal/version"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "agentshell",
	Short: "An interactive agent shell: priority scheduler, subprocess supervisor, output streamer.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
	RunE: runShell,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build metadata",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.StringFull())
	},
}

func init() {
	config.RegisterFlags(rootCmd, v)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.Default()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := streamer.New(cfg.LogDir, cfg.RingBufferCapacity)
	sup := supervisor.New(st, logger)
	sup.SetMaxConcurrent(cfg.MaxConcurrentSessions)

	state := agentstate.New(cfg.Model)

	var runner processor.TaskRunner
	if cfg.OpenAIAPIKey != "" {
		runner = llmrunner.New(llmrunner.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Model:          cfg.Model,
			RequestTimeout: cfg.RequestTimeout,
		})
	}

	q := queue.New(queue.Config{Logger: logger})
	mgr := classifier.NewManager(q)
	reg := metrics.New(metrics.Config{})
	q.Subscribe(reg.QueueListener())
	q.Subscribe(completionRecorder(mgr))

	proc := processor.New(processor.Deps{
		Queue:      q,
		Supervisor: sup,
		Streamer:   st,
		State:      state,
		Runner:     runner,
		Logger:     logger,
	})

	router := newResultRouter()
	q.Subscribe(router.listen)

	q.Start(ctx, proc.Process)

	go sup.Cleanup(ctx, time.Minute, time.Hour)

	var httpServer *http.Server
	if cfg.HTTPAPIAddr != "" {
		e := echo.New()
		e.HideBanner = true
		(&httpapi.Service{Supervisor: sup, Streamer: st, Processor: proc, Metrics: reg}).Register(e)
		httpServer = &http.Server{Addr: cfg.HTTPAPIAddr, Handler: e}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("httpapi: server error", "error", err)
			}
		}()
		if !cfg.Silence {
			fmt.Printf("observability API listening on %s\n", cfg.HTTPAPIAddr)
		}
	}

	// Only SIGTERM triggers whole-process shutdown here; SIGINT (Ctrl-C)
	// is owned by readline inside runREPL, which cancels only the
	// in-flight task rather than the process (SPEC_FULL §6).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = proc.EmergencyStop(context.Background())
		cancel()
	}()

	runREPL(ctx, cfg, mgr, q, proc, router, cancel)

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	return nil
}

// completionRecorder wires the Priority Queue's lifecycle events into
// the classifier's moving-average stats, since Manager.RecordCompletion
// is only meaningful once a task has actually finished (SPEC_FULL §4.2).
func completionRecorder(mgr *classifier.Manager) queue.Listener {
	return func(ev queue.Event) {
		if ev.Result == nil {
			return
		}
		switch ev.Kind {
		case queue.EventCompleted:
			mgr.RecordCompletion(time.Duration(ev.Result.Duration)*time.Millisecond, false)
		case queue.EventFailed:
			mgr.RecordCompletion(time.Duration(ev.Result.Duration)*time.Millisecond, true)
		}
	}
}
