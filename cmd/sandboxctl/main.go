package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"apex-sandbox/internal/config"
	"apex-sandbox/internal/engine"
	"apex-sandbox/internal/logging"
	"apex-sandbox/internal/metrics"
	"apex-sandbox/internal/sessionmgr"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sandboxctl",
	Short:   "Run untrusted code snippets inside short-lived containers",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug-level engine logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(serveMetricsCmd)

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionExecCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
}

func newEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg := config.Load()
	e, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		e.SetVerbosity(engine.VerbosityDebug)
	}
	return e, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an inline code snippet in a one-off container and print its output",
	RunE: func(cmd *cobra.Command, args []string) error {
		language, _ := cmd.Flags().GetString("language")
		code, _ := cmd.Flags().GetString("code")
		deps, _ := cmd.Flags().GetStringSlice("dep")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}

		sessionID, err := e.CreateSession(sessionmgr.SessionConfig{Strategy: sessionmgr.PerExecution})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeoutOrDefault(timeout))
		defer cancel()

		result, err := e.ExecuteCode(ctx, sessionID, engine.ExecutionOptions{
			Language:     language,
			Code:         code,
			Dependencies: deps,
			Stdout:       func(chunk string) { fmt.Fprint(os.Stdout, chunk) },
			Stderr:       func(chunk string) { fmt.Fprint(os.Stderr, chunk) },
		})
		if err != nil {
			return fmt.Errorf("execute: %w", err)
		}
		fmt.Printf("\nexit code: %d (%s)\n", result.ExitCode, time.Duration(result.ExecutionTimeMillis)*time.Millisecond)
		return nil
	},
}

func init() {
	runCmd.Flags().String("language", "shell", "Language plugin to run (shell, python, ecmascript-variant-A, ecmascript-variant-B)")
	runCmd.Flags().String("code", "", "Inline code snippet to execute")
	runCmd.Flags().StringSlice("dep", nil, "Dependency token, repeatable")
	runCmd.Flags().Duration("timeout", 0, "Bound the run; 0 uses the 5-minute default")
	_ = runCmd.MarkFlagRequired("code")
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage long-lived execution sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session under a given placement strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		id, err := e.CreateSession(sessionmgr.SessionConfig{Strategy: sessionmgr.PlacementStrategy(strategy)})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	sessionCreateCmd.Flags().String("strategy", string(sessionmgr.PerExecution), "PER_EXECUTION | PER_SESSION | POOL")
}

var sessionExecCmd = &cobra.Command{
	Use:   "exec <sessionId>",
	Short: "Execute code in an existing session and print a JSON result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		language, _ := cmd.Flags().GetString("language")
		code, _ := cmd.Flags().GetString("code")
		deps, _ := cmd.Flags().GetStringSlice("dep")

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}

		result, err := e.ExecuteCode(cmd.Context(), args[0], engine.ExecutionOptions{
			Language:     language,
			Code:         code,
			Dependencies: deps,
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	sessionExecCmd.Flags().String("language", "shell", "Language plugin to run")
	sessionExecCmd.Flags().String("code", "", "Inline code snippet to execute")
	sessionExecCmd.Flags().StringSlice("dep", nil, "Dependency token, repeatable")
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup <sessionId>",
	Short: "Tear down a session's containers and workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keepGenerated, _ := cmd.Flags().GetBool("keep-generated")
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		return e.CleanupSession(cmd.Context(), args[0], keepGenerated)
	},
}

func init() {
	sessionCleanupCmd.Flags().Bool("keep-generated", false, "Preserve files the session generated")
}

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve Prometheus metrics until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			logging.S().Infow("metrics server listening", "addr", addr)
			errCh <- srv.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-sigCh:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
		return nil
	},
}

func init() {
	serveMetricsCmd.Flags().String("addr", ":9090", "Listen address for the /metrics endpoint")
}
