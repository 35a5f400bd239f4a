package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/internal/analyzer"
	"github.com/seleknir/webrecorder/internal/browser"
	"github.com/seleknir/webrecorder/internal/config"
	"github.com/seleknir/webrecorder/internal/observability"
	"github.com/seleknir/webrecorder/internal/recorder"
	"github.com/seleknir/webrecorder/internal/sessionstore"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Log in, capture the target's API traffic, and write the event logs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		return runRecord(cmd.Context(), &cfg, target)
	},
}

func init() {
	recordCmd.Flags().String("target", "", "target URL to record (overrides output.target_url)")
	rootCmd.AddCommand(recordCmd)
}

// resolveTarget applies the --target override and rejects a run with no
// target at all.
func resolveTarget(cfg *config.Config, target string) error {
	if target != "" {
		cfg.Output.TargetURL = target
	}
	if cfg.Output.TargetURL == "" {
		return fmt.Errorf("no target URL configured; set output.target_url or pass --target")
	}
	return nil
}

func runRecord(parent context.Context, cfg *config.Config, target string) error {
	logger := observability.GetLogger()

	if err := resolveTarget(cfg, target); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := analyzer.New(cfg.Analyzer, logger)
	if err != nil {
		return fmt.Errorf("failed to build analyzer: %w", err)
	}

	manager, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	session, err := manager.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	operator := recorder.NewTerminalOperator()
	actuator := browser.NewActuator(session, logger, cfg.Network.ActionTimeout)
	otp := browser.NewOTPHandler(session, operator, logger)
	login := browser.NewLoginFlow(session, actuator, otp, provider, operator, logger, cfg.Login)
	store := sessionstore.New(cfg.Output.SessionFile, logger)

	rec := recorder.New(recorder.Deps{
		Session:    session,
		Capture:    session.Harvester(),
		Login:      login,
		Store:      store,
		Classifier: provider,
		Logger:     logger,
		Config:     cfg,
	})

	if err := rec.Run(ctx); err != nil {
		return fmt.Errorf("recording failed: %w", err)
	}

	logger.Info("Recording complete.",
		zap.String("events", cfg.Output.EventsFile),
		zap.String("enriched", cfg.Output.EnrichedEventsFile()))
	return nil
}
