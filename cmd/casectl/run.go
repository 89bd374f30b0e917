package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/casecoach/internal/agent"
	"github.com/ashureev/casecoach/internal/config"
	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/llm"
)

var (
	runCaseFile string
	runOffline  bool
	runVerbose  bool
)

// runCmd sends a message straight to the executive panel, skipping the gate.
var runCmd = &cobra.Command{
	Use:   "run <message | ->",
	Short: "Run the executive panel on a message",
	Long: `Run the executive panel on a message as a direction turn and print the
agent trace. The gateway is configured from the same environment as the
server; without an API key, or with --offline, every role answers with its
fallback text.

Examples:
  casectl run "What is the financial impact of the telehealth pilot?"
  casectl run --case telehealth.yaml --offline "Should we proceed?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPanel,
}

func init() {
	runCmd.Flags().StringVar(&runCaseFile, "case", "", "YAML file describing the case (same shape as a seed case)")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "skip the gateway and use fallback responses")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "log gateway calls to stderr")
}

func loadCaseFile(path string) (*domain.Case, []domain.AgentOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read case file: %w", err)
	}
	var cf caseFixture
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, nil, fmt.Errorf("decode case file: %w", err)
	}
	var overrides []domain.AgentOverride
	for _, role := range domain.Roles {
		if addition, ok := cf.Overrides[role]; ok {
			overrides = append(overrides, domain.AgentOverride{Role: role, PromptAddition: addition})
		}
	}
	return cf.toCase(), overrides, nil
}

func runPanel(cmd *cobra.Command, args []string) error {
	msg, err := messageArg(cmd, args)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if runVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	req := agent.Request{Message: msg}
	if runCaseFile != "" {
		c, overrides, err := loadCaseFile(runCaseFile)
		if err != nil {
			return err
		}
		req.Case = c.Context()
		req.Overrides = overrides
	}

	var gen llm.Generator
	callTimeout := llm.DefaultTimeout
	if !runOffline {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client, err := llm.New(cfg.LLM, logger)
		if err != nil {
			return err
		}
		gen = client
		callTimeout = cfg.LLM.Timeout
	}

	orch := agent.NewOrchestrator(gen, nil, agent.Config{CallTimeout: callTimeout}, logger)
	res, err := orch.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), struct {
		Summary string            `json:"summary"`
		Trace   domain.AgentTrace `json:"trace"`
	}{Summary: res.Summary, Trace: res.Trace})
}
