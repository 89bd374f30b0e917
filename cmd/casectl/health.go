package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/casecoach/internal/health"
)

var (
	healthAddr    string
	healthTimeout time.Duration
)

// healthCmd probes the server's gRPC health endpoint.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check CaseCoach server health over gRPC",
	Long: `Query the grpc.health.v1 endpoint of a running server. Exits non-zero
unless the server reports SERVING.

Examples:
  casectl health
  casectl health --addr casecoach.internal:9090`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "localhost:"+envOr("GRPC_HEALTH_PORT", "9090"), "gRPC health address")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "probe timeout")
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
	defer cancel()

	status, err := health.Probe(ctx, healthAddr, health.ServiceName)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", healthAddr, status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("server is %s", status)
	}
	return nil
}
