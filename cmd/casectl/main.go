// Package main implements casectl, an operator CLI for the CaseCoach coaching
// core and database.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// dbPath is the SQLite database used by seed.
	dbPath string
	// version information
	version = "dev"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "casectl",
	Short: "Operator CLI for CaseCoach",
	Long: `casectl runs the CaseCoach coaching gate and executive panel from the
command line, seeds a database with cases and assignments, and probes a
running server's health endpoint.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envOr("DB_PATH", "./data/casecoach.db"), "SQLite database path")
	rootCmd.AddCommand(assessCmd, critiqueCmd, classifyCmd, runCmd, seedCmd, healthCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// messageArg joins args into the learner message. A single "-" reads stdin.
func messageArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		args = []string{string(data)}
	}
	msg := strings.TrimSpace(strings.Join(args, " "))
	if msg == "" {
		return "", fmt.Errorf("message is required")
	}
	return msg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
