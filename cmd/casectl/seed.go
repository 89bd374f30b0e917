package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/store"
)

// seedCmd loads cases and assignments from a YAML fixture.
var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Seed the database from a YAML fixture",
	Long: `Create a professor, cases, agent overrides, assignments and directives
from a YAML fixture, then print each assignment's join code.

Example fixture:
  professor:
    name: Dr. Rivera
    email: rivera@example.edu
  cases:
    - title: Telehealth Expansion
      background: |
        A regional health plan is weighing a telehealth pilot...
      kpis:
        mlr: 88%
      red_lines:
        - No cuts to provider rates
      overrides:
        CFO: Always quote the EBITDA impact.
      assignments:
        - title: Spring cohort
          credits: 20
          directives:
            - Push students on member impact`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

type fixture struct {
	Professor professorFixture `yaml:"professor"`
	Cases     []caseFixture    `yaml:"cases"`
}

type professorFixture struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type caseFixture struct {
	Title       string                 `yaml:"title"`
	Background  string                 `yaml:"background"`
	KPIs        map[string]any         `yaml:"kpis"`
	Goals       map[string]any         `yaml:"goals"`
	RedLines    []string               `yaml:"red_lines"`
	Overrides   map[domain.Role]string `yaml:"overrides"`
	Assignments []assignmentFixture    `yaml:"assignments"`
}

type assignmentFixture struct {
	Title      string   `yaml:"title"`
	Credits    int      `yaml:"credits"`
	Directives []string `yaml:"directives"`
}

func (c caseFixture) toCase() *domain.Case {
	return &domain.Case{
		Title:      c.Title,
		Background: c.Background,
		KeyMetrics: c.KPIs,
		Goals:      c.Goals,
		RedLines:   c.RedLines,
	}
}

// loadFixture decodes and validates a fixture.
func loadFixture(r io.Reader) (*fixture, error) {
	var fx fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("fixture is empty")
		}
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	if strings.TrimSpace(fx.Professor.Name) == "" {
		return nil, errors.New("professor.name is required")
	}
	if len(fx.Cases) == 0 {
		return nil, errors.New("at least one case is required")
	}
	for i, c := range fx.Cases {
		if strings.TrimSpace(c.Title) == "" {
			return nil, fmt.Errorf("cases[%d]: title is required", i)
		}
		for role := range c.Overrides {
			if !role.Valid() {
				return nil, fmt.Errorf("cases[%d]: unknown override role %q", i, role)
			}
		}
		for j, a := range c.Assignments {
			if strings.TrimSpace(a.Title) == "" {
				return nil, fmt.Errorf("cases[%d].assignments[%d]: title is required", i, j)
			}
			if a.Credits < 0 {
				return nil, fmt.Errorf("cases[%d].assignments[%d]: credits must be positive", i, j)
			}
		}
	}
	return &fx, nil
}

// seedStore is the slice of the repository seeding writes to.
type seedStore interface {
	UpsertUser(ctx context.Context, user *domain.User) error
	CreateCase(ctx context.Context, c *domain.Case) error
	SetAgentOverride(ctx context.Context, o *domain.AgentOverride) error
	CreateAssignment(ctx context.Context, a *domain.Assignment) error
	CreateDirective(ctx context.Context, d *domain.Directive) error
}

type seeded struct {
	CaseTitle  string
	Assignment *domain.Assignment
}

// applyFixture writes fx and returns the created assignments in fixture order.
func applyFixture(ctx context.Context, repo seedStore, fx *fixture) ([]seeded, error) {
	prof := &domain.User{
		ID:    fx.Professor.ID,
		Name:  fx.Professor.Name,
		Email: fx.Professor.Email,
		Kind:  domain.UserProfessor,
	}
	if err := repo.UpsertUser(ctx, prof); err != nil {
		return nil, fmt.Errorf("create professor: %w", err)
	}

	var out []seeded
	for _, cf := range fx.Cases {
		c := cf.toCase()
		c.CreatedBy = prof.ID
		if err := repo.CreateCase(ctx, c); err != nil {
			return nil, fmt.Errorf("create case %q: %w", cf.Title, err)
		}
		for _, role := range domain.Roles {
			addition, ok := cf.Overrides[role]
			if !ok {
				continue
			}
			err := repo.SetAgentOverride(ctx, &domain.AgentOverride{
				CaseID:         c.ID,
				Role:           role,
				PromptAddition: addition,
				CreatedBy:      prof.ID,
			})
			if err != nil {
				return nil, fmt.Errorf("set %s override: %w", role, err)
			}
		}

		for _, af := range cf.Assignments {
			a := &domain.Assignment{CaseID: c.ID, Title: af.Title, Credits: af.Credits, CreatedBy: prof.ID}
			if err := repo.CreateAssignment(ctx, a); err != nil {
				return nil, fmt.Errorf("create assignment %q: %w", af.Title, err)
			}
			for _, content := range af.Directives {
				d := &domain.Directive{AssignmentID: a.ID, Content: content, CreatedBy: prof.ID}
				if err := repo.CreateDirective(ctx, d); err != nil {
					return nil, fmt.Errorf("create directive: %w", err)
				}
			}
			out = append(out, seeded{CaseTitle: c.Title, Assignment: a})
		}
	}
	return out, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = f.Close() }()

	fx, err := loadFixture(f)
	if err != nil {
		return err
	}

	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	created, err := applyFixture(cmd.Context(), repo, fx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, s := range created {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d credits\n", s.Assignment.JoinCode, s.CaseTitle, s.Assignment.Title, s.Assignment.Credits)
	}
	fmt.Fprintf(w, "Seeded %d case(s), %d assignment(s) into %s\n", len(fx.Cases), len(created), dbPath)
	return nil
}
