package main

import (
	"github.com/spf13/cobra"

	"github.com/ashureev/casecoach/internal/coaching"
	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/intent"
)

// assessCmd runs the Clarify gate on a message.
var assessCmd = &cobra.Command{
	Use:   "assess <message | ->",
	Short: "Check whether a message states a reasoned position",
	Long: `Run the Clarify gate on a learner message and print the criteria it
met and the questions a learner would be asked.

Examples:
  casectl assess "I think we should expand telehealth because access is poor"
  echo "..." | casectl assess -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssess,
}

// critiqueCmd runs the Reasoning Evaluator on a message.
var critiqueCmd = &cobra.Command{
	Use:   "critique <message | ->",
	Short: "Score a message against the four-dimension rubric",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCritique,
}

// classifyCmd prints the intent of a message and the roles it routes to.
var classifyCmd = &cobra.Command{
	Use:   "classify <message | ->",
	Short: "Classify a message and show the executive roles it reaches",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

type assessOutput struct {
	coaching.Clarification
	Questions []string `json:"questions"`
}

func runAssess(cmd *cobra.Command, args []string) error {
	msg, err := messageArg(cmd, args)
	if err != nil {
		return err
	}
	c := coaching.AssessClarification(msg)
	return printJSON(cmd.OutOrStdout(), assessOutput{Clarification: c, Questions: coaching.ClarifyQuestions(c)})
}

type critiqueOutput struct {
	Rubric     map[domain.Dimension]string `json:"rubric"`
	Average    float64                     `json:"average"`
	Sufficient bool                        `json:"sufficient"`
	Missing    []string                    `json:"missing,omitempty"`
	Feedback   string                      `json:"feedback"`
}

func runCritique(cmd *cobra.Command, args []string) error {
	msg, err := messageArg(cmd, args)
	if err != nil {
		return err
	}
	c := coaching.EvaluateReasoning(msg)
	return printJSON(cmd.OutOrStdout(), critiqueOutput{
		Rubric:     c.Rubric.Labels(),
		Average:    c.Average,
		Sufficient: c.Sufficient,
		Missing:    c.Missing,
		Feedback:   c.Feedback,
	})
}

type classifyOutput struct {
	Intent domain.Intent `json:"intent"`
	Roles  []domain.Role `json:"roles"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	msg, err := messageArg(cmd, args)
	if err != nil {
		return err
	}
	in := intent.Classify(msg)
	return printJSON(cmd.OutOrStdout(), classifyOutput{Intent: in, Roles: intent.Route(in, msg)})
}
