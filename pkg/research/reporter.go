package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrEmptyReport is returned when the generator answers the report prompt
// with blank text.
var ErrEmptyReport = errors.New("generator returned an empty report")

// ReportSections are the headings requested from the generator, in order.
var ReportSections = []string{"Abstract", "Literature Review", "Gap Analysis", "References"}

const reportPromptTemplate = `You are a reviewer for a top-tier journal. Using the task notes collected below, write a research feasibility report on "%s".

All notes:
%s

Report structure:
1. **Abstract**: summary of the core findings
2. **Literature Review**: review grouped by theme
3. **Gap Analysis**: shortcomings of existing research and open opportunities
4. **References**: list of the papers involved
`

// Reporter synthesizes the final report from the merged notes.
type Reporter struct {
	Generator Generator
	Logger    *slog.Logger
}

// Run is the graph node executed once after the fan-out join.
func (r *Reporter) Run(ctx context.Context, state AgentState) (AgentState, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Compiling final report", "topic", state.Topic, "notes", len(state.Notes))

	contents := make([]string, len(state.Notes))
	for i, n := range state.Notes {
		contents[i] = n.Content
	}

	report, err := r.Generator.GenerateText(ctx, fmt.Sprintf(reportPromptTemplate, state.Topic, strings.Join(contents, "\n")))
	if err != nil {
		return AgentState{}, fmt.Errorf("generating report: %w", err)
	}
	if strings.TrimSpace(report) == "" {
		return AgentState{}, ErrEmptyReport
	}

	logger.Info("Final report generated", "length", len(report))
	return AgentState{FinalReport: report}, nil
}
