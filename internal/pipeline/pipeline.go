// Package pipeline runs the end-to-end research flow and writes the
// report artifacts: evaluation tick → consensus report → output files.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"trader-consensus-lab/internal/orchestrator"
	"trader-consensus-lab/internal/reporting"
)

// Output file names.
const (
	ReportFileName      = "CONSENSUS_REPORT.md"
	TraderStatsFileName = "trader_stats.csv"
)

// Pipeline couples an evaluation tick with report generation.
type Pipeline struct {
	orch      *orchestrator.Orchestrator
	reportGen *reporting.Generator
	outputDir string
}

// New creates a new pipeline writing artifacts into outputDir.
func New(orch *orchestrator.Orchestrator, reportGen *reporting.Generator, outputDir string) *Pipeline {
	return &Pipeline{
		orch:      orch,
		reportGen: reportGen.WithEvaluator(orch),
		outputDir: outputDir,
	}
}

// Run executes one evaluation tick, generates the report, and writes
// the markdown and CSV artifacts.
func (p *Pipeline) Run(ctx context.Context) (*orchestrator.RunResult, error) {
	result, err := p.orch.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluation tick: %w", err)
	}

	report, err := p.reportGen.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}

	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, err
	}

	reportMD := reporting.RenderMarkdown(report)
	reportPath := filepath.Join(p.outputDir, ReportFileName)
	if err := os.WriteFile(reportPath, []byte(reportMD), 0644); err != nil {
		return nil, err
	}

	statsCSV := reporting.RenderCSV(report.TraderStats)
	statsPath := filepath.Join(p.outputDir, TraderStatsFileName)
	if err := os.WriteFile(statsPath, []byte(statsCSV), 0644); err != nil {
		return nil, err
	}

	return result, nil
}
