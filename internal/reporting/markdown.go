package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Consensus Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Assets: %d | Traders: %d\n\n", r.AssetCount, r.TraderCount))

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Fills | %d |\n", r.DataSummary.TotalFills))
	sb.WriteString(fmt.Sprintf("| Total Traders | %d |\n", r.DataSummary.TotalTraders))
	sb.WriteString(fmt.Sprintf("| Total Assets | %d |\n", r.DataSummary.TotalAssets))
	sb.WriteString(fmt.Sprintf("| Total Episodes | %d |\n", r.DataSummary.TotalEpisodes))
	sb.WriteString(fmt.Sprintf("| Open Episodes | %d |\n", r.DataSummary.OpenEpisodes))
	sb.WriteString(fmt.Sprintf("| Closed Episodes | %d |\n", r.DataSummary.ClosedEpisodes))
	sb.WriteString(fmt.Sprintf("| Tickets Emitted | %d |\n", r.DataSummary.TotalTickets))
	sb.WriteString(fmt.Sprintf("| Date Range Start (ms) | %d |\n", r.DataSummary.DateRangeStart))
	sb.WriteString(fmt.Sprintf("| Date Range End (ms) | %d |\n", r.DataSummary.DateRangeEnd))
	sb.WriteString("\n")

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	if len(r.DataQuality.SufficiencyChecks) > 0 {
		sb.WriteString("### Sufficiency Checks\n\n")
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range r.DataQuality.SufficiencyChecks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")

		// Overall status
		if r.DataQuality.AllChecksPassed {
			sb.WriteString("**All checks passed.**\n\n")
		} else {
			sb.WriteString("**Some checks failed.** Decision: INSUFFICIENT_DATA\n\n")
		}
	} else if len(r.DataQuality.IntegrityErrors) == 0 {
		sb.WriteString("No data quality checks performed.\n\n")
	}

	// Integrity errors (always shown if present, even without sufficiency checks)
	if len(r.DataQuality.IntegrityErrors) > 0 {
		sb.WriteString("### Integrity Errors\n\n")
		for _, err := range r.DataQuality.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	// Trader Statistics
	sb.WriteString("## Trader Statistics\n\n")
	if len(r.TraderStats) > 0 {
		sb.WriteString("| Trader | Episodes | Wins | Losses | WinRate | RMean | RMedian | RP10 | RP90 | MaxDD(R) | MaxLoss |\n")
		sb.WriteString("|--------|----------|------|--------|---------|-------|---------|------|------|----------|--------|\n")
		for _, s := range r.TraderStats {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %d |\n",
				s.Address, s.TotalEpisodes, s.Wins, s.Losses, s.WinRate,
				s.RMean, s.RMedian, s.RP10, s.RP90, s.MaxDrawdownR, s.MaxConsecutiveLosses))
		}
	} else {
		sb.WriteString("No closed episodes available.\n")
	}
	sb.WriteString("\n")

	// Gate Outcomes
	sb.WriteString("## Gate Outcomes\n\n")
	if len(r.GateOutcomes) > 0 {
		sb.WriteString("| Asset | Voters | Agree | Direction | EffK | Staleness | DriftR | EVNetR | Result | Failed Gates |\n")
		sb.WriteString("|-------|--------|-------|-----------|------|-----------|--------|--------|--------|--------------|\n")
		for _, g := range r.GateOutcomes {
			result := "REJECT"
			if g.Passes {
				result = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %.3f | %.3f | %.3f | %.3f | %s | %s |\n",
				g.Asset, g.Voters, g.Agree, g.Direction,
				g.EffectiveK, g.Staleness, g.DriftR, g.EVNetR, result, g.FailedGates))
		}
	} else {
		sb.WriteString("No gate outcomes available.\n")
	}
	sb.WriteString("\n")

	// Tickets
	sb.WriteString("## Tickets\n\n")
	if len(r.Tickets) > 0 {
		sb.WriteString("| Ticket | Asset | Direction | Agree | EffK | Created (ms) |\n")
		sb.WriteString("|--------|-------|-----------|-------|------|-------------|\n")
		for _, t := range r.Tickets {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d/%d | %.3f | %d |\n",
				shortID(t.TicketID), t.Asset, t.Direction, t.NAgree, t.NTraders, t.EffectiveK, t.CreatedAt))
		}
	} else {
		sb.WriteString("No tickets emitted.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// shortID truncates a hash ID for table display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
