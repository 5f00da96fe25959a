package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders trader statistics as CSV string.
func RenderCSV(stats []TraderStatRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("address,total_episodes,wins,losses,win_rate,")
	sb.WriteString("r_mean,r_median,r_p10,r_p90,")
	sb.WriteString("max_drawdown_r,max_consecutive_losses\n")

	// Rows
	for _, s := range stats {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n",
			s.Address,
			s.TotalEpisodes,
			s.Wins,
			s.Losses,
			s.WinRate,
			s.RMean,
			s.RMedian,
			s.RP10,
			s.RP90,
			s.MaxDrawdownR,
			s.MaxConsecutiveLosses,
		))
	}

	return sb.String()
}
