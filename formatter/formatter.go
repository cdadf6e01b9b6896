// Package formatter renders cycle snapshots and schedules as text, JSON or CSV.
package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"staffing-engine/models"
	"staffing-engine/orchestrator"
)

// BlockData groups the requirement and the staffed agents of one planning block.
type BlockData struct {
	Block       int                 `json:"block"`
	Start       time.Time           `json:"start"`
	Total       int                 `json:"total"`
	Required    map[string]int      `json:"required,omitempty"`
	Staffed     map[string]int      `json:"staffed,omitempty"`
	UnmetDemand *models.UnmetDemand `json:"unmet_demand,omitempty"`
}

// prepareBlocks lays out a schedule block by block.
func prepareBlocks(res *orchestrator.ScheduleResult) []BlockData {
	if res == nil || res.Curve == nil {
		return nil
	}
	curve := res.Curve
	unmetByBlock := make(map[int]*models.UnmetDemand)
	for i := range curve.UnmetDemands {
		unmetByBlock[curve.UnmetDemands[i].Block] = &curve.UnmetDemands[i]
	}

	blocks := make([]BlockData, len(curve.Blocks))
	for b, reqs := range curve.Blocks {
		start := curve.Start.Add(time.Duration(b) * curve.BlockDuration)
		data := BlockData{
			Block:       b,
			Start:       start,
			Required:    make(map[string]int),
			Staffed:     make(map[string]int),
			UnmetDemand: unmetByBlock[b],
		}
		for _, r := range reqs {
			data.Required[r.QueueID] += r.AgentsNeeded
			data.Total += r.AgentsNeeded
		}
		end := start.Add(curve.BlockDuration)
		for _, a := range res.Assignments {
			if a.Start.Before(end) && a.End.After(start) {
				data.Staffed[a.QueueID]++
			}
		}
		blocks[b] = data
	}
	return blocks
}

// FormatText returns the text representation of a snapshot.
func FormatText(s *orchestrator.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cycle %s at %s : max urgency=%s\n", s.CycleID, s.StartedAt.Format(time.RFC3339), s.MaxUrgency)

	for _, rec := range s.Recommendations {
		sb.WriteString(formatRecommendationLine(s, rec))
		sb.WriteString("\n")
		for _, a := range rec.Actions {
			fmt.Fprintf(&sb, "    • %s\n", a.Description)
		}
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(&sb, "  ⚠️  %s\n", w.Error())
	}
	for _, id := range sortedKeys(s.Failures) {
		fmt.Fprintf(&sb, "  ✗ %s: %s\n", id, s.Failures[id])
	}
	if s.Schedule != nil {
		sb.WriteString(FormatScheduleText(s.Schedule))
	}
	return sb.String()
}

// FormatScheduleText returns one line per planning block, with capacity
// warnings under blocks the roster cannot cover.
func FormatScheduleText(res *orchestrator.ScheduleResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "schedule : coverage=%.1f%% generations=%d", res.Score.CoverageRatio*100, res.Generations)
	if res.Degraded != "" {
		fmt.Fprintf(&sb, " ; degraded: %s", res.Degraded)
	}
	sb.WriteString("\n")

	for _, block := range prepareBlocks(res) {
		sb.WriteString(formatBlockLine(block))
		sb.WriteString("\n")

		if unmet := block.UnmetDemand; unmet != nil {
			fmt.Fprintf(&sb, "  ⚠️  CAPACITY WARNING: Demand=%d, Allocated=%d, Unmet=%d\n",
				unmet.TotalDemand, unmet.AllocatedAgents, unmet.UnmetAgents)
			sb.WriteString("  Impacted queues:\n")
			for _, q := range unmet.ImpactedQueues {
				fmt.Fprintf(&sb, "    • %s [Priority %d]: Requested=%d, Allocated=%d, Unmet=%d\n",
					q.QueueID, q.Priority, q.RequestedAgents, q.AllocatedAgents, q.UnmetAgents)
			}
		}
	}
	for _, v := range res.Violations {
		fmt.Fprintf(&sb, "  ✗ %s block=%d %s: %s\n", v.EmployeeID, v.Block, v.Kind, v.Detail)
	}
	return sb.String()
}

// FormatJSON returns the indented JSON representation of a snapshot.
func FormatJSON(s *orchestrator.Snapshot) (string, error) {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return string(out), nil
}

// FormatScheduleJSON returns the per-block layout of a schedule as JSON.
func FormatScheduleJSON(res *orchestrator.ScheduleResult) (string, error) {
	out, err := json.MarshalIndent(struct {
		Blocks      []BlockData                 `json:"blocks"`
		Assignments []models.ScheduleAssignment `json:"assignments"`
		Coverage    float64                     `json:"coverage_ratio"`
		Degraded    string                      `json:"degraded,omitempty"`
	}{prepareBlocks(res), res.Assignments, res.Score.CoverageRatio, res.Degraded}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding schedule: %w", err)
	}
	return string(out), nil
}

var recommendationHeader = []string{
	"Queue", "Current", "Required", "Gap", "Ratio", "Urgency", "Trend",
	"Confidence", "Service Level", "Actions",
}

// FormatCSV returns one CSV row per queue recommendation.
func FormatCSV(s *orchestrator.Snapshot) string {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)
	writer.Write(recommendationHeader)

	for _, rec := range s.Recommendations {
		var confidence, sl string
		if req, ok := s.Requirement(rec.QueueID); ok {
			confidence = string(req.Confidence)
			sl = strconv.FormatFloat(req.AchievedServiceLevel, 'f', 3, 64)
		}
		var actions []string
		for _, a := range rec.Actions {
			part := fmt.Sprintf("%s(agents=%d)", a.Kind, a.Agents)
			if a.SourceQueue != "" {
				part = fmt.Sprintf("%s(from=%s,agents=%d)", a.Kind, a.SourceQueue, a.Agents)
			}
			actions = append(actions, part)
		}
		writer.Write([]string{
			rec.QueueID,
			strconv.Itoa(rec.Current),
			strconv.Itoa(rec.Required),
			strconv.Itoa(rec.Gap),
			strconv.FormatFloat(rec.Ratio, 'f', 3, 64),
			string(rec.Urgency),
			string(rec.Trend),
			confidence,
			sl,
			strings.Join(actions, "; "),
		})
	}

	writer.Flush()
	return sb.String()
}

var scheduleHeader = []string{
	"Block", "Start", "Total Required", "Requirements", "Staffed",
	"Capacity Warning", "Total Demand", "Allocated", "Unmet", "Impacted Queues",
}

// FormatScheduleCSV returns one CSV row per planning block.
func FormatScheduleCSV(res *orchestrator.ScheduleResult) string {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)
	writer.Write(scheduleHeader)

	for _, block := range prepareBlocks(res) {
		writeBlockToCSV(writer, block)
	}

	writer.Flush()
	return sb.String()
}

// writeBlockToCSV writes a single block's data to CSV
func writeBlockToCSV(writer *csv.Writer, block BlockData) {
	row := []string{
		strconv.Itoa(block.Block),
		block.Start.Format("15:04"),
		strconv.Itoa(block.Total),
		joinCounts(block.Required),
		joinCounts(block.Staffed),
	}

	unmet := block.UnmetDemand
	if unmet == nil {
		writer.Write(append(row, "No", "", "", "", ""))
		return
	}

	var impacted []string
	for _, q := range unmet.ImpactedQueues {
		impacted = append(impacted,
			fmt.Sprintf("%s(priority=%d,requested=%d,allocated=%d,unmet=%d)",
				q.QueueID, q.Priority, q.RequestedAgents, q.AllocatedAgents, q.UnmetAgents))
	}
	writer.Write(append(row,
		"Yes",
		strconv.Itoa(unmet.TotalDemand),
		strconv.Itoa(unmet.AllocatedAgents),
		strconv.Itoa(unmet.UnmetAgents),
		strings.Join(impacted, "; "),
	))
}

func formatRecommendationLine(s *orchestrator.Snapshot, rec models.GapRecommendation) string {
	line := fmt.Sprintf("%s : current=%d required=%d gap=%d ; urgency=%s trend=%s",
		rec.QueueID, rec.Current, rec.Required, rec.Gap, rec.Urgency, rec.Trend)
	if req, ok := s.Requirement(rec.QueueID); ok {
		line += fmt.Sprintf(" ; sl=%.1f%% confidence=%s", req.AchievedServiceLevel*100, req.Confidence)
		if req.Capped {
			line += " (capped)"
		}
	}
	return line
}

// formatBlockLine formats a single block line for text output
func formatBlockLine(block BlockData) string {
	if block.Total == 0 {
		return fmt.Sprintf("%s : total=0 ; none", block.Start.Format("15:04"))
	}
	line := fmt.Sprintf("%s : total=%d ; [%s]", block.Start.Format("15:04"), block.Total, joinCounts(block.Required))
	if len(block.Staffed) > 0 {
		line += fmt.Sprintf(" ; staffed [%s]", joinCounts(block.Staffed))
	}
	return line
}

// joinCounts renders a count map in key order.
func joinCounts(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
