package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"dupegraph/internal/api"
	"dupegraph/internal/format"
	"dupegraph/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeFileDetail(file api.FileResponse) error {
	lines := []string{
		fmt.Sprintf("hash: %s", file.Hash),
		fmt.Sprintf("added_at: %s", formatTime(file.AddedAt)),
		fmt.Sprintf("needs_search: %t", file.NeedsSearch),
		fmt.Sprintf("duplicate_group: %d (version %d)", file.DuplicateGroup.ID, file.DuplicateGroup.Version),
		fmt.Sprintf("king: %s", file.DuplicateGroup.King),
		fmt.Sprintf("is_king: %t", file.IsKing),
	}
	if len(file.DuplicateGroup.Members) > 1 {
		lines = append(lines, fmt.Sprintf("members: %s", strings.Join(file.DuplicateGroup.Members, ", ")))
	}
	if file.AlternateGroup != nil {
		lines = append(lines, fmt.Sprintf("alternate_group: %d (%d duplicate groups)",
			file.AlternateGroup.ID, len(file.AlternateGroup.DuplicateGroupIDs)))
	}
	lines = append(lines, fmt.Sprintf("counts: duplicate=%d alternate=%d false_positive=%d potential=%d",
		file.Counts.Duplicate, file.Counts.Alternate, file.Counts.FalsePositive, file.Counts.Potential))
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeResult(result api.DecisionResponse) error {
	if err := writePlain("%s %s: %d pairs, %d changes\n", result.DecisionID, result.Action, result.Pairs, len(result.Changes)); err != nil {
		return err
	}
	for _, change := range result.Changes {
		if err := writePlain("  %s\n", formatChange(change)); err != nil {
			return err
		}
	}
	if len(result.NeedsSearch) > 0 {
		return writePlain("needs search: %s\n", strings.Join(result.NeedsSearch, ", "))
	}
	return nil
}

func formatChange(change models.Change) string {
	line := string(change.Kind) + " " + change.A
	if change.B != "" {
		line += " " + change.B
	}
	if change.GroupID != 0 {
		line += fmt.Sprintf(" group=%d", change.GroupID)
	}
	if change.Count != 0 {
		line += fmt.Sprintf(" count=%d", change.Count)
	}
	return line
}

func writePairs(pairs []api.PotentialPair) error {
	for _, pair := range pairs {
		if err := writePlain("%s %s distance=%d\n", pair.A, pair.B, pair.Distance); err != nil {
			return err
		}
	}
	return nil
}

func writeLines(values []string) error {
	for _, value := range values {
		if err := writePlain("%s\n", value); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
