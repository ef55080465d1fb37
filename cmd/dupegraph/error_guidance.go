package main

import (
	"context"
	"errors"
	"net"

	"dupegraph/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case api.CodeUnauthorized, api.CodeForbidden:
			lines = append(lines, "hint: verify DUPEGRAPH_API_TOKEN matches the server's auth.token_hash.")
		case api.CodeResourceExhausted:
			lines = append(lines, "hint: retry shortly or reduce concurrent heavy requests (enqueue/export).")
		case api.CodeConflict:
			lines = append(lines, "hint: the files changed since they were shown; reload them and decide again.")
		case api.CodeConfirmationRequired:
			lines = append(lines, "hint: re-run with --yes to confirm the destructive action.")
		case api.CodeInvalidRelationship:
			lines = append(lines, "hint: the decision contradicts an existing relationship; inspect the files with: dupegraph file show <hash>")
		case api.CodeCorrupt:
			lines = append(lines, "hint: the relationship graph is inconsistent; run: dupegraph admin maintain")
		case "":
			lines = append(lines, "hint: verify DUPEGRAPH_API_URL points to a dupegraph server.")
		}
		if apiErr.Status >= 500 && apiErr.Retryable() {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase DUPEGRAPH_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a dupegraph server is running at DUPEGRAPH_API_URL.",
			"hint: start local server manually with: dupegraph srv",
			"hint: you can increase DUPEGRAPH_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
