package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"dupegraph/internal/api"
	"dupegraph/internal/config"
	"dupegraph/internal/models"
)

// A duplicate group line lists every member hash.
const maxExportLine = 16 << 20

var exportTypes = []string{
	models.ExportDuplicateGroup,
	models.ExportAlternateGroup,
	models.ExportFalsePositive,
	models.ExportPotential,
}

func newExportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		outputPath string
		types      []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export relationships as NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput != nil && *jsonOutput {
				return fmt.Errorf("export always emits NDJSON; remove --json and --yaml")
			}
			keep, err := exportTypeFilter(types)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				w := os.Stdout
				if outputPath != "" {
					f, err := os.Create(outputPath)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}

				pr, pw := io.Pipe()
				go func() {
					pw.CloseWithError(client.Export(cmd.Context(), pw))
				}()
				counts, err := filterExport(pr, w, keep)
				_ = pr.Close()
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, formatExportCounts(counts))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringSliceVar(&types, "type", nil, "record types to keep ("+strings.Join(exportTypes, ", ")+"); default all")

	return cmd
}

// exportTypeFilter validates the --type values. A nil set keeps everything.
func exportTypeFilter(types []string) (map[string]bool, error) {
	if len(types) == 0 {
		return nil, nil
	}
	keep := make(map[string]bool, len(types))
	for _, raw := range types {
		value := strings.TrimSpace(raw)
		if !slices.Contains(exportTypes, value) {
			return nil, fmt.Errorf("unknown export type %q (allowed: %s)", raw, strings.Join(exportTypes, ", "))
		}
		keep[value] = true
	}
	return keep, nil
}

// filterExport copies the NDJSON records of r whose type is in keep to w and
// counts the records written per type.
func filterExport(r io.Reader, w io.Writer, keep map[string]bool) (map[string]int, error) {
	counts := make(map[string]int, len(exportTypes))
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxExportLine)
	bw := bufio.NewWriter(w)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			return counts, fmt.Errorf("decode export record: %w", err)
		}
		if keep != nil && !keep[head.Type] {
			continue
		}
		if _, err := bw.Write(line); err != nil {
			return counts, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return counts, err
		}
		counts[head.Type]++
	}
	if err := scanner.Err(); err != nil {
		return counts, err
	}
	return counts, bw.Flush()
}

func formatExportCounts(counts map[string]int) string {
	parts := make([]string, 0, len(exportTypes))
	for _, typ := range exportTypes {
		parts = append(parts, fmt.Sprintf("%s=%d", typ, counts[typ]))
	}
	return "exported " + strings.Join(parts, " ")
}
