// Package cli provides CLI output utilities for kotae.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kotae/internal/models"
)

// OutputFormat is the format for subcommand output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteResolveResult writes a resolve response to w in the given format.
func WriteResolveResult(w io.Writer, resp *models.ResolveResponse, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(w, resp.Answer)
	if resp.MatchedQuestion != "" {
		fmt.Fprintf(w, "\n# matched %q (score %.3f)\n", resp.MatchedQuestion, resp.Score)
	}
	if resp.ResourceURL != "" {
		fmt.Fprintf(w, "# resource: %s\n", resp.ResourceURL)
	}
	fmt.Fprintf(w, "# source: %s\n", resp.Source)
	return nil
}

// Status is the record/index status shown by the status subcommand, matching
// the shape of GET /api/v1/status.
type Status struct {
	Records        int64                  `json:"records"`
	IndexSize      int                    `json:"index_size"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

// statusConfigOrder fixes the printing order of the config block; map
// iteration order would jitter between runs.
var statusConfigOrder = []string{
	"similarity_threshold",
	"embedding_dimensions",
	"test_mode",
	"database_path",
	"index_path",
	"keyword_index_path",
}

// WriteStatus writes status to w in the given format.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "records:     %d   # stored question records\n", status.Records)
	fmt.Fprintf(w, "index_size:  %d   # vectors in semantic index\n", status.IndexSize)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage:  %d   # database + indices on disk, bytes\n", *status.DiskUsageBytes)
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		for _, key := range statusConfigOrder {
			if v, ok := status.Config[key]; ok {
				fmt.Fprintf(w, "%-21s %v\n", key+":", v)
			}
		}
	}
	return nil
}
