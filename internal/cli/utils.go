// Package cli provides output formatting for the Sakuin command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/tsukimori/sakuin/internal/project"
	"github.com/tsukimori/sakuin/internal/suggestion"
	"github.com/tsukimori/sakuin/internal/training"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSuggestions writes ranked suggestions to w in the given format.
func WriteSuggestions(w io.Writer, projectID string, res suggestion.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{
			"project_id":  projectID,
			"suggestions": res,
		})
	}
	if len(res) == 0 {
		fmt.Fprintf(w, "No suggestions for project %s\n", projectID)
		return nil
	}
	fmt.Fprintf(w, "Suggestions for project %s:\n", projectID)
	for i, s := range res {
		label := s.Label
		if label == "" {
			label = "(no label)"
		}
		fmt.Fprintf(w, "%3d. %.4f  %s  %s\n", i+1, s.Score, s.SubjectID, label)
	}
	return nil
}

// WriteProjects writes project summaries to w in the given format.
func WriteProjects(w io.Writer, infos []project.Info, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"projects": infos})
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "No projects configured")
		return nil
	}
	for _, info := range infos {
		state := "untrained"
		if info.IsTrained {
			state = "trained"
		}
		if info.Calibrated {
			state += ", calibrated"
		}
		fmt.Fprintf(w, "%s  (%s, %d subjects, %s)\n",
			info.ProjectID, info.Language, info.VocabularySize, state)
		for _, be := range info.Backends {
			trained := "untrained"
			if be.Trained {
				trained = "trained"
			}
			fmt.Fprintf(w, "    %-12s kind=%-8s weight=%.2f  %s\n", be.ID, be.Kind, be.Weight, trained)
		}
	}
	return nil
}

// WriteReport writes a training report to w in the given format.
func WriteReport(w io.Writer, report *training.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Trained project %s on %d documents in %s\n",
		report.ProjectID, report.Documents, report.Duration.Round(time.Millisecond))
	for _, res := range report.Results {
		switch {
		case res.Error != "":
			fmt.Fprintf(w, "    %-12s FAILED: %s\n", res.BackendID, res.Error)
		case res.Downgraded:
			fmt.Fprintf(w, "    %-12s ok (%s, full retrain)\n", res.BackendID, res.Duration.Round(time.Millisecond))
		default:
			fmt.Fprintf(w, "    %-12s ok (%s)\n", res.BackendID, res.Duration.Round(time.Millisecond))
		}
	}
	if report.WeightsLearned {
		fmt.Fprintln(w, "    ensemble weights learned")
	}
	return nil
}
