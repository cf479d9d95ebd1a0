package main

import (
	"quickview/internal/batch"
	"quickview/internal/services"
)

// itemView is the JSON shape of one processed item.
type itemView struct {
	Position        int     `json:"position"`
	Key             string  `json:"key"`
	Title           string  `json:"title,omitempty"`
	Status          string  `json:"status"`
	FailedStage     string  `json:"failed_stage,omitempty"`
	ErrorKind       string  `json:"error_kind,omitempty"`
	Error           string  `json:"error,omitempty"`
	FromCache       bool    `json:"from_cache"`
	TranscriptChars int     `json:"transcript_chars"`
	Model           string  `json:"model,omitempty"`
	Analysis        string  `json:"analysis,omitempty"`
	ReportPath      string  `json:"report_path,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func newItemView(item batch.ItemResult) itemView {
	view := itemView{
		Position:        item.Position + 1,
		Key:             item.Key.String(),
		Title:           item.Artifact.Title,
		Status:          item.Status,
		FromCache:       item.Artifact.FromCache,
		TranscriptChars: item.Artifact.CharCount,
		Model:           item.Artifact.Model,
		Analysis:        item.Artifact.Analysis,
		ReportPath:      item.Artifact.ReportPath,
		DurationSeconds: item.Duration.Seconds(),
	}
	if item.Err != nil {
		view.FailedStage = string(item.Stage)
		view.ErrorKind = services.Kind(item.Err)
		view.Error = item.Err.Error()
	}
	return view
}

type summaryView struct {
	RunID           string     `json:"run_id"`
	Source          string     `json:"source"`
	Total           int        `json:"total"`
	Succeeded       int        `json:"succeeded"`
	Failed          int        `json:"failed"`
	Empty           int        `json:"empty"`
	DurationSeconds float64    `json:"duration_seconds"`
	Items           []itemView `json:"items"`
}

func newSummaryView(summary batch.Summary) summaryView {
	view := summaryView{
		RunID:           summary.RunID,
		Source:          summary.Source,
		Total:           summary.Total,
		Succeeded:       summary.Succeeded,
		Failed:          summary.Failed,
		Empty:           summary.Empty,
		DurationSeconds: summary.Duration.Seconds(),
		Items:           make([]itemView, 0, len(summary.Items)),
	}
	for _, item := range summary.Items {
		view.Items = append(view.Items, newItemView(item))
	}
	return view
}
