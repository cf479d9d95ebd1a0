package pipeline

import (
	"strings"

	"quickview/internal/fileutil"
	"quickview/internal/services"
)

const (
	reportExt        = ".txt"
	reportStampFmt   = "20060102_150405"
	reportHeaderTime = "2006-01-02 15:04:05"
	ruleWidth        = 60
)

// ReportWriter saves artifacts as write-once text files named
// <key>_<YYYYMMDD_HHMMSS>.txt under dir. Same-second collisions get a
// numeric suffix.
type ReportWriter struct {
	dir string
}

// NewReportWriter returns a writer rooted at dir.
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

// Write renders artifact and stores it. Errors wrap services.ErrPersistence.
func (w *ReportWriter) Write(artifact Artifact) (string, error) {
	if strings.TrimSpace(w.dir) == "" {
		return "", services.Wrap(services.ErrPersistence, "report", "write", "output directory not configured", nil)
	}
	stem := artifact.Key.String() + "_" + artifact.GeneratedAt.Format(reportStampFmt)
	path, err := fileutil.CreateUnique(w.dir, stem, reportExt, []byte(RenderReport(artifact)), 0o644)
	if err != nil {
		return "", services.Wrap(services.ErrPersistence, "report", "write", stem, err)
	}
	return path, nil
}

// RenderReport formats the header, the analysis and the full transcript.
func RenderReport(artifact Artifact) string {
	heavy := strings.Repeat("=", ruleWidth)
	light := strings.Repeat("-", ruleWidth)

	var b strings.Builder
	b.WriteString(heavy + "\n")
	b.WriteString("B站视频快速分析报告\n")
	b.WriteString("视频BV号: " + artifact.Key.String() + "\n")
	if artifact.Title != "" {
		b.WriteString("视频标题: " + artifact.Title + "\n")
	}
	b.WriteString("分析时间: " + artifact.GeneratedAt.Format(reportHeaderTime) + "\n")
	b.WriteString(heavy + "\n\n")

	b.WriteString("【AI 智能分析】\n")
	b.WriteString(light + "\n")
	b.WriteString(artifact.Analysis)
	b.WriteString("\n\n")

	b.WriteString("【完整转录文本】\n")
	b.WriteString(light + "\n")
	b.WriteString(artifact.Transcript)
	b.WriteString("\n")
	return b.String()
}
