package batch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"quickview/internal/services"
)

const summarySheet = "Summary"

// ReadCandidates loads raw identifiers from a file. An .xlsx file contributes
// the first column of its first sheet; anything else is read as text with one
// identifier per line. Blank lines and lines starting with # are skipped, as
// is a first spreadsheet row that does not look like an identifier.
func ReadCandidates(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readXLSXCandidates(path)
	}
	return readTextCandidates(path)
}

func readTextCandidates(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "batch", "read candidates", path, err)
	}
	defer file.Close()

	var out []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "batch", "read candidates", path, err)
	}
	return out, nil
}

func readXLSXCandidates(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "batch", "read candidates", "open "+path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, services.Wrap(services.ErrValidation, "batch", "read candidates", path+" has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "batch", "read candidates", "read rows", err)
	}
	var out []string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if cell == "" {
			continue
		}
		if i == 0 && !looksLikeIdentifier(cell) {
			continue
		}
		out = append(out, cell)
	}
	return out, nil
}

func looksLikeIdentifier(cell string) bool {
	lower := strings.ToLower(cell)
	return strings.HasPrefix(lower, "bv") || strings.Contains(lower, "bilibili.com")
}

// WriteSummaryXLSX exports a batch summary as a spreadsheet with one row per
// item in input order.
func WriteSummaryXLSX(path string, summary Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return services.Wrap(services.ErrPersistence, "batch", "export", "name sheet", err)
	}
	header := []any{"#", "Item", "Status", "Failed stage", "Error", "Transcript chars", "Seconds", "Report"}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return services.Wrap(services.ErrPersistence, "batch", "export", "write header", err)
	}
	for i, item := range summary.Items {
		errText := ""
		if item.Err != nil {
			errText = item.Err.Error()
		}
		row := []any{
			item.Position + 1,
			item.Key.String(),
			item.Status,
			string(item.Stage),
			errText,
			item.Artifact.CharCount,
			item.Duration.Seconds(),
			item.Artifact.ReportPath,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return services.Wrap(services.ErrPersistence, "batch", "export", "cell name", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return services.Wrap(services.ErrPersistence, "batch", "export", fmt.Sprintf("write row %d", i+1), err)
		}
	}

	footer := len(summary.Items) + 3
	totals := [][]any{
		{"Run", summary.RunID},
		{"Succeeded", summary.Succeeded},
		{"Failed", summary.Failed},
		{"Empty", summary.Empty},
	}
	for i, row := range totals {
		cell, _ := excelize.CoordinatesToCellName(1, footer+i)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return services.Wrap(services.ErrPersistence, "batch", "export", "write totals", err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrPersistence, "batch", "export", "create directory", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return services.Wrap(services.ErrPersistence, "batch", "export", "save "+path, err)
	}
	return nil
}
