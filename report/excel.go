// Package report converts evaluations and checklists to and from Excel
// workbooks.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"lesson-observer-go/checklist"
	"lesson-observer-go/logger"
	"lesson-observer-go/models"
)

const (
	summarySheet       = "Summary"
	checklistSheet     = "Checklist"
	transcriptionSheet = "Transcription"
)

var statusLabels = map[models.ChecklistStatus]string{
	models.StatusCompleted:     "Completed",
	models.StatusPartial:       "Partial",
	models.StatusNotDone:       "Not done",
	models.StatusNotApplicable: "N/A",
}

// StatusLabel is the human readable form of a checklist status
func StatusLabel(s models.ChecklistStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// WriteEvaluation writes result as an xlsx workbook with a summary, a
// checklist and a transcription sheet.
func WriteEvaluation(w io.Writer, result models.EvaluationResult) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Log.Warnf("Error closing workbook: %v", err)
		}
	}()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeSummary(f, bold, result); err != nil {
		return err
	}

	if _, err := f.NewSheet(checklistSheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", checklistSheet, err)
	}
	if err := writeChecklist(f, bold, result.Checklist); err != nil {
		return err
	}

	if _, err := f.NewSheet(transcriptionSheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", transcriptionSheet, err)
	}
	if err := writeTranscription(f, bold, result.Transcription); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, bold int, r models.EvaluationResult) error {
	s := r.Summary
	rows := [][]interface{}{
		{"Teacher", r.TeacherName},
		{"Method", string(r.Method)},
		{"Book and lesson", r.BookAndLesson},
		{"Date", r.CreatedAt.Format("2006-01-02 15:04")},
		{"Teacher talk time (%)", s.TeacherTalkTime},
		{"Student talk time (%)", s.StudentTalkTime},
		{"English (%)", s.EnglishPercentage},
		{"Portuguese (%)", s.PortuguesePercentage},
		{"Grammar points", strings.Join(s.GrammarPoints, ", ")},
		{"Vocabulary", strings.Join(s.Vocabulary, ", ")},
		append([]interface{}{"Lesson plan adherence"}, chunkCell(s.LessonPlanAdherence)...),
	}
	if err := setRows(f, summarySheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return fmt.Errorf("failed to style %s: %w", summarySheet, err)
	}
	return setWidths(f, summarySheet, map[string]float64{"A": 24, "B": 80})
}

func writeChecklist(f *excelize.File, bold int, items []models.ChecklistItem) error {
	rows := make([][]interface{}, 0, len(items)+1)
	rows = append(rows, []interface{}{"Category", "ID", "Item", "Status", "Comment"})
	for _, it := range items {
		row := []interface{}{it.Category, it.ID, it.Text, StatusLabel(it.Status)}
		rows = append(rows, append(row, chunkCell(it.Comment)...))
	}
	if err := setRows(f, checklistSheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(checklistSheet, "A1", "E1", bold); err != nil {
		return fmt.Errorf("failed to style %s: %w", checklistSheet, err)
	}
	return setWidths(f, checklistSheet, map[string]float64{"A": 22, "B": 10, "C": 70, "D": 12, "E": 60})
}

func writeTranscription(f *excelize.File, bold int, transcription string) error {
	rows := [][]interface{}{{"Transcription"}}
	for _, line := range strings.Split(transcription, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		for _, chunk := range chunkCell(line) {
			rows = append(rows, []interface{}{chunk})
		}
	}
	if err := setRows(f, transcriptionSheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(transcriptionSheet, "A1", "A1", bold); err != nil {
		return fmt.Errorf("failed to style %s: %w", transcriptionSheet, err)
	}
	return setWidths(f, transcriptionSheet, map[string]float64{"A": 120})
}

// chunkCell splits s into pieces of at most excelize.TotalCellChars runes,
// the most a cell holds. Longer values continue in the following cells.
func chunkCell(s string) []interface{} {
	runes := []rune(s)
	if len(runes) <= excelize.TotalCellChars {
		return []interface{}{s}
	}
	var out []interface{}
	for len(runes) > 0 {
		n := min(len(runes), excelize.TotalCellChars)
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}
	return nil
}

func setWidths(f *excelize.File, sheet string, widths map[string]float64) error {
	for col, w := range widths {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("failed to size column %s of %s: %w", col, sheet, err)
		}
	}
	return nil
}

// ImportChecklist reads a checklist template from the first sheet of an
// xlsx workbook. The first row is a header; columns are category, item id
// and item text. Rows missing any column are skipped and sections keep the
// order in which their category first appears.
func ImportChecklist(file io.Reader, method models.Method) (checklist.Template, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		logger.Log.Errorf("Error opening Excel reader: %v", err)
		return checklist.Template{}, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Log.Warnf("Error closing excel file: %v", err)
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return checklist.Template{}, errors.New("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		logger.Log.Errorf("Error getting rows from sheet '%s': %v", sheetName, err)
		return checklist.Template{}, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}

	tpl := checklist.Template{Method: method}
	index := make(map[string]int)
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		var category, id, text string
		if len(row) > 0 {
			category = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			id = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			text = strings.TrimSpace(row[2])
		}
		if category == "" || id == "" || text == "" {
			logger.Log.Debugf("Skipping row %d due to missing column (category: '%s', id: '%s', text: '%s')", i+1, category, id, text)
			continue
		}

		pos, ok := index[category]
		if !ok {
			pos = len(tpl.Sections)
			index[category] = pos
			tpl.Sections = append(tpl.Sections, checklist.Section{ID: sectionID(category), Category: category})
		}
		tpl.Sections[pos].Items = append(tpl.Sections[pos].Items, checklist.Item{ID: id, Text: text})
	}

	if err := tpl.Validate(); err != nil {
		return checklist.Template{}, fmt.Errorf("invalid checklist in sheet %s: %w", sheetName, err)
	}
	logger.Log.Infof("Imported %d checklist items in %d sections for %s", len(tpl.Items()), len(tpl.Sections), method)
	return tpl, nil
}

// sectionID turns "Warm-up & Review" into "warm-up-review"
func sectionID(category string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(category) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case r == '-' || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !dash && b.Len() > 0 {
				b.WriteRune('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
