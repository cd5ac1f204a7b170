package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"lesson-observer-go/models"
)

func sampleResult() models.EvaluationResult {
	return models.EvaluationResult{
		ID:            "r1",
		CreatedAt:     time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		Method:        models.MethodTeens,
		TeacherName:   "Ana",
		BookAndLesson: "INSIGHT - Lesson 3A",
		Summary: models.Summary{
			TeacherTalkTime:      40,
			StudentTalkTime:      60,
			EnglishPercentage:    90,
			PortuguesePercentage: 10,
			GrammarPoints:        []string{"present perfect", "since/for"},
			Vocabulary:           []string{"travel"},
			LessonPlanAdherence:  "Followed the plan",
		},
		Checklist: []models.ChecklistItem{
			{ID: "w1", Category: "Warm-up", Text: "Greets students", Status: models.StatusCompleted, Comment: "Warm greeting"},
			{ID: "p1", Category: "Practice", Text: "Pair work", Status: models.StatusNotDone},
		},
		Transcription: "Teacher: Good morning\n\nStudent: Good morning",
	}
}

func TestWriteEvaluation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvaluation(&buf, sampleResult()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, checklistSheet, transcriptionSheet}, f.GetSheetList())

	teacher, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", teacher)
	grammar, err := f.GetCellValue(summarySheet, "B9")
	require.NoError(t, err)
	assert.Equal(t, "present perfect, since/for", grammar)

	rows, err := f.GetRows(checklistSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Category", "ID", "Item", "Status", "Comment"}, rows[0])
	assert.Equal(t, []string{"Warm-up", "w1", "Greets students", "Completed", "Warm greeting"}, rows[1])
	assert.Equal(t, "Not done", rows[2][3])

	lines, err := f.GetRows(transcriptionSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Transcription"}, {"Teacher: Good morning"}, {"Student: Good morning"}}, lines)
}

func TestWriteEvaluationKeepsLongCells(t *testing.T) {
	line := "Teacher: " + strings.Repeat("vamos é ", 6250) + "fim" // one line, over 50000 runes
	comment := strings.Repeat("ó", excelize.TotalCellChars+10)

	r := sampleResult()
	r.Transcription = line
	r.Checklist[0].Comment = comment
	r.Summary.LessonPlanAdherence = comment

	var buf bytes.Buffer
	require.NoError(t, WriteEvaluation(&buf, r))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	lines, err := f.GetRows(transcriptionSheet)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Len(t, []rune(lines[1][0]), excelize.TotalCellChars)
	assert.Equal(t, line, lines[1][0]+lines[2][0])

	rows, err := f.GetRows(checklistSheet)
	require.NoError(t, err)
	require.Len(t, rows[1], 6)
	assert.Equal(t, comment, rows[1][4]+rows[1][5])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, summary[10], 3)
	assert.Equal(t, comment, summary[10][1]+summary[10][2])
}

func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportChecklist(t *testing.T) {
	buf := workbook(t, [][]interface{}{
		{"Category", "ID", "Text"},
		{"Warm-up & Review", "w1", "Greets students"},
		{"Practice", "p1", "Pair work"},
		{"Warm-up & Review", "w2", "Reviews homework"},
		{"Practice", "", "missing id is skipped"},
	})

	tpl, err := ImportChecklist(buf, models.MethodKids)
	require.NoError(t, err)
	assert.Equal(t, models.MethodKids, tpl.Method)
	require.Len(t, tpl.Sections, 2)
	assert.Equal(t, "warm-up-review", tpl.Sections[0].ID)
	assert.Equal(t, "Warm-up & Review", tpl.Sections[0].Category)
	assert.Equal(t, []string{"w1", "w2", "p1"}, tpl.IDs())
}

func TestImportChecklistRejectsDuplicatesAndEmpty(t *testing.T) {
	dup := workbook(t, [][]interface{}{
		{"Category", "ID", "Text"},
		{"Warm-up", "w1", "Greets students"},
		{"Practice", "w1", "Pair work"},
	})
	_, err := ImportChecklist(dup, models.MethodAdults)
	assert.ErrorContains(t, err, "duplicate")

	empty := workbook(t, [][]interface{}{{"Category", "ID", "Text"}})
	_, err = ImportChecklist(empty, models.MethodAdults)
	assert.Error(t, err)

	_, err = ImportChecklist(bytes.NewReader([]byte("not a workbook")), models.MethodAdults)
	assert.Error(t, err)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "N/A", StatusLabel(models.StatusNotApplicable))
	assert.Equal(t, "weird", StatusLabel("weird"))
}
