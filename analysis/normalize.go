package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"lesson-observer-go/checklist"
	"lesson-observer-go/models"
)

// minKeywordLen drops articles and prepositions ("a", "o", "de") that would
// match almost every transcription line.
const minKeywordLen = 3

var speakerPrefix = regexp.MustCompile(`^\[?\d*:?\d*\]?\s*(Teacher|Student|Student \d+):`)

// Normalize turns a raw model reply into an EvaluationResult: percentages are
// clamped, missing lists default to empty, and the checklist is rebuilt from
// the template. ID and CreatedAt are left for the caller.
func Normalize(raw string, meta models.ClassMetadata, tpl checklist.Template) (models.EvaluationResult, error) {
	parsed, summary, err := decodeAnalysis(raw)
	if err != nil {
		return models.EvaluationResult{}, err
	}

	transcription := string(parsed.Transcription)
	return models.EvaluationResult{
		Method:        meta.Method,
		TeacherName:   meta.TeacherName,
		BookAndLesson: fmt.Sprintf("%s - %s", meta.Book, meta.Lesson),
		Summary:       summary.normalize(),
		Checklist:     reconcileChecklist(*parsed.Checklist, tpl, transcription),
		Transcription: FormatTranscription(transcription),
	}, nil
}

// reconcileChecklist emits one item per template entry, in template order.
// The model's verdict wins when its status is valid; otherwise the
// transcription is searched for the item's keywords.
func reconcileChecklist(fromModel rawChecklist, tpl checklist.Template, transcription string) []models.ChecklistItem {
	byID := make(map[string]rawChecklistItem, len(fromModel))
	for _, it := range fromModel {
		id := strings.TrimSpace(string(it.ID))
		if _, dup := byID[id]; id != "" && !dup {
			byID[id] = it
		}
	}

	lines := strings.Split(strings.ToLower(transcription), "\n")
	items := tpl.Items()
	out := make([]models.ChecklistItem, 0, len(items))
	for _, tplItem := range items {
		item := models.ChecklistItem{
			ID:       tplItem.ID,
			Category: tplItem.Category,
			Text:     tplItem.Text,
		}

		status, comment := findEvidence(lines, tplItem.Text)
		if m, ok := byID[tplItem.ID]; ok {
			if s := models.ChecklistStatus(strings.TrimSpace(string(m.Status))); s.Valid() {
				status = s
			}
			if c := strings.TrimSpace(string(m.Comment)); c != "" {
				comment = c
			}
		}
		item.Status = status
		item.Comment = comment
		out = append(out, item)
	}
	return out
}

// findEvidence marks an item completed when any transcription line contains
// one of the item's keywords, quoting the first such line.
func findEvidence(lowerLines []string, itemText string) (models.ChecklistStatus, string) {
	keywords := Keywords(itemText)
	if len(keywords) == 0 {
		return models.StatusNotDone, ""
	}
	for _, line := range lowerLines {
		for _, kw := range keywords {
			if strings.Contains(line, kw) {
				return models.StatusCompleted, `Evidence found in transcription: "` + strings.TrimSpace(line) + `"`
			}
		}
	}
	return models.StatusNotDone, ""
}

// Keywords lower-cases text, splits it on whitespace, trims punctuation and
// keeps the distinct words of at least minKeywordLen runes.
func Keywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(w) < minKeywordLen || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// FormatTranscription prefixes unattributed lines with "Teacher: " and
// separates exchanges with exactly one blank line.
func FormatTranscription(text string) string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !speakerPrefix.MatchString(line) {
			line = "Teacher: " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n\n")
}
