package analysis

import (
	"fmt"
	"strings"

	"lesson-observer-go/checklist"
	"lesson-observer-go/models"
)

const promptHeader = `You are an expert English teaching evaluator. Analyze this class recording and lesson plan, focusing on the checklist evaluation.

Class Details:
- Method: %s
- Book: %s
- Lesson: %s
- Teacher: %s

CRITICAL INSTRUCTIONS:
1. Return ONLY valid JSON
2. DO NOT include any text before or after the JSON
3. DO NOT use markdown code blocks
4. The response must start with { and end with }

Required JSON structure:
{
  "summary": {
    "teacherTalkTime": number (0-100),
    "studentTalkTime": number (0-100),
    "englishPercentage": number (0-100),
    "portuguesePercentage": number (0-100),
    "grammarPoints": string[],
    "vocabulary": string[],
    "lessonPlanAdherence": string
  },
  "checklist": [
    {
      "id": string,
      "status": "completed" | "partial" | "notDone" | "notApplicable",
      "comment": string
    }
  ],
  "transcription": string (formatted with speaker indicators)
}

For each checklist item, carefully analyze the video and provide:
1. Status:
   - "completed": Task was fully and correctly executed
   - "partial": Task was attempted but not fully/correctly done
   - "notDone": Task was skipped or missing
   - "notApplicable": Task wasn't relevant for this lesson
2. Comment: Brief observation about how the task was performed

Example checklist evaluation:
{
  "id": "v1",
  "status": "completed",
  "comment": "Teacher played the complete audio at 2:15"
}
`

const promptFooter = `
Format the transcription with:
- Clear speaker indicators (Teacher: or Student:)
- Timestamps in [MM:SS] format
- Blank lines between exchanges

Example transcription format:
[00:00] Teacher: Good morning class!

Student 1: Good morning teacher!

[00:15] Teacher: Today we're going to learn about...`

// BuildPrompt renders the evaluator instructions for one class, listing
// every checklist id the reply must use.
func BuildPrompt(meta models.ClassMetadata, tpl checklist.Template) string {
	var b strings.Builder
	fmt.Fprintf(&b, promptHeader, meta.Method, meta.Book, meta.Lesson, meta.TeacherName)

	b.WriteString("\nChecklist items to evaluate (use exactly these ids, one entry per id):\n")
	for _, s := range tpl.Sections {
		fmt.Fprintf(&b, "%s\n", s.Category)
		for _, it := range s.Items {
			fmt.Fprintf(&b, "   - %s: %s\n", it.ID, it.Text)
		}
	}
	b.WriteString(promptFooter)
	return b.String()
}
