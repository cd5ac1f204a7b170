package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"lesson-observer-go/models"
)

var codeFence = regexp.MustCompile("```[a-zA-Z]*\\s*")

// ExtractJSON strips markdown fences and returns the text between the first
// '{' and the last '}'.
func ExtractJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(codeFence.ReplaceAllString(raw, ""))

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSON
	}
	return cleaned[start : end+1], nil
}

// number decodes a JSON number or a numeric string ("42", "42.5%").
// Anything else decodes to 0.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	*n = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = number(f)
	}
	return nil
}

// percentage clamps into [0,100]; NaN and infinities become 0
func (n number) percentage() float64 {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Min(100, math.Max(0, f))
}

// stringList decodes a JSON array, stringifying non-string elements.
// A value that is not an array decodes to an empty list.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	*l = stringList{}
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return nil
	}
	for _, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				*l = append(*l, s)
			}
			continue
		}
		if t := strings.TrimSpace(string(e)); t != "null" {
			*l = append(*l, t)
		}
	}
	return nil
}

// text decodes a JSON string; other values are kept as their JSON text
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = text(s)
		return nil
	}
	if trimmed := strings.TrimSpace(string(b)); trimmed != "null" {
		*t = text(trimmed)
	} else {
		*t = ""
	}
	return nil
}

type rawSummary struct {
	TeacherTalkTime      number     `json:"teacherTalkTime"`
	StudentTalkTime      number     `json:"studentTalkTime"`
	EnglishPercentage    number     `json:"englishPercentage"`
	PortuguesePercentage number     `json:"portuguesePercentage"`
	GrammarPoints        stringList `json:"grammarPoints"`
	Vocabulary           stringList `json:"vocabulary"`
	LessonPlanAdherence  text       `json:"lessonPlanAdherence"`
}

type rawChecklistItem struct {
	ID      text `json:"id"`
	Status  text `json:"status"`
	Comment text `json:"comment"`
}

// rawChecklist tolerates non-object elements by skipping them
type rawChecklist []rawChecklistItem

func (c *rawChecklist) UnmarshalJSON(b []byte) error {
	*c = rawChecklist{}
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return nil
	}
	for _, e := range elems {
		var item rawChecklistItem
		if err := json.Unmarshal(e, &item); err != nil {
			continue
		}
		*c = append(*c, item)
	}
	return nil
}

type rawAnalysis struct {
	Summary       json.RawMessage `json:"summary"`
	Checklist     *rawChecklist   `json:"checklist"`
	Transcription text            `json:"transcription"`
}

// decodeAnalysis parses the model reply and checks the required fields.
// A summary that is present but not an object yields all defaults.
func decodeAnalysis(raw string) (*rawAnalysis, *rawSummary, error) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return nil, nil, err
	}

	var parsed rawAnalysis
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if isAbsent(parsed.Summary) || parsed.Checklist == nil || strings.TrimSpace(string(parsed.Transcription)) == "" {
		return nil, nil, ErrMissingFields
	}

	var summary rawSummary
	_ = json.Unmarshal(parsed.Summary, &summary)
	return &parsed, &summary, nil
}

func isAbsent(msg json.RawMessage) bool {
	trimmed := bytes.TrimSpace(msg)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (s *rawSummary) normalize() models.Summary {
	adherence := strings.TrimSpace(string(s.LessonPlanAdherence))
	if adherence == "" {
		adherence = "Analysis failed"
	}
	return models.Summary{
		TeacherTalkTime:      s.TeacherTalkTime.percentage(),
		StudentTalkTime:      s.StudentTalkTime.percentage(),
		EnglishPercentage:    s.EnglishPercentage.percentage(),
		PortuguesePercentage: s.PortuguesePercentage.percentage(),
		GrammarPoints:        nonNil(s.GrammarPoints),
		Vocabulary:           nonNil(s.Vocabulary),
		LessonPlanAdherence:  adherence,
	}
}

func nonNil(l stringList) []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}
