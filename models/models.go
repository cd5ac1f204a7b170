package models

import "time"

// Method is the teaching method a class follows
type Method string

const (
	MethodKids   Method = "Kids"
	MethodTeens  Method = "Teens"
	MethodAdults Method = "Adults"
)

// Valid reports whether m is one of the known teaching methods
func (m Method) Valid() bool {
	switch m {
	case MethodKids, MethodTeens, MethodAdults:
		return true
	}
	return false
}

// ClassMetadata describes the observed class
type ClassMetadata struct {
	Method      Method `json:"method" form:"method"`           // Kids, Teens or Adults
	Book        string `json:"book" form:"book"`               // e.g. INSIGHT, ROCKET 1
	Lesson      string `json:"lesson" form:"lesson"`           // e.g. Lesson 3A
	TeacherName string `json:"teacherName" form:"teacherName"` // Observed teacher
}

// MediaFile is one uploaded file held in memory
type MediaFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"type"`
	Data     []byte `json:"-"`
}

// Empty reports whether no file content was received
func (f MediaFile) Empty() bool {
	return len(f.Data) == 0
}

// ChecklistStatus is the observed state of a checklist item
type ChecklistStatus string

const (
	StatusCompleted     ChecklistStatus = "completed"
	StatusPartial       ChecklistStatus = "partial"
	StatusNotDone       ChecklistStatus = "notDone"
	StatusNotApplicable ChecklistStatus = "notApplicable"
)

// Valid reports whether s is one of the four checklist statuses
func (s ChecklistStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusNotDone, StatusNotApplicable:
		return true
	}
	return false
}

// Toggle flips completed and notDone; any other status becomes completed
func (s ChecklistStatus) Toggle() ChecklistStatus {
	if s == StatusCompleted {
		return StatusNotDone
	}
	return StatusCompleted
}

// ChecklistItem is one evaluated pedagogical observation
type ChecklistItem struct {
	ID       string          `json:"id"`
	Category string          `json:"category"`
	Text     string          `json:"text"`
	Status   ChecklistStatus `json:"status"`
	Comment  string          `json:"comment"`
}

// Summary holds the talk-time and language-usage figures of a class
type Summary struct {
	TeacherTalkTime      float64  `json:"teacherTalkTime"`
	StudentTalkTime      float64  `json:"studentTalkTime"`
	EnglishPercentage    float64  `json:"englishPercentage"`
	PortuguesePercentage float64  `json:"portuguesePercentage"`
	GrammarPoints        []string `json:"grammarPoints"`
	Vocabulary           []string `json:"vocabulary"`
	LessonPlanAdherence  string   `json:"lessonPlanAdherence"`
}

// EvaluationResult is the normalized analysis returned to the browser
type EvaluationResult struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"createdAt"`
	Method        Method          `json:"method"`
	TeacherName   string          `json:"teacherName"`
	BookAndLesson string          `json:"bookAndLesson"`
	Summary       Summary         `json:"summary"`
	Checklist     []ChecklistItem `json:"checklist"`
	Transcription string          `json:"transcription"`
}

// ChecklistItemByID returns a pointer into r.Checklist, or nil
func (r *EvaluationResult) ChecklistItemByID(id string) *ChecklistItem {
	for i := range r.Checklist {
		if r.Checklist[i].ID == id {
			return &r.Checklist[i]
		}
	}
	return nil
}
