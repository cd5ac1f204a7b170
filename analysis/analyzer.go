// Package analysis turns a class recording and lesson plan into a normalized
// evaluation: it validates the upload, prompts the model, repairs the reply
// and reconciles the checklist against the method's template.
package analysis

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"lesson-observer-go/checklist"
	"lesson-observer-go/logger"
	"lesson-observer-go/models"
)

// Generator sends a prompt plus media to a language model and returns its text
type Generator interface {
	Generate(ctx context.Context, prompt string, media ...models.MediaFile) (string, error)
}

// GeneratorProvider hands out a Generator for an API key. An empty key means
// the provider's configured default.
type GeneratorProvider interface {
	Generator(ctx context.Context, apiKey string) (Generator, error)
	Models() []string
}

// TemplateSource returns a stored template override, or nil when none exists
type TemplateSource interface {
	GetTemplate(ctx context.Context, method models.Method) (*checklist.Template, error)
}

// Request is one class to analyze
type Request struct {
	Metadata   models.ClassMetadata
	Video      models.MediaFile
	LessonPlan models.MediaFile
}

// ConnectionResult is the body of a connection test
type ConnectionResult struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Response        string   `json:"response"`
	AvailableModels []string `json:"availableModels"`
}

// Analyzer runs analyses against a model
type Analyzer struct {
	generators GeneratorProvider
	templates  TemplateSource
	now        func() time.Time
	newID      func() string
}

// NewAnalyzer creates an Analyzer. templates may be nil, in which case only
// the built-in catalogs are used.
func NewAnalyzer(generators GeneratorProvider, templates TemplateSource) *Analyzer {
	return &Analyzer{
		generators: generators,
		templates:  templates,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Template resolves the checklist for a method: stored override first, then
// the built-in catalog.
func (a *Analyzer) Template(ctx context.Context, method models.Method) checklist.Template {
	if a.templates != nil {
		tpl, err := a.templates.GetTemplate(ctx, method)
		if err != nil {
			logger.Log.Warnf("Falling back to built-in checklist for %s: %v", method, err)
		} else if tpl != nil {
			return *tpl
		}
	}
	return checklist.Builtin(method)
}

// Analyze validates req, asks the model for an evaluation and normalizes it
func (a *Analyzer) Analyze(ctx context.Context, apiKey string, req Request) (*models.EvaluationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	gen, err := a.generators.Generator(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	tpl := a.Template(ctx, req.Metadata.Method)
	prompt := BuildPrompt(req.Metadata, tpl)

	logger.Log.Infof("Analyzing class: teacher=%q book=%q lesson=%q method=%s video=%d bytes plan=%d bytes",
		req.Metadata.TeacherName, req.Metadata.Book, req.Metadata.Lesson, req.Metadata.Method,
		len(req.Video.Data), len(req.LessonPlan.Data))

	started := a.now()
	raw, err := gen.Generate(ctx, prompt, req.Video, req.LessonPlan)
	if err != nil {
		return nil, fmt.Errorf("generate analysis: %w", err)
	}

	result, err := Normalize(raw, req.Metadata, tpl)
	if err != nil {
		logger.Log.Errorf("Failed to parse AI response: %v", err)
		logger.Log.Debugf("Raw response: %s", raw)
		return nil, err
	}
	result.ID = a.newID()
	result.CreatedAt = a.now().UTC()

	logger.Log.Infof("Analysis %s finished in %s with %d checklist items", result.ID, a.now().Sub(started).Round(time.Millisecond), len(result.Checklist))
	return &result, nil
}

// TestConnection sends a trivial prompt to check the key and model
func (a *Analyzer) TestConnection(ctx context.Context, apiKey string) (*ConnectionResult, error) {
	gen, err := a.generators.Generator(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	text, err := gen.Generate(ctx, "Connection test")
	if err != nil {
		return nil, fmt.Errorf("connection test: %w", err)
	}
	return &ConnectionResult{
		Success:         true,
		Message:         "Connection test successful",
		Response:        text,
		AvailableModels: a.generators.Models(),
	}, nil
}

// Validate checks the uploads and metadata and fills in missing MIME types
func (r *Request) Validate() error {
	if r.Video.Empty() || r.LessonPlan.Empty() {
		return invalid("Please upload all required files")
	}
	m := &r.Metadata
	m.Book = strings.TrimSpace(m.Book)
	m.Lesson = strings.TrimSpace(m.Lesson)
	m.TeacherName = strings.TrimSpace(m.TeacherName)
	if m.TeacherName == "" || m.Book == "" || m.Lesson == "" {
		return invalid("Please fill in all class information fields")
	}
	if !m.Method.Valid() {
		return invalid(fmt.Sprintf("Unknown teaching method %q: expected Kids, Teens or Adults", m.Method))
	}

	r.Video.MIMEType = resolveMIME(r.Video)
	if !strings.HasPrefix(r.Video.MIMEType, "video/") {
		return invalid(fmt.Sprintf("The class recording must be a video file, got %s", r.Video.MIMEType))
	}
	r.LessonPlan.MIMEType = resolveMIME(r.LessonPlan)
	if r.LessonPlan.MIMEType != "application/pdf" {
		return invalid(fmt.Sprintf("The lesson plan must be a PDF file, got %s", r.LessonPlan.MIMEType))
	}
	return nil
}

// resolveMIME uses the declared type without parameters, sniffing the content
// when the declaration is missing or generic.
func resolveMIME(f models.MediaFile) string {
	declared, _, err := mime.ParseMediaType(f.MIMEType)
	if err == nil && declared != "" && declared != "application/octet-stream" {
		return declared
	}
	detected, _, _ := mime.ParseMediaType(mimetype.Detect(f.Data).String())
	return detected
}
