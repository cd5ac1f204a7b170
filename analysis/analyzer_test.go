package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-observer-go/checklist"
	"lesson-observer-go/models"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
	media   [][]models.MediaFile
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, media ...models.MediaFile) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.media = append(g.media, media)
	return g.reply, g.err
}

type fakeProvider struct {
	gen    *fakeGenerator
	err    error
	gotKey string
}

func (p *fakeProvider) Generator(_ context.Context, apiKey string) (Generator, error) {
	p.gotKey = apiKey
	if p.err != nil {
		return nil, p.err
	}
	return p.gen, nil
}

func (p *fakeProvider) Models() []string { return []string{"gemini-2.0-flash"} }

type fakeTemplates struct {
	tpl *checklist.Template
	err error
}

func (f fakeTemplates) GetTemplate(context.Context, models.Method) (*checklist.Template, error) {
	return f.tpl, f.err
}

var (
	mp4Bytes = append([]byte{0, 0, 0, 0x18}, []byte("ftypmp42\x00\x00\x00\x00mp42isom")...)
	pdfBytes = []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")
)

func validRequest() Request {
	return Request{
		Metadata:   teensMeta,
		Video:      models.MediaFile{Name: "class.mp4", MIMEType: "video/mp4", Data: mp4Bytes},
		LessonPlan: models.MediaFile{Name: "plan.pdf", MIMEType: "application/pdf", Data: pdfBytes},
	}
}

const goodReply = "```json\n" + `{"summary":{"teacherTalkTime":60,"studentTalkTime":40,"englishPercentage":90,"portuguesePercentage":10,
"grammarPoints":["can"],"vocabulary":["kitchen"],"lessonPlanAdherence":"Good"},
"checklist":[{"id":"v1","status":"completed","comment":"played at 0:30"}],
"transcription":"[00:00] Teacher: Hi"}` + "\n```"

func newTestAnalyzer(p *fakeProvider, templates TemplateSource) *Analyzer {
	a := NewAnalyzer(p, templates)
	a.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	a.newID = func() string { return "analysis-1" }
	return a
}

func TestAnalyzeHappyPath(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	p := &fakeProvider{gen: gen}
	a := newTestAnalyzer(p, nil)

	res, err := a.Analyze(context.Background(), "user-key", validRequest())
	require.NoError(t, err)

	assert.Equal(t, "user-key", p.gotKey)
	assert.Equal(t, "analysis-1", res.ID)
	assert.Equal(t, time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC), res.CreatedAt)
	assert.Equal(t, 60.0, res.Summary.TeacherTalkTime)
	assert.Equal(t, "[00:00] Teacher: Hi", res.Transcription)
	assert.Len(t, res.Checklist, len(checklist.Builtin(models.MethodTeens).Items()))

	v1 := res.ChecklistItemByID("v1")
	require.NotNil(t, v1)
	assert.Equal(t, models.StatusCompleted, v1.Status)

	require.Len(t, gen.media, 1)
	require.Len(t, gen.media[0], 2)
	assert.Equal(t, "video/mp4", gen.media[0][0].MIMEType)
	assert.Equal(t, "application/pdf", gen.media[0][1].MIMEType)
	assert.Contains(t, gen.prompts[0], "- v1: Tocar o áudio completo")
}

func TestAnalyzeUsesStoredTemplate(t *testing.T) {
	override := checklist.Template{Method: models.MethodTeens, Sections: []checklist.Section{
		{ID: "custom", Category: "Custom", Items: []checklist.Item{{ID: "x1", Text: "Greets the class"}}},
	}}
	gen := &fakeGenerator{reply: goodReply}
	a := newTestAnalyzer(&fakeProvider{gen: gen}, fakeTemplates{tpl: &override})

	res, err := a.Analyze(context.Background(), "", validRequest())
	require.NoError(t, err)
	require.Len(t, res.Checklist, 1)
	assert.Equal(t, "x1", res.Checklist[0].ID)
	assert.Equal(t, "Custom", res.Checklist[0].Category)
}

func TestAnalyzeTemplateStoreErrorFallsBack(t *testing.T) {
	a := newTestAnalyzer(&fakeProvider{gen: &fakeGenerator{}}, fakeTemplates{err: errors.New("redis down")})
	tpl := a.Template(context.Background(), models.MethodAdults)
	assert.Equal(t, checklist.Builtin(models.MethodAdults).IDs(), tpl.IDs())
}

func TestAnalyzeValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(r *Request)
		want   string
	}{
		"no video": {func(r *Request) { r.Video.Data = nil }, "Please upload all required files"},
		"no plan":  {func(r *Request) { r.LessonPlan = models.MediaFile{} }, "Please upload all required files"},
		"no name":  {func(r *Request) { r.Metadata.TeacherName = "  " }, "Please fill in all class information fields"},
		"no book":  {func(r *Request) { r.Metadata.Book = "" }, "Please fill in all class information fields"},
		"method":   {func(r *Request) { r.Metadata.Method = "Seniors" }, `Unknown teaching method "Seniors"`},
		"video is pdf": {func(r *Request) {
			r.Video = models.MediaFile{MIMEType: "application/pdf", Data: pdfBytes}
		}, "must be a video file"},
		"plan is text": {func(r *Request) {
			r.LessonPlan = models.MediaFile{MIMEType: "text/plain", Data: []byte("hello")}
		}, "must be a PDF file"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &fakeGenerator{reply: goodReply}
			a := newTestAnalyzer(&fakeProvider{gen: gen}, nil)
			req := validRequest()
			tc.mutate(&req)

			_, err := a.Analyze(context.Background(), "", req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, UserMessage(err), tc.want)
			assert.Empty(t, gen.prompts, "model must not be called")
		})
	}
}

func TestValidateSniffsMissingMIME(t *testing.T) {
	req := validRequest()
	req.Video.MIMEType = "video/mp4; codecs=avc1"
	req.LessonPlan.MIMEType = "application/octet-stream"

	require.NoError(t, req.Validate())
	assert.Equal(t, "application/pdf", req.LessonPlan.MIMEType)
	assert.Equal(t, "video/mp4", req.Video.MIMEType)

	req.LessonPlan.MIMEType = ""
	require.NoError(t, req.Validate())
	assert.Equal(t, "application/pdf", req.LessonPlan.MIMEType)
}

func TestAnalyzePropagatesErrors(t *testing.T) {
	a := newTestAnalyzer(&fakeProvider{err: ErrMissingAPIKey}, nil)
	_, err := a.Analyze(context.Background(), "", validRequest())
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	a = newTestAnalyzer(&fakeProvider{gen: &fakeGenerator{err: errors.New("API key not valid")}}, nil)
	_, err = a.Analyze(context.Background(), "", validRequest())
	require.Error(t, err)
	assert.Equal(t, MsgKeyInvalid, UserMessage(err))

	a = newTestAnalyzer(&fakeProvider{gen: &fakeGenerator{reply: "Sorry, I cannot help"}}, nil)
	_, err = a.Analyze(context.Background(), "", validRequest())
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestTestConnection(t *testing.T) {
	gen := &fakeGenerator{reply: "pong"}
	a := newTestAnalyzer(&fakeProvider{gen: gen}, nil)

	res, err := a.TestConnection(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "pong", res.Response)
	assert.Equal(t, []string{"gemini-2.0-flash"}, res.AvailableModels)
	assert.Equal(t, []string{"Connection test"}, gen.prompts)
	assert.Empty(t, gen.media[0])
}
