package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"lesson-observer-go/analysis"
	"lesson-observer-go/db"
	"lesson-observer-go/logger"
	"lesson-observer-go/models"
	"lesson-observer-go/report"
)

// APIKeyHeader carries a caller supplied Gemini key
const APIKeyHeader = "X-Api-Key"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// APIHandler holds the dependencies for API handlers
type APIHandler struct {
	Analyzer *analysis.Analyzer
	Store    db.Store
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(analyzer *analysis.Analyzer, store db.Store) *APIHandler {
	return &APIHandler{
		Analyzer: analyzer,
		Store:    store,
	}
}

func errorBody(msg string) gin.H {
	return gin.H{"success": false, "error": msg}
}

// statusFor maps an analysis error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest), errors.Is(err, analysis.ErrMissingAPIKey):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case analysis.IsParseError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// bodyTooLarge answers 413 when err comes from the LimitBody cap
func bodyTooLarge(c *gin.Context, err error) bool {
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		return false
	}
	logger.Log.Warnf("Rejected upload over %d bytes on %s", mbe.Limit, c.FullPath())
	c.JSON(http.StatusRequestEntityTooLarge,
		errorBody(fmt.Sprintf("Upload too large: files may total at most %d MB", mbe.Limit>>20)))
	return true
}

// --- Analysis Handlers ---

// Analyze handles POST /api/analyze (multipart form)
func (h *APIHandler) Analyze(c *gin.Context) {
	var meta models.ClassMetadata
	if err := c.ShouldBind(&meta); err != nil {
		if bodyTooLarge(c, err) {
			return
		}
		c.JSON(http.StatusBadRequest, errorBody("Invalid class information: "+err.Error()))
		return
	}

	video, err := readFormFile(c, "video")
	if bodyTooLarge(c, err) {
		return
	}
	if err != nil {
		logger.Log.Warnf("Error reading video upload: %v", err)
		c.JSON(http.StatusBadRequest, errorBody("Please upload all required files"))
		return
	}
	plan, err := readFormFile(c, "lessonPlan")
	if bodyTooLarge(c, err) {
		return
	}
	if err != nil {
		logger.Log.Warnf("Error reading lesson plan upload: %v", err)
		c.JSON(http.StatusBadRequest, errorBody("Please upload all required files"))
		return
	}

	h.runAnalysis(c, analysis.Request{Metadata: meta, Video: video, LessonPlan: plan})
}

func (h *APIHandler) runAnalysis(c *gin.Context, req analysis.Request) {
	result, err := h.Analyzer.Analyze(c.Request.Context(), c.GetHeader(APIKeyHeader), req)
	if err != nil {
		logger.Log.Errorf("Error in Analyze handler: %v", err)
		c.JSON(statusFor(err), errorBody(analysis.UserMessage(err)))
		return
	}

	if err := h.Store.SaveAnalysis(c.Request.Context(), *result); err != nil {
		// The caller still gets the result; only history is affected
		logger.Log.Errorf("Error saving analysis %s to history: %v", result.ID, err)
	}
	c.JSON(http.StatusOK, result)
}

// TestConnection handles GET /api/test-connection
func (h *APIHandler) TestConnection(c *gin.Context) {
	h.testConnection(c)
}

func (h *APIHandler) testConnection(c *gin.Context) {
	res, err := h.Analyzer.TestConnection(c.Request.Context(), c.GetHeader(APIKeyHeader))
	if err != nil {
		logger.Log.Errorf("Connection test failed: %v", err)
		c.JSON(statusFor(err), errorBody(analysis.ConnectionMessage(err)))
		return
	}
	c.JSON(http.StatusOK, res)
}

// encodedFile is a browser file sent as base64, optionally as a data URL
type encodedFile struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

func (f *encodedFile) decode(field string) (models.MediaFile, error) {
	if f == nil || f.Data == "" {
		return models.MediaFile{Name: field}, nil
	}
	data := f.Data
	mimeType := f.Type
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return models.MediaFile{}, fmt.Errorf("%s: malformed data URL", field)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return models.MediaFile{}, fmt.Errorf("%s: invalid base64: %w", field, err)
	}
	name := f.Name
	if name == "" {
		name = field
	}
	return models.MediaFile{Name: name, MIMEType: mimeType, Data: raw}, nil
}

type geminiRequest struct {
	Action string `json:"action"`
	Data   struct {
		Video      *encodedFile         `json:"video"`
		LessonPlan *encodedFile         `json:"lessonPlan"`
		Metadata   models.ClassMetadata `json:"metadata"`
	} `json:"data"`
}

// Gemini handles POST /api/gemini, the JSON action endpoint used by the
// browser client: {"action": "test" | "analyze", "data": {...}}
func (h *APIHandler) Gemini(c *gin.Context) {
	var body geminiRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		if bodyTooLarge(c, err) {
			return
		}
		c.JSON(http.StatusBadRequest, errorBody("Invalid request body: "+err.Error()))
		return
	}

	switch body.Action {
	case "test":
		h.testConnection(c)
	case "analyze":
		video, err := body.Data.Video.decode("video")
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		plan, err := body.Data.LessonPlan.decode("lessonPlan")
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.runAnalysis(c, analysis.Request{Metadata: body.Data.Metadata, Video: video, LessonPlan: plan})
	default:
		c.JSON(http.StatusBadRequest, errorBody("Invalid action"))
	}
}

// --- History Handlers ---

// ListAnalyses handles GET /api/analyses
func (h *APIHandler) ListAnalyses(c *gin.Context) {
	results, err := h.Store.ListAnalyses(c.Request.Context())
	if err != nil {
		logger.Log.Errorf("Error in ListAnalyses handler: %v", err)
		c.JSON(http.StatusInternalServerError, errorBody("Failed to retrieve analysis history"))
		return
	}
	if results == nil {
		// Return empty list instead of null for JSON consistency
		results = []models.EvaluationResult{}
	}
	c.JSON(http.StatusOK, results)
}

// GetAnalysis handles GET /api/analyses/:id
func (h *APIHandler) GetAnalysis(c *gin.Context) {
	result, ok := h.loadAnalysis(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// ClearHistory handles DELETE /api/analyses
func (h *APIHandler) ClearHistory(c *gin.Context) {
	if err := h.Store.ClearHistory(c.Request.Context()); err != nil {
		logger.Log.Errorf("Error in ClearHistory handler: %v", err)
		c.JSON(http.StatusInternalServerError, errorBody("Failed to clear analysis history"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ToggleChecklistItem handles PATCH /api/analyses/:id/checklist/:itemId
func (h *APIHandler) ToggleChecklistItem(c *gin.Context) {
	id, itemID := c.Param("id"), c.Param("itemId")
	item, err := h.Store.ToggleChecklistItem(c.Request.Context(), id, itemID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("Analysis not found"))
		return
	case errors.Is(err, db.ErrItemNotFound):
		c.JSON(http.StatusNotFound, errorBody("Checklist item not found"))
		return
	case err != nil:
		logger.Log.Errorf("Error updating analysis %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, errorBody("Failed to update checklist item"))
		return
	}
	c.JSON(http.StatusOK, item)
}

// ExportAnalysis handles GET /api/analyses/:id/export
func (h *APIHandler) ExportAnalysis(c *gin.Context) {
	result, ok := h.loadAnalysis(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteEvaluation(&buf, *result); err != nil {
		logger.Log.Errorf("Error exporting analysis %s: %v", result.ID, err)
		c.JSON(http.StatusInternalServerError, errorBody("Failed to export analysis"))
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": exportFilename(*result)}))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func exportFilename(r models.EvaluationResult) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		return r
	}, r.TeacherName)
	if name == "" {
		name = "class"
	}
	return fmt.Sprintf("class-evaluation-%s-%s.xlsx", name, r.CreatedAt.Format("2006-01-02"))
}

func (h *APIHandler) loadAnalysis(c *gin.Context) (*models.EvaluationResult, bool) {
	id := c.Param("id")
	result, err := h.Store.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody("Analysis not found"))
			return nil, false
		}
		logger.Log.Errorf("Error getting analysis %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, errorBody("Failed to retrieve analysis"))
		return nil, false
	}
	return result, true
}

// --- Checklist Handlers ---

// GetChecklist handles GET /api/checklists/:method
func (h *APIHandler) GetChecklist(c *gin.Context) {
	method := models.Method(c.Param("method"))
	if !method.Valid() {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Sprintf("Unknown teaching method %q", method)))
		return
	}
	c.JSON(http.StatusOK, h.Analyzer.Template(c.Request.Context(), method))
}

// ImportChecklist handles POST /api/import/checklist
func (h *APIHandler) ImportChecklist(c *gin.Context) {
	if _, err := c.MultipartForm(); err != nil && bodyTooLarge(c, err) {
		return
	}
	method := models.Method(c.PostForm("method"))
	if !method.Valid() {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Sprintf("Unknown teaching method %q", method)))
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		logger.Log.Warnf("Error getting form file: %v", err)
		c.JSON(http.StatusBadRequest, errorBody("Error retrieving uploaded file: "+err.Error()))
		return
	}
	defer file.Close()

	logger.Log.Infof("Received checklist upload: %s for method: %s", header.Filename, method)

	tpl, err := report.ImportChecklist(file, method)
	if err != nil {
		logger.Log.Errorf("Error importing checklist from %s: %v", header.Filename, err)
		c.JSON(http.StatusBadRequest, errorBody("Failed to import checklist: "+err.Error()))
		return
	}
	if err := h.Store.SaveTemplate(c.Request.Context(), tpl); err != nil {
		logger.Log.Errorf("Error saving checklist for %s: %v", method, err)
		c.JSON(http.StatusInternalServerError, errorBody("Failed to save checklist"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Import successful",
		"method":        method,
		"sectionCount":  len(tpl.Sections),
		"importedCount": len(tpl.Items()),
	})
}

// --- Ping Handler ---

// PingHandler handles GET /api/ping and reports store health
func (h *APIHandler) PingHandler(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		logger.Log.Warnf("Store ping failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}

func readFormFile(c *gin.Context, field string) (models.MediaFile, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		return models.MediaFile{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.MediaFile{}, fmt.Errorf("read %s: %w", field, err)
	}
	return models.MediaFile{Name: header.Filename, MIMEType: contentType(header), Data: data}, nil
}

func contentType(h *multipart.FileHeader) string {
	return h.Header.Get("Content-Type")
}
