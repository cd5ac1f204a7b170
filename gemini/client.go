// Package gemini sends prompts and class media to the Gemini API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
	"lesson-observer-go/analysis"
	"lesson-observer-go/config"
	"lesson-observer-go/logger"
	"lesson-observer-go/models"
)

var _ analysis.GeneratorProvider = (*Provider)(nil)
var _ analysis.Generator = (*Client)(nil)

// Provider hands out one Client per API key. All clients share a rate
// limiter, since the quota that matters is the service's outbound rate.
// The configured key's client lives for the process; clients for
// caller-supplied keys sit in a bounded LRU.
type Provider struct {
	cfg     config.GeminiConfig
	limiter *rate.Limiter
	newAPI  func(ctx context.Context, apiKey string) (api, error)

	mu      sync.Mutex
	def     *Client
	callers *lru.Cache[string, *Client]
}

// NewProvider creates a Provider from config
func NewProvider(cfg config.GeminiConfig) *Provider {
	limit := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	size := cfg.CallerClientCache
	if size <= 0 {
		size = 1
	}
	callers, _ := lru.New[string, *Client](size) // only fails for size <= 0
	return &Provider{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		newAPI:  newGenAIAPI,
		callers: callers,
	}
}

// Generator returns the client for apiKey, falling back to the configured key
func (p *Provider) Generator(ctx context.Context, apiKey string) (analysis.Generator, error) {
	return p.Client(ctx, apiKey)
}

// Client is Generator with the concrete type
func (p *Provider) Client(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		apiKey = p.cfg.APIKey
	}
	if apiKey == "" {
		return nil, analysis.ErrMissingAPIKey
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if apiKey == p.cfg.APIKey {
		if p.def == nil {
			c, err := p.build(ctx, apiKey)
			if err != nil {
				return nil, err
			}
			p.def = c
		}
		return p.def, nil
	}

	if c, ok := p.callers.Get(apiKey); ok {
		return c, nil
	}
	c, err := p.build(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	p.callers.Add(apiKey, c)
	return c, nil
}

func (p *Provider) build(ctx context.Context, apiKey string) (*Client, error) {
	a, err := p.newAPI(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:          a,
		model:        p.cfg.Model,
		temperature:  p.cfg.Temperature,
		inlineBudget: p.cfg.InlineBudgetBytes(),
		timeout:      p.cfg.Timeout,
		pollInterval: p.cfg.FilePollInterval,
		limiter:      p.limiter,
	}, nil
}

// CachedClients is the number of caller-key clients currently held
func (p *Provider) CachedClients() int {
	return p.callers.Len()
}

// Models lists the model names this service calls
func (p *Provider) Models() []string {
	return []string{p.cfg.Model}
}

// uploadedFile is a media file stored by the Files API
type uploadedFile struct {
	Name     string
	URI      string
	MIMEType string
	State    genai.FileState
}

// api is the subset of the GenAI SDK the client uses
type api interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error)
	Upload(ctx context.Context, f models.MediaFile) (*uploadedFile, error)
	GetFile(ctx context.Context, name string) (*uploadedFile, error)
	DeleteFile(ctx context.Context, name string) error
}

// Client generates content with one API key
type Client struct {
	api          api
	model        string
	temperature  float32
	inlineBudget int64
	timeout      time.Duration
	pollInterval time.Duration
	limiter      *rate.Limiter
}

// Generate sends prompt and media in a single user turn. Media that do not
// fit the inline budget go through the Files API and are deleted afterwards.
func (c *Client) Generate(ctx context.Context, prompt string, media ...models.MediaFile) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	parts, uploaded, err := c.mediaParts(ctx, prompt, media)
	defer c.cleanup(uploaded)
	if err != nil {
		return "", err
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(c.temperature)}
	if len(media) > 0 {
		cfg.ResponseMIMEType = "application/json"
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	started := time.Now()
	text, err := c.api.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		logger.Log.Errorf("Gemini %s call failed after %s: %v", c.model, time.Since(started).Round(time.Millisecond), err)
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	logger.Log.Debugf("Gemini %s answered in %s (%d chars)", c.model, time.Since(started).Round(time.Millisecond), len(text))
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}

// mediaParts builds one part per media file, in order. Inline data is
// base64-encoded on the wire, so each file is charged its encoded size
// against a budget that starts with the prompt; files that no longer fit
// are uploaded. Uploads run concurrently and every successfully uploaded
// file is returned for cleanup, even on error.
func (c *Client) mediaParts(ctx context.Context, prompt string, media []models.MediaFile) ([]*genai.Part, []string, error) {
	parts := make([]*genai.Part, len(media))
	names := make([]string, len(media))
	inline := int64(len(prompt))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range media {
		if size := int64(base64.StdEncoding.EncodedLen(len(m.Data))); inline+size <= c.inlineBudget {
			inline += size
			parts[i] = genai.NewPartFromBytes(m.Data, m.MIMEType)
			continue
		}
		g.Go(func() error {
			f, err := c.api.Upload(gctx, m)
			if err != nil {
				return fmt.Errorf("upload %s: %w", m.Name, err)
			}
			names[i] = f.Name
			logger.Log.Infof("Uploaded %s (%d bytes) as %s", m.Name, len(m.Data), f.Name)

			f, err = c.waitActive(gctx, f)
			if err != nil {
				return fmt.Errorf("upload %s: %w", m.Name, err)
			}
			parts[i] = genai.NewPartFromURI(f.URI, f.MIMEType)
			return nil
		})
	}
	err := g.Wait()

	var uploaded []string
	for _, n := range names {
		if n != "" {
			uploaded = append(uploaded, n)
		}
	}
	if err != nil {
		return nil, uploaded, err
	}
	return parts, uploaded, nil
}

// waitActive polls an uploaded file until the API has finished processing it
func (c *Client) waitActive(ctx context.Context, f *uploadedFile) (*uploadedFile, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		switch f.State {
		case genai.FileStateActive:
			return f, nil
		case genai.FileStateFailed:
			return nil, fmt.Errorf("file %s failed processing", f.Name)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		next, err := c.api.GetFile(ctx, f.Name)
		if err != nil {
			return nil, fmt.Errorf("get file %s: %w", f.Name, err)
		}
		f = next
	}
}

// cleanup deletes uploaded files on a fresh context so a cancelled request
// still releases them.
func (c *Client) cleanup(names []string) {
	if len(names) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, n := range names {
		if err := c.api.DeleteFile(ctx, n); err != nil {
			logger.Log.Warnf("Failed to delete uploaded file %s: %v", n, err)
		}
	}
}

// genaiAPI adapts *genai.Client to api
type genaiAPI struct {
	client *genai.Client
}

func newGenAIAPI(ctx context.Context, apiKey string) (api, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return genaiAPI{client: gc}, nil
}

func (g genaiAPI) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (g genaiAPI) Upload(ctx context.Context, m models.MediaFile) (*uploadedFile, error) {
	f, err := g.client.Files.Upload(ctx, bytes.NewReader(m.Data), &genai.UploadFileConfig{
		MIMEType:    m.MIMEType,
		DisplayName: m.Name,
	})
	if err != nil {
		return nil, err
	}
	return fromGenAIFile(f), nil
}

func (g genaiAPI) GetFile(ctx context.Context, name string) (*uploadedFile, error) {
	f, err := g.client.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return fromGenAIFile(f), nil
}

func (g genaiAPI) DeleteFile(ctx context.Context, name string) error {
	_, err := g.client.Files.Delete(ctx, name, nil)
	return err
}

func fromGenAIFile(f *genai.File) *uploadedFile {
	return &uploadedFile{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType, State: f.State}
}
