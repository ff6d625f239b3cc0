package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rcliao/reunify/internal/logging"
	"github.com/rcliao/reunify/internal/model"
	"github.com/rcliao/reunify/internal/style"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultTextModel  = "gemini-2.5-flash"
)

// KeyFunc returns the API credential. It is called once per request so a
// missing key only surfaces when a generation is attempted.
type KeyFunc func() (string, error)

// EnvKey reads API_KEY, falling back to GEMINI_API_KEY.
func EnvKey() (string, error) {
	for _, name := range []string{"API_KEY", "GEMINI_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}
	return "", ErrMissingAPIKey
}

// GeminiOptions configures a GeminiClient. Zero values get defaults.
type GeminiOptions struct {
	BaseURL    string
	ImageModel string
	TextModel  string
	Timeout    time.Duration
	Key        KeyFunc
	Logger     logging.Logger
}

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	baseURL    string
	imageModel string
	textModel  string
	key        KeyFunc
	log        logging.Logger
	client     *http.Client
}

type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient creates a client for the Gemini API.
func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ImageModel == "" {
		opts.ImageModel = DefaultImageModel
	}
	if opts.TextModel == "" {
		opts.TextModel = DefaultTextModel
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Key == nil {
		opts.Key = EnvKey
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &GeminiClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		imageModel: opts.ImageModel,
		textModel:  opts.TextModel,
		key:        opts.Key,
		log:        opts.Logger.With("component", "gemini"),
		client:     &http.Client{Timeout: opts.Timeout},
	}
}

// Reunify sends both photos and the composed instruction to the image
// model and returns the first image part of the reply. One attempt only.
func (c *GeminiClient) Reunify(ctx context.Context, photoA, photoB model.DataURL, preset style.Preset) (model.DataURL, error) {
	if err := validatePhotos(photoA, photoB); err != nil {
		return model.DataURL{}, reunifyError(err)
	}

	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{InlineData: &geminiBlob{MIMEType: photoA.MIMEType, Data: photoA.Data}},
				{InlineData: &geminiBlob{MIMEType: photoB.MIMEType, Data: photoB.Data}},
				{Text: ReunifyPrompt(preset)},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}

	start := time.Now()
	resp, err := c.generate(ctx, c.imageModel, req)
	if err != nil {
		c.log.Error(ctx, "reunify failed", "style", string(preset), "error", err)
		return model.DataURL{}, reunifyError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		c.log.Error(ctx, "reunify returned no candidate", "style", string(preset))
		return model.DataURL{}, reunifyError(ErrNoCandidate)
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			c.log.Debug(ctx, "reunify finished", "style", string(preset), "mime", part.InlineData.MIMEType,
				"ms", time.Since(start).Milliseconds())
			return model.DataURL{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data}, nil
		}
	}
	c.log.Error(ctx, "reunify returned no image part", "style", string(preset))
	return model.DataURL{}, reunifyError(ErrNoImage)
}

// GenerateLetter asks the text model for a two-paragraph letter.
func (c *GeminiClient) GenerateLetter(ctx context.Context, about string) (string, error) {
	if strings.TrimSpace(about) == "" {
		return "", &Error{Op: OpLetter, Msg: ErrEmptyContext.Error(), Err: ErrEmptyContext}
	}

	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: LetterPrompt(about)}}}},
	}
	resp, err := c.generate(ctx, c.textModel, req)
	if err != nil {
		c.log.Error(ctx, "letter failed", "error", err)
		return "", letterError(err)
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		c.log.Error(ctx, "letter response had no text")
		return "", letterError(ErrEmptyLetter)
	}
	return sb.String(), nil
}

func (c *GeminiClient) generate(ctx context.Context, modelName string, payload geminiRequest) (*geminiResponse, error) {
	key, err := c.key()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, modelName)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gemini error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	return &result, nil
}
