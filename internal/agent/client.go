package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ClientConfig configures the agent platform client.
type ClientConfig struct {
	ServerURL string        // e.g., "http://localhost:8000"
	Timeout   time.Duration // HTTP request timeout
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:8000",
		Timeout:   60 * time.Second,
	}
}

// Client talks to the remote agent platform. One turn maps to one HTTP
// round trip; there is no streaming surface.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an agent platform client.
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "agent-client").Logger(),
	}
}

// ServerURL returns the configured platform base URL.
func (c *Client) ServerURL() string {
	return c.config.ServerURL
}

// InvokeText sends one typed-text turn.
func (c *Client) InvokeText(ctx context.Context, req TextRequest) (*TextResponse, error) {
	var resp TextResponse
	if err := c.postJSON(ctx, "/api/v1/invoke/text", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		c.logger.Warn().Str("error", resp.Error).Msg("Agent rejected text turn")
		return &resp, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return &resp, nil
}

// InvokeVoice sends one recorded-audio turn. The clip travels as base64
// MP3 inside the JSON body.
func (c *Client) InvokeVoice(ctx context.Context, req VoiceRequest) (*VoiceResponse, error) {
	if req.AudioEncoding == "" {
		req.AudioEncoding = "MP3"
	}
	var resp VoiceResponse
	if err := c.postJSON(ctx, "/api/v1/invoke/voice", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		c.logger.Warn().Str("error", resp.Error).Msg("Agent rejected voice turn")
		return &resp, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return &resp, nil
}

// Translate converts text to the target language. It is best effort: on
// any failure the original text comes back unchanged with a nil error, so
// a missing translation never fails the surrounding turn.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) string {
	if text == "" || targetLanguage == "" {
		return text
	}

	var resp TranslateResponse
	err := c.postJSON(ctx, "/api/v1/translation/translate", TranslateRequest{
		Text:           text,
		TargetLanguage: targetLanguage,
	}, &resp)
	if err != nil || resp.TranslatedText == "" {
		c.logger.Debug().Err(err).Str("target", targetLanguage).Msg("Translation unavailable, keeping original text")
		return text
	}
	return resp.TranslatedText
}

// DiagnoseCrop uploads a crop image for disease analysis. The image file
// goes up as multipart form data with an optional free-text description.
func (c *Client) DiagnoseCrop(ctx context.Context, imagePath, description string) (*DiagnosisResult, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if description != "" {
		if err := writer.WriteField("description", description); err != nil {
			return nil, fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ServerURL+"/api/v1/crop/analyze-upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("%w: status %d - %s", ErrRequestFailed, httpResp.StatusCode, string(respBody))
	}

	var resp DiagnosisResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}

	c.logger.Debug().
		Str("image", filepath.Base(imagePath)).
		Bool("structured", resp.CropHealthDiagnosis != nil).
		Msg("Diagnosis received")

	// Prefer the structured fields; fall back to parsing the raw reply,
	// which may wrap its JSON in a markdown code fence.
	if resp.CropHealthDiagnosis != nil || resp.TreatmentRecommendation != nil {
		return &DiagnosisResult{
			Diagnosis: &Diagnosis{
				CropHealthDiagnosis:     resp.CropHealthDiagnosis,
				TreatmentRecommendation: resp.TreatmentRecommendation,
				PreventionNotes:         resp.PreventionNotes,
				Disclaimer:              resp.Disclaimer,
			},
			RawText: resp.RawAgentResponse,
		}, nil
	}
	result := ParseDiagnosis(resp.RawAgentResponse)
	return &result, nil
}

// postJSON posts a JSON body to path and decodes the JSON response.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ServerURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error().Int("status", resp.StatusCode).Str("path", path).Msg("Agent request failed")
		return fmt.Errorf("%w: status %d - %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
