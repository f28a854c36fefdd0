package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// GeminiOptions configures the Gemini image client.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Gemini calls the generateContent endpoint of an image-capable Gemini model.
type Gemini struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
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
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

func NewGemini(opts GeminiOptions) (*Gemini, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Gemini{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		timeout:    timeout,
		httpClient: client,
		logger:     opts.Logger,
	}, nil
}

// Generate performs exactly one provider call. It never retries.
func (g *Gemini) Generate(ctx context.Context, in Input) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: in.Text()}},
		}},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Result{}, &Error{Kind: classifyTransport(err), Err: fmt.Errorf("invoke gemini: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, &Error{Kind: KindUpstream, StatusCode: resp.StatusCode, Err: decodeGeminiError(resp.Body)}
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if kind := classifyTransport(err); kind != KindTransport {
			return Result{}, &Error{Kind: kind, Err: fmt.Errorf("read gemini response: %w", err)}
		}
		return Result{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("decode gemini response: %w", err)}
	}

	var result Result
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil || len(data) == 0 {
				g.logger.Warn().Err(err).Str("model", g.model).Msg("gemini: skipping undecodable inline part")
				continue
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = http.DetectContentType(data)
			}
			result.Payloads = append(result.Payloads, Payload{MIMEType: mime, Data: data})
		}
	}

	g.logger.Debug().
		Str("model", g.model).
		Int("payloads", len(result.Payloads)).
		Dur("elapsed", time.Since(start)).
		Msg("gemini: generate completed")

	if len(result.Payloads) == 0 {
		return Result{}, &Error{Kind: KindEmpty, Err: errors.New("response contained no image data")}
	}
	return result, nil
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

func decodeGeminiError(body io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var apiErr geminiErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return errors.New(apiErr.Error.Message)
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return errors.New(msg)
	}
	return errors.New("empty error body")
}

var _ Generator = (*Gemini)(nil)
