package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// OpenAIClient implements Transcriber and Synthesizer against the
// OpenAI audio API or any compatible endpoint (OpenAI, Groq, etc.).
type OpenAIClient struct {
	client          *http.Client
	baseURL         string
	apiKey          string
	transcribeModel string
	speechModel     string
	voice           string
}

// ClientOption configures an OpenAIClient.
type ClientOption func(*OpenAIClient)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *OpenAIClient) { c.baseURL = url }
}

// WithTranscribeModel sets the transcription model.
func WithTranscribeModel(model string) ClientOption {
	return func(c *OpenAIClient) { c.transcribeModel = model }
}

// WithSpeechModel sets the synthesis model and voice.
func WithSpeechModel(model, voice string) ClientOption {
	return func(c *OpenAIClient) {
		c.speechModel = model
		c.voice = voice
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OpenAIClient) { c.client = hc }
}

// NewOpenAIClient creates a speech client with the original service's
// defaults: whisper-1 for transcription, tts-1 with the nova voice for
// synthesis.
func NewOpenAIClient(apiKey string, opts ...ClientOption) *OpenAIClient {
	c := &OpenAIClient{
		client:          &http.Client{Timeout: 120 * time.Second},
		baseURL:         "https://api.openai.com/v1",
		apiKey:          apiKey,
		transcribeModel: "whisper-1",
		speechModel:     "tts-1",
		voice:           "nova",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads the recording as a multipart form and returns the
// transcript text. An empty transcript is not an error; callers treat
// it as "nothing was said".
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.m4a"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: build form: %v", ErrTranscription, err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("%w: write form: %v", ErrTranscription, err)
	}
	w.WriteField("model", c.transcribeModel)
	w.WriteField("response_format", "json")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrTranscription, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrTranscription, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: api error (status %d): %s", ErrTranscription, resp.StatusCode, string(body))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrTranscription, err)
	}
	return result.Text, nil
}

// Synthesize renders the reply text as MP3 audio.
func (c *OpenAIClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"model": c.speechModel,
		"voice": c.voice,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", ErrSynthesis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: api error (status %d): %s", ErrSynthesis, resp.StatusCode, string(body))
	}

	// Cap at 25MB, matching the upload limit on the ingest side.
	audio, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrSynthesis, err)
	}
	return audio, nil
}
