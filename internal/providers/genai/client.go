package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	genaisdk "google.golang.org/genai"

	"postergen/internal/infra"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("genai: api key is required")
	// ErrEmptyStream is returned when a text stream ends without any text.
	ErrEmptyStream = errors.New("genai: empty response stream")
)

const (
	defaultTextModel  = "gemini-2.0-flash-001"
	defaultImageModel = "imagen-4.0-generate-preview-06-06"
)

// modelsAPI is the subset of the SDK models service used by Client.
type modelsAPI interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genaisdk.Content, config *genaisdk.GenerateContentConfig) iter.Seq2[*genaisdk.GenerateContentResponse, error]
	GenerateImages(ctx context.Context, model string, prompt string, config *genaisdk.GenerateImagesConfig) (*genaisdk.GenerateImagesResponse, error)
}

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	TextModel  string
	ImageModel string
	// CallTimeout bounds every remote attempt. Zero disables the bound.
	CallTimeout time.Duration
	// MaxRetries is the number of extra attempts made for transient failures.
	MaxRetries int
	// Backoff is the base delay, doubled on every retry.
	Backoff time.Duration
	Logger  *infra.Logger
}

// Client streams text from Gemini and synthesizes images through Imagen.
type Client struct {
	models      modelsAPI
	textModel   string
	imageModel  string
	callTimeout time.Duration
	maxRetries  int
	backoff     time.Duration
	logger      *infra.Logger
}

// NewClient constructs a client backed by the Gemini API.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	sdk, err := genaisdk.NewClient(ctx, &genaisdk.ClientConfig{
		APIKey:  apiKey,
		Backend: genaisdk.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return newClient(sdk.Models, opts), nil
}

func newClient(models modelsAPI, opts Options) *Client {
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		models:      models,
		textModel:   textModel,
		imageModel:  imageModel,
		callTimeout: opts.CallTimeout,
		maxRetries:  retries,
		backoff:     backoff,
		logger:      loggerOrDiscard(opts.Logger),
	}
}

// TextModel returns the configured text model identifier.
func (c *Client) TextModel() string { return c.textModel }

// ImageModel returns the configured image model identifier.
func (c *Client) ImageModel() string { return c.imageModel }

// StreamGenerate sends instruction to the text model in streaming mode and
// returns the non-empty chunks in arrival order. A stream that yields no text
// is reported as ErrEmptyStream.
func (c *Client) StreamGenerate(ctx context.Context, instruction string) ([]string, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, errors.New("genai: instruction is required")
	}
	var chunks []string
	err := c.withRetry(ctx, "stream_generate", func(ctx context.Context) error {
		chunks = chunks[:0]
		cfg := &genaisdk.GenerateContentConfig{ResponseMIMEType: "text/plain"}
		for resp, err := range c.models.GenerateContentStream(ctx, c.textModel, genaisdk.Text(instruction), cfg) {
			if err != nil {
				return err
			}
			if resp == nil {
				continue
			}
			if text := resp.Text(); text != "" {
				chunks = append(chunks, text)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyStream
	}
	return chunks, nil
}

// GenerateImages requests count JPEG images at the given aspect ratio and
// returns their raw bytes. An empty slice with a nil error means the service
// answered successfully without images.
func (c *Client) GenerateImages(ctx context.Context, prompt, aspectRatio string, count int) ([][]byte, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("genai: prompt is required")
	}
	if count <= 0 {
		count = 1
	}
	var images [][]byte
	err := c.withRetry(ctx, "generate_images", func(ctx context.Context) error {
		resp, err := c.models.GenerateImages(ctx, c.imageModel, prompt, &genaisdk.GenerateImagesConfig{
			NumberOfImages:   int32(count),
			AspectRatio:      strings.TrimSpace(aspectRatio),
			OutputMIMEType:   "image/jpeg",
			PersonGeneration: genaisdk.PersonGenerationAllowAdult,
		})
		if err != nil {
			return err
		}
		images = images[:0]
		if resp == nil {
			return nil
		}
		for _, generated := range resp.GeneratedImages {
			if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
				if generated != nil && generated.RAIFilteredReason != "" {
					c.logger.Warn().Str("reason", generated.RAIFilteredReason).Msg("genai: image filtered")
				}
				continue
			}
			images = append(images, generated.Image.ImageBytes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", c.imageModel).
		Str("aspect_ratio", aspectRatio).
		Int("requested", count).
		Int("received", len(images)).
		Msg("genai: generated images")
	return images, nil
}

func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<uint(attempt-1))
			c.logger.Warn().
				Err(lastErr).
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("genai: retrying transient failure")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		lastErr = c.attempt(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(lastErr) {
			break
		}
	}
	return fmt.Errorf("genai: %s: %w", op, lastErr)
}

func (c *Client) attempt(ctx context.Context, fn func(context.Context) error) error {
	if c.callTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return fn(callCtx)
}

// IsTransient reports whether err is worth retrying: rate limiting, server
// side failures and network level errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr genaisdk.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 408, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

func loggerOrDiscard(l *infra.Logger) *infra.Logger {
	if l != nil {
		return l
	}
	discard := zerolog.New(io.Discard)
	logger := infra.Logger(discard)
	return &logger
}
