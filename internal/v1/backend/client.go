package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sumedhnvda/GM-uni/internal/v1/identity"
	"github.com/sumedhnvda/GM-uni/internal/v1/metrics"
	"github.com/sumedhnvda/GM-uni/internal/v1/types"
)

// Client talks to the GM-uni REST API. All real-time subsystems treat the
// REST side as an external collaborator: profile, room metadata, message
// history, media upload, analysis, TTS/STT.
type Client struct {
	baseURL *url.URL
	token   string
	httpc   *http.Client
	cb      *gobreaker.CircuitBreaker
}

// AnalysisRequest carries the crop-analysis inputs. The report itself is
// opaque to this client.
type AnalysisRequest struct {
	Location string  `json:"location"`
	LandSize float64 `json:"land_size"`
	Crop     string  `json:"crop"`
	Language string  `json:"language,omitempty"`
}

// NewClient creates a REST client with a circuit breaker around all calls.
func NewClient(baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("API base URL must be http or https (got %q)", u.Scheme)
	}

	st := gobreaker.Settings{
		Name:        "rest-api",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	return &Client{
		baseURL: u,
		token:   token,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		cb:      gobreaker.NewCircuitBreaker(st),
	}, nil
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

// Token returns the bearer token used for authentication.
func (c *Client) Token() string {
	return c.token
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (identity.User, error) {
	var user identity.User
	err := c.getJSON(ctx, "/users/me", &user)
	return user, err
}

// MyRoom fetches the user's assigned community room.
func (c *Client) MyRoom(ctx context.Context) (types.RoomInfo, error) {
	var room types.RoomInfo
	err := c.getJSON(ctx, "/community/my-room", &room)
	return room, err
}

// Messages fetches the prior message history for a room.
func (c *Client) Messages(ctx context.Context, roomID types.RoomIDType) ([]types.ChatMessage, error) {
	var msgs []types.ChatMessage
	err := c.getJSON(ctx, "/community/messages/"+url.PathEscape(string(roomID)), &msgs)
	return msgs, err
}

// Upload sends a media file and returns the URL the server stored it at.
func (c *Client) Upload(ctx context.Context, filename, mimeType string, r io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read upload payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %w", err)
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/community/upload", body, writer.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("upload response missing url")
	}
	return resp.URL, nil
}

// RequestAnalysis asks the advisory engine for a crop/soil/market report.
// The report payload is opaque to this client.
func (c *Client) RequestAnalysis(ctx context.Context, req AnalysisRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	// The analysis engine can take a while to generate a report.
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var report json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/predict", bytes.NewReader(payload), "application/json", &report); err != nil {
		return nil, err
	}
	return report, nil
}

// Speak requests text-to-speech audio for the given text and language.
func (c *Client) Speak(ctx context.Context, text, language string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text, "language": language})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tts request: %w", err)
	}

	var resp struct {
		Audio []byte `json:"audio"` // base64 in JSON, decoded by encoding/json
	}
	if err := c.do(ctx, http.MethodPost, "/tts", bytes.NewReader(payload), "application/json", &resp); err != nil {
		return nil, err
	}
	return resp.Audio, nil
}

// Transcribe requests a speech-to-text transcript for the given audio blob.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("failed to build stt form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write stt payload: %w", err)
	}
	if err := writer.WriteField("language", language); err != nil {
		return "", fmt.Errorf("failed to write stt language: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize stt form: %w", err)
	}

	var resp struct {
		Transcript string `json:"transcript"`
	}
	if err := c.do(ctx, http.MethodPost, "/stt", body, writer.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	return resp.Transcript, nil
}

// ResolveMediaURL joins a server-relative media URL against the API origin.
// Absolute URLs pass through untouched.
func (c *Client) ResolveMediaURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	origin := url.URL{Scheme: c.baseURL.Scheme, Host: c.baseURL.Host}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return origin.String() + raw
}

// getJSON is a GET helper decoding a JSON response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

// do executes a request through the circuit breaker. Non-2xx responses and
// transport failures both count against the breaker.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request to %s failed: %w", path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
			}
		}
		return nil, nil
	})
	return err
}
