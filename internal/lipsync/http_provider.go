package lipsync

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"slidecast/internal/config"
	"slidecast/internal/services"
)

// HTTPProvider talks the JSON avatar API contract: POST /avatars to submit,
// GET /avatars/{id} to poll, GET /health to probe.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider builds a provider from one configured endpoint.
func NewHTTPProvider(cfg config.LipSyncProvider) *HTTPProvider {
	return &HTTPProvider{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

type submitPayload struct {
	PhotoBase64 string `json:"photo,omitempty"`
	AudioBase64 string `json:"audio"`
	Voice       string `json:"voice,omitempty"`
	Emotion     string `json:"emotion,omitempty"`
	Quality     string `json:"quality,omitempty"`
	AvatarID    string `json:"avatar_id,omitempty"`
}

type submitResponse struct {
	AvatarID string `json:"avatarId"`
	Status   string `json:"status"`
	Error    string `json:"error"`
}

// Submit uploads the narration audio (and photo, when the avatar is not a
// hosted preset) and returns the provider's request id.
func (p *HTTPProvider) Submit(ctx context.Context, req Request) (Submission, error) {
	audio, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return Submission{}, services.Wrap(services.ErrProvider, p.name, "submit", "failed to read narration audio", err)
	}
	payload := submitPayload{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Voice:       req.Voice,
		Emotion:     req.Emotion,
		Quality:     req.Quality,
		AvatarID:    req.AvatarID,
	}
	if req.PhotoPath != "" {
		photo, err := os.ReadFile(req.PhotoPath)
		if err != nil {
			return Submission{}, services.Wrap(services.ErrProvider, p.name, "submit", "failed to read avatar photo", err)
		}
		payload.PhotoBase64 = base64.StdEncoding.EncodeToString(photo)
	}

	var resp submitResponse
	if err := p.doJSON(ctx, http.MethodPost, p.baseURL+"/avatars", payload, &resp); err != nil {
		return Submission{}, err
	}
	if resp.AvatarID == "" {
		return Submission{}, services.Wrap(services.ErrProvider, p.name, "submit", "provider accepted the request without an id", nil)
	}
	status := resp.Status
	if status == "" {
		status = StatusPending
	}
	return Submission{ID: resp.AvatarID, Status: status}, nil
}

type pollResponse struct {
	Status   string         `json:"status"`
	VideoURL string         `json:"video_url"`
	Error    string         `json:"error"`
	Markers  *MarkerPayload `json:"markers"`
}

// Poll fetches the current generation status for a submitted request.
func (p *HTTPProvider) Poll(ctx context.Context, id string) (Poll, error) {
	var resp pollResponse
	endpoint := p.baseURL + "/avatars/" + url.PathEscape(id)
	if err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return Poll{}, err
	}
	return Poll{Status: resp.Status, VideoURL: resp.VideoURL, Error: resp.Error, Markers: resp.Markers}, nil
}

// HealthCheck probes the provider. Any non-2xx response or transport error
// marks the provider unhealthy.
func (p *HTTPProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Download streams a finished clip to dest.
func (p *HTTPProvider) Download(ctx context.Context, videoURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return services.Wrap(services.ErrProvider, p.name, "download", "invalid clip URL", err)
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrProvider, p.name, "download", "clip download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrProvider, p.name, "download", fmt.Sprintf("clip download returned HTTP %d", resp.StatusCode), nil)
	}
	file, err := os.Create(dest)
	if err != nil {
		return services.Wrap(services.ErrProvider, p.name, "download", "failed to create clip file", err)
	}
	defer file.Close()
	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(dest)
		return services.Wrap(services.ErrProvider, p.name, "download", "failed to write clip file", err)
	}
	return nil
}

func (p *HTTPProvider) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrProvider, p.name, "request", "failed to encode request", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return services.Wrap(services.ErrProvider, p.name, "request", "failed to build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrProvider, p.name, "request", "provider unreachable", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrProvider, p.name, "request", "failed to read provider response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrProvider, p.name, "request", fmt.Sprintf("provider returned HTTP %d: %s", resp.StatusCode, snippet(data)), nil)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return services.Wrap(services.ErrProvider, p.name, "request", "malformed provider response", err)
		}
	}
	return nil
}

func (p *HTTPProvider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func snippet(data []byte) string {
	const max = 200
	text := strings.TrimSpace(string(data))
	if len(text) > max {
		return text[:max]
	}
	return text
}
