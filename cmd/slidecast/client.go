package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"slidecast/internal/daemon"
)

// jobView mirrors the daemon API wire shape of one job.
type jobView struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	ProjectDir      string   `json:"project_dir"`
	Status          string   `json:"status"`
	Phase           string   `json:"phase"`
	ProgressPercent float64  `json:"progress_percent"`
	ProgressMessage string   `json:"progress_message"`
	ErrorMessage    string   `json:"error_message"`
	ScenesTotal     int      `json:"scenes_total"`
	ScenesCompleted int      `json:"scenes_completed"`
	ScenesFailed    int      `json:"scenes_failed"`
	Outputs         []string `json:"outputs"`
	ReportPath      string   `json:"report_path"`
	CreatedAt       string   `json:"created_at"`
	FinishedAt      string   `json:"finished_at"`
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(address, token string) *apiClient {
	base := strings.TrimSpace(address)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) DaemonStatus(ctx context.Context) (*daemon.Status, error) {
	var status daemon.Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) Submit(ctx context.Context, projectDir, name string) (*jobView, error) {
	body := map[string]string{"project_dir": projectDir, "name": name}
	var view jobView
	if err := c.do(ctx, http.MethodPost, "/api/jobs", body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) Job(ctx context.Context, id string) (*jobView, error) {
	var view jobView
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) List(ctx context.Context, statuses []string) ([]jobView, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		path += "?status=" + strings.Join(statuses, ",")
	}
	var views []jobView
	if err := c.do(ctx, http.MethodGet, path, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *apiClient) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+id+"/cancel", nil, nil)
}

func (c *apiClient) Report(ctx context.Context, id string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/"+id+"/report", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapDialError(err, c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var wire struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err == nil && strings.TrimSpace(wire.Error) != "" {
		return fmt.Errorf("daemon: %s", wire.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start it with `slidecast serve`", base)
	}
	return fmt.Errorf("connect to daemon at %s: %w", base, err)
}
