package diffusion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WorkerRuntime talks to a diffusion worker over its JSON HTTP API:
//
//	GET    /health
//	POST   /v1/convert
//	POST   /v1/pipelines                       -> {id, scheduler, config, device}
//	POST   /v1/pipelines/{id}/scheduler        -> {config}
//	POST   /v1/pipelines/{id}/device
//	POST   /v1/pipelines/{id}/loras
//	PUT    /v1/pipelines/{id}/adapters
//	DELETE /v1/pipelines/{id}/loras
//	POST   /v1/pipelines/{id}/generate         -> {images: [base64 png]}
//	DELETE /v1/pipelines/{id}
type WorkerRuntime struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewWorkerRuntime returns a runtime for the worker at baseURL.
// A nil client gets one without a global timeout; calls are bounded by their context.
func NewWorkerRuntime(baseURL string, client *http.Client, log zerolog.Logger) *WorkerRuntime {
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	return &WorkerRuntime{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client, log: log}
}

// BaseURL returns the worker address.
func (w *WorkerRuntime) BaseURL() string { return w.baseURL }

// Healthy checks GET /health within timeout.
func (w *WorkerRuntime) Healthy(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (w *WorkerRuntime) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := w.httpClient.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
		return err
	}
	defer resp.Body.Close()
	w.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("worker call")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &WorkerError{Status: resp.StatusCode, Op: method + " " + path, Message: e.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (w *WorkerRuntime) Convert(ctx context.Context, req ConvertRequest) error {
	return w.call(ctx, http.MethodPost, "/v1/convert", req, nil)
}

type loadReply struct {
	ID        string          `json:"id"`
	Scheduler string          `json:"scheduler"`
	Config    SchedulerConfig `json:"config"`
	Device    string          `json:"device"`
}

func (w *WorkerRuntime) Load(ctx context.Context, req LoadRequest) (Pipeline, error) {
	var rep loadReply
	if err := w.call(ctx, http.MethodPost, "/v1/pipelines", req, &rep); err != nil {
		return nil, err
	}
	if rep.ID == "" {
		return nil, fmt.Errorf("diffusion worker returned no pipeline id for %s", req.Path)
	}
	return &workerPipeline{
		w:         w,
		id:        rep.ID,
		scheduler: rep.Scheduler,
		config:    rep.Config,
		device:    rep.Device,
	}, nil
}

// workerPipeline mirrors the worker-side pipeline state it has observed.
type workerPipeline struct {
	w  *WorkerRuntime
	id string

	mu        sync.Mutex
	scheduler string
	config    SchedulerConfig
	device    string
	adapters  []string
	closed    bool
}

func (p *workerPipeline) path(suffix string) string {
	return "/v1/pipelines/" + url.PathEscape(p.id) + suffix
}

func (p *workerPipeline) Scheduler() (string, SchedulerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduler, p.config
}

func (p *workerPipeline) SetScheduler(ctx context.Context, kind string, cfg SchedulerConfig) error {
	var rep struct {
		Config SchedulerConfig `json:"config"`
	}
	in := map[string]any{"kind": kind, "config": cfg}
	if err := p.w.call(ctx, http.MethodPost, p.path("/scheduler"), in, &rep); err != nil {
		return err
	}
	p.mu.Lock()
	p.scheduler = kind
	if rep.Config != nil {
		p.config = rep.Config
	} else {
		p.config = cfg
	}
	p.mu.Unlock()
	return nil
}

func (p *workerPipeline) To(ctx context.Context, device string) error {
	p.mu.Lock()
	same := p.device == device
	p.mu.Unlock()
	if same {
		return nil
	}
	if err := p.w.call(ctx, http.MethodPost, p.path("/device"), map[string]string{"device": device}, nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.device = device
	p.mu.Unlock()
	return nil
}

func (p *workerPipeline) Device() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

func (p *workerPipeline) LoadLoRA(ctx context.Context, path, name string) error {
	in := map[string]string{"path": path, "adapter_name": name}
	if err := p.w.call(ctx, http.MethodPost, p.path("/loras"), in, nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.adapters = append(p.adapters, name)
	p.mu.Unlock()
	return nil
}

func (p *workerPipeline) SetAdapters(ctx context.Context, names []string, weights []float64) error {
	in := map[string]any{"names": names, "adapter_weights": weights}
	return p.w.call(ctx, http.MethodPut, p.path("/adapters"), in, nil)
}

func (p *workerPipeline) UnloadLoRAs(ctx context.Context) error {
	if err := p.w.call(ctx, http.MethodDelete, p.path("/loras"), nil, nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.adapters = nil
	p.mu.Unlock()
	return nil
}

func (p *workerPipeline) ActiveAdapters() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.adapters...)
}

func (p *workerPipeline) Generate(ctx context.Context, params GenerateParams) ([]image.Image, error) {
	var rep struct {
		Images []string `json:"images"`
	}
	if err := p.w.call(ctx, http.MethodPost, p.path("/generate"), params, &rep); err != nil {
		return nil, err
	}
	out := make([]image.Image, 0, len(rep.Images))
	for i, s := range rep.Images {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("image %d: decode base64: %w", i, err)
		}
		img, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("image %d: decode png: %w", i, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func (p *workerPipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return p.w.call(ctx, http.MethodDelete, p.path(""), nil, nil)
}
