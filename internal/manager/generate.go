package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sdserver/internal/checkpoint"
	"sdserver/internal/diffusion"
	"sdserver/internal/imageio"
	"sdserver/internal/sampler"
	"sdserver/pkg/types"
)

// Defaults for optional request fields.
const (
	DefaultCFGScale   = 7.5
	DefaultIterations = 1
)

// Validate checks a request and fills optional fields with defaults. Model,
// steps, width, height and seed must be set and non-zero.
func Validate(req *types.GenerationRequest) error {
	if strings.TrimSpace(req.Model) == "" || req.Steps == 0 || req.Width == 0 || req.Height == 0 || req.Seed == 0 {
		return ErrBadRequest("Bad Request")
	}
	if req.Steps < 0 || req.Width < 0 || req.Height < 0 || req.Iterations < 0 {
		return ErrBadRequest("Bad Request")
	}
	if req.Iterations == 0 {
		req.Iterations = DefaultIterations
	}
	if req.Scheduler == "" {
		req.Scheduler = sampler.Default
	}
	for _, l := range req.Loras {
		if strings.TrimSpace(l.Path) == "" {
			return ErrBadRequest("Bad Request")
		}
	}
	return nil
}

// Generate runs one text-to-image request end to end and returns the images as
// base64 PNG in generation order. Adapters attached for the request are always
// removed before the device is released.
//
// Once the device is held the work runs to completion even if ctx is canceled.
func (m *Manager) Generate(ctx context.Context, req types.GenerationRequest) (types.GenerationResult, error) {
	if err := Validate(&req); err != nil {
		return types.GenerationResult{}, err
	}
	if _, ok := sampler.Lookup(req.Scheduler); !ok && m.strictSamplers {
		return types.GenerationResult{}, unknownSamplerError{name: req.Scheduler}
	}
	if _, cached := m.lookup(req.Model); !cached {
		if _, err := checkpoint.Classify(req.Model); err != nil {
			m.log.Warn().Str("model", req.Model).Msg(err.Error())
			return types.GenerationResult{}, err
		}
	}

	release, err := m.beginGeneration(ctx)
	if err != nil {
		return types.GenerationResult{}, err
	}
	defer release()

	start := time.Now()
	res, err := m.run(context.WithoutCancel(ctx), req)
	label := "ok"
	if err != nil {
		label = "error"
		if !IsInvalidModelFormat(err) {
			err = internalError{err: err}
		}
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
		m.log.Error().Err(err).Str("model", req.Model).Msg("generation failed")
		m.publisher.Publish(Event{Name: "generate_error", Model: req.Model, Fields: map[string]any{"error": err.Error()}})
	}
	generationDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return res, err
}

// run does the pipeline work. A panic from the runtime is reported as an error.
func (m *Manager) run(ctx context.Context, req types.GenerationRequest) (res types.GenerationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = types.GenerationResult{}
			err = fmt.Errorf("runtime panic: %v", r)
		}
	}()

	inst, err := m.getOrLoad(ctx, req.Model)
	if err != nil {
		return res, err
	}
	p := inst.Pipeline

	if err := sampler.Configure(ctx, p, req.Scheduler); err != nil {
		if !errors.Is(err, sampler.ErrUnknownSampler) {
			return res, err
		}
		cur, _ := p.Scheduler()
		m.log.Warn().Str("scheduler", req.Scheduler).Str("current", cur).Msg("unknown scheduler, keeping current")
	}
	if err := p.To(ctx, m.device); err != nil {
		return res, err
	}

	detach, err := m.loras.AttachAll(ctx, p, req.Loras)
	defer func() {
		if derr := detach(); derr != nil {
			m.log.Warn().Err(derr).Str("model", req.Model).Msg("detaching adapters")
			if err == nil {
				res, err = types.GenerationResult{}, derr
			}
		}
	}()
	if err != nil {
		return res, err
	}

	m.log.Info().Str("model", req.Model).Str("scheduler", req.Scheduler).
		Int("steps", req.Steps).Int("width", req.Width).Int("height", req.Height).
		Int("iterations", req.Iterations).Int("loras", len(req.Loras)).Msg("generating")
	imgs, err := p.Generate(ctx, diffusion.GenerateParams{
		Prompt:         req.PositivePrompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		GuidanceScale:  req.CFGScale,
		NumImages:      req.Iterations,
		Seed:           req.Seed,
		Device:         m.device,
	})
	if err != nil {
		return res, err
	}

	info := &types.GenerationInfo{
		PositivePrompt: req.PositivePrompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Model:          req.Model,
		Sampler:        req.Scheduler,
		Seed:           req.Seed,
		Steps:          req.Steps,
		CFGScale:       req.CFGScale,
	}
	out := types.GenerationResult{Images: make([]string, 0, len(imgs))}
	for i, img := range imgs {
		var embed *types.GenerationInfo
		if m.embedMetadata {
			embed = info
		}
		b64, raw, err := imageio.EncodeBase64(img, embed)
		if err != nil {
			return res, fmt.Errorf("image %d: %w", i, err)
		}
		out.Images = append(out.Images, b64)
		if m.output != nil {
			if embed == nil {
				if raw, err = imageio.EncodePNG(img, info); err != nil {
					return res, fmt.Errorf("image %d: %w", i, err)
				}
			}
			saved, err := m.output.SaveFile(ctx, raw, imageio.ObjectPath(time.Now()), "image/png")
			if err != nil {
				return res, err
			}
			out.Saved = append(out.Saved, saved)
		}
	}

	m.mu.Lock()
	inst.Uses++
	inst.LastUsed = time.Now()
	m.mu.Unlock()
	m.generations.Add(1)
	imagesGenerated.Add(float64(len(out.Images)))
	return out, nil
}
