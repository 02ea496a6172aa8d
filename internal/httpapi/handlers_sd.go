package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"sdserver/internal/manager"
	"sdserver/internal/sampler"
	"sdserver/pkg/types"
)

const (
	msgNoBody     = "No body"
	msgBadRequest = "Bad Request"
)

// handleSchedulers godoc
// @Summary      List schedulers
// @Description  Selectable scheduler names with display name and description.
// @Tags         sd
// @Produce      json
// @Success      200  {object}  map[string]types.SchedulerInfo
// @Router       /sd/schedulers [get]
func handleSchedulers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sampler.List())
}

// handleText2Img godoc
// @Summary      Generate images from a prompt
// @Tags         sd
// @Accept       json
// @Produce      json
// @Param        Authorization  header  string                 true  "Shared secret"
// @Param        request        body    types.Text2ImgRequest  true  "Generation request"
// @Success      200  {object}  types.Text2ImgResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      401  {object}  types.ErrorResponse
// @Failure      429  {object}  types.ErrorResponse
// @Failure      500  {object}  types.ErrorResponse
// @Router       /sd/text2img [post]
func handleText2Img(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lvl := requestLogLevel(r)
		if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, msg := decodeText2Img(r.Body)
		if msg != "" {
			writeJSONError(w, http.StatusBadRequest, msg)
			logEnd(r, lvl, http.StatusBadRequest, start, errors.New(msg))
			return
		}
		req := toGenerationRequest(body)
		if lvl >= LevelDebug {
			ev := zlog.Debug().Str("model", req.Model).Int("steps", req.Steps).
				Int("width", req.Width).Int("height", req.Height).Int64("seed", req.Seed).
				Str("scheduler", req.Scheduler).Int("loras", len(req.Loras))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				ev = ev.Str("request_id", rid)
			}
			ev.Msg("text2img start")
		}

		// Join server base context with request context so shutdown stops waiting requests.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		res, err := svc.Generate(joinedCtx, req)
		if err != nil {
			// Canceled while waiting for the device.
			if errors.Is(err, context.Canceled) {
				if serverBaseCtx.Err() != nil {
					writeJSONError(w, http.StatusServiceUnavailable, "shutting down")
					logEnd(r, lvl, http.StatusServiceUnavailable, start, err)
				}
				return
			}
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, lvl, status, start, err)
			return
		}
		writeJSON(w, http.StatusOK, types.Text2ImgResponse{Images: res.Images})
		logEnd(r, lvl, http.StatusOK, start, nil)
	}
}

// decodeText2Img parses the request body. A non-empty msg is the 400 error
// to report. Empty, null and other falsy JSON bodies report "No body".
func decodeText2Img(rd io.Reader) (types.Text2ImgRequest, string) {
	var req types.Text2ImgRequest
	raw, err := io.ReadAll(rd)
	if err != nil {
		return req, msgBadRequest
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return req, msgNoBody
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return req, msgBadRequest
	}
	if falsy(v) {
		return req, msgNoBody
	}
	if _, ok := v.(map[string]any); !ok {
		return req, msgBadRequest
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, msgBadRequest
	}
	if req.PositivePrompt == nil || req.NegativePrompt == nil {
		return req, msgBadRequest
	}
	return req, ""
}

func falsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func toGenerationRequest(b types.Text2ImgRequest) types.GenerationRequest {
	req := types.GenerationRequest{
		PositivePrompt: *b.PositivePrompt,
		NegativePrompt: *b.NegativePrompt,
		Model:          b.Model,
		Steps:          b.Steps,
		Width:          b.Width,
		Height:         b.Height,
		Seed:           b.Seed,
		CFGScale:       manager.DefaultCFGScale,
		Scheduler:      sampler.Default,
		Iterations:     manager.DefaultIterations,
		Loras:          b.Loras,
	}
	if b.CFGScale != nil {
		req.CFGScale = *b.CFGScale
	}
	if b.Scheduler != nil {
		req.Scheduler = *b.Scheduler
	}
	if b.Iterations != nil {
		req.Iterations = *b.Iterations
	}
	return req
}

type unloadRequest struct {
	Model string `json:"model"`
}

// handleUnload godoc
// @Summary      Unload a cached pipeline
// @Tags         sd
// @Accept       json
// @Produce      json
// @Param        Authorization  header  string  true  "Shared secret"
// @Success      204
// @Failure      400  {object}  types.ErrorResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /sd/unload [post]
func handleUnload(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req unloadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, msgBadRequest)
			return
		}
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.Unload(joinedCtx, req.Model); err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleModels godoc
// @Summary      List checkpoints and adapters on disk
// @Tags         sd
// @Produce      json
// @Param        Authorization  header  string  true  "Shared secret"
// @Success      200  {object}  types.ModelsResponse
// @Router       /sd/models [get]
func handleModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.ListModels()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, models)
	}
}
