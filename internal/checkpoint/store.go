// Package checkpoint maps model references to prepared, directory-form models,
// converting single-file checkpoints on first use.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"sdserver/internal/common/fsutil"
	"sdserver/internal/diffusion"
)

// ErrInvalidModelFormat is returned for references that are neither a
// directory nor a recognised checkpoint archive. The message is part of the
// HTTP contract.
var ErrInvalidModelFormat = errors.New("Invalid model path, must be .ckpt or .safetensors")

// Kind classifies a model reference.
type Kind int

const (
	KindInvalid Kind = iota
	// KindPrepared is a directory-form model usable as is.
	KindPrepared
	// KindArchive is a single-file checkpoint needing conversion.
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindPrepared:
		return "prepared"
	case KindArchive:
		return "archive"
	default:
		return "invalid"
	}
}

// Classify inspects ref. A directory is prepared; a .safetensors or .ckpt
// file name (case-insensitive) is an archive whether or not it exists yet.
func Classify(ref string) (Kind, error) {
	p, err := fsutil.ExpandHome(strings.TrimSpace(ref))
	if err != nil || p == "" {
		return KindInvalid, ErrInvalidModelFormat
	}
	if fsutil.IsDir(p) {
		return KindPrepared, nil
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".safetensors", ".ckpt":
		return KindArchive, nil
	}
	return KindInvalid, ErrInvalidModelFormat
}

// Options configures a Store.
type Options struct {
	// Dir receives converted models, one subdirectory per archive basename.
	Dir string
	// OriginalConfig is passed to the converter when set.
	OriginalConfig string
	Runtime        diffusion.Runtime
	Logger         zerolog.Logger
}

var conversionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sdserver",
		Subsystem: "checkpoint",
		Name:      "conversions_total",
		Help:      "Checkpoint conversions by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(conversionsTotal)
}

// Store resolves references and performs conversions.
type Store struct {
	dir            string
	originalConfig string
	rt             diffusion.Runtime
	log            zerolog.Logger
	group          singleflight.Group
	converted      atomic.Uint64
}

// New returns a Store writing into opts.Dir.
func New(opts Options) *Store {
	return &Store{
		dir:            opts.Dir,
		originalConfig: opts.OriginalConfig,
		rt:             opts.Runtime,
		log:            opts.Logger,
	}
}

// Conversions counts successful conversions performed by this store.
func (s *Store) Conversions() uint64 { return s.converted.Load() }

// Dir returns the conversion output directory.
func (s *Store) Dir() string { return s.dir }

// PreparedPath is where an archive ends up once converted.
func (s *Store) PreparedPath(ref string) string {
	base := filepath.Base(ref)
	return filepath.Join(s.dir, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Resolve returns a directory-form model path for ref, converting it first if
// needed. Directories are returned unchanged.
func (s *Store) Resolve(ctx context.Context, ref string) (string, error) {
	kind, err := Classify(ref)
	if err != nil {
		return "", err
	}
	src, err := fsutil.ExpandHome(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if kind == KindPrepared {
		return src, nil
	}
	dst := s.PreparedPath(src)
	if fsutil.IsDir(dst) {
		return dst, nil
	}
	_, err, shared := s.group.Do(dst, func() (any, error) {
		return nil, s.convert(ctx, src, dst)
	})
	if shared {
		s.log.Debug().Str("checkpoint", src).Msg("joined in-flight conversion")
	}
	if err != nil {
		return "", err
	}
	return dst, nil
}

func (s *Store) convert(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoints dir: %w", err)
	}
	lock := flock.New(dst + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", dst, err)
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished while we waited on the lock.
	if fsutil.IsDir(dst) {
		return nil
	}
	if !fsutil.PathExists(src) {
		conversionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("checkpoint not found: %s", src)
	}

	staging := filepath.Join(s.dir, ".staging-"+uuid.New().String())
	defer func() { _ = os.RemoveAll(staging) }()

	s.log.Info().Str("checkpoint", src).Str("dest", dst).Msg("converting checkpoint")
	req := diffusion.ConvertRequest{
		CheckpointPath:  src,
		OutputDir:       staging,
		FromSafetensors: strings.EqualFold(filepath.Ext(src), ".safetensors"),
		OriginalConfig:  s.originalConfig,
	}
	if err := s.rt.Convert(ctx, req); err != nil {
		conversionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("convert %s: %w", filepath.Base(src), err)
	}
	if err := install(staging, dst); err != nil {
		conversionsTotal.WithLabelValues("error").Inc()
		return err
	}
	s.converted.Add(1)
	conversionsTotal.WithLabelValues("ok").Inc()
	s.log.Info().Str("dest", dst).Msg("checkpoint converted")
	return nil
}

// install moves a finished staging directory into place. Rename is atomic on
// one filesystem; across devices the tree is copied to a sibling and renamed.
func install(staging, dst string) error {
	if err := os.Rename(staging, dst); err == nil {
		return nil
	}
	tmp := dst + ".partial-" + uuid.New().String()
	if err := copy.Copy(staging, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("install converted model: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("install converted model: %w", err)
	}
	return nil
}
