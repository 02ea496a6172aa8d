package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sdserver/internal/common/fsutil"
	"sdserver/pkg/types"
)

// Kinds reported in types.ModelFile.Kind.
const (
	KindPrepared = "prepared"
	KindArchive  = "archive"
	KindLora     = "lora"
)

// Scanner lists model files under a directory.
type Scanner interface {
	Scan(dir string) ([]types.ModelFile, error)
}

// CheckpointScanner finds prepared model directories (containing
// model_index.json) and .safetensors/.ckpt archives.
type CheckpointScanner struct{}

// LoraScanner finds .safetensors adapter files.
type LoraScanner struct{}

func NewCheckpointScanner() CheckpointScanner { return CheckpointScanner{} }
func NewLoraScanner() LoraScanner             { return LoraScanner{} }

func (CheckpointScanner) Scan(dir string) ([]types.ModelFile, error) {
	abs, entries, err := readDir(dir)
	if err != nil || entries == nil {
		return nil, err
	}
	var out []types.ModelFile
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(abs, name)
		if e.IsDir() {
			if fsutil.PathExists(filepath.Join(p, "model_index.json")) {
				out = append(out, types.ModelFile{Name: name, Path: p, Kind: KindPrepared})
			}
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".safetensors", ".ckpt":
			out = append(out, fileEntry(e, p, KindArchive))
		}
	}
	sortByName(out)
	return out, nil
}

func (LoraScanner) Scan(dir string) ([]types.ModelFile, error) {
	abs, entries, err := readDir(dir)
	if err != nil || entries == nil {
		return nil, err
	}
	var out []types.ModelFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".safetensors") {
			out = append(out, fileEntry(e, filepath.Join(abs, name), KindLora))
		}
	}
	sortByName(out)
	return out, nil
}

// LoadDir scans storage's checkpoints and loras subdirectories.
// Missing subdirectories yield empty lists.
func LoadDir(checkpointsDir, lorasDir string) (types.ModelsResponse, error) {
	cks, err := NewCheckpointScanner().Scan(checkpointsDir)
	if err != nil {
		return types.ModelsResponse{}, err
	}
	loras, err := NewLoraScanner().Scan(lorasDir)
	if err != nil {
		return types.ModelsResponse{}, err
	}
	if cks == nil {
		cks = []types.ModelFile{}
	}
	if loras == nil {
		loras = []types.ModelFile{}
	}
	return types.ModelsResponse{Checkpoints: cks, Loras: loras}, nil
}

// readDir returns nil entries without error when dir does not exist.
func readDir(dir string) (string, []os.DirEntry, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return abs, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("read dir: %w", err)
	}
	return abs, entries, nil
}

func fileEntry(e os.DirEntry, path, kind string) types.ModelFile {
	name := e.Name()
	mf := types.ModelFile{Name: strings.TrimSuffix(name, filepath.Ext(name)), Path: path, Kind: kind}
	if fi, err := e.Info(); err == nil {
		mf.SizeBytes = fi.Size()
	}
	return mf
}

func sortByName(v []types.ModelFile) {
	sort.Slice(v, func(i, j int) bool {
		if v[i].Name == v[j].Name {
			return v[i].Kind > v[j].Kind
		}
		return v[i].Name < v[j].Name
	})
}
