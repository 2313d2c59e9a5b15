package storage

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"train-callbacks/core/models"

	"github.com/google/uuid"
)

const (
	// DefaultMaxToKeep keeps practically every checkpoint
	DefaultMaxToKeep = 99999
	// DefaultLatestFilename names the file pointing at the newest checkpoint
	DefaultLatestFilename = "latest"
	// DefaultPrefix is the file name prefix of checkpoints
	DefaultPrefix = "model"
)

// ErrNoCheckpoint is returned when a directory holds no checkpoint
var ErrNoCheckpoint = errors.New("no checkpoint found")

// ArtifactRecorder persists checkpoint metadata outside the checkpoint directory
type ArtifactRecorder interface {
	CreateArtifact(ctx context.Context, artifact *models.RunArtifact) error
}

// Checkpoint describes a checkpoint file on disk
type Checkpoint struct {
	Epoch   int       `json:"epoch"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// CheckpointManager manages checkpoint storage and retrieval. Checkpoints
// are written as <dir>/<prefix>-<epoch> and the name of the newest one is
// kept in <dir>/<latest>.
type CheckpointManager struct {
	dir            string
	prefix         string
	latestFilename string
	maxToKeep      int
	recorder       ArtifactRecorder
	logger         *log.Logger
}

// CheckpointOption configures a CheckpointManager
type CheckpointOption func(*CheckpointManager)

// WithMaxToKeep limits how many checkpoints are retained
func WithMaxToKeep(n int) CheckpointOption {
	return func(cm *CheckpointManager) {
		if n > 0 {
			cm.maxToKeep = n
		}
	}
}

// WithArtifactRecorder records every saved checkpoint as a run artifact
func WithArtifactRecorder(r ArtifactRecorder) CheckpointOption {
	return func(cm *CheckpointManager) {
		cm.recorder = r
	}
}

// WithCheckpointLogger sets the logger
func WithCheckpointLogger(l *log.Logger) CheckpointOption {
	return func(cm *CheckpointManager) {
		cm.logger = l
	}
}

// NewCheckpointManager creates a new checkpoint manager rooted at dir
func NewCheckpointManager(dir string, opts ...CheckpointOption) *CheckpointManager {
	cm := &CheckpointManager{
		dir:            dir,
		prefix:         DefaultPrefix,
		latestFilename: DefaultLatestFilename,
		maxToKeep:      DefaultMaxToKeep,
		logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// SaveCheckpoint writes a snapshot of model tagged with epoch and returns its path
func (cm *CheckpointManager) SaveCheckpoint(
	ctx context.Context,
	runID string,
	model encoding.BinaryMarshaler,
	epoch int,
) (string, error) {
	data, err := model.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to snapshot model: %w", err)
	}

	if err := os.MkdirAll(cm.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	name := fmt.Sprintf("%s-%d", cm.prefix, epoch)
	path := filepath.Join(cm.dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(cm.dir, cm.latestFilename), []byte(name+"\n")); err != nil {
		return "", fmt.Errorf("failed to update %s: %w", cm.latestFilename, err)
	}

	if err := cm.prune(); err != nil {
		return "", err
	}

	if cm.recorder != nil {
		err := cm.recorder.CreateArtifact(ctx, &models.RunArtifact{
			ID:    uuid.New().String(),
			RunID: runID,
			Type:  models.ArtifactTypeCheckpoint,
			URI:   path,
			Epoch: epoch,
			MetaJSON: map[string]interface{}{
				"epoch": epoch,
				"bytes": len(data),
			},
		})
		if err != nil {
			return "", fmt.Errorf("failed to record checkpoint artifact: %w", err)
		}
	}

	cm.logger.Printf("Saved checkpoint %s for run %s", path, runID)
	return path, nil
}

// GetLatestCheckpoint returns the path of the newest checkpoint
func (cm *CheckpointManager) GetLatestCheckpoint(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(cm.dir, cm.latestFilename))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w in %s", ErrNoCheckpoint, cm.dir)
	}
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", fmt.Errorf("%w in %s", ErrNoCheckpoint, cm.dir)
	}
	return filepath.Join(cm.dir, name), nil
}

// ListCheckpoints lists all checkpoints ordered by epoch
func (cm *CheckpointManager) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	entries, err := os.ReadDir(cm.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var checkpoints []Checkpoint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		epoch, ok := cm.parseEpoch(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		checkpoints = append(checkpoints, Checkpoint{
			Epoch:   epoch,
			Path:    filepath.Join(cm.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Epoch < checkpoints[j].Epoch
	})
	return checkpoints, nil
}

// Restore loads the newest checkpoint into model and returns its epoch
func (cm *CheckpointManager) Restore(ctx context.Context, model encoding.BinaryUnmarshaler) (int, error) {
	path, err := cm.GetLatestCheckpoint(ctx)
	if err != nil {
		return 0, err
	}

	epoch, ok := cm.parseEpoch(filepath.Base(path))
	if !ok {
		return 0, fmt.Errorf("invalid checkpoint name %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if err := model.UnmarshalBinary(data); err != nil {
		return 0, fmt.Errorf("failed to restore checkpoint %s: %w", path, err)
	}
	return epoch, nil
}

// parseEpoch extracts the epoch from a checkpoint file name
func (cm *CheckpointManager) parseEpoch(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, cm.prefix+"-")
	if !ok || strings.HasSuffix(rest, ".tmp") {
		return 0, false
	}
	epoch, err := strconv.Atoi(rest)
	if err != nil || epoch < 0 {
		return 0, false
	}
	return epoch, true
}

// prune removes the oldest checkpoints beyond maxToKeep
func (cm *CheckpointManager) prune() error {
	checkpoints, err := cm.ListCheckpoints(context.Background())
	if err != nil {
		return err
	}
	for len(checkpoints) > cm.maxToKeep {
		if err := os.Remove(checkpoints[0].Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove old checkpoint: %w", err)
		}
		checkpoints = checkpoints[1:]
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
