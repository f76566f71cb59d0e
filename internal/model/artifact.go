package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

var ErrModelLoad = errors.New("failed to load model artifact")

// LoadEncoderArtifact reads and validates a persisted encoder snapshot.
func LoadEncoderArtifact(dir, name string) (*EncoderSnapshot, error) {
	var snapshot EncoderSnapshot
	if err := loadArtifact(dir, name, &snapshot); err != nil {
		return nil, err
	}

	if snapshot.Version == "" || snapshot.Dimension <= 0 {
		return nil, fmt.Errorf("%w: %s: missing version or dimension", ErrModelLoad, name)
	}

	return &snapshot, nil
}

// LoadCFArtifact reads and validates a persisted collaborative-filtering snapshot.
func LoadCFArtifact(dir, name string) (*CFSnapshot, error) {
	var snapshot CFSnapshot
	if err := loadArtifact(dir, name, &snapshot); err != nil {
		return nil, err
	}

	if snapshot.Version == "" || snapshot.Factors <= 0 {
		return nil, fmt.Errorf("%w: %s: missing version or factors", ErrModelLoad, name)
	}

	return &snapshot, nil
}

// LoadClassifierArtifact reads and validates a persisted classifier snapshot.
func LoadClassifierArtifact(dir, name string) (*ClassifierSnapshot, error) {
	var snapshot ClassifierSnapshot
	if err := loadArtifact(dir, name, &snapshot); err != nil {
		return nil, err
	}

	if snapshot.Version == "" || len(snapshot.Classifiers) == 0 {
		return nil, fmt.Errorf("%w: %s: missing version or classifiers", ErrModelLoad, name)
	}

	return &snapshot, nil
}

// SaveArtifact persists a snapshot atomically by writing to a temp file and
// renaming it over the target, so a loader never sees a half-written file.
func SaveArtifact(dir, name string, snapshot any) error {
	data, err := sonic.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", name, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	target := filepath.Join(dir, name)

	temp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(temp.Name())

		return fmt.Errorf("failed to write artifact %s: %w", name, err)
	}

	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return fmt.Errorf("failed to close temp artifact: %w", err)
	}

	if err := os.Rename(temp.Name(), target); err != nil {
		os.Remove(temp.Name())
		return fmt.Errorf("failed to replace artifact %s: %w", name, err)
	}

	return nil
}

func loadArtifact(dir, name string, out any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrModelLoad, name, err)
	}

	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrModelLoad, name, err)
	}

	return nil
}
