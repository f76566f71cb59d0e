// Package model holds the in-process ML models: the text encoder behind
// semantic search, the collaborative-filtering model behind recommendations,
// and the moderation classifiers. Each model is an immutable snapshot swapped
// atomically, so inference always sees a complete, consistent model.
package model

import (
	"errors"
	"sync/atomic"

	"github.com/unibazzar/ai-service/internal/setup/config"
	"go.uber.org/zap"
)

var ErrNotReady = errors.New("models are not loaded")

// Manager owns the live model snapshots. Readers take a snapshot pointer and
// use it for the whole request; training jobs swap in replacements without
// blocking inference.
type Manager struct {
	config     *config.Models
	logger     *zap.Logger
	encoder    atomic.Pointer[EncoderSnapshot]
	cf         atomic.Pointer[CFSnapshot]
	classifier atomic.Pointer[ClassifierSnapshot]
	loaded     atomic.Bool
}

// NewManager creates a model manager. Models are not loaded until Load is called.
func NewManager(config *config.Models, logger *zap.Logger) *Manager {
	return &Manager{
		config: config,
		logger: logger.Named("models"),
	}
}

// Load reads all model artifacts from the configured directory and installs
// them. If any artifact fails to load, nothing is installed and the manager
// stays in its previous state.
func (m *Manager) Load() error {
	encoder, err := LoadEncoderArtifact(m.config.ArtifactDir, m.config.EncoderArtifact)
	if err != nil {
		return err
	}

	cf, err := LoadCFArtifact(m.config.ArtifactDir, m.config.CollaborativeArtifact)
	if err != nil {
		return err
	}

	classifier, err := LoadClassifierArtifact(m.config.ArtifactDir, m.config.ClassifierArtifact)
	if err != nil {
		return err
	}

	m.encoder.Store(encoder)
	m.cf.Store(cf)
	m.classifier.Store(classifier)
	m.loaded.Store(true)

	m.logger.Info("Loaded model artifacts",
		zap.String("encoderVersion", encoder.Version),
		zap.String("collaborativeVersion", cf.Version),
		zap.String("classifierVersion", classifier.Version))

	return nil
}

// Loaded reports whether all models are installed, used by the readiness probe.
func (m *Manager) Loaded() bool {
	return m.loaded.Load()
}

// Encoder returns the live encoder snapshot.
func (m *Manager) Encoder() (*EncoderSnapshot, error) {
	snapshot := m.encoder.Load()
	if snapshot == nil {
		return nil, ErrNotReady
	}

	return snapshot, nil
}

// CF returns the live collaborative-filtering snapshot.
func (m *Manager) CF() (*CFSnapshot, error) {
	snapshot := m.cf.Load()
	if snapshot == nil {
		return nil, ErrNotReady
	}

	return snapshot, nil
}

// Classifier returns the live classifier snapshot.
func (m *Manager) Classifier() (*ClassifierSnapshot, error) {
	snapshot := m.classifier.Load()
	if snapshot == nil {
		return nil, ErrNotReady
	}

	return snapshot, nil
}

// SwapEncoder installs a new encoder snapshot. In-flight requests keep the
// snapshot they already hold.
func (m *Manager) SwapEncoder(snapshot *EncoderSnapshot) {
	previous := m.encoder.Swap(snapshot)
	m.logSwap("encoder", previous != nil, snapshot.Version)
}

// SwapCF installs a new collaborative-filtering snapshot.
func (m *Manager) SwapCF(snapshot *CFSnapshot) {
	previous := m.cf.Swap(snapshot)
	m.logSwap("collaborative", previous != nil, snapshot.Version)
}

// SwapClassifier installs a new classifier snapshot.
func (m *Manager) SwapClassifier(snapshot *ClassifierSnapshot) {
	previous := m.classifier.Swap(snapshot)
	m.logSwap("classifier", previous != nil, snapshot.Version)
}

// Cleanup releases all installed models. Safe to call multiple times.
func (m *Manager) Cleanup() {
	if !m.loaded.Swap(false) {
		return
	}

	m.encoder.Store(nil)
	m.cf.Store(nil)
	m.classifier.Store(nil)

	m.logger.Info("Released model snapshots")
}

func (m *Manager) logSwap(family string, hadPrevious bool, version string) {
	m.logger.Info("Installed model snapshot",
		zap.String("family", family),
		zap.Bool("replaced", hadPrevious),
		zap.String("version", version))
}
