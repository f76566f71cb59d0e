package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidBlendWeight    = errors.New("collaborative weight must be within [0, 1]")
	ErrInvalidPolicyBands    = errors.New("moderation thresholds must be ascending within (0, 1]")
)

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the serving process and workers.
type CommonConfig struct {
	// Version of the common config.
	Version        int            `koanf:"version"`
	Debug          Debug          `koanf:"debug"`
	PostgreSQL     PostgreSQL     `koanf:"postgresql"`
	Redis          Redis          `koanf:"redis"`
	Models         Models         `koanf:"models"`
	Recommendation Recommendation `koanf:"recommendation"`
	Moderation     Moderation     `koanf:"moderation"`
}

// WorkerConfig contains training worker specific configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Startup delay in milliseconds.
	StartupDelay int `koanf:"startup_delay"`
	// Interval between scheduled collaborative-filtering retrains in minutes.
	RetrainIntervalMinutes int `koanf:"retrain_interval_minutes"`
	// Interval between scheduled re-embedding passes in minutes.
	ReembedIntervalMinutes int `koanf:"reembed_interval_minutes"`
	// Batch sizes for worker operations.
	BatchSizes BatchSizes `koanf:"batch_sizes"`
}

// BatchSizes configures how many items to process in each batch.
type BatchSizes struct {
	// Number of listings to re-encode in one batch.
	ReembedListings int `koanf:"reembed_listings"`
	// Number of interactions to load per page during retraining.
	TrainingInteractions int `koanf:"training_interactions"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Models contains model artifact configuration.
type Models struct {
	// Directory containing persisted model artifacts.
	ArtifactDir string `koanf:"artifact_dir"`
	// Encoder artifact file name.
	EncoderArtifact string `koanf:"encoder_artifact"`
	// Collaborative-filtering artifact file name.
	CollaborativeArtifact string `koanf:"collaborative_artifact"`
	// Classifier artifact file name.
	ClassifierArtifact string `koanf:"classifier_artifact"`
}

// Recommendation contains hybrid ranking policy parameters.
type Recommendation struct {
	// Weight of the collaborative score in the hybrid blend; the content
	// score receives the remainder.
	CollaborativeWeight float64 `koanf:"collaborative_weight"`
	// Exponential decay applied to the cached taste vector on each
	// incremental profile update.
	ProfileDecay float64 `koanf:"profile_decay"`
	// Number of latent factors for collaborative retraining.
	LatentFactors int `koanf:"latent_factors"`
	// Training epochs for collaborative retraining.
	TrainingEpochs int `koanf:"training_epochs"`
	// Learning rate for collaborative retraining.
	LearningRate float64 `koanf:"learning_rate"`
	// L2 regularization for collaborative retraining.
	Regularization float64 `koanf:"regularization"`
}

// Moderation contains the severity policy table per content type.
type Moderation struct {
	Listing PolicyBands `koanf:"listing"`
	Review  PolicyBands `koanf:"review"`
	// Size of the audit write buffer before writes are dropped.
	AuditBufferSize int `koanf:"audit_buffer_size"`
	// Maximum concurrent classifier evaluations.
	MaxConcurrent int64 `koanf:"max_concurrent"`
}

// PolicyBands maps the maximum category confidence to a severity level.
// A confidence below Flag produces no severity; the bands must ascend.
type PolicyBands struct {
	// Minimum confidence to flag content at all.
	Flag float64 `koanf:"flag"`
	// Minimum confidence for medium severity.
	Medium float64 `koanf:"medium"`
	// Minimum confidence for high severity.
	High float64 `koanf:"high"`
}

// Validate checks that the bands are usable as a policy table.
func (b PolicyBands) Validate() error {
	if b.Flag <= 0 || b.Medium <= b.Flag || b.High <= b.Medium || b.High > 1 {
		return ErrInvalidPolicyBands
	}

	return nil
}

// LoadConfig loads the configuration from the known search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".aiservice",
		homeDir + "/.aiservice/config",
		"/etc/aiservice/config",
		"/app/config",
		"config",
		".",
	}

	// Load all config files
	var usedConfigPath string

	configFiles := []string{"common", "worker"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	// Policy parameters are operator-supplied and must be sane before any
	// service uses them for ranking or verdicts.
	if err := config.Validate(); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// Validate checks the policy parameters that have no safe defaults.
func (c *Config) Validate() error {
	if w := c.Common.Recommendation.CollaborativeWeight; w < 0 || w > 1 {
		return fmt.Errorf("%w: got %f", ErrInvalidBlendWeight, w)
	}

	if err := c.Common.Moderation.Listing.Validate(); err != nil {
		return fmt.Errorf("listing policy: %w", err)
	}

	if err := c.Common.Moderation.Review.Validate(); err != nil {
		return fmt.Errorf("review policy: %w", err)
	}

	return nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf("%w: %s.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, name, current, expected)
	}

	return nil
}
