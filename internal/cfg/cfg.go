package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"income-predictor/internal/common"
)

type Settings struct {
	ServerPort       int
	RequestTimeout   time.Duration
	DataPath         string
	TrainingDataPath string
	VocabularyPath   string
	ModelBackend     string
	ModelPath        string
	ScriptPath       string
	PythonPath       string
	ScriptTimeout    time.Duration
	FitTimeout       time.Duration
	LearningRate     float64
	Epochs           int
	L2               float64
	Parallelism      int
	ImportancePath   string
	LogLevel         string
}

type ConfigFile struct {
	Server struct {
		Port           int    `yaml:"port"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"server"`

	Data struct {
		TrainingPath   string `yaml:"trainingPath"`
		VocabularyPath string `yaml:"vocabularyPath"`
		DataPath       string `yaml:"dataPath"`
	} `yaml:"data"`

	Model struct {
		Backend       string  `yaml:"backend"`
		Path          string  `yaml:"path"`
		ScriptPath    string  `yaml:"scriptPath"`
		PythonPath    string  `yaml:"pythonPath"`
		ScriptTimeout string  `yaml:"scriptTimeout"`
		FitTimeout    string  `yaml:"fitTimeout"`
		LearningRate  float64 `yaml:"learningRate"`
		Epochs        int     `yaml:"epochs"`
		L2            float64 `yaml:"l2"`
	} `yaml:"model"`

	Pipeline struct {
		Parallelism    int    `yaml:"parallelism"`
		ImportancePath string `yaml:"importancePath"`
	} `yaml:"pipeline"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the settings. A .env file in the working directory is applied
// first; environment variables always win over the YAML file.
func Load() (Settings, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Settings{}, err
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// loadDotEnv applies path without overriding variables that are already set.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		ServerPort:       getIntFromEnvOrConfig(common.EnvServerPort, config.Server.Port, common.DefaultServerPort),
		RequestTimeout:   getDurationFromEnvOrConfig(common.EnvRequestTimeout, config.Server.RequestTimeout, 10*time.Second),
		DataPath:         getEnvOrDefault(common.EnvDataPath, config.Data.DataPath),
		TrainingDataPath: getEnvOrDefault(common.EnvTrainingDataPath, config.Data.TrainingPath),
		VocabularyPath:   getEnvOrDefault(common.EnvVocabularyPath, config.Data.VocabularyPath),
		ModelBackend:     getEnvOrDefault(common.EnvModelBackend, orDefault(config.Model.Backend, common.DefaultModelBackend)),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		ScriptPath:       getEnvOrDefault(common.EnvScriptPath, config.Model.ScriptPath),
		PythonPath:       getEnvOrDefault(common.EnvPythonPath, config.Model.PythonPath),
		ScriptTimeout:    getDurationFromEnvOrConfig(common.EnvScriptTimeout, config.Model.ScriptTimeout, 5*time.Second),
		FitTimeout:       getDurationFromEnvOrConfig(common.EnvFitTimeout, config.Model.FitTimeout, 10*time.Minute),
		LearningRate:     getFloatFromEnvOrConfig(common.EnvLearningRate, config.Model.LearningRate, common.DefaultLearningRate),
		Epochs:           getIntFromEnvOrConfig(common.EnvEpochs, config.Model.Epochs, common.DefaultEpochs),
		L2:               getFloatFromEnvOrConfig(common.EnvL2, config.Model.L2, common.DefaultL2),
		Parallelism:      getIntFromEnvOrConfig(common.EnvParallelism, config.Pipeline.Parallelism, common.DefaultParallelism),
		ImportancePath:   getEnvOrDefault(common.EnvImportancePath, orDefault(config.Pipeline.ImportancePath, common.DefaultImportancePath)),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.Log.Level, common.DefaultLogLevel)),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	training, err := getEnvRequired(common.EnvTrainingDataPath)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		ServerPort:       getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		RequestTimeout:   getDurationOrDefault(common.EnvRequestTimeout, 10*time.Second),
		DataPath:         os.Getenv(common.EnvDataPath), // optional
		TrainingDataPath: training,
		VocabularyPath:   os.Getenv(common.EnvVocabularyPath), // optional, embedded tables otherwise
		ModelBackend:     getEnvOrDefault(common.EnvModelBackend, common.DefaultModelBackend),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ScriptPath:       os.Getenv(common.EnvScriptPath),
		PythonPath:       os.Getenv(common.EnvPythonPath),
		ScriptTimeout:    getDurationOrDefault(common.EnvScriptTimeout, 5*time.Second),
		FitTimeout:       getDurationOrDefault(common.EnvFitTimeout, 10*time.Minute),
		LearningRate:     getFloatOrDefault(common.EnvLearningRate, common.DefaultLearningRate),
		Epochs:           getIntOrDefault(common.EnvEpochs, common.DefaultEpochs),
		L2:               getFloatOrDefault(common.EnvL2, common.DefaultL2),
		Parallelism:      getIntOrDefault(common.EnvParallelism, common.DefaultParallelism),
		ImportancePath:   getEnvOrDefault(common.EnvImportancePath, common.DefaultImportancePath),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Level returns the zerolog level for LogLevel.
func (s *Settings) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			defaultValue = d
		}
	}
	return getDurationOrDefault(key, defaultValue)
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// validateSettings range-checks every configuration value
func validateSettings(settings *Settings) error {
	if settings.TrainingDataPath == "" {
		return fmt.Errorf("training data path is required")
	}

	if settings.ServerPort < 1024 || settings.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1024 and 65535, got %d", settings.ServerPort)
	}

	switch settings.ModelBackend {
	case common.BackendLogistic, common.BackendScript:
	default:
		return fmt.Errorf("model backend must be %q or %q, got %q",
			common.BackendLogistic, common.BackendScript, settings.ModelBackend)
	}
	if settings.ModelBackend == common.BackendScript && settings.ModelPath == "" {
		return fmt.Errorf("model path is required for the %s backend", common.BackendScript)
	}

	// Validate time durations
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 1m, got %v", settings.RequestTimeout)
	}
	if settings.ScriptTimeout < 100*time.Millisecond || settings.ScriptTimeout > time.Minute {
		return fmt.Errorf("script timeout must be between 100ms and 1m, got %v", settings.ScriptTimeout)
	}
	if settings.FitTimeout < time.Second || settings.FitTimeout > 2*time.Hour {
		return fmt.Errorf("fit timeout must be between 1s and 2h, got %v", settings.FitTimeout)
	}

	// Validate training parameters
	if settings.LearningRate <= 0 || settings.LearningRate > 10 {
		return fmt.Errorf("learning rate must be between 0 and 10, got %f", settings.LearningRate)
	}
	if settings.Epochs <= 0 || settings.Epochs > 100000 {
		return fmt.Errorf("epochs must be between 1 and 100000, got %d", settings.Epochs)
	}
	if settings.L2 < 0 || settings.L2 > 1 {
		return fmt.Errorf("L2 penalty must be between 0 and 1, got %f", settings.L2)
	}
	if settings.Parallelism <= 0 || settings.Parallelism > 256 {
		return fmt.Errorf("parallelism must be between 1 and 256, got %d", settings.Parallelism)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	return nil
}
