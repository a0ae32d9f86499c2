package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "metainf.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/metainf"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// userConfig overrides the user config location (tests)
	userConfig string
	// workDir overrides the current directory (tests)
	workDir string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/metainf/config.yaml)
// 3. Project config (metainf.yaml in current or parent directories)
//
// Command-line flags are applied by the caller on top of the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadFile("")
}

// LoadFile is Load with an explicit project config file, which replaces
// the metainf.yaml lookup and must exist.
func (l *Loader) LoadFile(projectConfigPath string) (*Config, error) {
	workDir, err := l.cwd()
	if err != nil {
		return nil, err
	}

	// Start with defaults
	config := DefaultConfig()

	// Load user config
	userConfigPath := l.userConfigPath()
	if userConfig, err := loadLayer(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	// Load project config
	explicit := projectConfigPath != ""
	if !explicit {
		projectConfigPath = findProjectConfig(workDir)
	}
	if projectConfigPath != "" {
		projectConfig, err := loadLayer(projectConfigPath)
		if err != nil {
			if explicit {
				return nil, err
			}
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		} else {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))

			// Paths in a project config are relative to the file
			configDir, _ := filepath.Abs(filepath.Dir(projectConfigPath))
			switch {
			case projectConfig.Source.Base == "":
				projectConfig.Source.Base = configDir
			case !filepath.IsAbs(projectConfig.Source.Base):
				projectConfig.Source.Base = filepath.Join(configDir, projectConfig.Source.Base)
			}
			config.Merge(projectConfig)
		}
	} else {
		l.logger.Debug("No project config found")
	}

	// Auto-detect base if not set
	if config.Source.Base == "" {
		if gitRoot := l.detectGitRoot(workDir); gitRoot != "" {
			config.Source.Base = gitRoot
			l.logger.Debug("Auto-detected git root", slog.String("path", gitRoot))
		} else {
			// Fall back to current directory
			config.Source.Base = workDir
			l.logger.Debug("Using current directory as base", slog.String("path", workDir))
		}
	} else if !filepath.IsAbs(config.Source.Base) {
		config.Source.Base = filepath.Join(workDir, config.Source.Base)
	}

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadLayer decodes a config file without defaults, so unset fields do
// not override lower layers on Merge.
func loadLayer(path string) (*Config, error) {
	config := &Config{}
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return fmt.Errorf("cannot determine user config location")
	}

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	// Create default config
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	if l.userConfig != "" {
		return l.userConfig
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

func (l *Loader) cwd() (string, error) {
	if l.workDir != "" {
		return filepath.Abs(l.workDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// findProjectConfig searches for metainf.yaml in dir and its parents
func findProjectConfig(dir string) string {
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

// detectGitRoot finds the git repository root from dir
func (l *Loader) detectGitRoot(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}
