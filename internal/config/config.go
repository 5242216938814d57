package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Ledger backend identifiers.
const (
	LedgerSQLite     = "sqlite"
	LedgerFilesystem = "filesystem"
)

// Claim backend identifiers.
const (
	ClaimsDirectory = "directory"
	ClaimsRedis     = "redis"
)

// Transcode engine identifiers.
const (
	EngineFFmpeg = "ffmpeg"
	EngineDrapto = "drapto"
)

// Paths contains local and shared directory configuration.
type Paths struct {
	LedgerDir string `toml:"ledger_dir"`
	LogDir    string `toml:"log_dir"`
	ClaimDir  string `toml:"claim_dir"`
	BackupDir string `toml:"backup_dir"`
}

// Library describes where videos live and which files count as videos.
type Library struct {
	Roots      []string `toml:"roots"`
	Extensions []string `toml:"extensions"`
}

// Ledger selects the job ledger backend.
type Ledger struct {
	Backend string `toml:"backend"`
}

// Claims contains coordination store settings.
type Claims struct {
	Backend       string `toml:"backend"`
	StaleHours    int    `toml:"stale_hours"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

// Strategy selects the encoding policy version.
type Strategy struct {
	Policy string `toml:"policy"`
}

// Transcode contains external tool and timeout settings.
type Transcode struct {
	Engine         string `toml:"engine"`
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	ProbeTimeout   int    `toml:"probe_timeout"`
	EncodeTimeout  int    `toml:"encode_timeout"`
	RemuxTimeout   int    `toml:"remux_timeout"`
	AudioBitrate   string `toml:"audio_bitrate"`
	FrameRate      int    `toml:"frame_rate"`
	Preset         string `toml:"preset"`
	HardwareDecode bool   `toml:"hardware_decode"`
}

// Workflow contains worker loop behaviour.
type Workflow struct {
	MinSavingsPercent       float64 `toml:"min_savings_percent"`
	ReleaseClaimOnNoSavings bool    `toml:"release_claim_on_no_savings"`
	BatchSize               int     `toml:"batch_size"`
	MinFreeBackupGiB        int     `toml:"min_free_backup_gib"`
}

// Machine identifies this worker in claims and ledger events.
type Machine struct {
	Name string `toml:"name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidshrink.
//
// Configuration sections by subsystem:
//   - Paths: local ledger/log directories and shared claim/backup directories
//   - Library: scan roots and video extensions
//   - Ledger: sqlite or filesystem-inference backend
//   - Claims: directory or redis coordination store and stale age
//   - Strategy: encoding policy version
//   - Transcode: engine, binaries, and timeouts
//   - Workflow: size gate and batch behaviour
//   - Machine: hostname override
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Library   Library   `toml:"library"`
	Ledger    Ledger    `toml:"ledger"`
	Claims    Claims    `toml:"claims"`
	Strategy  Strategy  `toml:"strategy"`
	Transcode Transcode `toml:"transcode"`
	Workflow  Workflow  `toml:"workflow"`
	Machine   Machine   `toml:"machine"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidshrink/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidshrink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local and shared directories a worker writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LedgerDir, c.Paths.LogDir, c.Paths.BackupDir}
	if c.Claims.Backend == ClaimsDirectory {
		dirs = append(dirs, c.Paths.ClaimDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MachineName returns the configured worker name, falling back to the hostname.
func (c *Config) MachineName() string {
	if name := strings.TrimSpace(c.Machine.Name); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return host
}

// LedgerPath returns the SQLite ledger database location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.LedgerDir, "ledger.db")
}

// WorkerLockPath returns the per-machine worker lock file.
func (c *Config) WorkerLockPath() string {
	return filepath.Join(c.Paths.LedgerDir, "worker.lock")
}

// LogPath returns the JSON copy of the structured log.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "vidshrink.log")
}

// EventLogPath returns the JSON-lines event log used by the filesystem ledger.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.Paths.LogDir, "events-"+sanitizeFileComponent(c.MachineName())+".jsonl")
}

// StaleClaimAge returns the age after which a claim is considered abandoned.
func (c *Config) StaleClaimAge() time.Duration {
	return time.Duration(c.Claims.StaleHours) * time.Hour
}

// ProbeTimeout returns the per-probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Transcode.ProbeTimeout) * time.Second
}

// EncodeTimeout returns the per-encode timeout.
func (c *Config) EncodeTimeout() time.Duration {
	return time.Duration(c.Transcode.EncodeTimeout) * time.Second
}

// RemuxTimeout returns the per-remux timeout.
func (c *Config) RemuxTimeout() time.Duration {
	return time.Duration(c.Transcode.RemuxTimeout) * time.Second
}

// MinFreeBackupBytes returns the free space the backup volume must keep.
func (c *Config) MinFreeBackupBytes() uint64 {
	if c.Workflow.MinFreeBackupGiB <= 0 {
		return 0
	}
	return uint64(c.Workflow.MinFreeBackupGiB) << 30
}

func sanitizeFileComponent(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		default:
			return r
		}
	}, value)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
