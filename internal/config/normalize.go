package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	c.normalizeClaims()
	c.normalizeTranscode()
	c.normalizeMachine()
	c.normalizeLogging()
	c.Ledger.Backend = strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = defaultLedgerBackend
	}
	c.Strategy.Policy = strings.ToLower(strings.TrimSpace(c.Strategy.Policy))
	if c.Strategy.Policy == "" {
		c.Strategy.Policy = defaultPolicy
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LedgerDir, err = expandPath(c.Paths.LedgerDir); err != nil {
		return fmt.Errorf("paths.ledger_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ClaimDir, err = expandPath(c.Paths.ClaimDir); err != nil {
		return fmt.Errorf("paths.claim_dir: %w", err)
	}
	if c.Paths.BackupDir, err = expandPath(c.Paths.BackupDir); err != nil {
		return fmt.Errorf("paths.backup_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLibrary() error {
	roots := make([]string, 0, len(c.Library.Roots))
	for i, root := range c.Library.Roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(root))
		if err != nil {
			return fmt.Errorf("library.roots[%d]: %w", i, err)
		}
		roots = append(roots, expanded)
	}
	c.Library.Roots = roots

	exts := make([]string, 0, len(c.Library.Extensions))
	seen := make(map[string]struct{}, len(c.Library.Extensions))
	for _, ext := range c.Library.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	c.Library.Extensions = exts
	return nil
}

func (c *Config) normalizeClaims() {
	c.Claims.Backend = strings.ToLower(strings.TrimSpace(c.Claims.Backend))
	if c.Claims.Backend == "" {
		c.Claims.Backend = defaultClaimBackend
	}
	c.Claims.RedisAddr = strings.TrimSpace(c.Claims.RedisAddr)
	if c.Claims.RedisAddr == "" {
		if value, ok := os.LookupEnv("VIDSHRINK_REDIS_ADDR"); ok {
			c.Claims.RedisAddr = strings.TrimSpace(value)
		}
	}
	if c.Claims.RedisPassword == "" {
		if value, ok := os.LookupEnv("VIDSHRINK_REDIS_PASSWORD"); ok {
			c.Claims.RedisPassword = value
		}
	}
	c.Claims.RedisPrefix = strings.TrimSpace(c.Claims.RedisPrefix)
	if c.Claims.RedisPrefix == "" {
		c.Claims.RedisPrefix = defaultRedisPrefix
	}
	if c.Claims.StaleHours == 0 {
		c.Claims.StaleHours = defaultStaleHours
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.Engine = strings.ToLower(strings.TrimSpace(c.Transcode.Engine))
	if c.Transcode.Engine == "" {
		c.Transcode.Engine = defaultEngine
	}
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if c.Transcode.FFprobeBinary == "" {
		c.Transcode.FFprobeBinary = defaultFFprobeBinary
	}
	c.Transcode.AudioBitrate = strings.TrimSpace(c.Transcode.AudioBitrate)
	if c.Transcode.AudioBitrate == "" {
		c.Transcode.AudioBitrate = defaultAudioBitrate
	}
	c.Transcode.Preset = strings.TrimSpace(c.Transcode.Preset)
	if c.Transcode.Preset == "" {
		c.Transcode.Preset = defaultEncoderPreset
	}
}

func (c *Config) normalizeMachine() {
	c.Machine.Name = strings.TrimSpace(c.Machine.Name)
	if c.Machine.Name == "" {
		if value, ok := os.LookupEnv("VIDSHRINK_MACHINE"); ok {
			c.Machine.Name = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
