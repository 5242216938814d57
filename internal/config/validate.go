package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownPolicies = map[string]struct{}{"v3": {}, "v4": {}}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateClaims(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.LedgerDir == "" {
		return errors.New("paths.ledger_dir must be set")
	}
	if c.Paths.BackupDir == "" {
		return errors.New("paths.backup_dir must be set")
	}
	for _, root := range c.Library.Roots {
		if strings.HasPrefix(c.Paths.BackupDir+"/", root+"/") {
			return fmt.Errorf("paths.backup_dir %q must not live inside library root %q", c.Paths.BackupDir, root)
		}
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Backend {
	case LedgerSQLite, LedgerFilesystem:
	default:
		return fmt.Errorf("ledger.backend: unsupported value %q (want %q or %q)", c.Ledger.Backend, LedgerSQLite, LedgerFilesystem)
	}
	if _, ok := knownPolicies[c.Strategy.Policy]; !ok {
		return fmt.Errorf("strategy.policy: unknown policy %q", c.Strategy.Policy)
	}
	return nil
}

func (c *Config) validateClaims() error {
	switch c.Claims.Backend {
	case ClaimsDirectory:
		if c.Paths.ClaimDir == "" {
			return errors.New("paths.claim_dir must be set when claims.backend is directory")
		}
	case ClaimsRedis:
		if c.Claims.RedisAddr == "" {
			return errors.New("claims.redis_addr must be set when claims.backend is redis")
		}
		if c.Claims.RedisDB < 0 {
			return errors.New("claims.redis_db must be non-negative")
		}
	default:
		return fmt.Errorf("claims.backend: unsupported value %q", c.Claims.Backend)
	}
	if c.Claims.StaleHours < 0 {
		return errors.New("claims.stale_hours must be positive")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	switch c.Transcode.Engine {
	case EngineFFmpeg, EngineDrapto:
	default:
		return fmt.Errorf("transcode.engine: unsupported value %q", c.Transcode.Engine)
	}
	if c.Transcode.ProbeTimeout <= 0 {
		return errors.New("transcode.probe_timeout must be positive")
	}
	if c.Transcode.EncodeTimeout <= 0 {
		return errors.New("transcode.encode_timeout must be positive")
	}
	if c.Transcode.RemuxTimeout <= 0 {
		return errors.New("transcode.remux_timeout must be positive")
	}
	if c.Transcode.FrameRate < 0 {
		return errors.New("transcode.frame_rate must be zero (keep source) or positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MinSavingsPercent < 0 || c.Workflow.MinSavingsPercent >= 100 {
		return errors.New("workflow.min_savings_percent must be between 0 and 100")
	}
	if c.Workflow.BatchSize < 0 {
		return errors.New("workflow.batch_size must be zero (unlimited) or positive")
	}
	if c.Workflow.MinFreeBackupGiB < 0 {
		return errors.New("workflow.min_free_backup_gib must be non-negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
