package config

const (
	defaultLedgerDir         = "~/.local/share/vidshrink"
	defaultLogDir            = "~/.local/share/vidshrink/logs"
	defaultClaimDir          = "~/.local/share/vidshrink/claims"
	defaultBackupDir         = "~/.local/share/vidshrink/backup"
	defaultLedgerBackend     = LedgerSQLite
	defaultClaimBackend      = ClaimsDirectory
	defaultStaleHours        = 24
	defaultRedisPrefix       = "vidshrink:claim:"
	defaultPolicy            = "v4"
	defaultEngine            = EngineFFmpeg
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultProbeTimeout      = 60
	defaultEncodeTimeout     = 7200
	defaultRemuxTimeout      = 3600
	defaultAudioBitrate      = "128k"
	defaultFrameRate         = 30
	defaultEncoderPreset     = "p4"
	defaultMinSavingsPercent = 5.0
	defaultMinFreeBackupGiB  = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

var defaultExtensions = []string{
	".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", ".mpeg", ".mpg",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LedgerDir: defaultLedgerDir,
			LogDir:    defaultLogDir,
			ClaimDir:  defaultClaimDir,
			BackupDir: defaultBackupDir,
		},
		Library: Library{
			Extensions: append([]string(nil), defaultExtensions...),
		},
		Ledger: Ledger{
			Backend: defaultLedgerBackend,
		},
		Claims: Claims{
			Backend:     defaultClaimBackend,
			StaleHours:  defaultStaleHours,
			RedisPrefix: defaultRedisPrefix,
		},
		Strategy: Strategy{
			Policy: defaultPolicy,
		},
		Transcode: Transcode{
			Engine:         defaultEngine,
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			ProbeTimeout:   defaultProbeTimeout,
			EncodeTimeout:  defaultEncodeTimeout,
			RemuxTimeout:   defaultRemuxTimeout,
			AudioBitrate:   defaultAudioBitrate,
			FrameRate:      defaultFrameRate,
			Preset:         defaultEncoderPreset,
			HardwareDecode: true,
		},
		Workflow: Workflow{
			MinSavingsPercent: defaultMinSavingsPercent,
			MinFreeBackupGiB:  defaultMinFreeBackupGiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
