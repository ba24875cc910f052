package config

const (
	defaultDataDir             = "~/.local/share/courier"
	defaultLogDir              = "~/.local/share/courier/logs"
	defaultAPIBind             = "127.0.0.1:7499"
	defaultBaseURL             = "https://api.runpod.ai/v2"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultJobTimeoutSeconds   = 900
	defaultPollIntervalSeconds = 4
	defaultRetryMaxAttempts    = 5
	defaultRetryDelaySeconds   = 4
	defaultHealthTimeout       = 10
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		RunPod: RunPod{
			BaseURL:              defaultBaseURL,
			TimeoutSeconds:       defaultJobTimeoutSeconds,
			PollIntervalSeconds:  defaultPollIntervalSeconds,
			HealthTimeoutSeconds: defaultHealthTimeout,
		},
		Retry: Retry{
			MaxAttempts:  defaultRetryMaxAttempts,
			DelaySeconds: defaultRetryDelaySeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			Failed:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
