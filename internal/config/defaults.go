package config

const (
	defaultDataDir          = "~/.local/share/decal"
	defaultOutputDir        = "~/stickers"
	defaultLogDir           = "~/.local/share/decal/logs"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60
	defaultRequestTimeout   = 120
	defaultWorkers          = 8
	defaultOutputFormat     = "webm"
	defaultScalePx          = 0
	defaultSplitter         = "native"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Fetch: Fetch{
			RequestTimeout: defaultRequestTimeout,
		},
		Convert: Convert{
			Workers:  defaultWorkers,
			Format:   defaultOutputFormat,
			ScalePx:  defaultScalePx,
			Splitter: defaultSplitter,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
