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
	c.normalizeFetch()
	c.normalizeConvert()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFetch() {
	c.Fetch.Proxy = strings.TrimSpace(c.Fetch.Proxy)
	if c.Fetch.Proxy == "" {
		if value, ok := os.LookupEnv("DECAL_PROXY"); ok {
			c.Fetch.Proxy = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HTTPS_PROXY"); ok {
			c.Fetch.Proxy = strings.TrimSpace(value)
		}
	}
	if c.Fetch.RequestTimeout <= 0 {
		c.Fetch.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeConvert() {
	c.Convert.Format = strings.ToLower(strings.TrimSpace(c.Convert.Format))
	if c.Convert.Format == "" {
		c.Convert.Format = defaultOutputFormat
	}
	c.Convert.Splitter = strings.ToLower(strings.TrimSpace(c.Convert.Splitter))
	if c.Convert.Splitter == "" {
		c.Convert.Splitter = defaultSplitter
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	c.Tools.Magick = strings.TrimSpace(c.Tools.Magick)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
