package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateConvert(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFetch() error {
	if err := ensurePositiveMap(map[string]int{
		"fetch.request_timeout": c.Fetch.RequestTimeout,
	}); err != nil {
		return err
	}
	if proxy := strings.TrimSpace(c.Fetch.Proxy); proxy != "" {
		parsed, err := url.Parse(proxy)
		if err != nil {
			return fmt.Errorf("fetch.proxy: %w", err)
		}
		switch parsed.Scheme {
		case "http", "https", "socks5":
		default:
			return fmt.Errorf("fetch.proxy: unsupported scheme %q", parsed.Scheme)
		}
	}
	return nil
}

func (c *Config) validateConvert() error {
	if err := ensurePositiveMap(map[string]int{
		"convert.workers": c.Convert.Workers,
	}); err != nil {
		return err
	}
	switch c.Convert.Format {
	case "gif", "webm":
	default:
		return fmt.Errorf("convert.format must be gif or webm, got %q", c.Convert.Format)
	}
	switch c.Convert.Splitter {
	case "native", "magick":
	default:
		return fmt.Errorf("convert.splitter must be native or magick, got %q", c.Convert.Splitter)
	}
	if c.Convert.ScalePx < 0 {
		return errors.New("convert.scale_px must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
