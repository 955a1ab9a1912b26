// Package config handles resolving configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/stolasapp/cirrus/internal/content"
	"github.com/stolasapp/cirrus/internal/rewrite"
)

// LogLevel is the minimum level of emitted log records.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// DefaultCacheSize bounds the upstream response cache.
const DefaultCacheSize ByteSize = 64 * humanize.MiByte

// ByteSize is a size in bytes written in human form in the config file,
// e.g. "64 MiB" or "10MB". Plain integers are read as bytes.
type ByteSize int64

// UnmarshalYAML satisfies [yaml.Unmarshaler].
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	size, err := humanize.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid size %q: %w", value.Line, raw, err)
	}
	*b = ByteSize(size) //nolint:gosec // sizes beyond int64 are not meaningful
	return nil
}

// MarshalYAML satisfies [yaml.Marshaler].
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b)) //nolint:gosec // never negative once parsed
}

// Config is the application configuration.
type Config struct {
	LogLevel LogLevel `yaml:"log_level"`
	DevMode  bool     `yaml:"dev_mode"`

	// WebAddress is where the server listens. Empty disables serving.
	WebAddress string `yaml:"web_address"`
	// UpstreamURI is the root of the site fronted by the server.
	UpstreamURI string `yaml:"upstream_uri"`
	// SiteURL is the public base URL of the site, used to absolutize image
	// sources. Defaults to UpstreamURI.
	SiteURL string `yaml:"site_url"`
	// CacheSize bounds the in-memory cache of upstream responses. Zero
	// disables caching.
	CacheSize ByteSize `yaml:"cache_size"`

	Sanitize      bool `yaml:"sanitize"`
	ExtractBody   bool `yaml:"extract_body"`
	NormalizeNBSP bool `yaml:"normalize_nbsp"`
	Minify        bool `yaml:"minify"`

	// Cloudinary configures image rewriting. When absent, content passes
	// through untouched.
	Cloudinary *Cloudinary `yaml:"cloudinary"`
}

// Cloudinary holds the delivery service settings.
type Cloudinary struct {
	CloudName string `yaml:"cloud_name"`
	Template  string `yaml:"template"`
}

// Default returns a version of the config with all default values populated.
// Note that this configuration is _not_ valid, as the user must set
// upstream_uri.
func Default() *Config {
	return &Config{
		LogLevel:    LogLevelInfo,
		WebAddress:  "localhost:9999",
		UpstreamURI: "", // must be set by the user
		CacheSize:   DefaultCacheSize,
	}
}

// Load loads a YAML configuration file from a path, merges it with defaults, and
// validates it for completeness.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // allow the config file to be loaded from anywhere
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err = decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to unmarshal config file at %s: %w", path, err)
	}
	if cfg.Cloudinary != nil && cfg.Cloudinary.Template == "" {
		cfg.Cloudinary.Template = rewrite.DefaultTemplate
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	return data, nil
}

// Validate reports every problem with the config.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}

	if c.UpstreamURI == "" {
		errs = append(errs, errors.New("upstream_uri: value is required"))
	} else if err := validateAbsURL(c.UpstreamURI); err != nil {
		errs = append(errs, fmt.Errorf("upstream_uri: %w", err))
	}
	if c.SiteURL != "" {
		if err := validateAbsURL(c.SiteURL); err != nil {
			errs = append(errs, fmt.Errorf("site_url: %w", err))
		}
	}

	if c.Cloudinary != nil {
		if c.Cloudinary.CloudName == "" {
			errs = append(errs, errors.New("cloudinary.cloud_name: value is required"))
		}
		if !strings.Contains(c.Cloudinary.Template, "{"+rewrite.PlaceholderImageURL+"}") {
			errs = append(errs, errors.New("cloudinary.template: must contain {image_url}"))
		}
	}

	return errors.Join(errs...)
}

func validateAbsURL(raw string) error {
	uri, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		return fmt.Errorf("must have an http(s) scheme: %v", raw)
	}
	if uri.Host == "" {
		return fmt.Errorf("must have a host: %v", raw)
	}
	return nil
}

// SiteDomain is the base that image sources are absolutized against.
func (c *Config) SiteDomain() string {
	site := c.SiteURL
	if site == "" {
		site = c.UpstreamURI
	}
	return strings.TrimRight(site, "/")
}

// Rewrite returns the rewriter configuration, or nil when rewriting is not
// configured.
func (c *Config) Rewrite() *rewrite.Config {
	if c.Cloudinary == nil {
		return nil
	}
	return &rewrite.Config{
		CloudName: c.Cloudinary.CloudName,
		Template:  c.Cloudinary.Template,
	}
}

// ContentOptions returns the content pipeline options for the given output
// format.
func (c *Config) ContentOptions(output content.Format) content.Options {
	return content.Options{
		NormalizeNBSP: c.NormalizeNBSP,
		Minify:        c.Minify,
		ExtractBody:   c.ExtractBody,
		Sanitize:      c.Sanitize,
		Output:        output,
	}
}
