package ledgallery

import (
	"fmt"
	"io/ioutil"
	"regexp"
	"strings"
	"time"

	"github.com/ledgallery/ledgallery/fetch"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Duration is a time.Duration read from and written to TOML as a string
// such as "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// SizeHint rewrites source URLs to request a smaller rendition of the same
// image. The default matches Flickr's "large" and "thumbnail" suffixes.
type SizeHint struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// Apply rewrites url. An empty From leaves url untouched.
func (h SizeHint) Apply(url string) string {
	if h.From == "" {
		return url
	}
	return strings.ReplaceAll(url, h.From, h.To)
}

// Device names end up as C identifiers in the firmware headers.
var deviceName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds everything that tunes a build.
type Config struct {
	// Width and Height are the matrix resolution in LEDs
	Width  int `toml:"width"`
	Height int `toml:"height"`

	// Devices names the controllers, in the order images are dealt out
	Devices []string `toml:"devices"`

	// MaxImages caps the total number of images across all devices
	MaxImages int `toml:"max_images"`

	// Concurrency bounds the number of fetches in flight
	Concurrency int `toml:"concurrency"`

	FirstPassAttempts int      `toml:"first_pass_attempts"`
	RetryAttempts     int      `toml:"retry_attempts"`
	RetryRounds       int      `toml:"retry_rounds"`
	RetryCooldown     Duration `toml:"retry_cooldown"`
	RetrySizeHint     SizeHint `toml:"retry_size_hint"`

	FetchTimeout Duration `toml:"fetch_timeout"`

	// CacheSize is the in-memory HTTP cache size in bytes, zero disables it
	CacheSize int64 `toml:"cache_size"`

	// MaxFetchBytes caps the size of a downloaded source image, zero
	// disables the cap
	MaxFetchBytes int64 `toml:"max_fetch_bytes"`
	// MaxSourcePixels caps the dimensions of a source image before it is
	// decoded, zero disables the cap
	MaxSourcePixels int64 `toml:"max_source_pixels"`
}

// DefaultConfig returns the configuration the gallery hardware was built for:
// four 30x30 matrices.
func DefaultConfig() *Config {
	return &Config{
		Width:             30,
		Height:            30,
		Devices:           []string{"left", "centerLeft", "centerRight", "right"},
		MaxImages:         MaxImages,
		Concurrency:       8,
		FirstPassAttempts: 3,
		RetryAttempts:     5,
		RetryRounds:       2,
		RetryCooldown:     Duration(5 * time.Second),
		RetrySizeHint:     SizeHint{From: "_b.jpg", To: "_t.jpg"},
		FetchTimeout:      Duration(30 * time.Second),
		MaxFetchBytes:     fetch.DefaultMaxBytes,
		MaxSourcePixels:   50 << 20,
	}
}

// LoadConfig reads a TOML file over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	case len(c.Devices) == 0:
		return errors.New("no devices configured")
	case c.Concurrency <= 0:
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	case c.FirstPassAttempts <= 0 || c.RetryAttempts <= 0:
		return errors.New("fetch attempts must be positive")
	case c.RetryRounds < 0:
		return fmt.Errorf("retry rounds cannot be negative, got %d", c.RetryRounds)
	case c.RetryCooldown < 0 || c.FetchTimeout < 0:
		return errors.New("durations cannot be negative")
	case c.CacheSize < 0 || c.MaxFetchBytes < 0 || c.MaxSourcePixels < 0:
		return errors.New("size limits cannot be negative")
	}

	seen := make(map[string]bool)
	for _, d := range c.Devices {
		if !deviceName.MatchString(d) {
			return fmt.Errorf("invalid device name %q", d)
		}
		if seen[d] {
			return fmt.Errorf("duplicate device %q", d)
		}
		seen[d] = true
	}
	return nil
}
