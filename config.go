package boardirc

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/awfulava/boardirc/fourchan"
	"github.com/awfulava/boardirc/poller"
)

// Config is the resolved process configuration. Field tags are the keys of
// the YAML config file and the suffixes of BOARDIRC_ environment variables.
type Config struct {
	// Name is the server name used as the prefix of server replies.
	Name string `mapstructure:"name"`

	// Listen is the address to bind, without port. Empty binds every
	// interface.
	Listen string `mapstructure:"listen"`

	// Ports to listen on. Defaults to 6667, or 6697 when TLS is enabled.
	Ports []int `mapstructure:"ports"`

	// Password, when set, must be sent with PASS before registration.
	Password string `mapstructure:"password"`

	// TLSCert and TLSKey are PEM files. A certificate file that also
	// holds the key may be given alone.
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`

	MOTDFile string `mapstructure:"motd"`

	// LogDir receives the process log and channel transcripts.
	LogDir string `mapstructure:"log_dir"`

	// StateDir holds channel topics and keys. Empty keeps them in memory.
	StateDir string `mapstructure:"state_dir"`

	PollInterval      time.Duration `mapstructure:"poll_interval"`
	APIBase           string        `mapstructure:"api_base"`
	ImageBase         string        `mapstructure:"image_base"`
	ThumbBase         string        `mapstructure:"thumb_base"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	QueueSize         int           `mapstructure:"queue_size"`

	// MetricsAddr serves /metrics when set, e.g. 127.0.0.1:9100.
	MetricsAddr string `mapstructure:"metrics_addr"`

	Debug bool `mapstructure:"debug"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Name:              "boardirc",
		PollInterval:      poller.DefaultInterval,
		APIBase:           "https://a.4cdn.org",
		ImageBase:         fourchan.DefaultMediaHosts.Image,
		ThumbBase:         fourchan.DefaultMediaHosts.Thumb,
		RequestsPerSecond: 1,
		Burst:             5,
		QueueSize:         poller.DefaultQueueSize,
	}
}

// Validate fills derived defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("server name must not be empty")
	}
	if strings.ContainsAny(c.Name, " \r\n:!@") {
		return fmt.Errorf("invalid server name %q", c.Name)
	}
	if c.TLSKey != "" && c.TLSCert == "" {
		return errors.New("tls_key given without tls_cert")
	}
	if len(c.Ports) == 0 {
		if c.TLSCert != "" {
			c.Ports = []int{6697}
		} else {
			c.Ports = []int{6667}
		}
	}
	for _, p := range c.Ports {
		if p < 0 || p > 65535 {
			return fmt.Errorf("invalid port %d", p)
		}
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %s", c.PollInterval)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("invalid request rate %v", c.RequestsPerSecond)
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = poller.DefaultQueueSize
	}
	return nil
}

// TLSConfig loads the certificate. It returns nil when TLS is disabled.
func (c Config) TLSConfig() (*tls.Config, error) {
	if c.TLSCert == "" {
		return nil, nil
	}
	key := c.TLSKey
	if key == "" {
		key = c.TLSCert
	}
	cert, err := tls.LoadX509KeyPair(c.TLSCert, key)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientConfig is the upstream client configuration.
func (c Config) ClientConfig() fourchan.ClientConfig {
	return fourchan.ClientConfig{
		APIBase:           c.APIBase,
		Media:             fourchan.MediaHosts{Image: c.ImageBase, Thumb: c.ThumbBase},
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		Retries:           2,
	}
}

// PollerConfig is the poller configuration.
func (c Config) PollerConfig() poller.Config {
	return poller.Config{Interval: c.PollInterval, QueueSize: c.QueueSize}
}

// motdLines reads the message of the day. The file is read on every call
// so it can be edited without a restart. A missing file yields nil.
func (c Config) motdLines() []string {
	if c.MOTDFile == "" {
		return nil
	}
	b, err := os.ReadFile(c.MOTDFile)
	if err != nil {
		return nil
	}
	return strings.Split(strings.TrimRight(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n"), "\n")
}
