package boardirc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, []int{6667}, cfg.Ports)

	cfg = DefaultConfig()
	cfg.TLSCert = "cert.pem"
	require.NoError(t, cfg.Validate())
	require.Equal(t, []int{6697}, cfg.Ports)

	for name, mutate := range map[string]func(*Config){
		"empty name":    func(c *Config) { c.Name = "" },
		"name w/ space": func(c *Config) { c.Name = "irc test" },
		"key only":      func(c *Config) { c.TLSKey = "key.pem" },
		"bad port":      func(c *Config) { c.Ports = []int{70000} },
		"zero interval": func(c *Config) { c.PollInterval = 0 },
		"zero rate":     func(c *Config) { c.RequestsPerSecond = 0 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestConfigDerived(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Second
	cfg.ImageBase = "http://img"
	require.NoError(t, cfg.Validate())

	cc := cfg.ClientConfig()
	require.Equal(t, "http://img", cc.Media.Image)
	require.Equal(t, cfg.APIBase, cc.APIBase)
	require.Equal(t, 5*time.Second, cfg.PollerConfig().Interval)

	tlsConfig, err := cfg.TLSConfig()
	require.NoError(t, err)
	require.Nil(t, tlsConfig)
}

func TestMOTDLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "motd.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\r\nworld\r\n"), 0o644))

	cfg := Config{MOTDFile: path}
	require.Equal(t, []string{"hello", "world"}, cfg.motdLines())
	require.Nil(t, Config{MOTDFile: path + ".missing"}.motdLines())
}
