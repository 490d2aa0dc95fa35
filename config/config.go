package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPort = "1935"

const BuffioSize = 1024 * 64

const DefaultClientWindowSize uint32 = 2500000
const DefaultChunkSize uint32 = 4096

// Sent to the client in the connect _result.
const FlashMediaServerVersion string = "FMS/3,0,1,123"
const Capabilities int = 31

// Announced to the client right after connect.
const DefaultWindowAckSize uint32 = 5000000
const DefaultPeerBandwidth uint32 = 5000000

const DefaultIdleTimeout = 10 * time.Second

var ErrUnknownFormat = errors.New("config: unknown file format, expected .toml, .yaml or .yml")

type Config struct {
	Server ServerConfig `toml:"Server" yaml:"server"`
	Logger LoggerConfig `toml:"Logger" yaml:"logger"`
	Record RecordConfig `toml:"Record" yaml:"record"`
	API    APIConfig    `toml:"API" yaml:"api"`
}

type ServerConfig struct {
	Addr          string   `toml:"Addr" yaml:"addr"`
	ChunkSize     uint32   `toml:"ChunkSize" yaml:"chunk_size"`
	WindowAckSize uint32   `toml:"WindowAckSize" yaml:"window_ack_size"`
	PeerBandwidth uint32   `toml:"PeerBandwidth" yaml:"peer_bandwidth"`
	IdleTimeout   Duration `toml:"IdleTimeout" yaml:"idle_timeout"`
	// 0 means unlimited.
	MaxConnections int `toml:"MaxConnections" yaml:"max_connections"`
}

type LoggerConfig struct {
	Level       string `toml:"Level" yaml:"level"`
	Dir         string `toml:"Dir" yaml:"dir"`
	FileName    string `toml:"FileName" yaml:"file_name"`
	MaxSize     int    `toml:"MaxSize" yaml:"max_size"` // megabytes
	MaxBackups  int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAge      int    `toml:"MaxAge" yaml:"max_age"` // days
	Development bool   `toml:"Development" yaml:"development"`
}

type RecordConfig struct {
	Enabled bool   `toml:"Enabled" yaml:"enabled"`
	Dir     string `toml:"Dir" yaml:"dir"`
	NodeID  int64  `toml:"NodeID" yaml:"node_id"`
}

type APIConfig struct {
	Enabled bool   `toml:"Enabled" yaml:"enabled"`
	Addr    string `toml:"Addr" yaml:"addr"`
}

// Duration is a time.Duration written as a string ("10s", "1m30s") in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "config: invalid duration %q", string(text))
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.fixup()
	return cfg
}

// Load reads the file at path, decoding it as TOML or YAML depending on its extension.
// Unset fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: reading file")
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err = toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(err, "config: decoding toml")
		}
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		// An empty document decodes to io.EOF; treat it as all defaults.
		if err = decoder.Decode(cfg); err != nil && len(bytes.TrimSpace(data)) > 0 {
			return nil, errors.Wrap(err, "config: decoding yaml")
		}
	default:
		return nil, ErrUnknownFormat
	}

	cfg.fixup()
	return cfg, nil
}

func (c *Config) fixup() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":" + DefaultPort
	}
	if c.Server.ChunkSize == 0 {
		c.Server.ChunkSize = DefaultChunkSize
	}
	if c.Server.WindowAckSize == 0 {
		c.Server.WindowAckSize = DefaultWindowAckSize
	}
	if c.Server.PeerBandwidth == 0 {
		c.Server.PeerBandwidth = DefaultPeerBandwidth
	}
	if c.Server.IdleTimeout.Duration == 0 {
		c.Server.IdleTimeout.Duration = DefaultIdleTimeout
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Dir == "" {
		c.Logger.Dir = "logs"
	}
	if c.Logger.FileName == "" {
		c.Logger.FileName = "rtmpd"
	}
	if c.Logger.MaxSize == 0 {
		c.Logger.MaxSize = 100
	}
	if c.Logger.MaxBackups == 0 {
		c.Logger.MaxBackups = 10
	}
	if c.Logger.MaxAge == 0 {
		c.Logger.MaxAge = 30
	}

	if c.Record.Dir == "" {
		c.Record.Dir = "recordings"
	}
	if c.Record.NodeID == 0 {
		c.Record.NodeID = 1
	}

	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}
