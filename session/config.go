package session

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Role names the endpoint personality a Connection is constructed
// for.
type Role string

const (
	RoleServer Role = "Server"
	RoleClient Role = "Client"
	RoleHost   Role = "Host"
	RoleRelay  Role = "Relay"
)

// Config is the full enumerated configuration surface of section 6,
// unmarshaled from YAML the way the teacher's config.go reads
// config/multiserver.yml, but as a closed typed struct: this spec's
// configuration surface is fixed and enumerable, unlike the teacher's
// open-ended plugin config tree.
type Config struct {
	Role Role `yaml:"role"`

	ServerAddr string `yaml:"server_addr"`
	TcpPort    int    `yaml:"tcp_port"`
	UdpPort    int    `yaml:"udp_port"`

	MaxClients int      `yaml:"max_clients"`
	Whitelist  []string `yaml:"whitelist"`

	HostAddr          string `yaml:"host_addr"`
	Migratable        bool   `yaml:"migratable"`
	ShutdownWhenEmpty bool   `yaml:"shutdown_when_empty"`

	ConnectionRequestRateMs    int `yaml:"connection_request_rate_ms"`
	ConnectionRequestLimit     int `yaml:"connection_request_limit"`
	ConnectionRequestTimeoutMs int `yaml:"connection_request_timeout_ms"`

	BufferSize int `yaml:"buffer_size"`

	ProtocolVersion    uint16 `yaml:"protocol_version"`
	MinProtocolVersion uint16 `yaml:"min_protocol_version"`
	AppVersion         uint16 `yaml:"app_version"`
	MinAppVersion      uint16 `yaml:"min_app_version"`

	AppId     string `yaml:"app_id"`
	SessionId string `yaml:"session_id"`

	MeasureBandwidth bool `yaml:"measure_bandwidth"`
	UseCompression   bool `yaml:"use_compression"`

	Threaded            bool `yaml:"threaded"`
	ThreadUpdateDeltaMs int  `yaml:"thread_update_delta_ms"`

	AdminConsole bool `yaml:"admin_console"`
}

// Defaults returns a Config populated with every default value listed
// in section 6.
func Defaults() Config {
	return Config{
		Role:                       RoleClient,
		ServerAddr:                 "127.0.0.1",
		TcpPort:                    8000,
		UdpPort:                    9000,
		MaxClients:                 4,
		Migratable:                 false,
		ShutdownWhenEmpty:          true,
		ConnectionRequestRateMs:    5000,
		ConnectionRequestLimit:     10,
		ConnectionRequestTimeoutMs: 20000,
		BufferSize:                 2048,
		MeasureBandwidth:           false,
		UseCompression:             true,
		Threaded:                   true,
		ThreadUpdateDeltaMs:        40,
	}
}

// ConnectionRequestRate returns the configured retry interval as a
// time.Duration.
func (c Config) ConnectionRequestRate() time.Duration {
	return time.Duration(c.ConnectionRequestRateMs) * time.Millisecond
}

// ConnectionRequestTimeout returns the configured pending-admission
// timeout as a time.Duration.
func (c Config) ConnectionRequestTimeout() time.Duration {
	return time.Duration(c.ConnectionRequestTimeoutMs) * time.Millisecond
}

// ThreadUpdateDelta returns the configured worker-loop sleep interval
// as a time.Duration.
func (c Config) ThreadUpdateDelta() time.Duration {
	return time.Duration(c.ThreadUpdateDeltaMs) * time.Millisecond
}

// LoadConfig reads and unmarshals a YAML config file at path, laid
// over Defaults() so an omitted field keeps its default rather than
// its Go zero value.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
