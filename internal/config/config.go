package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "asvsim.cfg.json"

// EnvPrefix prefixes every environment override, e.g. ASVSIM_SERVER_ADDR.
const EnvPrefix = "ASVSIM"

// ServerConfig holds the protocol server settings.
type ServerConfig struct {
	Addr       string
	SendBuffer int
}

// SerialConfig holds the optional serial bridge settings.
type SerialConfig struct {
	Enabled  bool
	Device   string
	BaudRate int
}

// HTTPConfig holds the status API settings.
type HTTPConfig struct {
	Enabled bool
	Addr    string
}

// SimConfig holds the simulation loop settings.
type SimConfig struct {
	TickInterval time.Duration
	QueueSize    int
	StartLat     float64
	StartLon     float64
	StartHeading float64
	HoldRadius   float64
}

// VehicleConfig holds the boat's motion limits.
type VehicleConfig struct {
	MaxSpeed        float64
	MaxAccel        float64
	MaxDecel        float64
	MaxSteeringRate float64
	SteeringGain    float64
}

// MissionConfig holds the waypoint-following settings.
type MissionConfig struct {
	ArrivalRadius float64
	TaperDistance float64
	MinTaper      float64
	Throttle      float64
}

// GridConfig describes the survey grid and where its file is written.
type GridConfig struct {
	Enabled     bool
	File        string
	OriginLat   float64
	OriginLon   float64
	Rows        int
	Cols        int
	CellSize    float64
	Bearing     float64
	Order       string
	MinCellSize float64
	StartRow    int
	StartCol    int
}

// MemoryConfig holds the in-memory backend's export settings.
type MemoryConfig struct {
	OutputDir      string
	CompressOutput bool
}

// SQLiteConfig holds the SQLite backend settings.
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// WebSocketConfig holds the streaming backend settings.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// InfluxConfig holds the time-series database settings.
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
	Bucket   string
}

// OTelConfig holds the OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// LogConfig holds the log sinks.
type LogConfig struct {
	Level          string
	Dir            string
	Console        bool
	MaxSizeMB      int
	MaxBackups     int
	MaxAgeDays     int
	GraylogEnabled bool
	GraylogAddr    string
}

// MonitorConfig holds the status file settings.
type MonitorConfig struct {
	StatusFile string
	Interval   time.Duration
}

// APIConfig holds the recording archive service settings.
type APIConfig struct {
	Enabled   bool
	ServerURL string
	APIKey    string
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("log.console", true)
	viper.SetDefault("log.maxSizeMB", 50)
	viper.SetDefault("log.maxBackups", 5)
	viper.SetDefault("log.maxAgeDays", 14)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("server.addr", ":8003")
	viper.SetDefault("server.sendBuffer", 64)

	viper.SetDefault("serial.enabled", false)
	viper.SetDefault("serial.device", "/dev/ttyUSB0")
	viper.SetDefault("serial.baudRate", 115200)

	viper.SetDefault("http.enabled", true)
	viper.SetDefault("http.addr", ":8080")

	viper.SetDefault("sim.tickInterval", "100ms")
	viper.SetDefault("sim.queueSize", 256)
	viper.SetDefault("sim.startLat", 25.758326)
	viper.SetDefault("sim.startLon", -80.373864)
	viper.SetDefault("sim.startHeading", 0.0)
	viper.SetDefault("sim.holdRadius", 2.5)

	viper.SetDefault("vehicle.maxSpeed", 2.0)
	viper.SetDefault("vehicle.maxAccel", 0.1)
	viper.SetDefault("vehicle.maxDecel", 0.2)
	viper.SetDefault("vehicle.maxSteeringRate", 40.0)
	viper.SetDefault("vehicle.steeringGain", 1.0)

	viper.SetDefault("mission.arrivalRadius", 2.5)
	viper.SetDefault("mission.taperDistance", 10.0)
	viper.SetDefault("mission.minTaper", 0.2)
	viper.SetDefault("mission.throttle", 0.5)

	viper.SetDefault("grid.enabled", false)
	viper.SetDefault("grid.file", "grid_config.json")
	viper.SetDefault("grid.originLat", 25.758326)
	viper.SetDefault("grid.originLon", -80.373864)
	viper.SetDefault("grid.rows", 4)
	viper.SetDefault("grid.cols", 4)
	viper.SetDefault("grid.cellSize", 5.0)
	viper.SetDefault("grid.bearing", 0.0)
	viper.SetDefault("grid.order", "row")
	viper.SetDefault("grid.minCellSize", 1.0)
	viper.SetDefault("grid.startRow", 0)
	viper.SetDefault("grid.startCol", 0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/asvsim.db")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "asvsim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "asvsim")
	viper.SetDefault("influx.bucket", "asv-telemetry")

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("monitor.statusFile", "")
	viper.SetDefault("monitor.interval", "10s")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "asvsim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load sets default values, overlays configDir/.env and ASVSIM_* environment
// variables, and reads FileName from configDir. A missing file is reported
// as an error, but the defaults and the environment still apply.
func Load(configDir string) error {
	setDefaults()

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read .env: %w", err)
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", FileName, err)
	}
	return nil
}

// IsNotFound reports whether err from Load only means the config file is
// missing.
func IsNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)
}

// GetServerConfig returns the protocol server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr:       viper.GetString("server.addr"),
		SendBuffer: viper.GetInt("server.sendBuffer"),
	}
}

// GetSerialConfig returns the serial bridge settings.
func GetSerialConfig() SerialConfig {
	return SerialConfig{
		Enabled:  viper.GetBool("serial.enabled"),
		Device:   viper.GetString("serial.device"),
		BaudRate: viper.GetInt("serial.baudRate"),
	}
}

// GetHTTPConfig returns the status API settings.
func GetHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Enabled: viper.GetBool("http.enabled"),
		Addr:    viper.GetString("http.addr"),
	}
}

// GetSimConfig returns the simulation loop settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickInterval: viper.GetDuration("sim.tickInterval"),
		QueueSize:    viper.GetInt("sim.queueSize"),
		StartLat:     viper.GetFloat64("sim.startLat"),
		StartLon:     viper.GetFloat64("sim.startLon"),
		StartHeading: viper.GetFloat64("sim.startHeading"),
		HoldRadius:   viper.GetFloat64("sim.holdRadius"),
	}
}

// GetVehicleConfig returns the motion limits.
func GetVehicleConfig() VehicleConfig {
	return VehicleConfig{
		MaxSpeed:        viper.GetFloat64("vehicle.maxSpeed"),
		MaxAccel:        viper.GetFloat64("vehicle.maxAccel"),
		MaxDecel:        viper.GetFloat64("vehicle.maxDecel"),
		MaxSteeringRate: viper.GetFloat64("vehicle.maxSteeringRate"),
		SteeringGain:    viper.GetFloat64("vehicle.steeringGain"),
	}
}

// GetMissionConfig returns the waypoint-following settings.
func GetMissionConfig() MissionConfig {
	return MissionConfig{
		ArrivalRadius: viper.GetFloat64("mission.arrivalRadius"),
		TaperDistance: viper.GetFloat64("mission.taperDistance"),
		MinTaper:      viper.GetFloat64("mission.minTaper"),
		Throttle:      viper.GetFloat64("mission.throttle"),
	}
}

// GetGridConfig returns the survey grid settings.
func GetGridConfig() GridConfig {
	return GridConfig{
		Enabled:     viper.GetBool("grid.enabled"),
		File:        viper.GetString("grid.file"),
		OriginLat:   viper.GetFloat64("grid.originLat"),
		OriginLon:   viper.GetFloat64("grid.originLon"),
		Rows:        viper.GetInt("grid.rows"),
		Cols:        viper.GetInt("grid.cols"),
		CellSize:    viper.GetFloat64("grid.cellSize"),
		Bearing:     viper.GetFloat64("grid.bearing"),
		Order:       viper.GetString("grid.order"),
		MinCellSize: viper.GetFloat64("grid.minCellSize"),
		StartRow:    viper.GetInt("grid.startRow"),
		StartCol:    viper.GetInt("grid.startCol"),
	}
}

// GetStorageConfig returns the recording backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the time-series database settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetLogConfig returns the log sinks.
func GetLogConfig() LogConfig {
	return LogConfig{
		Level:          viper.GetString("logLevel"),
		Dir:            viper.GetString("logsDir"),
		Console:        viper.GetBool("log.console"),
		MaxSizeMB:      viper.GetInt("log.maxSizeMB"),
		MaxBackups:     viper.GetInt("log.maxBackups"),
		MaxAgeDays:     viper.GetInt("log.maxAgeDays"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddr:    viper.GetString("graylog.address"),
	}
}

// GetMonitorConfig returns the status file settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		StatusFile: viper.GetString("monitor.statusFile"),
		Interval:   viper.GetDuration("monitor.interval"),
	}
}

// GetAPIConfig returns the archive service settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled:   viper.GetBool("api.enabled"),
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}
