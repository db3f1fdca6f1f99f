package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "cse.cfg.json"

// GameConfig locates the game's data files
type GameConfig struct {
	DataDir      string `json:"dataDir" mapstructure:"dataDir"`
	Encoding     string `json:"encoding" mapstructure:"encoding"`
	LoadEntities bool   `json:"loadEntities" mapstructure:"loadEntities"`
	StageFolder  string `json:"stageFolder" mapstructure:"stageFolder"`
	NPCFolder    string `json:"npcFolder" mapstructure:"npcFolder"`
	NPCTable     string `json:"npcTable" mapstructure:"npcTable"`
	WatchAssets  bool   `json:"watchAssets" mapstructure:"watchAssets"`
}

// StartConfig is the spawn point written into freshly created profiles
type StartConfig struct {
	Map       uint32 `json:"map" mapstructure:"map"`
	Song      uint32 `json:"song" mapstructure:"song"`
	X         uint32 `json:"x" mapstructure:"x"`
	Y         uint32 `json:"y" mapstructure:"y"`
	Direction uint32 `json:"direction" mapstructure:"direction"`
	Health    uint16 `json:"health" mapstructure:"health"`
	MaxHealth uint16 `json:"maxHealth" mapstructure:"maxHealth"`
}

// ProfileConfig holds profile load/save settings
type ProfileConfig struct {
	BackupSuffix string      `json:"backupSuffix" mapstructure:"backupSuffix"`
	Header       string      `json:"header" mapstructure:"header"`
	FlagHeader   string      `json:"flagHeader" mapstructure:"flagHeader"`
	Start        StartConfig `json:"start" mapstructure:"start"`
}

// HistoryConfig holds change journal settings
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Type    string `json:"type" mapstructure:"type"` // sqlite or postgres
	Path    string `json:"path" mapstructure:"path"` // sqlite file, empty for in-memory
	DSN     string `json:"dsn" mapstructure:"dsn"`   // postgres connection string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers default values without reading a file.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./cselogs")

	viper.SetDefault("game.dataDir", "./data")
	viper.SetDefault("game.encoding", "Shift_JIS")
	viper.SetDefault("game.loadEntities", true)
	viper.SetDefault("game.stageFolder", "Stage")
	viper.SetDefault("game.npcFolder", "Npc")
	viper.SetDefault("game.npcTable", "npc.tbl")
	viper.SetDefault("game.watchAssets", false)

	viper.SetDefault("profile.backupSuffix", ".bkp")
	viper.SetDefault("profile.header", "Do041220")
	viper.SetDefault("profile.flagHeader", "FLAG")
	viper.SetDefault("profile.start.map", 13)
	viper.SetDefault("profile.start.song", 0)
	viper.SetDefault("profile.start.x", 10)
	viper.SetDefault("profile.start.y", 8)
	viper.SetDefault("profile.start.direction", 2)
	viper.SetDefault("profile.start.health", 3)
	viper.SetDefault("profile.start.maxHealth", 3)

	viper.SetDefault("history.enabled", false)
	viper.SetDefault("history.type", "sqlite")
	viper.SetDefault("history.path", "cse_history.db")
	viper.SetDefault("history.dsn", "")
	viper.SetDefault("history.limit", 20)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "cse")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetGameConfig returns the game data settings.
func GetGameConfig() GameConfig {
	return GameConfig{
		DataDir:      viper.GetString("game.dataDir"),
		Encoding:     viper.GetString("game.encoding"),
		LoadEntities: viper.GetBool("game.loadEntities"),
		StageFolder:  viper.GetString("game.stageFolder"),
		NPCFolder:    viper.GetString("game.npcFolder"),
		NPCTable:     viper.GetString("game.npcTable"),
		WatchAssets:  viper.GetBool("game.watchAssets"),
	}
}

// GetProfileConfig returns the profile settings. Start coordinates are in
// tiles.
func GetProfileConfig() ProfileConfig {
	return ProfileConfig{
		BackupSuffix: viper.GetString("profile.backupSuffix"),
		Header:       viper.GetString("profile.header"),
		FlagHeader:   viper.GetString("profile.flagHeader"),
		Start: StartConfig{
			Map:       viper.GetUint32("profile.start.map"),
			Song:      viper.GetUint32("profile.start.song"),
			X:         viper.GetUint32("profile.start.x"),
			Y:         viper.GetUint32("profile.start.y"),
			Direction: viper.GetUint32("profile.start.direction"),
			Health:    viper.GetUint16("profile.start.health"),
			MaxHealth: viper.GetUint16("profile.start.maxHealth"),
		},
	}
}

// GetHistoryConfig returns the change journal settings.
func GetHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled: viper.GetBool("history.enabled"),
		Type:    viper.GetString("history.type"),
		Path:    viper.GetString("history.path"),
		DSN:     viper.GetString("history.dsn"),
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
