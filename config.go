package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/zkao/btc-congestion-manager/blockfeed"
	"github.com/zkao/btc-congestion-manager/pubsub/kafkabus"
	"github.com/zkao/btc-congestion-manager/rpc/corerpc"
)

const (
	defaultConfigFileName = "config.yml"
	configFileEnv         = "FEEKINETIC_CONFIG"
	dataDirEnv            = "FEEKINETIC_DATADIR"
)

var (
	defaultAppConfig = AppConfig{
		Constants: Constants{
			BlockSize:                1000000,
			MinersReservedBlockRatio: 0.02,
			PollPeriod:               10 * time.Second,
			AddedWindow:              10 * time.Minute,
			RemovedCapacity:          3,
			MinSavingsRate:           0.02,
			Targets:                  []int{1, 2, 3, 4},
		},
	}
	defaultConfig = config{
		AppConfig: defaultAppConfig,
		RPC: corerpc.Config{
			Host:    "localhost",
			Port:    "8332",
			Timeout: 30,
		},
		ZMQ: blockfeed.Config{
			Addr:             "tcp://127.0.0.1:28332",
			MaxReconnects:    10,
			ReconnectBackoff: 20 * time.Second,
		},
		Kafka: kafkabus.Config{
			BrokersCSV:  "localhost:9092",
			QueueSize:   256,
			TopicPrefix: "",
		},
		AppRPC: AppRPCConfig{
			Host: "localhost",
			Port: "8351",
		},
		DataDir: appDataDir("feekinetic", false),
	}
	defaultConfigFile  = filepath.Join(defaultConfig.DataDir, defaultConfigFileName)
	defaultLogFileName = "feekinetic.log"
)

// config is the full on-disk configuration shape, read via gopkg.in/yaml.v2,
// the same inline-embed-plus-override pattern as the teacher's config.go.
type config struct {
	AppConfig `yaml:",inline"`
	RPC       corerpc.Config   `yaml:"rpc" json:"rpc"`
	ZMQ       blockfeed.Config `yaml:"zmq" json:"zmq"`
	Kafka     kafkabus.Config  `yaml:"kafka" json:"kafka"`
	AppRPC    AppRPCConfig     `yaml:"apprpc" json:"apprpc"`
	DataDir   string           `yaml:"datadir" json:"datadir"`
	LogFile   string           `yaml:"logfile" json:"logfile"`
}

type AppRPCConfig struct {
	Host string `yaml:"host" json:"host"`
	Port string `yaml:"port" json:"port"`
}

// loadConfig loads the config. The input arguments specify the path to the
// config file / data directory. They can also be specified through env
// variables (configFileEnv / dataDirEnv), with lower precedence. If not
// specified, they are set to default values.
func loadConfig(configFile, dataDir string) (config, error) {
	cfg := defaultConfig

	if configFile == "" {
		configFile = os.Getenv(configFileEnv)
	}
	if dataDir == "" {
		dataDir = os.Getenv(dataDirEnv)
	}

	if configFile != "" {
		if c, err := ioutil.ReadFile(configFile); err != nil {
			return cfg, err
		} else if err := yaml.Unmarshal(c, &cfg); err != nil {
			return cfg, err
		}
	} else {
		if dataDir == "" {
			configFile = defaultConfigFile
		} else {
			configFile = filepath.Join(dataDir, defaultConfigFileName)
		}
		if c, err := ioutil.ReadFile(configFile); err == nil {
			if err := yaml.Unmarshal(c, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, defaultLogFileName)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// appDataDir returns the OS-conventional per-user data directory for the
// named application, mirroring the well-known btcsuite/btcutil AppDataDir
// helper the teacher's own config.go relies on (not present in this
// retrieval pack, so reimplemented directly rather than left as a dangling
// reference).
func appDataDir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}
	appName = "." + appName

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if roaming {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appName[1:])
		}
		return filepath.Join(home, appName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName[1:])
	default:
		return filepath.Join(home, appName)
	}
}
