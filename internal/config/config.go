package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	MySQL      MySQL  `yaml:"mysql"`
	HTTPServer `yaml:"http_server"`
	WSServer   WSServer `yaml:"ws_server"`
	Game       Game     `yaml:"game"`
	Pusher     Pusher   `yaml:"pusher"`
}

// MySQL holds the ledger DSN. It must include parseTime=true so DATETIME
// columns scan into time.Time.
type MySQL struct {
	DSN string `yaml:"dsn" env:"MYSQL_DSN" env-required:"true"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type WSServer struct {
	Address     string        `yaml:"address" env:"WS_ADDRESS" env-default:"localhost:8081"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Game struct {
	HouseEdge       float64       `yaml:"house_edge" env:"HOUSE_EDGE" env-default:"0.05"`
	MinBet          float64       `yaml:"min_bet" env:"MIN_BET" env-default:"0.01"`
	MaxBet          float64       `yaml:"max_bet" env:"MAX_BET" env-default:"10"`
	StartingBalance float64       `yaml:"starting_balance" env:"STARTING_BALANCE" env-default:"1"`
	BettingWindow   time.Duration `yaml:"betting_window" env:"BETTING_WINDOW" env-default:"20s"`
	RevealWindow    time.Duration `yaml:"reveal_window" env:"REVEAL_WINDOW" env-default:"25s"`
	RoundPause      time.Duration `yaml:"round_pause" env:"ROUND_PAUSE" env-default:"3s"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"RETRY_DELAY" env-default:"5s"`
}

type Pusher struct {
	AppID   string `yaml:"app_id" env:"PUSHER_APP_ID"`
	Key     string `yaml:"key" env:"PUSHER_KEY"`
	Secret  string `yaml:"secret" env:"PUSHER_SECRET"`
	Cluster string `yaml:"cluster" env:"PUSHER_CLUSTER"`
	Channel string `yaml:"channel" env:"PUSHER_CHANNEL" env-default:"game"`
}

func (p Pusher) Enabled() bool {
	return p.AppID != "" && p.Key != "" && p.Secret != ""
}

func MustLoad() *Config {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("cannot read config from env: %s", err)
		}

		return &cfg
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	return &cfg
}
