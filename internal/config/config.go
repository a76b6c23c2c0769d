// Copyright © 2024 Friendship Engine Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the service configuration the way the teacher's
// pkg/common/config loads open-im-server's: a YAML document unmarshalled
// into mapstructure-tagged sections, one per external collaborator.
package config

import (
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

type Postgres struct {
	Host        string        `mapstructure:"host" yaml:"host"`
	Port        int           `mapstructure:"port" yaml:"port"`
	Database    string        `mapstructure:"database" yaml:"database"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"password"`
	MaxPoolSize int           `mapstructure:"maxPoolSize" yaml:"maxPoolSize"`
	MinPoolSize int           `mapstructure:"minPoolSize" yaml:"minPoolSize"`
	DialTimeout time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout"`
}

type Redis struct {
	Address    []string `mapstructure:"address" yaml:"address"`
	Username   string   `mapstructure:"username" yaml:"username"`
	Password   string   `mapstructure:"password" yaml:"password"`
	ClusterMode bool    `mapstructure:"clusterMode" yaml:"clusterMode"`
	DB         int      `mapstructure:"db" yaml:"db"`
}

type Kafka struct {
	Address           []string `mapstructure:"address" yaml:"address"`
	Username          string   `mapstructure:"username" yaml:"username"`
	Password          string   `mapstructure:"password" yaml:"password"`
	FriendshipsTopic  string   `mapstructure:"friendshipsTopic" yaml:"friendshipsTopic"`
	ConsumerGroupID   string   `mapstructure:"consumerGroupID" yaml:"consumerGroupID"`
}

type IdentityProvider struct {
	BaseURL         string        `mapstructure:"baseURL" yaml:"baseURL"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TokenCacheTTL   time.Duration `mapstructure:"tokenCacheTTL" yaml:"tokenCacheTTL"`
}

type ChatBackend struct {
	BaseURL string        `mapstructure:"baseURL" yaml:"baseURL"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Domain  string        `mapstructure:"domain" yaml:"domain"`
}

type RPC struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	HTTPPort        int           `mapstructure:"httpPort" yaml:"httpPort"`
	SubscriberQueue int           `mapstructure:"subscriberQueue" yaml:"subscriberQueue"`
	PageSize        int           `mapstructure:"pageSize" yaml:"pageSize"`
	DeliverTimeout  time.Duration `mapstructure:"deliverTimeout" yaml:"deliverTimeout"`
}

type Log struct {
	StorageLocation string `mapstructure:"storageLocation" yaml:"storageLocation"`
	RemainLogLevel  int    `mapstructure:"remainLogLevel" yaml:"remainLogLevel"`
	IsStdout        bool   `mapstructure:"isStdout" yaml:"isStdout"`
	IsJSON          bool   `mapstructure:"isJson" yaml:"isJson"`
	RemainRotationCount uint `mapstructure:"remainRotationCount" yaml:"remainRotationCount"`
	RotationTime    uint    `mapstructure:"rotationTime" yaml:"rotationTime"`
}

type Prometheus struct {
	Enable bool `mapstructure:"enable" yaml:"enable"`
	Port   int  `mapstructure:"port" yaml:"port"`
}

// Config is the config struct read by the core per §6: "the core reads no
// env directly; it takes a config struct". The CLI entry point (cmd/) is
// responsible for loading it from YAML and passing it in.
type Config struct {
	Postgres         Postgres         `mapstructure:"postgres" yaml:"postgres"`
	Redis            Redis            `mapstructure:"redis" yaml:"redis"`
	Kafka            Kafka            `mapstructure:"kafka" yaml:"kafka"`
	IdentityProvider IdentityProvider `mapstructure:"identityProvider" yaml:"identityProvider"`
	ChatBackend      ChatBackend      `mapstructure:"chatBackend" yaml:"chatBackend"`
	RPC              RPC              `mapstructure:"rpc" yaml:"rpc"`
	Log              Log              `mapstructure:"log" yaml:"log"`
	Prometheus       Prometheus       `mapstructure:"prometheus" yaml:"prometheus"`
	CacheKey         string           `mapstructure:"cacheKey" yaml:"cacheKey"`
	MetricsToken     string           `mapstructure:"metricsToken" yaml:"metricsToken"`
}

// Load reads path as YAML and decodes it into a Config, applying the same
// two-stage yaml-then-mapstructure decode the teacher's load_config.go uses.
// Field names are matched through the mapstructure tags; the yaml tags are
// not consulted, and no environment variables are read.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the zero-value config populated with the timeouts and
// pool sizes called out as defaults in §5/§6.
func Default() *Config {
	return &Config{
		Postgres: Postgres{
			MinPoolSize: 5,
			MaxPoolSize: 10,
			DialTimeout: 10 * time.Second,
		},
		IdentityProvider: IdentityProvider{
			Timeout:       10 * time.Second,
			TokenCacheTTL: time.Hour,
		},
		ChatBackend: ChatBackend{
			Timeout: 10 * time.Second,
		},
		RPC: RPC{
			Port:            10400,
			HTTPPort:        10401,
			SubscriberQueue: 64,
			PageSize:        5,
			DeliverTimeout:  2 * time.Second,
		},
		Log: Log{
			RemainLogLevel: 6,
			IsStdout:       true,
		},
	}
}
