/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package worker

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/stringutil"
	"github.com/wentaojin/docwh/version"
	"go.uber.org/zap"
)

// Config is the configuration for docwh-worker
type Config struct {
	FlagSet       *flag.FlagSet                `json:"-"`
	ConfigFile    string                       `toml:"config-file" json:"config-file"`
	EnvFile       string                       `toml:"env-file" json:"env-file"`
	WorkerOptions *configutil.WorkerOptions    `toml:"worker" json:"worker"`
	Database      *configutil.DatabaseOptions  `toml:"database" json:"database"`
	Warehouse     *configutil.WarehouseOptions `toml:"warehouse" json:"warehouse"`
	Sources       []*configutil.SourceOptions  `toml:"source" json:"source"`
	Kafka         *configutil.KafkaOptions     `toml:"kafka" json:"kafka"`
	LogConfig     *logger.Config               `toml:"log" json:"log"`

	PrintVersion bool `json:"-"`
}

func NewConfig() *Config {
	cfg := &Config{
		WorkerOptions: configutil.DefaultWorkerServerConfig(),
		Database:      &configutil.DatabaseOptions{},
		Warehouse:     &configutil.WarehouseOptions{},
		Kafka:         &configutil.KafkaOptions{},
		LogConfig: &logger.Config{
			LogLevel:   "info",
			MaxSize:    128,
			MaxDays:    7,
			MaxBackups: 30,
		},
	}
	cfg.FlagSet = flag.NewFlagSet("docwh worker", flag.ContinueOnError)
	fs := cfg.FlagSet
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage of docwh worker:")
		fs.PrintDefaults()
	}
	fs.BoolVar(&cfg.PrintVersion, "V", false, "prints version and exit")
	fs.StringVar(&cfg.ConfigFile, "config", "", "path to config file")
	fs.StringVar(&cfg.EnvFile, "env", "", "path to dotenv file exported before the config file is read")
	fs.StringVar(&cfg.WorkerOptions.Name, "name", cfg.WorkerOptions.Name, "worker instance name")
	fs.StringVar(&cfg.WorkerOptions.WorkerAddr, "worker-addr", "", "worker advertise addr")
	fs.StringVar(&cfg.WorkerOptions.StagingDir, "staging-dir", cfg.WorkerOptions.StagingDir, "worker local staging dir")
	fs.StringVar(&cfg.Database.URI, "database-uri", "", "document store connection uri")
	fs.StringVar(&cfg.LogConfig.LogFile, "log-file", "", "worker instance log file")
	return cfg
}

func (c *Config) Parse(args []string) error {
	err := c.FlagSet.Parse(args)
	switch err {
	case nil:
	case flag.ErrHelp:
		os.Exit(0)
	default:
		os.Exit(2)
	}

	if c.PrintVersion {
		fmt.Println(version.GetRawVersionInfo())
		os.Exit(0)
	}

	if err = configutil.LoadEnvFile(c.EnvFile); err != nil {
		return err
	}

	if c.ConfigFile != "" {
		if err = c.configFromFile(c.ConfigFile); err != nil {
			return err
		}
	}

	// Parse again to replace with command line options.
	err = c.FlagSet.Parse(args)
	if err != nil {
		return err
	}

	if len(c.FlagSet.Args()) != 0 {
		return fmt.Errorf("worker config invalid flag: [%v]", c.FlagSet.Args())
	}

	configutil.ExpandSecrets(c.Database, c.Warehouse, c.Sources)
	c.Database.WithDefaults()
	c.Warehouse.WithDefaults()
	return c.adjust()
}

func (c *Config) adjust() error {
	if c.Database.URI == "" {
		return fmt.Errorf("worker config [database] uri is required")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" || s.URI == "" {
			return fmt.Errorf("worker config [[source]] requires name and uri")
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("worker config [[source]] name [%s] duplicate", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) error {
	_, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("config decode from file failed: %v", err)
	}
	return nil
}

func (c *Config) String() string {
	cfg, err := json.Marshal(c)
	if err != nil {
		logger.Error("marshal to json", zap.Reflect("worker config", c), zap.Error(err))
	}

	return stringutil.BytesToString(cfg)
}
