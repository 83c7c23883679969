package config

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	Cfg_verbose        = "verbose"
	Cfg_storage_path   = "storage.path"
	Cfg_metrics_listen = "metrics.listen"
)

var (
	defaults = map[string]interface{}{
		Cfg_verbose:        false,
		Cfg_storage_path:   "./data",
		Cfg_metrics_listen: "",
	}
)

func init() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

func GetConfig() (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigName("dagledger")
	viper.AddConfigPath("/etc/dagledger/")
	viper.AddConfigPath("$HOME/.dagledger")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("DAGLEDGER")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
			logrus.New().Warnf("no config found")
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	return build()
}

func build() (*Config, error) {
	var err error

	c := &Config{
		storagePath:   viper.GetString(Cfg_storage_path),
		metricsListen: viper.GetString(Cfg_metrics_listen),
	}

	c.ledger, err = buildLedgerConfig()
	if err != nil {
		return nil, errors.Wrap(err, "ledger config")
	}

	c.chain, err = buildChainConfig()
	if err != nil {
		return nil, errors.Wrap(err, "chain config")
	}

	c.seal, err = buildSealConfig()
	if err != nil {
		return nil, errors.Wrap(err, "seal config")
	}

	if viper.GetBool(Cfg_verbose) {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.WithField("level", "debug").Debug("setting log level")
	}

	return c, nil
}

type Config struct {
	storagePath   string
	metricsListen string

	ledger *Ledger
	chain  *Chain
	seal   *Seal
}

func (c *Config) StoragePath() string {
	return c.storagePath
}

// MetricsListen is the address the prometheus handler listens on. Empty
// disables it.
func (c *Config) MetricsListen() string {
	return c.metricsListen
}

func (c *Config) Ledger() *Ledger {
	return c.ledger
}

func (c *Config) Chain() *Chain {
	return c.chain
}

func (c *Config) Seal() *Seal {
	return c.seal
}
