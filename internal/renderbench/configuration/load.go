package configuration

import (
	"github.com/spf13/viper"

	"github.com/armadaproject/renderbench/internal/common"
)

// Load reads the configuration from v, which is expected to have SetDefaults applied and any command line
// flags bound, plus the optional config file and RENDERBENCH_* environment variables.
func Load(v *viper.Viper, configFile string) (Config, error) {
	var c Config
	if err := common.LoadConfig(v, &c, configFile, EnvPrefix, DecoderOptions()); err != nil {
		return Config{}, err
	}
	return c, nil
}
