package common

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// LoadConfig unmarshals v into config. Values come, in order of precedence, from bound flags, environment
// variables carrying envPrefix (RENDERBENCH_DISPATCH_BATCHSIZE for dispatch.batchSize), configFile if given,
// and the defaults already registered on v.
func LoadConfig(v *viper.Viper, config interface{}, configFile string, envPrefix string, opts ...viper.DecoderConfigOption) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "reading config file %s", configFile)
		}
	}
	if err := v.Unmarshal(config, opts...); err != nil {
		return errors.Wrap(err, "decoding configuration")
	}
	return nil
}
