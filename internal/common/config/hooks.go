package config

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DecodeHooks returns the viper decoder option used for all renderbench configuration. It keeps viper's
// default duration and comma-separated slice decoding and normalises the given string-based enum types,
// so that "SQS" and " sqs " both decode to "sqs".
func DecodeHooks(enumTypes ...reflect.Type) viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		EnumHookFunc(enumTypes...),
	))
}

// EnumHookFunc lower-cases and trims strings decoded into any of the given types.
func EnumHookFunc(enumTypes ...reflect.Type) mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// check that src and target types are valid
		if f.Kind() != reflect.String {
			return data, nil
		}
		for _, enumType := range enumTypes {
			if t == enumType {
				return strings.ToLower(strings.TrimSpace(data.(string))), nil
			}
		}
		return data, nil
	}
}
