package codec

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

func DurationHookFunc() mapstructure.DecodeHookFunc {
	return durationHookFunc
}

// durationHookFunc accepts "90s" style strings as well as bare integers,
// which are read as seconds.
func durationHookFunc(f, t reflect.Type, data interface{}) (interface{}, error) {
	if t != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}

	switch f.Kind() {
	case reflect.String:
		return time.ParseDuration(data.(string))
	case reflect.Int:
		return time.Duration(data.(int)) * time.Second, nil
	case reflect.Int64:
		return time.Duration(data.(int64)) * time.Second, nil
	case reflect.Float64:
		return time.Duration(data.(float64) * float64(time.Second)), nil
	}
	return data, nil
}

// Decode copies a generic document, as produced by a YAML decoder, into
// out. Keys without a matching field are an error.
func Decode(in interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  DurationHookFunc(),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(in)
}
