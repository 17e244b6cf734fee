package check

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies a raw check configuration onto target, a pointer to a struct
// with mapstructure tags. Durations may be given as strings like "10s".
// Unknown keys are rejected so that typos do not go unnoticed.
func Decode(config map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
