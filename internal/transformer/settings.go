package transformer

import (
	"fmt"
	"sort"
	"strconv"
)

// SettingType is the value type of a setting.
type SettingType string

const (
	SettingBool SettingType = "bool"
	SettingInt  SettingType = "int"
	SettingEnum SettingType = "enum"
)

// Setting is a named option a transformer accepts.
type Setting struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Type        SettingType `json:"type"`
	Default     string      `json:"default"`
	Choices     []string    `json:"choices,omitempty"`
}

// Validate checks value against the setting's type.
func (s Setting) Validate(value string) error {
	switch s.Type {
	case SettingBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidSetting, s.ID, value)
		}
	case SettingInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSetting, s.ID, value)
		}
	case SettingEnum:
		for _, c := range s.Choices {
			if c == value {
				return nil
			}
		}
		return fmt.Errorf("%w: %s=%q is not one of %v", ErrInvalidSetting, s.ID, value, s.Choices)
	}
	return nil
}

// Values maps setting ids to values.
type Values map[string]string

// Bool returns a boolean setting, false when absent or malformed.
func (v Values) Bool(id string) bool {
	b, _ := strconv.ParseBool(v[id])
	return b
}

// Int returns an integer setting, zero when absent or malformed.
func (v Values) Int(id string) int {
	n, _ := strconv.Atoi(v[id])
	return n
}

// Keys returns the setting ids in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Defaults returns the default value of every declared setting.
func (d Descriptor) Defaults() Values {
	out := make(Values, len(d.Settings))
	for _, s := range d.Settings {
		out[s.ID] = s.Default
	}
	return out
}

// Resolve validates values against the declared settings and fills in
// defaults for the ones not given.
func (d Descriptor) Resolve(values Values) (Values, error) {
	declared := make(map[string]Setting, len(d.Settings))
	for _, s := range d.Settings {
		declared[s.ID] = s
	}

	out := d.Defaults()
	for id, value := range values {
		s, ok := declared[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no setting %q", ErrUnknownSetting, d.ID, id)
		}
		if err := s.Validate(value); err != nil {
			return nil, err
		}
		out[id] = value
	}
	return out, nil
}

// Option binds a setting to a field of a backend's native options.
type Option[O any] struct {
	Setting
	Apply func(opts *O, value string)
}

// Settings returns the declared settings of opts.
func Settings[O any](opts []Option[O]) []Setting {
	out := make([]Setting, len(opts))
	for i, o := range opts {
		out[i] = o.Setting
	}
	return out
}

// Bind applies resolved values to a fresh native options struct.
func Bind[O any](opts []Option[O], values Values, native *O) {
	for _, o := range opts {
		value, ok := values[o.ID]
		if !ok {
			value = o.Default
		}
		o.Apply(native, value)
	}
}
