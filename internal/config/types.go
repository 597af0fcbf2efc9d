// internal/config/types.go
package config

import (
	"encoding/json"
)

// Secret wraps a configuration value that must never land in a log
// line, a marshaled config dump, or an error message — the Qdrant API
// key and the Redis password are the two fields that use it. Reach for
// Value() only at the point the underlying client actually needs the
// raw string.
type Secret string

// String implements fmt.Stringer, so a Secret embedded in a log field
// or an fmt.Errorf never leaks its value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the underlying secret. Callers should hold onto the
// result only as long as the client call that needs it.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON always redacts, so a Secret field surviving into a debug
// endpoint or a config-dump log line never carries the real value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText always redacts, for text-based encoders (flag dumps, env
// var echoing) that route through encoding.TextMarshaler instead of JSON.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// MarshalYAML always redacts, matching MarshalJSON/MarshalText: a
// config.yaml written back out (e.g. by an admin CLI) never contains
// the real secret.
func (s Secret) MarshalYAML() (interface{}, error) {
	if s == "" {
		return "", nil
	}
	return "[REDACTED]", nil
}

// UnmarshalYAML accepts the raw secret value from config.yaml.
func (s *Secret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}

// UnmarshalJSON accepts the raw secret value.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}

// UnmarshalText accepts the raw secret value when a Secret is decoded
// from text. LoadWithFile's environment mapping turns only the first
// underscore into a dot, so the nested Qdrant API key and Redis password
// are not reachable through RAGIFY_ variables; they come from the file.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
