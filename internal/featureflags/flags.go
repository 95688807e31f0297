// Package featureflags holds the runtime switches of the push subsystem.
//
// Every flag is a boolean with a compiled-in default. Stored values override
// the defaults; a key missing from storage reads as its default.
package featureflags

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Flag keys.
const (
	// FlagPushNudgeEnabled lets clients prompt signed-in users to opt in.
	FlagPushNudgeEnabled = "push_nudge_enabled"

	// FlagDisablePushSending turns every dispatch into a no-op.
	FlagDisablePushSending = "disable_push_sending"
)

var (
	// ErrUnknownFlag is returned when a key has no definition.
	ErrUnknownFlag = errors.New("unknown feature flag")

	// ErrInvalidValue is returned when a value cannot be read as a boolean.
	ErrInvalidValue = errors.New("feature flag value is not a boolean")
)

// Definition describes a known flag.
type Definition struct {
	Key         string
	Description string
	Default     bool
}

// Sorted by key.
var definitions = []Definition{
	{
		Key:         FlagDisablePushSending,
		Description: "skip every push dispatch",
		Default:     false,
	},
	{
		Key:         FlagPushNudgeEnabled,
		Description: "allow clients to ask signed-in users to enable push",
		Default:     true,
	},
}

// Definitions returns every known flag, sorted by key.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition for key.
func Lookup(key string) (Definition, bool) {
	for _, d := range definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Flag is the current value of one switch.
type Flag struct {
	Key       string
	Enabled   bool
	UpdatedAt time.Time
}

// Validate reports whether f names a known flag.
func (f Flag) Validate() error {
	if _, ok := Lookup(f.Key); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFlag, f.Key)
	}
	return nil
}

// DefaultFlags returns every known flag set to its default.
func DefaultFlags() []Flag {
	out := make([]Flag, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, Flag{Key: d.Key, Enabled: d.Default})
	}
	return out
}

// ParseValue reads a decoded JSON value as a boolean. Numbers are true when
// non-zero and strings go through strconv.ParseBool.
func ParseValue(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case float64:
		return val != 0, nil
	case int:
		return val != 0, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidValue, val)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %T", ErrInvalidValue, v)
	}
}
