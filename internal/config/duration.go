package config

import (
	"encoding"
	"time"

	"github.com/spf13/pflag"
)

var _ encoding.TextUnmarshaler = (*Duration)(nil)
var _ encoding.TextMarshaler = Duration{}
var _ pflag.Value = (*Duration)(nil)

// Duration wraps time.Duration so it round-trips through TOML and flags as
// a string such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	return d.Set(string(text))
}

func (d *Duration) Set(text string) error {
	var err error
	d.Duration, err = time.ParseDuration(text)
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d Duration) String() string {
	return d.Duration.String()
}

func (d *Duration) Type() string {
	return "duration"
}
