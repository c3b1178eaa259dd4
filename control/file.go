// control/file.go
// Author: momentics <momentics@gmail.com>
//
// HuJSON configuration files.

package control

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
)

// FileConfig is the on-disk form of the pair configuration. Absent keys
// stay nil and leave the corresponding setting untouched.
type FileConfig struct {
	PoolSize        *int      `json:"pool_size,omitempty"`
	Mode            *string   `json:"mode,omitempty"`
	PollBudget      *int      `json:"poll_budget,omitempty"`
	Lockup          *int      `json:"lockup,omitempty"`
	WatchdogTimeout *Duration `json:"watchdog_timeout,omitempty"`
	MTU             *int      `json:"mtu,omitempty"`
	ManualPoll      *bool     `json:"manual_poll,omitempty"`
	MetricsPrefix   *string   `json:"metrics_prefix,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("50ms").
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ParseConfig decodes HuJSON: standard JSON plus comments and trailing
// commas. Unknown keys are an error.
func ParseConfig(data []byte) (*FileConfig, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.Wrap(err, "control: parse config")
	}
	var fc FileConfig
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return nil, errors.Wrap(err, "control: decode config")
	}
	return &fc, nil
}

// LoadFile reads and decodes the HuJSON file at path.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "control: read config")
	}
	return ParseConfig(data)
}
