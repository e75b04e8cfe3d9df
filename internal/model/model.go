// Package model holds the value types shared by the hook engine, its storage
// layout and the HTTP surface.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/duke-git/lancet/v2/slice"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that serializes as a Go duration string ("30s").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := sonic.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := sonic.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Hook is a named, preconfigured command. The same value is read from the
// configuration file and embedded into every status record it launches.
type Hook struct {
	Command     string   `yaml:"command" json:"command"`
	Args        []string `yaml:"args,omitempty" json:"args,omitempty"`
	WorkDir     string   `yaml:"work_dir" json:"work_dir"`
	AllowedKeys []string `yaml:"allowed_keys" json:"allowed_keys"`
	// Timeout of zero disables the deadline.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// CreateConfig is the body of a launch request.
type CreateConfig struct {
	Vars map[string]string `json:"vars"`
}

// Filter drops, in place, every variable whose key is not in allowedKeys.
func (c *CreateConfig) Filter(allowedKeys []string) {
	for key := range c.Vars {
		if !slice.Contain(allowedKeys, key) {
			delete(c.Vars, key)
		}
	}
}

// Request is the snapshot of the HTTP request that launched an instance.
type Request struct {
	URI      string            `json:"uri"`
	Method   string            `json:"method"`
	Version  string            `json:"version"`
	Headers  map[string]string `json:"headers"`
	PeerAddr *string           `json:"peer_addr,omitempty"`
}

// Info is the persisted status record of one instance.
//
// While Running is true Finished, Success and TimedOut are nil. The
// supervisor flips Running exactly once and sets the terminal fields.
type Info struct {
	Request  Request           `json:"request"`
	Config   Hook              `json:"config"`
	Vars     map[string]string `json:"vars,omitempty"`
	Running  bool              `json:"running"`
	Started  time.Time         `json:"started"`
	Finished *time.Time        `json:"finished,omitempty"`
	Success  *bool             `json:"success,omitempty"`
	TimedOut *bool             `json:"timed_out,omitempty"`
}

// Finish moves the record into its terminal state.
func (i *Info) Finish(success, timedOut bool, at time.Time) {
	i.Running = false
	i.Finished = &at
	i.Success = &success
	if timedOut {
		i.TimedOut = &timedOut
	}
}

// Result classifies a finished record as "success", "timeout" or "failure".
// Running records yield "running".
func (i *Info) Result() string {
	switch {
	case i.Running:
		return "running"
	case i.TimedOut != nil && *i.TimedOut:
		return "timeout"
	case i.Success != nil && *i.Success:
		return "success"
	default:
		return "failure"
	}
}

// Duration returns the wall time between start and finish, or zero while running.
func (i *Info) Duration() time.Duration {
	if i.Finished == nil {
		return 0
	}
	return i.Finished.Sub(i.Started)
}

// MarshalInfo encodes a record the way it is stored on disk.
func MarshalInfo(info *Info) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(info, "", "  ")
}

// UnmarshalInfo decodes a stored record.
func UnmarshalInfo(data []byte) (*Info, error) {
	var info Info
	if err := sonic.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
