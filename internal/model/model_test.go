package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"
)

func TestCreateConfigFilter(t *testing.T) {
	cfg := &CreateConfig{Vars: map[string]string{
		"BRANCH": "main",
		"TOKEN":  "secret",
		"TAG":    "v1",
	}}

	cfg.Filter([]string{"BRANCH", "TAG", "UNUSED"})

	assert.Equal(t, map[string]string{"BRANCH": "main", "TAG": "v1"}, cfg.Vars)
}

func TestCreateConfigFilterNilVars(t *testing.T) {
	cfg := &CreateConfig{}
	cfg.Filter([]string{"A"})
	assert.Empty(t, cfg.Vars)
}

func TestCreateConfigFilterProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keyGen := rapid.StringMatching(`[A-Z]{1,4}`)
		vars := rapid.MapOf(keyGen, rapid.String()).Draw(t, "vars")
		allowed := rapid.SliceOf(keyGen).Draw(t, "allowed")

		original := make(map[string]string, len(vars))
		for k, v := range vars {
			original[k] = v
		}

		cfg := &CreateConfig{Vars: vars}
		cfg.Filter(allowed)

		for k, v := range original {
			isAllowed := false
			for _, a := range allowed {
				if a == k {
					isAllowed = true
					break
				}
			}
			got, present := cfg.Vars[k]
			if isAllowed != present {
				t.Fatalf("key %q: allowed=%v present=%v", k, isAllowed, present)
			}
			if present && got != v {
				t.Fatalf("key %q: value changed from %q to %q", k, v, got)
			}
		}
		if len(cfg.Vars) > len(original) {
			t.Fatalf("filter added keys")
		}
	})
}

func TestInfoRoundTrip(t *testing.T) {
	peer := "127.0.0.1:5555"
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	info := &Info{
		Request: Request{
			URI:      "/hook/deploy",
			Method:   "POST",
			Version:  "HTTP/1.1",
			Headers:  map[string]string{"content-type": "application/json"},
			PeerAddr: &peer,
		},
		Config: Hook{
			Command:     "/bin/true",
			WorkDir:     "/tmp",
			AllowedKeys: []string{"A"},
			Timeout:     Duration(30 * time.Second),
		},
		Vars:    map[string]string{"A": "1"},
		Running: true,
		Started: started,
	}

	data, err := MarshalInfo(info)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timeout": "30s"`)
	assert.NotContains(t, string(data), "finished")
	assert.NotContains(t, string(data), "success")
	assert.NotContains(t, string(data), "timed_out")

	parsed, err := UnmarshalInfo(data)
	require.NoError(t, err)
	assert.True(t, parsed.Running)
	assert.True(t, parsed.Started.Equal(started))
	assert.Equal(t, info.Config, parsed.Config)
	assert.Equal(t, info.Vars, parsed.Vars)
	require.NotNil(t, parsed.Request.PeerAddr)
	assert.Equal(t, peer, *parsed.Request.PeerAddr)
}

func TestUnmarshalInfoLegacyRecord(t *testing.T) {
	legacy := `{
  "request": {"uri": "/hook/x", "method": "POST", "version": "HTTP/1.1", "headers": {}},
  "config": {"command": "echo", "work_dir": "/", "allowed_keys": []},
  "running": false,
  "started": "2021-05-04T10:00:00Z",
  "finished": "2021-05-04T10:00:02Z",
  "success": true
}`

	info, err := UnmarshalInfo([]byte(legacy))
	require.NoError(t, err)
	assert.False(t, info.Running)
	assert.Nil(t, info.Vars)
	assert.Nil(t, info.Request.PeerAddr)
	assert.Nil(t, info.TimedOut)
	require.NotNil(t, info.Success)
	assert.True(t, *info.Success)
	assert.Equal(t, 2*time.Second, info.Duration())
	assert.Equal(t, "success", info.Result())
}

func TestInfoFinish(t *testing.T) {
	started := time.Now()
	info := &Info{Running: true, Started: started}
	assert.Equal(t, "running", info.Result())
	assert.Zero(t, info.Duration())

	info.Finish(false, true, started.Add(time.Second))
	assert.False(t, info.Running)
	require.NotNil(t, info.TimedOut)
	assert.Equal(t, "timeout", info.Result())
	assert.Equal(t, time.Second, info.Duration())

	plain := &Info{Running: true, Started: started}
	plain.Finish(false, false, started)
	assert.Nil(t, plain.TimedOut)
	assert.Equal(t, "failure", plain.Result())
}

func TestDurationYAML(t *testing.T) {
	var hook Hook
	err := yaml.Unmarshal([]byte("command: ls\ntimeout: 1m30s\n"), &hook)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, hook.Timeout.Std())

	err = yaml.Unmarshal([]byte("command: ls\ntimeout: soon\n"), &hook)
	assert.Error(t, err)
}

func TestDurationJSONNumber(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte("1000000000")))
	assert.Equal(t, time.Second, d.Std())
}

func TestParseStream(t *testing.T) {
	s, err := ParseStream("stdout")
	require.NoError(t, err)
	assert.Equal(t, Stdout, s)
	assert.Equal(t, "stderr.txt", Stderr.FileName())

	_, err = ParseStream("stdin")
	assert.Error(t, err)
}
