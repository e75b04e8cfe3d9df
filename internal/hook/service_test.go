package hook

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"yqhp/hookd/internal/model"
	"yqhp/hookd/internal/shard"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hooks are exercised with /bin/sh")
	}
}

func shellHook(script string, allowed ...string) model.Hook {
	return model.Hook{
		Command:     "/bin/sh",
		Args:        []string{"-c", script},
		WorkDir:     os.TempDir(),
		AllowedKeys: allowed,
	}
}

// recordingObserver remembers every event it receives.
type recordingObserver struct {
	mu       sync.Mutex
	started  []uuid.UUID
	finished []*model.Info
	failures []ErrorCode
}

func (o *recordingObserver) InstanceStarted(_ context.Context, id uuid.UUID, _ string, _ *model.Info) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, id)
	return nil
}

func (o *recordingObserver) LaunchFailed(_ context.Context, _ string, code ErrorCode) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, code)
	return nil
}

func (o *recordingObserver) InstanceFinished(_ context.Context, _ uuid.UUID, _ string, info *model.Info) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, info)
	return nil
}

func newTestService(t *testing.T, hooks map[string]model.Hook, opts ...Option) (*Service, string) {
	t.Helper()
	dataDir := t.TempDir()
	return NewService(hooks, shard.New(dataDir), zap.NewNop(), opts...), dataDir
}

func waitAll(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))
}

func testRequest() model.Request {
	return model.Request{
		URI:     "/hook/test",
		Method:  "POST",
		Version: "HTTP/1.1",
		Headers: map[string]string{},
	}
}

func TestStartUnknownHook(t *testing.T) {
	obs := &recordingObserver{}
	svc, dataDir := newTestService(t, nil, WithObserver(obs))

	id, err := svc.Start(context.Background(), "missing", &model.CreateConfig{}, testRequest())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, []ErrorCode{ErrCodeNotFound}, obs.failures)

	var records []string
	_ = filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			records = append(records, path)
		}
		return nil
	})
	assert.Empty(t, records)
}

func TestStartReportsRunningImmediately(t *testing.T) {
	skipOnWindows(t)
	svc, _ := newTestService(t, map[string]model.Hook{
		"slow": shellHook("sleep 1"),
	})

	id, err := svc.Start(context.Background(), "slow", nil, testRequest())
	require.NoError(t, err)

	info, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, info.Running)
	assert.Nil(t, info.Finished)
	assert.Nil(t, info.Success)
	assert.Nil(t, info.TimedOut)
	assert.Equal(t, "/bin/sh", info.Config.Command)
	assert.Equal(t, "/hook/test", info.Request.URI)

	waitAll(t, svc)
}

func TestStartReturnsFreshIDs(t *testing.T) {
	skipOnWindows(t)
	svc, _ := newTestService(t, map[string]model.Hook{"ok": shellHook("true")})

	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 20; i++ {
		id, err := svc.Start(context.Background(), "ok", nil, testRequest())
		require.NoError(t, err)
		assert.False(t, seen[id], "id %s reused", id)
		seen[id] = true
	}
	waitAll(t, svc)
}

func TestSuccessfulInstance(t *testing.T) {
	skipOnWindows(t)
	obs := &recordingObserver{}
	svc, _ := newTestService(t, map[string]model.Hook{
		"greet": shellHook(`echo "hello $NAME"; echo oops >&2`, "NAME"),
	}, WithObserver(obs))

	create := &model.CreateConfig{Vars: map[string]string{"NAME": "world", "EVIL": "1"}}
	id, err := svc.Start(context.Background(), "greet", create, testRequest())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"NAME": "world"}, create.Vars)

	waitAll(t, svc)

	info, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, info.Running)
	require.NotNil(t, info.Success)
	assert.True(t, *info.Success)
	require.NotNil(t, info.Finished)
	assert.False(t, info.Finished.Before(info.Started))
	assert.Nil(t, info.TimedOut)
	assert.Equal(t, map[string]string{"NAME": "world"}, info.Vars)

	stdout, err := svc.ReadLog(context.Background(), model.Stdout, id, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", stdout.Content)

	stderr, err := svc.ReadLog(context.Background(), model.Stderr, id, nil)
	require.NoError(t, err)
	assert.Equal(t, "oops\n", stderr.Content)

	assert.Equal(t, []uuid.UUID{id}, obs.started)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, "success", obs.finished[0].Result())
}

func TestDisallowedVarsDoNotReachChild(t *testing.T) {
	skipOnWindows(t)
	svc, _ := newTestService(t, map[string]model.Hook{
		"env": shellHook(`echo "[$SECRET]"`),
	})

	id, err := svc.Start(context.Background(), "env", &model.CreateConfig{Vars: map[string]string{"SECRET": "x"}}, testRequest())
	require.NoError(t, err)
	waitAll(t, svc)

	chunk, err := svc.ReadLog(context.Background(), model.Stdout, id, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", chunk.Content)

	info, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, info.Vars)
}

func TestAuxDirIsExported(t *testing.T) {
	skipOnWindows(t)
	svc, _ := newTestService(t, map[string]model.Hook{
		"aux": shellHook(`echo "$HOOKD_AUX_DIR"; echo artifact > "$HOOKD_AUX_DIR/out"`),
	})

	id, err := svc.Start(context.Background(), "aux", nil, testRequest())
	require.NoError(t, err)
	waitAll(t, svc)

	paths := svc.sharder.Paths(id)
	aux, err := filepath.Abs(paths.Aux())
	require.NoError(t, err)

	chunk, err := svc.ReadLog(context.Background(), model.Stdout, id, nil)
	require.NoError(t, err)
	assert.Equal(t, aux+"\n", chunk.Content)
	assert.FileExists(t, filepath.Join(aux, "out"))
}

func TestWorkDir(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	h := shellHook("pwd")
	h.WorkDir = dir
	svc, _ := newTestService(t, map[string]model.Hook{"pwd": h})

	id, err := svc.Start(context.Background(), "pwd", nil, testRequest())
	require.NoError(t, err)
	waitAll(t, svc)

	chunk, err := svc.ReadLog(context.Background(), model.Stdout, id, nil)
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, strings.TrimSpace(chunk.Content))
}

func TestFailedInstance(t *testing.T) {
	skipOnWindows(t)
	svc, _ := newTestService(t, map[string]model.Hook{"fail": shellHook("exit 3")})

	id, err := svc.Start(context.Background(), "fail", nil, testRequest())
	require.NoError(t, err)
	waitAll(t, svc)

	info, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, info.Running)
	require.NotNil(t, info.Success)
	assert.False(t, *info.Success)
	assert.Nil(t, info.TimedOut)
	assert.Equal(t, "failure", info.Result())
}

func TestTimedOutInstance(t *testing.T) {
	skipOnWindows(t)
	h := shellHook("echo started; exec sleep 30")
	h.Timeout = model.Duration(200 * time.Millisecond)
	svc, _ := newTestService(t, map[string]model.Hook{"slow": h})

	begin := time.Now()
	id, err := svc.Start(context.Background(), "slow", nil, testRequest())
	require.NoError(t, err)
	waitAll(t, svc)
	assert.Less(t, time.Since(begin), 10*time.Second)

	info, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, info.Running)
	require.NotNil(t, info.Success)
	assert.False(t, *info.Success)
	require.NotNil(t, info.TimedOut)
	assert.True(t, *info.TimedOut)

	chunk, err := svc.ReadLog(context.Background(), model.Stdout, id, nil)
	require.NoError(t, err)
	assert.Equal(t, "started\n", chunk.Content)
}

func TestSpawnFailureLeavesRunningRecord(t *testing.T) {
	obs := &recordingObserver{}
	svc, dataDir := newTestService(t, map[string]model.Hook{
		"broken": {Command: "/nonexistent/hookd-test-binary", WorkDir: os.TempDir()},
	}, WithObserver(obs))

	_, err := svc.Start(context.Background(), "broken", nil, testRequest())
	require.Error(t, err)
	assert.True(t, IsInternal(err))
	assert.Equal(t, []ErrorCode{ErrCodeInternal}, obs.failures)

	var records []string
	_ = filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.Name() == "info.json" {
			records = append(records, path)
		}
		return nil
	})
	require.Len(t, records, 1)

	info, err := readRecord(records[0])
	require.NoError(t, err)
	assert.True(t, info.Running)
	assert.Nil(t, info.Success)
}

func TestFinalizeFailureIsLoggedNotFabricated(t *testing.T) {
	skipOnWindows(t)
	core, logs := observer.New(zap.ErrorLevel)
	dataDir := t.TempDir()
	obs := &recordingObserver{}
	svc := NewService(map[string]model.Hook{"slow": shellHook("sleep 0.3")}, shard.New(dataDir), zap.New(core), WithObserver(obs))

	id, err := svc.Start(context.Background(), "slow", nil, testRequest())
	require.NoError(t, err)

	// corrupt the record before the supervisor rewrites it
	require.NoError(t, os.WriteFile(svc.sharder.Paths(id).Info(), []byte("{not json"), 0o644))
	waitAll(t, svc)

	entries := logs.FilterMessage("finalize failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, id.String(), entries[0].ContextMap()["id"])
	assert.Empty(t, obs.finished)

	_, err = svc.Status(context.Background(), id)
	assert.True(t, IsInternal(err))
}

func TestStatusNotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Status(context.Background(), uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestWaitHonoursContext(t *testing.T) {
	skipOnWindows(t)
	svc, _ := newTestService(t, map[string]model.Hook{"slow": shellHook("sleep 1")})

	_, err := svc.Start(context.Background(), "slow", nil, testRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Wait(ctx), context.DeadlineExceeded)

	waitAll(t, svc)
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv(map[string]string{"B": "2", "A": "1"}, "/data/aux")

	n := len(env)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, []string{"A=1", "B=2", "HOOKD_AUX_DIR=/data/aux"}, env[n-3:])
}

func TestHookNames(t *testing.T) {
	svc, _ := newTestService(t, map[string]model.Hook{"b": {}, "a": {}})
	assert.Equal(t, []string{"a", "b"}, svc.HookNames())
	_, ok := svc.Hook("a")
	assert.True(t, ok)
}
