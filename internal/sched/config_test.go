package sched

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require.Equal(t, defaultConfig(), Load(""))
	require.Equal(t, defaultConfig(), Load("does/not/exist.yml"))
}

func TestLoadOverridesAndClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte("frame_ms: -3\nnormal_ms: 7000\nlow_ms: 0\nevent_buffer: 16\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg := Load(path)
	require.Equal(t, defaultConfig().FrameMS, cfg.FrameMS, "non-positive values clamp to defaults")
	require.Equal(t, 7000, cfg.NormalMS)
	require.Equal(t, defaultConfig().LowMS, cfg.LowMS)
	require.Equal(t, 16, cfg.EventBuffer)
	require.Equal(t, defaultConfig().UserBlockingMS, cfg.UserBlockingMS, "unset fields keep defaults")
}

func TestTimeoutTable(t *testing.T) {
	cfg := defaultConfig()

	require.Negative(t, cfg.timeout(ImmediatePriority), "immediate tasks are born expired")
	require.Equal(t, 250*time.Millisecond, cfg.timeout(UserBlockingPriority))
	require.Equal(t, 5*time.Second, cfg.timeout(NormalPriority))
	require.Equal(t, 10*time.Second, cfg.timeout(LowPriority))
	require.Greater(t, cfg.timeout(IdlePriority), 100*365*24*time.Hour, "idle never expires in practice")

	require.Equal(t, cfg.timeout(NormalPriority), cfg.timeout(PriorityLevel(0)), "unknown levels read as Normal")

	require.Less(t, cfg.timeout(ImmediatePriority), cfg.timeout(UserBlockingPriority))
	require.Less(t, cfg.timeout(UserBlockingPriority), cfg.timeout(NormalPriority))
	require.Less(t, cfg.timeout(NormalPriority), cfg.timeout(LowPriority))
	require.Less(t, cfg.timeout(LowPriority), cfg.timeout(IdlePriority))
}

func TestFrame(t *testing.T) {
	require.Equal(t, 5*time.Millisecond, defaultConfig().Frame())
}
