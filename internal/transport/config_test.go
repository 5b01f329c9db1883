package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReactorConfig_Defaults(t *testing.T) {
	cfg, err := ParseReactorConfig("[reactor]\nseed = 42\n", "")
	require.NoError(t, err)

	d := DefaultReactorConfig()
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, d.InitialParticles, cfg.InitialParticles)
	assert.Equal(t, d.Bounds(), cfg.Bounds())
	assert.Equal(t, d.Options, cfg.Options)
	assert.Nil(t, cfg.Notify)
}

func TestParseReactorConfig_AllFields(t *testing.T) {
	text := `
[reactor]
particles = 25
width = 800
height = 400
fission-probability = 0.4
threshold = 50
base-speed = 3
speed-min = 0.2
speed-max = 0.9
margin = 2
spawn-inset = 10
tick-interval-ms = 33

[notify]
enabled = true
notifier = hook
notifier = ws
every-n-ticks = 100
`
	cfg, err := ParseReactorConfig(text, "")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.InitialParticles)
	assert.Equal(t, Bounds{Width: 800, Height: 400}, cfg.Bounds())
	assert.Equal(t, 0.4, cfg.FissionProbability)
	assert.Equal(t, Options{Threshold: 50, BaseSpeed: 3, SpeedMin: 0.2, SpeedMax: 0.9, Margin: 2, SpawnInset: 10}, cfg.Options)
	assert.Equal(t, 33, cfg.TickIntervalMs)

	require.NotNil(t, cfg.Notify)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, []string{"hook", "ws"}, cfg.Notify.Notifiers)
	assert.Equal(t, 100, cfg.Notify.EveryNTicks)
}

func TestParseReactorConfig_Invalid(t *testing.T) {
	_, err := ParseReactorConfig("[reactor]\nfission-probability = 0.9\n", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 1)

	_, err = ParseReactorConfig("[reactor]\nunknown-key = 1\n", "")
	assert.Error(t, err)

	_, err = ParseReactorConfig("[reactor\n", "")
	assert.Error(t, err)
}

func TestLoadReactorConfigFile_WithParticleTable(t *testing.T) {
	dir := t.TempDir()
	particles := "100 100 1 0\n200 150 0 -2\n300 300 1.5 1.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "start.txt"), []byte(particles), 0o644))

	run := "[reactor]\nseed = 7\nparticle-file = start.txt\n"
	path := filepath.Join(dir, "run.gcfg")
	require.NoError(t, os.WriteFile(path, []byte(run), 0o644))

	cfg, err := LoadReactorConfigFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Particles, 3)
	assert.Equal(t, Vec2{X: 200, Y: 150}, cfg.Particles[1].Position)
	assert.Equal(t, Vec2{X: 0, Y: -2}, cfg.Particles[1].Velocity)

	r, err := NewReactor("table", cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, r.State().Population)
}

func TestLoadReactorConfigFile_Missing(t *testing.T) {
	_, err := LoadReactorConfigFile(filepath.Join(t.TempDir(), "none.gcfg"))
	assert.Error(t, err)
}

func TestLoadParticleTable_Missing(t *testing.T) {
	_, err := LoadParticleTable(filepath.Join(t.TempDir(), "none.txt"))
	assert.Error(t, err)
}

func TestReactorConfig_TickInterval(t *testing.T) {
	cfg := DefaultReactorConfig()
	assert.Equal(t, int64(16), cfg.TickInterval().Milliseconds())

	cfg.TickIntervalMs = 0
	assert.Greater(t, cfg.TickInterval().Nanoseconds(), int64(0))
}
