package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.WithField("site", "ebay").
		WithFields(Fields{"iteration": 3}).
		WithError(errors.New("boom")).
		Warn().
		Msg("cycle skipped")

	out := buf.String()
	assert.Contains(t, out, `"site":"ebay"`)
	assert.Contains(t, out, `"iteration":3`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, "cycle skipped")
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.Info().Str("url", "https://example.com").Msg("ignored")
	})
}

func TestComponentLoggers(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf)
	Default = New(&buf)

	ForMonitor().Info().Msg("monitor line")
	ForStore().Info().Msg("store line")
	ForFetcher("avito").Info().Msg("fetcher line")

	out := buf.String()
	assert.Contains(t, out, `"component":"monitor"`)
	assert.Contains(t, out, `"component":"store"`)
	assert.Contains(t, out, `"component":"fetcher"`)
	assert.Contains(t, out, `"site":"avito"`)
}

func TestApplyEnvironment(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)
	Default = Nop()

	t.Setenv("LOG_LEVEL", "")
	ApplyEnvironment("production")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	assert.False(t, IsDebugEnabled())

	ApplyEnvironment("development")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	t.Setenv("LOG_LEVEL", "warn")
	ApplyEnvironment("development")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
