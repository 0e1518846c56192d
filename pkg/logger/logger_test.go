package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_KeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.With("request_id", "abc").Info("lead merged", "primary_id", 1, "duplicate_id", 2)
	log.Warn("degraded read", "view", "dashboard")
	log.Debug("noise")

	entries := logs.All()
	require.Len(t, entries, 3)

	fields := entries[0].ContextMap()
	assert.Equal(t, "lead merged", entries[0].Message)
	assert.Equal(t, "abc", fields["request_id"])
	assert.EqualValues(t, 1, fields["primary_id"])
	assert.EqualValues(t, 2, fields["duplicate_id"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l, err := New(level, "json", "leaddesk-test")
		require.NoError(t, err, level)
		assert.NotNil(t, l)
	}

	l, err := New("info", "console", "")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().With("k", "v").Error("ignored", "err", "boom")
	})
}
