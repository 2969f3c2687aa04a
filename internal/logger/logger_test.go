package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLogsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.InfoLevel).With(String("region", "england"))

	l.Warn("target date before match date",
		Date("target", time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)),
		Int("matches", 3),
		Float("strength", 0.5),
		Strings("teams", []string{"Arsenal", "Everton"}),
		Error(errors.New("boom")),
	)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "england", event["region"])
	assert.Equal(t, "2024-03-02", event["target"])
	assert.EqualValues(t, 3, event["matches"])
	assert.Equal(t, "Arsenal, Everton", event["teams"])
	assert.Equal(t, "boom", event["error"])
}

func TestWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	Nop().Error("dropped", Bool("ok", false))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stderr"})
	assert.Error(t, err)

	l, err := New(&Config{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}
