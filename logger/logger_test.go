package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithOutput(&Config{Level: "warn"}, &buf))
	t.Cleanup(func() { _ = Init(nil) })

	assert.Equal(t, logrus.WarnLevel, Log.GetLevel())
	Infof("hidden")
	WithField("symbol", "BTC").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "symbol=BTC")
}

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithOutput(&Config{JSON: true}, &buf))
	t.Cleanup(func() { _ = Init(nil) })

	WithFields(logrus.Fields{"step": 3}).Info("fill")
	assert.Contains(t, buf.String(), `"step":3`)
}

func TestInitBadLevel(t *testing.T) {
	assert.Error(t, InitWithOutput(&Config{Level: "loud"}, &bytes.Buffer{}))
}

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	assert.Equal(t, "info", c.Level)
}
