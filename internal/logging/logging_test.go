package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	defer func() { _ = Setup(DefaultConfig()) }()

	require.NoError(t, Setup(Config{Level: "debug", Format: "JSON"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	require.NoError(t, Setup(DefaultConfig()))
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)
}

func TestSetup_Invalid(t *testing.T) {
	assert.Error(t, Setup(Config{Level: "loud", Format: "text"}))
	assert.Error(t, Setup(Config{Level: "info", Format: "xml"}))
}
