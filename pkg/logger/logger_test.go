package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevelAndFormat(t *testing.T) {
	log := New(LoggingConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	_, ok := log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok, "formatter should be JSON")

	log = New(LoggingConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestComponentFieldIsAttached(t *testing.T) {
	log := NewDefault("cart")
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	log.WithField("item", "p1").Info("added")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cart", line["component"])
	assert.Equal(t, "p1", line["item"])
	assert.Equal(t, "added", line["msg"])
}

func TestWithContextReturnsStoredEntry(t *testing.T) {
	log := NewDefault("http")
	entry := log.WithField("request_id", "abc")
	ctx := IntoContext(context.Background(), entry)

	assert.Same(t, entry, log.WithContext(ctx))
	assert.NotSame(t, entry, log.WithContext(context.Background()))
}

func TestNamedSharesSink(t *testing.T) {
	root := New(LoggingConfig{})
	child := root.Named("checkout")
	assert.Same(t, root.Logger, child.Logger)
	assert.Equal(t, "checkout", child.Component())
}
