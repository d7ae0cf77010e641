package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	t.Run("filters below the minimum level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger("test", LevelWarn)
		l.SetOutput(&buf)

		l.Info("hidden")
		l.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "[WARN]")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("fields are written in key order", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger("test", LevelDebug)
		l.SetOutput(&buf)

		l.WithFields(map[string]interface{}{"zeta": 1, "alpha": 2}).
			WithError(errors.New("boom")).
			Info("msg")

		line := buf.String()
		assert.True(t, strings.Index(line, "alpha=2") < strings.Index(line, "error=boom"))
		assert.True(t, strings.Index(line, "error=boom") < strings.Index(line, "zeta=1"))
	})

	t.Run("WithError ignores nil", func(t *testing.T) {
		l := NewLogger("test", LevelInfo)
		assert.Same(t, l, l.WithError(nil))
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestProofingMetricsNilSafe(t *testing.T) {
	var m *ProofingMetrics
	assert.NotPanics(t, func() {
		m.RecordReplacement(nil, "created")
		m.RecordDigest(nil, 1, true)
		m.RecordSessionCreated(nil, false)
		m.RecordReconcileRun(nil, "ok")
	})
}
