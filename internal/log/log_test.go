package log_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"sdnlab/internal/log"
)

func TestNew(t *testing.T) {
	testCases := map[string]struct {
		Config    log.Config
		Level     zapcore.Level
		AssertErr assert.ErrorAssertionFunc
	}{
		"default": {
			Config:    log.DefaultConfig(),
			Level:     zapcore.InfoLevel,
			AssertErr: assert.NoError,
		},
		"json debug": {
			Config:    log.Config{Level: "debug", Format: log.FormatJSON},
			Level:     zapcore.DebugLevel,
			AssertErr: assert.NoError,
		},
		"bad level": {
			Config:    log.Config{Level: "loud", Format: log.FormatJSON},
			AssertErr: assert.Error,
		},
		"bad format": {
			Config:    log.Config{Level: "info", Format: "xml"},
			AssertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			logger, err := log.New(tc.Config)
			tc.AssertErr(t, err)
			if err != nil {
				return
			}
			require.NotNil(t, logger)
			assert.True(t, logger.Core().Enabled(tc.Level))
			assert.False(t, logger.Core().Enabled(tc.Level-1))
		})
	}
}
