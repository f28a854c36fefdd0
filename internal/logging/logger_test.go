package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		env, level string
		want       zerolog.Level
	}{
		{"production", "warn", zerolog.WarnLevel},
		{"production", "", zerolog.InfoLevel},
		{"production", "bogus", zerolog.InfoLevel},
		{"development", "error", zerolog.DebugLevel},
		{"development", "trace", zerolog.TraceLevel},
	}
	for _, tc := range cases {
		t.Run(tc.env+"/"+tc.level, func(t *testing.T) {
			assert.Equal(t, tc.want, New(tc.env, tc.level).GetLevel())
		})
	}
}
