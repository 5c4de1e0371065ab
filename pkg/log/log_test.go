package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   Level
		want zerolog.Level
	}{
		{DebugLevel, zerolog.DebugLevel},
		{InfoLevel, zerolog.InfoLevel},
		{WarnLevel, zerolog.WarnLevel},
		{ErrorLevel, zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestWithComponent_JSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}})

	logger := WithComponent("executor")
	logger.Info().Str("post_id", "p1").Msg("Post published")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "executor", entry["component"])
	assert.Equal(t, "p1", entry["post_id"])
	assert.Equal(t, "Post published", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestWithComponent_PerEventIDs(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}})

	logger := WithComponent("autoreply")
	logger.Info().Str("rule_id", "r1").Str("user_id", "u1").Msg("Rule processed")
	logger.Info().Str("rule_id", "r2").Msg("Rule processed")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "autoreply", second["component"])
	assert.Equal(t, "r2", second["rule_id"])
	assert.NotContains(t, second, "user_id", "fields do not leak between events")
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}})

	logger := WithComponent("scheduler")
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}
