package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigFlagOverrides(t *testing.T) {
	t.Setenv("LQ_QUERIES_FILE", "/etc/livequery/env.toml")
	t.Setenv("LQ_CHANNEL", "from_env")

	config, err := parseConfig()
	require.NoError(t, err)
	assert.Equal(t, "/etc/livequery/env.toml", config.QueriesFile)
	assert.Equal(t, "from_env", config.Channel)

	queriesPath, channel, dbPort = "/tmp/queries.toml", "from_flag", 6543
	t.Cleanup(func() { queriesPath, channel, dbPort = "", "", 0 })

	config, err = parseConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/queries.toml", config.QueriesFile)
	assert.Equal(t, "from_flag", config.Channel)
	assert.Equal(t, 6543, config.Database.Port)
}
