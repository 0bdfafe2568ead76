package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsLedgerSettings(t *testing.T) {
	t.Setenv("JOB_FREE_WINDOW_DAYS", "14")
	t.Setenv("JOB_PAID_WINDOW_DAYS", "")
	t.Setenv("SWEEP_PENDING_AFTER", "6h")
	t.Setenv("BOOTSTRAP_OPERATOR_ID", "1001")
	t.Setenv("SNOWFLAKE_NODE", "")

	cfg := Load()

	assert.Equal(t, 14, cfg.Jobs.FreeWindowDays)
	assert.Equal(t, 60, cfg.Jobs.PaidWindowDays)
	assert.Equal(t, 6*time.Hour, cfg.Sweep.PendingAfter)
	assert.Equal(t, int64(1001), cfg.BootstrapOperatorID)
	assert.Equal(t, int64(-1), cfg.SnowflakeNode)
}

func TestIDNodePrefersOverride(t *testing.T) {
	node, err := IDNode(Config{SnowflakeNode: -1}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), node.Generate().Node())

	node, err = IDNode(Config{SnowflakeNode: 7}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(7), node.Generate().Node())

	_, err = IDNode(Config{SnowflakeNode: 5000}, 2)
	assert.Error(t, err)
}
