package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "healthcare-channel", cfg.Channel)
	assert.Equal(t, "medical-records", cfg.Chaincode)
	assert.Equal(t, "HospitalMSP", cfg.MSPID)
	assert.Equal(t, "admin", cfg.Identity)
	assert.Equal(t, "network-config.yaml", cfg.NetworkConfigPath)
	assert.Equal(t, "wallet", cfg.WalletPath)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
channel: research-channel
callTimeout: 5s
batchConcurrency: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "research-channel", cfg.Channel)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, 8, cfg.BatchConcurrency)
	assert.Equal(t, "medical-records", cfg.Chaincode, "unset keys keep defaults")
}

func TestLoad_DefaultFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(DefaultFile, []byte("identity: auditor\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "auditor", cfg.Identity)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channel: from-file\n"), 0o644))
	t.Setenv("MEDLEDGER_CHANNEL", "from-env")
	t.Setenv("MEDLEDGER_CONNECT_TIMEOUT", "250ms")
	t.Setenv("MEDLEDGER_DATABASE_PATH", "/var/lib/medledger/records.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Channel)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, "/var/lib/medledger/records.db", cfg.DatabasePath)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	assert.ErrorContains(t, err, "error reading config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("callTimeout: [1\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "error parsing config file")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("channel: \"\"\nbatchConcurrency: 0\n"), 0o644))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "channel is required")
	assert.ErrorContains(t, err, "batchConcurrency must be at least 1")

	t.Setenv("MEDLEDGER_CALL_TIMEOUT", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "error processing environment")
}

func TestValidate_ReportsMissingFieldsInOrder(t *testing.T) {
	cfg := Default()
	cfg.DatabasePath = ""
	cfg.Channel = ""
	cfg.Identity = ""

	err := cfg.Validate()

	require.Error(t, err)
	assert.Equal(t, "invalid config: databasePath is required\nchannel is required\nidentity is required", err.Error())
	assert.NoError(t, Default().Validate())
}

func TestLedgerConfig(t *testing.T) {
	cfg := Default()
	lc := cfg.Ledger()

	assert.Equal(t, cfg.Channel, lc.Channel)
	assert.Equal(t, cfg.Identity, lc.Identity)
	assert.Equal(t, cfg.CallTimeout, lc.CallTimeout)
}
