package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadResolvesConfig(t *testing.T) {
	path := writeConfig(t, `{
		"exchange": {
			"websocketUrl": "wss://stream.example.com/v1",
			"instruments": ["BTC_JPY", "ETH_JPY"],
			"keepaliveSec": 15
		},
		"book": {
			"feeRate": 0.0005,
			"volumePrecision": 8,
			"notionalPrecision": 4,
			"originBalance": "1000000",
			"destinationBalance": "0.5"
		},
		"replay": {
			"from": "2026-08-01T00:00:00Z",
			"to": "2026-08-02T00:00:00Z",
			"speed": 0
		}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://stream.example.com/v1", loaded.WebsocketURL)
	require.Len(t, loaded.Instruments, 2)
	assert.EqualValues(t, "BTC_JPY", loaded.Instruments[0])
	assert.Equal(t, "0.0005", loaded.Ledger.FeeRate.String())
	assert.Equal(t, "1000000", loaded.Origin.String())
	assert.Equal(t, "0.5", loaded.Destination.String())
	assert.Equal(t, int64(86_400_000), loaded.ReplayToMs-loaded.ReplayFromMs)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	for name, body := range map[string]string{
		"no instruments": `{"exchange": {"instruments": []}}`,
		"bad fee rate":   `{"exchange": {"instruments": ["BTC_JPY"]}, "book": {"feeRate": 1.5}}`,
		"negative balance": `{
			"exchange": {"instruments": ["BTC_JPY"]},
			"book": {"originBalance": "-10"}
		}`,
		"empty replay window": `{
			"exchange": {"instruments": ["BTC_JPY"]},
			"replay": {"from": "2026-08-02T00:00:00Z", "to": "2026-08-01T00:00:00Z"}
		}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
