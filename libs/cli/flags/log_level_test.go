package flags_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tpfflags "github.com/cellfuzz/txpoolfuzz/libs/cli/flags"
	"github.com/cellfuzz/txpoolfuzz/libs/log"
)

const (
	defaultLogLevelValue = "info"
)

func TestParseLogLevel(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger := log.NewJSONLoggerNoTS(&buf)

	correctLogLevels := []struct {
		lvl              string
		expectedLogLines []string
	}{
		{"mempool:error", []string{
			``, // if no default is given, assume info
			``,
			`{"level":"ERROR","msg":"Rejected","module":"mempool"}`,
			`{"level":"INFO","msg":"Sealed","module":"fuzzer"}`,
			``,
		}},

		{"mempool:error,*:debug", []string{
			`{"level":"DEBUG","msg":"Verifying","module":"mempool","module":"proxy"}`,
			``,
			`{"level":"ERROR","msg":"Rejected","module":"mempool"}`,
			`{"level":"INFO","msg":"Sealed","module":"fuzzer"}`,
			`{"level":"DEBUG","msg":"Drawn"}`,
		}},

		{"*:debug,proxy:none", []string{
			``,
			`{"level":"INFO","msg":"Accepted","module":"mempool"}`,
			`{"level":"ERROR","msg":"Rejected","module":"mempool"}`,
			`{"level":"INFO","msg":"Sealed","module":"fuzzer"}`,
			`{"level":"DEBUG","msg":"Drawn"}`,
		}},
	}

	for _, c := range correctLogLevels {
		logger, err := tpfflags.ParseLogLevel(c.lvl, jsonLogger, defaultLogLevelValue)
		require.NoError(t, err)

		emit := []func(){
			func() { logger.With("module", "mempool").With("module", "proxy").Debug("Verifying") },
			func() { logger.With("module", "mempool").Info("Accepted") },
			func() { logger.With("module", "mempool").Error("Rejected") },
			func() { logger.With("module", "fuzzer").Info("Sealed") },
			func() { logger.Debug("Drawn") },
		}
		for i, fn := range emit {
			buf.Reset()
			fn()
			assert.Equal(t, c.expectedLogLines[i], strings.TrimSpace(buf.String()), "level %q line %d", c.lvl, i)
		}
	}

	incorrectLogLevel := []string{"some", "mempool:some", "*:some,mempool:error"}
	for _, lvl := range incorrectLogLevel {
		_, err := tpfflags.ParseLogLevel(lvl, jsonLogger, defaultLogLevelValue)
		assert.Error(t, err, lvl)
	}
}
