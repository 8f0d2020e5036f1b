package log_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellfuzz/txpoolfuzz/libs/log"
)

func TestLoggerLogsItsErrors(t *testing.T) {
	var buf bytes.Buffer

	logger := log.NewLogger(&buf)
	logger.Error("store write failed", "err", errors.New("disk full"))

	msg := strings.TrimSpace(buf.String())
	assert.Contains(t, msg, "store write failed")
	assert.Contains(t, msg, "disk full")
}

func TestJSONLoggerWith(t *testing.T) {
	var buf bytes.Buffer

	logger := log.NewJSONLoggerNoTS(&buf).With("module", "fuzzer")
	logger.Info("iteration done", "height", 7)

	assert.Equal(t, `{"level":"INFO","msg":"iteration done","module":"fuzzer","height":7}`, strings.TrimSpace(buf.String()))
}

func TestNopLogger(t *testing.T) {
	logger := log.NewNopLogger()
	logger.With("module", "x").Info("nothing")
	assert.Nil(t, logger.Impl())
}
