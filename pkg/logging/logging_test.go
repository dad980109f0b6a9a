package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
)

func TestNew_FormatsSIPValues(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatConsole, slog.LevelDebug)

	req := sip.NewRequest(sip.REGISTER, sip.Uri{Scheme: "sip", Host: "example.com"})
	cid := sip.CallIDHeader("call-1")
	req.AppendHeader(&cid)

	logger.Debug("test",
		slog.Any("uri", sip.Uri{Scheme: "sip", User: "alice", Host: "example.com"}),
		slog.Any("request", req),
		slog.Any("error", errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "sip:alice@example.com")
	assert.Contains(t, out, "REGISTER")
	assert.Contains(t, out, "call-1")
	assert.Contains(t, out, "boom")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatDev, ParseLevel("warn"))

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNoop(t *testing.T) {
	logger := New(nil, FormatNoop, slog.LevelDebug)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
	assert.NotPanics(t, func() { logger.With("a", 1).WithGroup("g").Error("x") })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
}
