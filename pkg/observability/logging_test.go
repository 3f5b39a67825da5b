package observability

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestDetermineLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := DetermineLogLevel(in); got != want {
			t.Errorf("DetermineLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewConfig(t *testing.T) {
	c := NewConfig("debug", "console")
	if c.Encoding != "console" || c.Level.Level() != zapcore.DebugLevel {
		t.Fatalf("config = %s/%v", c.Encoding, c.Level.Level())
	}
	if c.InitialFields["service"] != serviceName {
		t.Fatalf("initial fields = %v", c.InitialFields)
	}
	if NewConfig("info", "").Encoding != "json" {
		t.Fatal("json is the default encoding")
	}
}
