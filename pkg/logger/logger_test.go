package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "gift accepted",
		String("broadcaster", "alice"),
		Int64("coins", 100),
		Bool("frozen", false),
		Duration("window", 5*time.Second),
		Error(errors.New("boom")),
	)

	out := buf.String()
	for _, want := range []string{"gift accepted", "broadcaster=alice", "coins=100", "frozen=false", "window=5s", "error=boom", "source="} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in log output %q", want, out)
		}
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf), WithJSON(true)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	Get().Warn(context.Background(), "json line", String("k", "v"))
	if !strings.Contains(buf.String(), `"k":"v"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	namedLogger := Named("registry")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}
	namedLogger.Info(context.Background(), "test message")
	if !strings.Contains(buf.String(), "component=registry") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	if err := SetLevelString("bogus"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	for _, lv := range []string{"warning", "DEBUG", "info+2", ""} {
		if err := SetLevelString(lv); err != nil {
			t.Fatalf("level %q: unexpected error: %v", lv, err)
		}
	}
	if err := SetLevelString("error"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Info(context.Background(), "suppressed")
	if buf.Len() != 0 {
		t.Errorf("info should be suppressed at error level, got %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info(context.Background(), "nothing")
	l.Named("x").Debug(nil, "nil ctx is fine") //nolint:staticcheck // exercising nil ctx handling
}
