package cmd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/numcheck/internal/config"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
)

func TestCollectNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numbers.txt")
	content := "# customers\n03001234567\n\n  +92 311 1234567 , 0345-1234567\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := collectNumbers([]string{"3001112222,3001113333"}, path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"3001112222", "3001113333", "03001234567", "+92 311 1234567", "0345-1234567"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := collectNumbers(nil, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file did not fail")
	}
}

func TestPrintResults(t *testing.T) {
	yes := true
	results := []verify.Result{
		{Input: "03001234567", Canonical: "+923001234567", Status: verify.StatusValid, Registered: &yes, Carrier: "Jazz"},
		{Input: "abc", Status: verify.StatusInvalid, Error: "invalid phone number format"},
	}
	var buf bytes.Buffer
	printResults(&buf, results)
	out := buf.String()

	for _, want := range []string{"+923001234567", "Jazz", "invalid phone number format", "2 checked: 1 registered"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sessions.MaxReconnectAttempts = 4
	cfg.Sessions.ReconnectBackoff = true

	sc := sessionConfig(cfg.Sessions)
	if sc.StuckThreshold != time.Minute || sc.Reconnect.Delay != 3*time.Second {
		t.Errorf("session config = %+v", sc)
	}
	if sc.Reconnect.MaxAttempts != 4 || !sc.Reconnect.Backoff || sc.Reconnect.MaxDelay != time.Minute {
		t.Errorf("reconnect policy = %+v", sc.Reconnect)
	}

	vs := verifySettings(cfg.Verify)
	want := verify.Settings{
		MaxItems:      5000,
		BatchSize:     5,
		QueryInterval: 2 * time.Second,
		BatchCooldown: time.Second,
		QueryTimeout:  20 * time.Second,
		HistorySize:   50,
	}
	if vs != want {
		t.Errorf("verify settings = %+v, want %+v", vs, want)
	}
}

func TestParseLevelAndMask(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug || parseLevel("warning") != slog.LevelWarn || parseLevel("bogus") != slog.LevelInfo {
		t.Error("parseLevel mapping wrong")
	}
	if got := maskSecret("0123456789abcdef"); got != "0123****cdef" {
		t.Errorf("mask long = %q", got)
	}
	if got := maskSecret("short"); got != "****" {
		t.Errorf("mask short = %q", got)
	}

	cfg := config.Default()
	cfg.Gateway.Token = "0123456789abcdef"
	if redactConfig(cfg).Gateway.Token == cfg.Gateway.Token {
		t.Error("redactConfig leaked the token")
	}
	if cfg.Gateway.Token != "0123456789abcdef" {
		t.Error("redactConfig modified the original")
	}
}

func TestGatewayURL(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Host = "0.0.0.0"
	cfg.Gateway.Port = 9000
	if got := gatewayURL(cfg); got != "ws://127.0.0.1:9000/ws" {
		t.Errorf("gatewayURL = %s", got)
	}
}
