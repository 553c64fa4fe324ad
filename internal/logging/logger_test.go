package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONCarriesServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, Options{Level: "debug", Service: "custody", Env: "test"}), "bank")
	logger.Debug("bank.deposit completed", "amount", 5)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a JSON record, got %q: %v", buf.String(), err)
	}
	for key, want := range map[string]any{"service": "custody", "env": "test", "component": "bank", "amount": float64(5)} {
		if rec[key] != want {
			t.Fatalf("expected %s=%v, got %v", key, want, rec[key])
		}
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Level: "chatty", Format: "text"})
	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown") {
		t.Fatalf("unexpected output %q", out)
	}
}
