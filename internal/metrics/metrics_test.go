package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestRecorderExposesOperations(t *testing.T) {
	r := New()
	r.Observe("deposit", time.Now(), nil)
	r.Observe("deposit", time.Now(), nil)
	r.Observe("withdraw", time.Now(), errors.New("insufficient funds"))
	r.SetPooledValue(150)

	body := scrape(t, r)
	for _, want := range []string{
		`custody_operations_total{op="deposit",result="ok"} 2`,
		`custody_operations_total{op="withdraw",result="error"} 1`,
		`custody_vault_pooled_value 150`,
		`custody_operation_duration_seconds_count{op="deposit"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Observe("deposit", time.Now(), nil)
	r.SetPooledValue(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil recorder, got %d", rec.Code)
	}
}
