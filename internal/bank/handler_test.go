package bank

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/middleware"
	"github.com/congo-pay/custody/internal/store"
	"github.com/congo-pay/custody/internal/transfer"
)

func newTestApp(f *fixture, caller address.Address) *fiber.App {
	h := NewHandler(f.engine, f.journal)
	app := fiber.New()
	app.Get("/bank/vault", h.Vault)
	api := app.Group("/bank", middleware.WithCaller(caller))
	api.Post("/initialize", h.Initialize)
	api.Post("/accounts", h.CreateAccount)
	api.Get("/accounts/me", h.Account)
	api.Delete("/accounts/me", h.CloseAccount)
	api.Post("/deposit", h.Deposit)
	api.Post("/withdraw", h.Withdraw)
	api.Get("/stats", h.Stats)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func memoryNative() variant {
	return variant{name: "native", store: func(*testing.T) store.Store { return store.NewMemory() }, holder: transfer.Native{}}
}

func TestHandlerFlow(t *testing.T) {
	f := newFixture(t, memoryNative(), testRent)
	owner := newOwner(t)
	f.fund(owner, 1_000)
	app := newTestApp(f, owner)

	if status, _ := call(t, app, fiber.MethodGet, "/bank/vault", ""); status != fiber.StatusNotFound {
		t.Fatalf("expected %d before initialize, got %d", fiber.StatusNotFound, status)
	}
	status, body := call(t, app, fiber.MethodPost, "/bank/initialize", "")
	if status != fiber.StatusCreated {
		t.Fatalf("initialize: expected %d, got %d", fiber.StatusCreated, status)
	}
	if body["authority"] != owner.String() {
		t.Fatalf("unexpected authority %v", body["authority"])
	}
	if status, _ := call(t, app, fiber.MethodPost, "/bank/initialize", ""); status != fiber.StatusConflict {
		t.Fatalf("second initialize: expected %d, got %d", fiber.StatusConflict, status)
	}

	if status, _ := call(t, app, fiber.MethodGet, "/bank/accounts/me", ""); status != fiber.StatusNotFound {
		t.Fatalf("account before create: expected %d, got %d", fiber.StatusNotFound, status)
	}
	status, body = call(t, app, fiber.MethodPost, "/bank/accounts", "")
	if status != fiber.StatusCreated {
		t.Fatalf("create account: expected %d, got %d", fiber.StatusCreated, status)
	}
	if body["allowance"] != float64(SubAccountSize*testRent) {
		t.Fatalf("unexpected allowance %v", body["allowance"])
	}

	status, body = call(t, app, fiber.MethodPost, "/bank/deposit", `{"amount":100}`)
	if status != fiber.StatusOK {
		t.Fatalf("deposit: expected %d, got %d", fiber.StatusOK, status)
	}
	if body["deposit_amount"] != float64(100) || body["pooled_value"] != float64(100) {
		t.Fatalf("unexpected deposit receipt %v", body)
	}

	if status, _ := call(t, app, fiber.MethodPost, "/bank/withdraw", `{"amount":101}`); status != fiber.StatusUnprocessableEntity {
		t.Fatalf("overdraw: expected %d, got %d", fiber.StatusUnprocessableEntity, status)
	}
	if status, _ := call(t, app, fiber.MethodDelete, "/bank/accounts/me", ""); status != fiber.StatusConflict {
		t.Fatalf("close non-empty: expected %d, got %d", fiber.StatusConflict, status)
	}
	if status, _ := call(t, app, fiber.MethodPost, "/bank/withdraw", `{"amount":"lots"}`); status != fiber.StatusBadRequest {
		t.Fatalf("bad body: expected %d, got %d", fiber.StatusBadRequest, status)
	}

	status, body = call(t, app, fiber.MethodPost, "/bank/withdraw", `{"amount":100}`)
	if status != fiber.StatusOK || body["deposit_amount"] != float64(0) {
		t.Fatalf("withdraw: %d %v", status, body)
	}
	status, body = call(t, app, fiber.MethodDelete, "/bank/accounts/me", "")
	if status != fiber.StatusOK || body["status"] != "closed" {
		t.Fatalf("close: %d %v", status, body)
	}

	status, body = call(t, app, fiber.MethodGet, "/bank/stats?limit=2", "")
	if status != fiber.StatusOK {
		t.Fatalf("stats: expected %d, got %d", fiber.StatusOK, status)
	}
	recent, ok := body["recent"].([]any)
	if !ok || len(recent) != 2 {
		t.Fatalf("expected two recent events, got %v", body["recent"])
	}
	stats, _ := body["stats"].(map[string]any)
	if stats["volume"] != float64(200) {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestHandlerRejectsForeignSubAccount(t *testing.T) {
	f := newFixture(t, memoryNative(), testRent)
	f.initialize()
	alice := f.openAccount(500)
	bob := f.openAccount(500)
	aliceAccount, err := f.engine.SubAccountAddress(alice)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	app := newTestApp(f, bob)
	body := `{"amount":10,"sub_account":"` + aliceAccount.String() + `"}`
	if status, _ := call(t, app, fiber.MethodPost, "/bank/deposit", body); status != fiber.StatusForbidden {
		t.Fatalf("expected %d, got %d", fiber.StatusForbidden, status)
	}
}

func TestStatsDisabledWithoutJournal(t *testing.T) {
	f := newFixture(t, memoryNative(), testRent)
	h := NewHandler(f.engine, nil)
	app := fiber.New()
	app.Get("/stats", h.Stats)
	if status, _ := call(t, app, fiber.MethodGet, "/stats", ""); status != fiber.StatusNotFound {
		t.Fatalf("expected %d, got %d", fiber.StatusNotFound, status)
	}
}
