package routes

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/mr-tron/base58"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/host"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/metrics"
	"github.com/congo-pay/custody/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		AppName:           "custody-test",
		AppEnv:            "test",
		StoreBackend:      config.BackendMemory,
		IdempotencyTTL:    time.Minute,
		JWTSecret:         "test-secret",
		AccessTokenTTL:    time.Minute,
		ChallengeTTL:      time.Minute,
		ProgramID:         address.MustParse(config.DefaultProgramID),
		BankAsset:         "native",
		RentPerByte:       host.DefaultRentPerByte,
		FaucetEnabled:     true,
		FaucetMaxAmount:   1_000_000_000,
		EventStream:       "custody:events",
		EventStreamMaxLen: 100,
	}
}

func setupApp(t *testing.T) (*fiber.App, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	app := fiber.New()
	err := Setup(app, Deps{
		Cfg:     testConfig(),
		Store:   store.NewMemory(),
		Cache:   cache,
		Logger:  logging.Discard(),
		Metrics: metrics.New(),
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, cache
}

type client struct {
	t     *testing.T
	app   *fiber.App
	token string
	seq   int
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	c.seq++
	req.Header.Set("Idempotency-Key", strings.Repeat("k", c.seq))

	resp, err := c.app.Test(req)
	if err != nil {
		c.t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App) (*client, address.Address) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner, err := address.FromBytes(pub)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	c := &client{t: t, app: app}

	status, body := c.do(fiber.MethodPost, "/api/v1/auth/challenge", map[string]any{"address": owner.String()})
	if status != fiber.StatusCreated {
		t.Fatalf("challenge: expected %d, got %d", fiber.StatusCreated, status)
	}
	message, _ := body["message"].(string)
	sig := ed25519.Sign(priv, []byte(message))

	status, body = c.do(fiber.MethodPost, "/api/v1/auth/login", map[string]any{
		"address":   owner.String(),
		"signature": base58.Encode(sig),
	})
	if status != fiber.StatusOK {
		t.Fatalf("login: expected %d, got %d", fiber.StatusOK, status)
	}
	c.token, _ = body["access_token"].(string)
	if c.token == "" {
		t.Fatalf("login returned no token: %v", body)
	}
	return c, owner
}

func TestCustodyFlow(t *testing.T) {
	app, _ := setupApp(t)
	c, owner := login(t, app)

	if status, _ := c.do(fiber.MethodPost, "/api/v1/faucet/airdrop", map[string]any{"amount": 1_000_000_000}); status != fiber.StatusCreated {
		t.Fatalf("airdrop: expected %d, got %d", fiber.StatusCreated, status)
	}
	status, body := c.do(fiber.MethodPost, "/api/v1/bank/initialize", nil)
	if status != fiber.StatusCreated || body["authority"] != owner.String() {
		t.Fatalf("initialize: %d %v", status, body)
	}
	if status, _ := c.do(fiber.MethodPost, "/api/v1/bank/accounts", nil); status != fiber.StatusCreated {
		t.Fatalf("create account: expected %d, got %d", fiber.StatusCreated, status)
	}
	status, body = c.do(fiber.MethodPost, "/api/v1/bank/deposit", map[string]any{"amount": 1_000})
	if status != fiber.StatusOK || body["pooled_value"] != float64(1_000) {
		t.Fatalf("deposit: %d %v", status, body)
	}
	status, body = c.do(fiber.MethodGet, "/api/v1/bank/vault", nil)
	if status != fiber.StatusOK || body["pooled_value"] != float64(1_000) {
		t.Fatalf("vault: %d %v", status, body)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{`custody_operations_total{op="deposit",result="ok"} 1`, "custody_vault_pooled_value 1000"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app, _ := setupApp(t)
	c := &client{t: t, app: app}
	if status, _ := c.do(fiber.MethodGet, "/api/v1/bank/vault", nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected %d, got %d", fiber.StatusUnauthorized, status)
	}
	if status, _ := c.do(fiber.MethodGet, "/api/v1/ping", nil); status != fiber.StatusOK {
		t.Fatalf("ping should be public, got %d", status)
	}
}

func TestEventsReachRedisStream(t *testing.T) {
	app, cache := setupApp(t)
	c, _ := login(t, app)
	if status, _ := c.do(fiber.MethodPost, "/api/v1/faucet/airdrop", map[string]any{"amount": 5}); status != fiber.StatusCreated {
		t.Fatalf("airdrop: expected %d, got %d", fiber.StatusCreated, status)
	}
	n, err := cache.XLen(t.Context(), "custody:events").Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one streamed event, got %d", n)
	}
}

func TestHealth(t *testing.T) {
	app, _ := setupApp(t)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected %d, got %d", fiber.StatusOK, resp.StatusCode)
	}
}

func TestSetupRequiresRedisOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	if err := Setup(fiber.New(), Deps{Cfg: cfg, Store: store.NewMemory()}); err == nil {
		t.Fatalf("expected error without redis in production")
	}
}
