package middleware

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"

	"svg2png/internal/config"
)

func TestRegister_AddsProbesAndRequestID(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{})
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, path := range []string{"/ops/live", "/ops/ready"} {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s request failed: %v", path, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected %s 200, got %d", path, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("ping request failed: %v", err)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id to be present")
	}
}

func TestRegister_ReadinessProbeFails(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{}, Probes{Ready: func() bool { return false }})

	req, _ := http.NewRequest(http.MethodGet, "/ops/ready", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("ready request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 from failing readiness probe, got %d", resp.StatusCode)
	}
}

func TestRegister_RecoversPanics(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{})
	app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })

	req, _ := http.NewRequest(http.MethodGet, "/boom", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", resp.StatusCode)
	}
}

func TestUserRateLimit_LimitsPerClientAndExemptsHealth(t *testing.T) {
	var cfg config.Config
	cfg.RateLimiter.UserLimit = 2
	cfg.RateLimiter.Interval = time.Hour

	app := fiber.New()
	app.Use(UserRateLimit(cfg, memoryStorage.New()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("healthy") })

	makeReq := func(path, agent string) *http.Request {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("User-Agent", agent)
		return req
	}

	for i := 0; i < 2; i++ {
		resp, err := app.Test(makeReq("/", "client-a"), -1)
		if err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200 but got %d", resp.StatusCode)
		}
	}

	resp, err := app.Test(makeReq("/", "client-a"), -1)
	if err != nil {
		t.Fatalf("third request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 but got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Too Many Requests") {
		t.Fatalf("expected JSON body to mention rate limit, got %q", string(body))
	}

	// another client has its own window
	resp, _ = app.Test(makeReq("/", "client-b"), -1)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected other client to pass, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(makeReq("/health", "client-a"), -1)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected /health to bypass the limiter, got %d", resp.StatusCode)
	}
}
