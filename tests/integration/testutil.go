//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/medianamer-platform/medianamer/internal/api"
	"github.com/medianamer-platform/medianamer/internal/audit"
	"github.com/medianamer-platform/medianamer/internal/auth"
	"github.com/medianamer-platform/medianamer/internal/cache"
	"github.com/medianamer-platform/medianamer/internal/config"
	"github.com/medianamer-platform/medianamer/internal/credits"
	"github.com/medianamer-platform/medianamer/internal/ratelimit"
	"github.com/medianamer-platform/medianamer/internal/rename"
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	JWT         *auth.JWTManager
	Settlement  *settlementStub
	NameGen     *namegenStub
}

// settlementStub fakes the remote credit-settlement service.
type settlementStub struct {
	Server *httptest.Server
	Calls  atomic.Int64
	// Fail503 makes the next N calls return 503 before succeeding.
	Fail503 atomic.Int64
}

func newSettlementStub() *settlementStub {
	s := &settlementStub{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Calls.Add(1)
		if s.Fail503.Load() > 0 {
			s.Fail503.Add(-1)
			http.Error(w, `{"reason":"overloaded"}`, http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Amount int `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"confirmed":         true,
			"remaining_balance": 1000,
		})
	}))
	return s
}

// namegenStub fakes the AI provider for analyze, context, and generate.
type namegenStub struct {
	Server        *httptest.Server
	GenerateCalls atomic.Int64
	Names         []string
}

func newNamegenStub() *namegenStub {
	n := &namegenStub{Names: []string{"golden-retriever-puppy", "cute-dog-photo"}}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/analyze":
			json.NewEncoder(w).Encode(map[string]any{
				"descriptor": "golden retriever puppy on grass",
			})
		case "/v1/context":
			json.NewEncoder(w).Encode(map[string]any{
				"keywords": []string{"dogs", "pets"},
			})
		case "/v1/generate":
			n.GenerateCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]any{"names": n.Names})
		default:
			http.NotFound(w, r)
		}
	}))
	return n
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "medianamer_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/medianamer_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// External collaborator stubs
	settlement := newSettlementStub()
	t.Cleanup(settlement.Server.Close)
	namegen := newNamegenStub()
	t.Cleanup(namegen.Server.Close)

	// Services
	jwtManager := auth.NewJWTManager("test-jwt-secret-at-least-32-chars!!", "medianamer-test")

	creditsCfg := config.CreditsConfig{
		FreeGrantAmount:   10,
		MinAccountAge:     24 * time.Hour,
		SettlementURL:     settlement.Server.URL,
		SettlementAPIKey:  "test-settlement-key",
		SettlementTimeout: 5 * time.Second,
		MaxRetries:        3,
	}
	creditRepo := credits.NewRepository(pool)
	creditSvc := credits.NewService(creditRepo, credits.NewSettlementClient(creditsCfg), creditsCfg)
	creditHandler := credits.NewHandler(creditSvc)

	limiter := ratelimit.New(redisClient, config.RateLimitConfig{
		SingleMax:    5,
		SingleWindow: 5 * time.Minute,
		BulkMax:      3,
		BulkWindow:   10 * time.Minute,
	}, false)
	cacheMgr := cache.NewManager(redisClient, config.CacheConfig{
		Enabled:        true,
		ContentTTL:     24 * time.Hour,
		ContextTTL:     6 * time.Hour,
		SuggestionsTTL: time.Hour,
	})

	aiClient := rename.NewAIClient(config.NameGenConfig{
		URL:              namegen.Server.URL,
		APIKey:           "test-namegen-key",
		Timeout:          5 * time.Second,
		MaxRetries:       2,
		DefaultSuggested: 3,
	})
	renameRepo := rename.NewRepository(pool)
	renameSvc := rename.NewService(renameRepo, creditSvc, limiter, cacheMgr,
		aiClient, aiClient, aiClient, nil, 3)
	renameHandler := rename.NewHandler(renameSvc)

	auditHandler := audit.NewHandler(audit.NewRepository(pool))

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
		Rename:     renameHandler.Rename,
		Suggest:    renameHandler.Suggest,
		RenameBulk: renameHandler.RenameBulk,
		History:    renameHandler.History,

		CreditStatus: creditHandler.Status,
		CreditGrant:  creditHandler.Grant,
		CreditReset:  creditHandler.Reset,

		ListAuditLogs: auditHandler.List,

		AuthMiddleware:  auth.Middleware(jwtManager),
		AdminMiddleware: auth.RequireAdmin(nil),
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		JWT:         jwtManager,
		Settlement:  settlement,
		NameGen:     namegen,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func AuthToken(t *testing.T, env *TestEnv, userID string, admin bool) string {
	t.Helper()
	token, err := env.JWT.Generate(userID, admin, time.Hour)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

// SeedResource inserts a media resource row.
func SeedResource(t *testing.T, env *TestEnv, id, filename, title string) {
	t.Helper()
	_, err := env.Pool.Exec(context.Background(),
		`INSERT INTO media_resources (id, filename, title, modified_at)
		 VALUES ($1, $2, $3, NOW()) ON CONFLICT (id) DO NOTHING`,
		id, filename, title)
	if err != nil {
		t.Fatalf("seeding resource: %v", err)
	}
}

// SeedAccount creates a credit account with a given balance, backdated past
// the free-grant age gate and with the grant already consumed.
func SeedAccount(t *testing.T, env *TestEnv, ownerID string, balance int) {
	t.Helper()
	_, err := env.Pool.Exec(context.Background(),
		`INSERT INTO credit_accounts (owner_id, balance, free_credits_granted, created_at)
		 VALUES ($1, $2, TRUE, NOW() - INTERVAL '48 hours')
		 ON CONFLICT (owner_id) DO UPDATE
		 SET balance = $2, free_credits_granted = TRUE, created_at = NOW() - INTERVAL '48 hours'`,
		ownerID, balance)
	if err != nil {
		t.Fatalf("seeding credit account: %v", err)
	}
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
