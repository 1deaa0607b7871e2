package sessions_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/sessions/internal/sessions/app"
	"github.com/aussiebroadwan/sessions/pkg/authsdk"
)

/*
 * End-to-end tests run two service instances against one Postgres and one
 * Redis, the way a multi-process deployment shares its stores.
 */

const password = "Correct-Horse-42"

type cluster struct {
	cfg app.Config
	a   *authsdk.SDKClient
	b   *authsdk.SDKClient
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest) (string, string) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	require.NoError(t, err)
	return host, port.Port()
}

// setupCluster starts Postgres and Redis and two instances sharing them.
func setupCluster(t *testing.T) *cluster {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	pgHost, pgPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "sessions",
			"POSTGRES_PASSWORD": "sessions",
			"POSTGRES_DB":       "sessions",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})
	redisHost, redisPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	})

	t.Chdir(t.TempDir())
	cfg, err := app.LoadConfig()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.DatabaseDriver = app.DriverPostgres
	cfg.DatabaseURL = fmt.Sprintf("postgres://sessions:sessions@%s:%s/sessions?sslmode=disable", pgHost, pgPort)
	cfg.RedisURL = fmt.Sprintf("redis://%s:%s/0", redisHost, redisPort)
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.MasterKeyPath = filepath.Join(dir, "master.key")
	cfg.AccessTokenTTL = 15 * time.Minute
	cfg.RevocationCacheTTL = 300 * time.Millisecond
	cfg.LogLevel = "error"

	return &cluster{cfg: cfg, a: startInstance(t, cfg), b: startInstance(t, cfg)}
}

func startInstance(t *testing.T, cfg app.Config) *authsdk.SDKClient {
	t.Helper()
	application, err := app.New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)
	return authsdk.NewSDKClient(srv.URL)
}

func (c *cluster) user(t *testing.T, username string, staff bool) {
	t.Helper()
	args := []string{"-username", username, "-email", username + "@example.com", "-password", password}
	if staff {
		args = append(args, "-staff")
	}
	var out bytes.Buffer
	require.NoError(t, app.UserAdd(t.Context(), c.cfg, args, &out))
}

func login(t *testing.T, client *authsdk.SDKClient, username, clientType string) (*authsdk.Session, error) {
	t.Helper()
	return client.Login(t.Context(), authsdk.LoginRequest{
		UsernameOrEmail: username,
		Password:        password,
		ClientType:      clientType,
		DeviceName:      "e2e",
	})
}
