package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-holocrypt"
	"github.com/goliatone/go-holocrypt/sessionstore"
)

// clearEnv keeps the developer's shell from leaking into the config
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HOLOCRYPT_ADDR", "HOLOCRYPT_STORE_DRIVER", "HOLOCRYPT_STORE_URL",
		"HOLOCRYPT_STORE_KEY", "SUPABASE_URL", "SUPABASE_ANON_KEY",
		"HOLOCRYPT_JWT_SECRET", "SUPABASE_JWT_SECRET", "HOLOCRYPT_JWKS_URL",
		"HOLOCRYPT_DSN", "HOLOCRYPT_REDIS_ADDR", "HOLOCRYPT_REDIS_PASSWORD",
		"HOLOCRYPT_DEBUG", "HOLOCRYPT_AUTO_CONFIRM",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holocrypt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCheckReportsPlaceholders(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
store:
  driver: supabase
  url: https://placeholder.supabase.co
  key: placeholder-anon-key
`)

	out, err := execute("config", "check", "--config", path)
	assert.ErrorIs(t, err, errMisconfigured)
	assert.Contains(t, out, "session store URL is missing or a placeholder")
	assert.Contains(t, out, "public key is missing or a placeholder")
}

func TestConfigCheckPrintsRedacted(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
store:
  driver: supabase
  url: https://abc.supabase.co
  key: real-anon-key
  jwt_secret: super-secret
`)

	out, err := execute("config", "check", "--print", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: supabase session store configured")
	assert.Contains(t, out, "https://abc.supabase.co")
	assert.NotContains(t, out, "real-anon-key")
	assert.NotContains(t, out, "super-secret")
}

func TestUserConfirmNeedsLocalDriver(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "store:\n  driver: supabase\n")

	_, err := execute("user", "confirm", "neo@example.com", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `needs the "local" driver`)
}

func TestUserConfirmLocalAccount(t *testing.T) {
	clearEnv(t)
	dsn := "file:" + filepath.Join(t.TempDir(), "holocrypt.db")
	path := writeConfig(t, "store:\n  driver: local\n  jwt_secret: local-secret-with-enough-bytes\n  dsn: "+dsn+"\n")

	cfg, err := holocrypt.LoadConfig(path)
	require.NoError(t, err)

	ctx := context.Background()
	stores, err := buildStore(ctx, cfg, holocrypt.NopLogger{})
	require.NoError(t, err)
	_, err = stores.Local.SignUp(ctx, "neo@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, stores.Close())

	out, err := execute("user", "confirm", "neo@example.com", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "confirmed neo@example.com")

	stores, err = buildStore(ctx, cfg, holocrypt.NopLogger{})
	require.NoError(t, err)
	defer stores.Close()
	_, err = stores.Local.SignIn(ctx, "neo@example.com", "secret1")
	assert.NoError(t, err)
}

func TestBuildStoreSupabaseDegraded(t *testing.T) {
	cfg := holocrypt.DefaultConfig()

	stores, err := buildStore(context.Background(), cfg, holocrypt.NopLogger{})
	require.NoError(t, err)
	defer stores.Close()

	assert.Nil(t, stores.Validator, "no secret means no bearer verification")
	assert.Nil(t, stores.Local)

	store, err := stores.Factory.New("c1")
	require.NoError(t, err)
	_, err = store.SignIn(context.Background(), "neo@example.com", "secret1")
	assert.True(t, holocrypt.IsKind(err, holocrypt.KindConfiguration))
}

func TestBuildStoreSupabaseWithSecret(t *testing.T) {
	cfg := holocrypt.DefaultConfig()
	cfg.Store.URL = "https://abc.supabase.co"
	cfg.Store.Key = "anon"
	cfg.Store.JWTSecret = "supabase-secret-with-enough-bytes"

	stores, err := buildStore(context.Background(), cfg, holocrypt.NopLogger{})
	require.NoError(t, err)
	defer stores.Close()
	assert.NotNil(t, stores.Validator)
}

func TestBuildStoreUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := holocrypt.DefaultConfig()
	cfg.Store.Driver = holocrypt.DriverLocal
	cfg.Store.DSN = ":memory:"
	cfg.Store.AutoConfirm = true
	cfg.Store.Redis.Addr = mr.Addr()

	ctx := context.Background()
	stores, err := buildStore(ctx, cfg, holocrypt.NopLogger{})
	require.NoError(t, err)
	defer stores.Close()

	manager, ok := stores.Factory.(*sessionstore.Manager)
	require.True(t, ok)
	_, ok = manager.Storage().(*sessionstore.RedisStorage)
	assert.True(t, ok)

	store, err := stores.Factory.New("c1")
	require.NoError(t, err)
	_, err = store.SignUp(ctx, "neo@example.com", "secret1")
	require.NoError(t, err)
	_, err = store.SignIn(ctx, "neo@example.com", "secret1")
	require.NoError(t, err)

	assert.True(t, mr.Exists(cfg.Store.Redis.Prefix+"c1"))
}

func TestBuildStoreRedisUnreachable(t *testing.T) {
	cfg := holocrypt.DefaultConfig()
	cfg.Store.Redis.Addr = "127.0.0.1:1"

	_, err := buildStore(context.Background(), cfg, holocrypt.NopLogger{})
	assert.Error(t, err)
}

func TestBuildStoreUnknownDriver(t *testing.T) {
	cfg := holocrypt.DefaultConfig()
	cfg.Store.Driver = "firebase"

	_, err := buildStore(context.Background(), cfg, holocrypt.NopLogger{})
	assert.ErrorContains(t, err, `unknown session store driver "firebase"`)
}
