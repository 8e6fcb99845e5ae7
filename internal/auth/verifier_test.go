package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testProjectID   = "demo-project"
	testClientEmail = "svc@demo-project.iam.example.com"
)

func generateTestKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	encoded := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return key, string(encoded)
}

func testVerifier(t *testing.T, cfg Config, loadErr error) *Verifier {
	t.Helper()
	return NewVerifier(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConfigLoader(func() (Config, error) {
			if loadErr != nil {
				return Config{}, loadErr
			}
			return cfg, nil
		}),
	)
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   testClientEmail,
		"aud":   testProjectID,
		"sub":   "user-1",
		"uid":   "user-1",
		"email": "user@example.com",
		"iat":   now.Add(-time.Minute).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestVerifierInitAndVerify(t *testing.T) {
	key, pemKey := generateTestKey(t)
	v := testVerifier(t, Config{
		ProjectID:   testProjectID,
		PrivateKey:  pemKey,
		ClientEmail: testClientEmail,
		Authorized:  "@example.com",
	}, nil)

	require.NoError(t, v.Init())
	assert.Equal(t, StateReady, v.State())
	// Init on a ready verifier is a no-op.
	require.NoError(t, v.Init())

	identity, err := v.Verify(context.Background(), signToken(t, key, baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UID)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.True(t, identity.IsAuthorized)
}

func TestVerifierUnauthorizedEmail(t *testing.T) {
	key, pemKey := generateTestKey(t)
	v := testVerifier(t, Config{
		ProjectID:   testProjectID,
		PrivateKey:  pemKey,
		ClientEmail: testClientEmail,
		Authorized:  "admin@other.com",
	}, nil)
	require.NoError(t, v.Init())

	identity, err := v.Verify(context.Background(), signToken(t, key, baseClaims()))
	require.NoError(t, err)
	assert.False(t, identity.IsAuthorized)
}

func TestVerifierEscapedKeyNormalized(t *testing.T) {
	_, pemKey := generateTestKey(t)
	escaped := strings.ReplaceAll(pemKey, "\n", `\n`)
	v := testVerifier(t, Config{
		ProjectID:   testProjectID,
		PrivateKey:  escaped,
		ClientEmail: testClientEmail,
	}, nil)
	require.NoError(t, v.Init())
	assert.Equal(t, StateReady, v.State())
}

func TestVerifierInitFailureIsTerminal(t *testing.T) {
	v := testVerifier(t, Config{}, errors.New("missing credential configuration"))

	err := v.Init()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, StateFailed, v.State())

	// Re-init returns the same terminal error without retrying.
	again := v.Init()
	assert.Equal(t, err, again)
	assert.Equal(t, StateFailed, v.State())
}

func TestVerifyBeforeInitFailsWithInitError(t *testing.T) {
	// Missing private key is an initialization error, never a token error.
	v := testVerifier(t, Config{
		ProjectID:   testProjectID,
		PrivateKey:  "not a pem key",
		ClientEmail: testClientEmail,
	}, nil)

	_, err := v.Verify(context.Background(), "any-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NotErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, StateFailed, v.State())
}

func TestVerifyLazyInitialization(t *testing.T) {
	key, pemKey := generateTestKey(t)
	v := testVerifier(t, Config{
		ProjectID:   testProjectID,
		PrivateKey:  pemKey,
		ClientEmail: testClientEmail,
		Authorized:  "user@example.com",
	}, nil)
	assert.Equal(t, StateUninitialized, v.State())

	identity, err := v.Verify(context.Background(), signToken(t, key, baseClaims()))
	require.NoError(t, err)
	assert.True(t, identity.IsAuthorized)
	assert.Equal(t, StateReady, v.State())
}

func TestInitConcurrentBuildsClientOnce(t *testing.T) {
	_, pemKey := generateTestKey(t)
	loads := 0
	var loadMu sync.Mutex
	v := NewVerifier(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConfigLoader(func() (Config, error) {
			loadMu.Lock()
			loads++
			loadMu.Unlock()
			// Keep the build in flight long enough for the other callers
			// to arrive while the state is still Initializing.
			time.Sleep(50 * time.Millisecond)
			return Config{
				ProjectID:   testProjectID,
				PrivateKey:  pemKey,
				ClientEmail: testClientEmail,
			}, nil
		}),
	)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, v.Init())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, loads, "configuration loaded more than once")
	assert.Equal(t, StateReady, v.State())
}

func TestVerifyConcurrentLazyInit(t *testing.T) {
	key, pemKey := generateTestKey(t)
	loads := 0
	var loadMu sync.Mutex
	v := NewVerifier(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConfigLoader(func() (Config, error) {
			loadMu.Lock()
			loads++
			loadMu.Unlock()
			return Config{
				ProjectID:   testProjectID,
				PrivateKey:  pemKey,
				ClientEmail: testClientEmail,
			}, nil
		}),
	)

	token := signToken(t, key, baseClaims())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), token)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, loads, "configuration loaded more than once")
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	key, pemKey := generateTestKey(t)
	otherKey, _ := generateTestKey(t)
	v := testVerifier(t, Config{
		ProjectID:   testProjectID,
		PrivateKey:  pemKey,
		ClientEmail: testClientEmail,
	}, nil)
	require.NoError(t, v.Init())

	expired := baseClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := baseClaims()
	wrongIssuer["iss"] = "someone-else@example.com"

	wrongAudience := baseClaims()
	wrongAudience["aud"] = "another-project"

	noUID := baseClaims()
	delete(noUID, "uid")
	delete(noUID, "sub")

	cases := map[string]string{
		"garbage":        "not.a.token",
		"empty":          "",
		"expired":        signToken(t, key, expired),
		"wrong issuer":   signToken(t, key, wrongIssuer),
		"wrong audience": signToken(t, key, wrongAudience),
		"wrong key":      signToken(t, otherKey, baseClaims()),
		"no uid":         signToken(t, key, noUID),
	}
	for name, token := range cases {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, "case %s", name)
	}
}

func TestVerifyUIDFallsBackToSubject(t *testing.T) {
	key, pemKey := generateTestKey(t)
	v := testVerifier(t, Config{
		ProjectID:   testProjectID,
		PrivateKey:  pemKey,
		ClientEmail: testClientEmail,
	}, nil)
	require.NoError(t, v.Init())

	claims := baseClaims()
	delete(claims, "uid")
	identity, err := v.Verify(context.Background(), signToken(t, key, claims))
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UID)
}

func TestParseRSAPrivateKeyPKCS1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	encoded := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	parsed, err := parseRSAPrivateKey(string(encoded))
	require.NoError(t, err)
	assert.Equal(t, key.N, parsed.N)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
