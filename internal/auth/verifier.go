package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotInitialized is returned when the credential client could not be
	// constructed; it persists until the configuration is fixed and the
	// process restarts.
	ErrNotInitialized = errors.New("credential verifier not initialized")
	// ErrInvalidToken is the uniform rejection for every verification
	// failure. The underlying cause is logged, never returned.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// State tracks the lifecycle of the process-wide credential client.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Identity is the transient result of one successful verification.
type Identity struct {
	UID          string `json:"uid"`
	Email        string `json:"email,omitempty"`
	IsAuthorized bool   `json:"isAuthorized"`
}

type credentialClient struct {
	projectID   string
	clientEmail string
	key         *rsa.PrivateKey
}

// Verifier owns the lazily constructed credential client. The client is
// built at most once per process; a failed build is terminal until restart.
type Verifier struct {
	mu        sync.RWMutex
	state     State
	client    *credentialClient
	allowList []string
	initErr   error

	loadConfig func() (Config, error)
	logger     *slog.Logger
	group      singleflight.Group
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithLogger sets the logger used for verification diagnostics.
func WithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithConfigLoader overrides where credential configuration is read from,
// primarily for tests.
func WithConfigLoader(loader func() (Config, error)) VerifierOption {
	return func(v *Verifier) {
		if loader != nil {
			v.loadConfig = loader
		}
	}
}

// NewVerifier constructs a Verifier in the Uninitialized state. Call Init
// at process startup; Verify also initializes lazily on first use.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		loadConfig: LoadConfigFromEnv,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// State reports the current lifecycle state.
func (v *Verifier) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Init builds the credential client from configuration. Concurrent calls
// collapse into a single build, so the client is created at most once per
// process. Calling Init on a Ready verifier is a no-op; calling it after a
// failure returns the original initialization error without retrying.
func (v *Verifier) Init() error {
	v.mu.RLock()
	switch v.state {
	case StateReady:
		v.mu.RUnlock()
		return nil
	case StateFailed:
		err := v.initErr
		v.mu.RUnlock()
		return err
	}
	v.mu.RUnlock()

	_, err, _ := v.group.Do("init", func() (interface{}, error) {
		return nil, v.initOnce()
	})
	return err
}

func (v *Verifier) initOnce() error {
	v.mu.Lock()
	switch v.state {
	case StateReady:
		v.mu.Unlock()
		return nil
	case StateFailed:
		err := v.initErr
		v.mu.Unlock()
		return err
	}
	v.state = StateInitializing
	v.mu.Unlock()

	client, allowList, err := v.buildClient()

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.state = StateFailed
		v.initErr = fmt.Errorf("%w: %v", ErrNotInitialized, err)
		v.logger.Error("credential initialization failed", "error", err)
		return v.initErr
	}
	v.state = StateReady
	v.client = client
	v.allowList = allowList
	v.logger.Info("credential client ready",
		"project_id", client.projectID,
		"client_email", client.clientEmail,
		"allow_list_entries", len(allowList))
	return nil
}

func (v *Verifier) buildClient() (*credentialClient, []string, error) {
	cfg, err := v.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	normalized := NormalizePrivateKey(cfg.PrivateKey)
	if err := validatePrivateKey(normalized); err != nil {
		return nil, nil, err
	}
	key, err := parseRSAPrivateKey(normalized)
	if err != nil {
		return nil, nil, err
	}
	client := &credentialClient{
		projectID:   cfg.ProjectID,
		clientEmail: cfg.ClientEmail,
		key:         key,
	}
	return client, ParseAllowList(cfg.Authorized), nil
}

func parseRSAPrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("private key is not valid PEM")
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not an RSA key")
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// ensureReady returns the credential client, initializing lazily on first
// use. Init collapses concurrent attempts into a single build.
func (v *Verifier) ensureReady() (*credentialClient, []string, error) {
	v.mu.RLock()
	switch v.state {
	case StateReady:
		client, allowList := v.client, v.allowList
		v.mu.RUnlock()
		return client, allowList, nil
	case StateFailed:
		err := v.initErr
		v.mu.RUnlock()
		return nil, nil, err
	}
	v.mu.RUnlock()

	if err := v.Init(); err != nil {
		return nil, nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state != StateReady {
		if v.initErr != nil {
			return nil, nil, v.initErr
		}
		return nil, nil, ErrNotInitialized
	}
	return v.client, v.allowList, nil
}

type tokenClaims struct {
	UID   string `json:"uid,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verify validates the bearer token and returns the decoded identity with
// its allow-list authorization decision. Every verification failure is
// reported as ErrInvalidToken; the cause is logged only.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	client, allowList, err := v.ensureReady()
	if err != nil {
		return Identity{}, err
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return &client.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(client.clientEmail),
		jwt.WithAudience(client.projectID),
	)
	if err != nil || !parsed.Valid {
		v.logger.Warn("token verification failed", "error", err)
		return Identity{}, ErrInvalidToken
	}

	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		v.logger.Warn("token verification failed", "error", "token carries no uid")
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UID:          uid,
		Email:        claims.Email,
		IsAuthorized: Authorized(claims.Email, allowList),
	}, nil
}
