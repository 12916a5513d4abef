// Package session holds the signed-in admin: the bearer credential, where it
// is persisted, and the profile fetched with it.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"unigo-console/internal/api"
	"unigo-console/internal/model"
)

const DefaultKey = "default"

var ErrNoSession = errors.New("session: not signed in")

// Credentials is the in-memory bearer token, mirrored to a TokenStore.
// It satisfies api.TokenSource.
type Credentials struct {
	store TokenStore
	key   string

	mu    sync.RWMutex
	token string
}

func NewCredentials(store TokenStore, key string) *Credentials {
	if key == "" {
		key = DefaultKey
	}
	return &Credentials{store: store, key: key}
}

func (c *Credentials) Load(ctx context.Context) (string, error) {
	token, err := c.store.Load(ctx, c.key)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return token, nil
}

func (c *Credentials) Save(ctx context.Context, token string) error {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return c.store.Save(ctx, c.key, token)
}

func (c *Credentials) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return c.store.Clear(ctx, c.key)
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type API interface {
	Login(ctx context.Context, creds model.Credentials) (*model.AuthResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error)
	Profile(ctx context.Context) (*model.User, error)
	UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error)
}

// Provider is the session/auth state shared by every view.
type Provider struct {
	api   API
	creds *Credentials
	log   logrus.FieldLogger

	mu      sync.RWMutex
	user    *model.User
	loading bool
}

func NewProvider(a API, creds *Credentials, logger logrus.FieldLogger) *Provider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Provider{
		api:     a,
		creds:   creds,
		log:     logger.WithField("component", "session"),
		loading: true,
	}
}

// Restore loads the stored token and fetches the profile it belongs to.
// Loading reports true until Restore returns.
func (p *Provider) Restore(ctx context.Context) error {
	defer func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	}()

	token, err := p.creds.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load session token")
	}
	if token == "" {
		return nil
	}
	_, err = p.RefreshProfile(ctx)
	return err
}

// RefreshProfile refetches the signed-in user. A 401 means the token is
// no longer accepted and the session is dropped.
func (p *Provider) RefreshProfile(ctx context.Context) (*model.User, error) {
	if p.creds.Token() == "" {
		return nil, ErrNoSession
	}
	u, err := p.api.Profile(ctx)
	if err != nil {
		if api.StatusCode(err) == http.StatusUnauthorized {
			p.log.Info("stored token rejected, signing out")
			p.drop(ctx)
		}
		return nil, err
	}
	p.setUser(u)
	return u, nil
}

func (p *Provider) Login(ctx context.Context, creds model.Credentials) (*model.User, error) {
	res, err := p.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	return p.establish(ctx, res)
}

func (p *Provider) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	res, err := p.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.establish(ctx, res)
}

func (p *Provider) establish(ctx context.Context, res *model.AuthResponse) (*model.User, error) {
	if err := p.creds.Save(ctx, res.Token); err != nil {
		return nil, errors.Wrap(err, "save session token")
	}
	u := res.User
	p.setUser(&u)
	p.log.WithField("user_id", u.ID).Info("signed in")
	return &u, nil
}

func (p *Provider) Logout(ctx context.Context) error {
	return p.drop(ctx)
}

func (p *Provider) drop(ctx context.Context) error {
	p.setUser(nil)
	if err := p.creds.Clear(ctx); err != nil {
		p.log.WithError(err).Warn("clear session token")
		return err
	}
	return nil
}

func (p *Provider) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error) {
	if p.creds.Token() == "" {
		return nil, ErrNoSession
	}
	u, err := p.api.UpdateProfile(ctx, upd)
	if err != nil {
		return nil, err
	}
	p.setUser(u)
	return u, nil
}

func (p *Provider) setUser(u *model.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = u
}

// User returns a copy of the signed-in user, or nil.
func (p *Provider) User() *model.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Provider) Token() string {
	return p.creds.Token()
}

// Header is the Authorization header value, empty when signed out.
func (p *Provider) Header() string {
	token := p.creds.Token()
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// ExpiresAt reads the token's exp claim without verifying the signature.
// ok is false when there is no token or it carries no expiry.
func (p *Provider) ExpiresAt() (exp time.Time, ok bool) {
	token := p.creds.Token()
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		p.log.WithError(err).Debug("parse session token")
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
