package devserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"unigo-console/internal/model"
)

var ErrInvalidCredentials = errors.New("Email ou mot de passe incorrect")

const tokenIssuer = "unigo-devserver"

type Claims struct {
	ID   int        `json:"id"`
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Auth hashes passwords and issues the HS256 tokens the devserver accepts.
type Auth struct {
	store  *Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuth(store *Store, secret string) *Auth {
	return &Auth{store: store, secret: []byte(secret), ttl: 24 * time.Hour, now: time.Now}
}

func (a *Auth) Register(req model.RegisterRequest) (*model.AuthResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	role := req.Role
	if role == "" {
		role = model.RolePassenger
	}
	status := model.StatusPendingVerification
	if role == model.RoleAdmin {
		status = model.StatusActive
	}
	u, err := a.store.CreateUser(model.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      role,
		Status:    status,
	}, string(hash))
	if err != nil {
		return nil, err
	}
	return a.respond(u)
}

func (a *Auth) Login(creds model.Credentials) (*model.AuthResponse, error) {
	acc, err := a.store.byEmail(creds.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.password), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a.respond(acc.user)
}

func (a *Auth) respond(u model.User) (*model.AuthResponse, error) {
	token, err := a.Sign(u)
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{Token: token, User: u}, nil
}

func (a *Auth) Sign(u model.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:   u.ID,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(a.now()),
			ExpiresAt: jwt.NewNumericDate(a.now().Add(a.ttl)),
		},
	})
	ss, err := token.SignedString(a.secret)
	return ss, errors.Wrap(err, "sign token")
}

func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type contextKey string

const claimsKey contextKey = "claims"

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if parts := strings.SplitN(h, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	// Browsers cannot set headers on a websocket upgrade.
	return r.URL.Query().Get("token")
}

// authenticate rejects requests without a valid token and stores the
// claims in the request context.
func (a *Auth) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Token manquant")
			return
		}
		claims, err := a.ValidateToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token invalide")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := claimsFrom(r.Context()); c == nil || c.Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "Accès réservé aux administrateurs")
			return
		}
		next.ServeHTTP(w, r)
	})
}
