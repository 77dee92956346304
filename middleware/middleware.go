package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"eventdesk/account"
	"eventdesk/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// AccountHeader selects the active account of the request.
const AccountHeader = "X-Account-ID"

// JWT claims
type Claims struct {
	Username string               `json:"username"`
	UserID   string               `json:"userId"`
	Role     []string             `json:"role"`
	Accounts []account.Membership `json:"accounts,omitempty"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret []byte
}

func NewAuth(secret []byte) *Auth {
	return &Auth{secret: secret}
}

// Sign issues an HS256 token for claims that expires after ttl.
func (a *Auth) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateJWT parses a raw or "Bearer "-prefixed token.
func (a *Auth) ValidateJWT(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("unauthorized: invalid claims")
	}
	return claims, nil
}

// Authenticate resolves the caller and its active account into the request
// context. Browsers cannot set headers on websocket upgrades, so those may
// pass the token and account as query parameters instead.
func (a *Auth) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tokenString := r.Header.Get("Authorization")
		activeID := r.Header.Get(AccountHeader)
		if websocket.IsWebSocketUpgrade(r) {
			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}
			if activeID == "" {
				activeID = r.URL.Query().Get("account")
			}
		}
		if tokenString == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Missing token")
			return
		}

		claims, err := a.ValidateJWT(tokenString)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		acct, err := account.New(claims.UserID, claims.Accounts, activeID)
		if errors.Is(err, account.ErrNoMembership) {
			utils.RespondWithError(w, http.StatusForbidden, "Not a member of this account")
			return
		}
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next(w, r.WithContext(account.WithContext(r.Context(), acct)), ps)
	}
}
