package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/user"
)

const (
	tokenCookieName  = "token"
	contextClaimsKey = "claims"
	contextUserKey   = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
}

// NewClaims returns the claims of a fresh token for usr.
// origIat is the issue time of the first token of a refresh chain.
func NewClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now().UTC()
	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        core.NewID(),
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.Server.JWTExpirationDelta)),
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Role:         usr.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func parseToken(conf *core.Config, tokenStr string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		tokenStr,
		claims,
		func(*jwt.Token) (interface{}, error) { return []byte(conf.SecretKey), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(conf.AppName),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		return nil, errInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// authenticator identifies the user of a request from the token cookie or the Authorization header.
type authenticator struct {
	conf   *core.Config
	tokens core.TokenStore
	usrSvc *user.Service
}

func newAuthenticator(conf *core.Config, tokens core.TokenStore, usrSvc *user.Service) *authenticator {
	return &authenticator{conf: conf, tokens: tokens, usrSvc: usrSvc}
}

// requestToken returns the request token and whether it came from the cookie.
func requestToken(ctx echo.Context) (string, bool) {
	if cookie, err := ctx.Cookie(tokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if scheme := "Bearer "; len(auth) > len(scheme) && strings.EqualFold(auth[:len(scheme)], scheme) {
		return auth[len(scheme):], false
	}
	return "", false
}

// authenticate sets the context user from the request token, if any.
// A token that cannot be used returns one of the 401 token errors; when it came
// from the cookie, the cookie is cleared so that the next request goes through anonymously.
func (a *authenticator) authenticate(ctx echo.Context) error {
	tokenStr, fromCookie := requestToken(ctx)
	if tokenStr == "" {
		return nil
	}

	err := a.verify(ctx, tokenStr)
	if fromCookie && isTokenError(err) {
		ctx.SetCookie(a.cookie("", -1))
	}
	return err
}

func (a *authenticator) verify(ctx echo.Context, tokenStr string) error {
	claims, err := parseToken(a.conf, tokenStr)
	if err != nil {
		return err
	}
	revoked, err := a.tokens.IsRevoked(ctx.Request().Context(), claims.ID)
	if err != nil {
		return errors.Wrap(err, "checking token revocation")
	}
	if revoked {
		return errTokenRevoked
	}

	usr, err := a.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return errInvalidToken
		}
		return errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextClaimsKey, claims)
	ctx.Set(contextUserKey, usr)
	return nil
}

func isTokenError(err error) bool {
	return err == errInvalidToken || err == errTokenExpired || err == errTokenRevoked
}

// middleware sets the context user when the request carries a token.
// Requests without a token go through anonymously; a bad token is rejected.
func (a *authenticator) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := a.authenticate(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}

// lenientMiddleware is middleware for the routes that establish a session:
// a bad token is dropped and the request goes through anonymously.
func (a *authenticator) lenientMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := a.authenticate(ctx); err != nil && !isTokenError(err) {
			return err
		}
		return next(ctx)
	}
}

func (a *authenticator) issue(ctx echo.Context, usr user.User, origIat ...int64) (string, error) {
	token, err := GenerateToken(a.conf, NewClaims(a.conf, usr, origIat...))
	if err != nil {
		return "", err
	}
	// replaces the clearing of a bad cookie, if any
	ctx.Response().Header().Del(echo.HeaderSetCookie)
	ctx.SetCookie(a.cookie(token, int(a.conf.Server.JWTExpirationDelta.Seconds())))
	return token, nil
}

func (a *authenticator) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.conf.Server.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// refresh issues a new token if the refresh window of the current one is still open.
func (a *authenticator) refresh(ctx echo.Context) (string, error) {
	claims, ok := getContextClaims(ctx)
	if !ok {
		return "", errMissingToken
	}
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}
	usr, _ := getContextUser(ctx)
	return a.issue(ctx, usr, claims.OrigIssuedAt)
}

// revoke invalidates the current token and clears the cookie.
func (a *authenticator) revoke(ctx echo.Context) error {
	claims, ok := getContextClaims(ctx)
	if !ok {
		return errMissingToken
	}
	if err := a.tokens.Revoke(ctx.Request().Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	ctx.SetCookie(a.cookie("", -1))
	return nil
}

func getContextClaims(ctx echo.Context) (*Claims, bool) {
	claims, ok := ctx.Get(contextClaimsKey).(*Claims)
	return claims, ok
}

func getContextUser(ctx echo.Context) (user.User, bool) {
	usr, ok := ctx.Get(contextUserKey).(user.User)
	return usr, ok
}

// getContextPrincipal returns the principal of the request; anonymous if there is no user.
func getContextPrincipal(ctx echo.Context) authz.Principal {
	if usr, ok := getContextUser(ctx); ok {
		return usr.Principal()
	}
	return authz.Principal{}
}
