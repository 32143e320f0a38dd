package echoapi

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/session"
	"github.com/trezcool/propdesk/core/user"
)

var (
	tokenContextKey   = "userToken"
	sessionContextKey = "session"
)

// Claims represents the authorization claims transmitted via a JWT.
// The token only points at a server-side session; revoking the session invalidates the token.
type Claims struct {
	jwt.StandardClaims
	SessionID string `json:"sid"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

func sessionClaims(sess session.Session, appName string) *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    appName,
			Subject:   sess.UserID,
			ExpiresAt: sess.ExpiresAt.Unix(),
			IssuedAt:  sess.IssuedAt.Unix(),
		},
		SessionID: sess.ID,
		Username:  sess.Username,
		Role:      string(sess.Role),
	}
}

// GenerateToken generates a signed JWT token string pointing at sess.
func GenerateToken(conf *core.Config, sess session.Session) (string, error) {
	jwtConf := newJWTConfig(conf)
	method := jwt.GetSigningMethod(jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, sessionClaims(sess, conf.AppName))

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextSession returns the session loaded by sessionMiddleware.
func getContextSession(ctx echo.Context) (session.Session, error) {
	if sess, ok := ctx.Get(sessionContextKey).(session.Session); ok {
		return sess, nil
	}
	return session.Session{}, errUnauthorized
}

// sessionMiddleware resolves the token's session. Revoked or expired sessions are rejected.
func sessionMiddleware(svc session.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			sess, err := svc.Get(ctx.Request().Context(), claims.SessionID)
			if err != nil {
				switch errors.Cause(err) {
				case session.ErrNotFound, session.ErrExpired:
					return errUnauthorized
				}
				return errors.Wrap(err, "loading session")
			}
			ctx.Set(sessionContextKey, sess)
			return next(ctx)
		}
	}
}

func issueToken(ctx echo.Context, sessions session.Service, usr user.User, conf *core.Config) (LoginResponse, error) {
	sess, err := sessions.Issue(ctx.Request().Context(), session.Identity{
		UserID:      usr.ID,
		Username:    usr.Username,
		DisplayName: usr.DisplayName,
		Role:        usr.Role,
	})
	if err != nil {
		return LoginResponse{}, errors.Wrap(err, "issuing session")
	}
	token, err := GenerateToken(conf, sess)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{Token: token, ExpiresAt: sess.ExpiresAt, User: usr}, nil
}
