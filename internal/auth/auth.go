// Package auth issues and checks the bearer tokens used by reviewers and workers
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/gin-gonic/gin"
)

type claims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
}

// Authenticator - один общий пароль, как и в исходной системе; токен HS256 с ограниченным сроком
type Authenticator struct {
	password string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func New(password, secret string, ttl time.Duration) (*Authenticator, error) {
	if password == "" || secret == "" {
		return nil, errors.New("auth: password and secret are required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Authenticator{password: password, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Login returns a token if password matches
func (a *Authenticator) Login(password string) (string, time.Time, error) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return "", time.Time{}, model.ErrWrongPassword
	}

	exp := a.now().Add(a.ttl)
	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, err := json.Marshal(claims{Sub: "reviewer", Exp: exp.Unix()})
	if err != nil {
		return "", time.Time{}, err
	}

	data := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	return data + "." + a.sign(data), exp, nil
}

func (a *Authenticator) Verify(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return model.ErrUnauthorized
	}
	expected := a.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return model.ErrUnauthorized
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return model.ErrUnauthorized
	}
	var c claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.ErrUnauthorized
	}
	if a.now().Unix() >= c.Exp {
		return model.ErrUnauthorized
	}
	return nil
}

func (a *Authenticator) sign(data string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Middleware отбивает запросы без валидного Bearer-токена
func (a *Authenticator) Middleware() func(c *gin.Context) {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || a.Verify(strings.TrimSpace(token)) != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(401, map[string]string{"error": model.ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}
