package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/opst/gallerysync/pkg/auth"
	"github.com/opst/gallerysync/pkg/utils/try"
)

func TestSubjects_IsAdmin(t *testing.T) {
	testee := auth.NewSubjects("1", "alice")

	theory := func(id auth.Identity, then bool) func(*testing.T) {
		return func(t *testing.T) {
			if got := testee.IsAdmin(id); got != then {
				t.Errorf("IsAdmin(%+v) = %v, want %v", id, got, then)
			}
		}
	}

	t.Run("listed subject is admin", theory(auth.Identity{Subject: "1"}, true))
	t.Run("another listed subject is admin", theory(auth.Identity{Subject: "alice"}, true))
	t.Run("unlisted subject is not admin", theory(auth.Identity{Subject: "2"}, false))
	t.Run("anonymous is not admin", theory(auth.Identity{}, false))
	t.Run("nobody is admin for empty list", func(t *testing.T) {
		if auth.NewSubjects().IsAdmin(auth.Identity{Subject: "1"}) {
			t.Error("admin is found in empty list")
		}
	})
}

func TestKeyring(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	now := time.Date(2022, 10, 11, 12, 13, 14, 0, time.UTC)

	t.Run("a token issued is verified with the same key", func(t *testing.T) {
		testee := auth.NewKeyring(key)
		testee.SetClock(func() time.Time { return now })

		token := try.To(testee.NewJWS("1", time.Hour)).OrFatal(t)
		got := try.To(testee.Verify(token)).OrFatal(t)
		if got != (auth.Identity{Subject: "1"}) {
			t.Errorf("unexpected identity: %+v", got)
		}
	})

	t.Run("empty subject is not issued", func(t *testing.T) {
		if _, err := auth.NewKeyring(key).NewJWS("", time.Hour); err == nil {
			t.Error("no error")
		}
	})

	invalid := func(token func(t *testing.T) string) func(*testing.T) {
		return func(t *testing.T) {
			testee := auth.NewKeyring(key)
			testee.SetClock(func() time.Time { return now })
			if _, err := testee.Verify(token(t)); !errors.Is(err, auth.ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		}
	}
	sign := func(t *testing.T, method jwt.SigningMethod, k any, claims jwt.RegisteredClaims) string {
		return try.To(jwt.NewWithClaims(method, claims).SignedString(k)).OrFatal(t)
	}
	valid := jwt.RegisteredClaims{
		Issuer:    auth.Issuer,
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	t.Run("malformed token is invalid", invalid(func(*testing.T) string { return "not-a-token" }))
	t.Run("token signed with another key is invalid", invalid(func(t *testing.T) string {
		return sign(t, jwt.SigningMethodHS256, []byte(strings.Repeat("x", 32)), valid)
	}))
	t.Run("expired token is invalid", invalid(func(t *testing.T) string {
		c := valid
		c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		return sign(t, jwt.SigningMethodHS256, key, c)
	}))
	t.Run("token without expiration is invalid", invalid(func(t *testing.T) string {
		c := valid
		c.ExpiresAt = nil
		return sign(t, jwt.SigningMethodHS256, key, c)
	}))
	t.Run("token from another issuer is invalid", invalid(func(t *testing.T) string {
		c := valid
		c.Issuer = "someone-else"
		return sign(t, jwt.SigningMethodHS256, key, c)
	}))
	t.Run("token without subject is invalid", invalid(func(t *testing.T) string {
		c := valid
		c.Subject = ""
		return sign(t, jwt.SigningMethodHS256, key, c)
	}))
	t.Run("token with another algorithm is invalid", invalid(func(t *testing.T) string {
		return sign(t, jwt.SigningMethodHS512, key, valid)
	}))
	t.Run("unsigned token is invalid", invalid(func(t *testing.T) string {
		return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid)
	}))
}
