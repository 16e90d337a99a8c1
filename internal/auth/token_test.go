package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	"kas/internal/core"
)

func TestIssueAndVerify(t *testing.T) {
	j := NewJWT("secret", time.Hour)
	token, err := j.Issue("owner-1")
	if err != nil {
		t.Fatal(err)
	}
	owner, err := j.Verify(token)
	if err != nil || owner != "owner-1" {
		t.Fatalf("verify: %q %v", owner, err)
	}
}

func TestVerifyRejects(t *testing.T) {
	j := NewJWT("secret", time.Hour)
	good, _ := j.Issue("owner-1")

	expired := NewJWT("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue("owner-1")

	other, _ := NewJWT("other", time.Hour).Issue("owner-1")

	// Payload of owner-2 with the signature of owner-1.
	forged, _ := j.Issue("owner-2")
	gp, fp := strings.Split(good, "."), strings.Split(forged, ".")
	spliced := fp[0] + "." + fp[1] + "." + gp[2]

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ID: "owner-1"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"garbage":      "not-a-token",
		"expired":      old,
		"wrong secret": other,
		"none alg":     unsigned,
		"spliced":      spliced,
	}
	for name, token := range cases {
		if _, err := j.Verify(token); !errors.Is(err, core.ErrUnauthenticated) {
			t.Fatalf("%s: expected unauthenticated, got %v", name, err)
		}
	}
	if _, err := j.Verify(""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("empty token: expected ErrNoToken, got %v", err)
	}
}

func TestOwnerContext(t *testing.T) {
	ctx := WithOwner(context.Background(), "u1")
	if OwnerFromContext(ctx) != "u1" {
		t.Fatal("owner lost")
	}
	if OwnerFromContext(context.Background()) != "" {
		t.Fatal("empty context should have no owner")
	}
}
