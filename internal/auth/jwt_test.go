package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	const key = "test-signing-key"
	const issuer = "attendsync-test"

	pair, err := Issue("faculty-1", "faculty", issuer, key, time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("tokens must be non-empty")
	}

	t.Run("round trip", func(t *testing.T) {
		claims, err := Parse(pair.AccessToken, key, issuer)
		if err != nil {
			t.Fatal(err)
		}
		if claims.Subject != "faculty-1" || claims.Role != "faculty" {
			t.Fatalf("claims wrong: %+v", claims)
		}
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		if _, err := Parse(pair.AccessToken, "other-key", issuer); err == nil {
			t.Fatal("token signed with another key must not parse")
		}
	})

	t.Run("issuer mismatch rejected", func(t *testing.T) {
		if _, err := Parse(pair.AccessToken, key, "someone-else"); err == nil {
			t.Fatal("issuer mismatch must not parse")
		}
	})

	t.Run("expired token rejected", func(t *testing.T) {
		expired, err := Issue("faculty-1", "faculty", issuer, key, -time.Minute, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := Parse(expired.AccessToken, key, issuer); err == nil {
			t.Fatal("expired token must not parse")
		}
	})
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatal("correct password must verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("wrong password must not verify")
	}
}
