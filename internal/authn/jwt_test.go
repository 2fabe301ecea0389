package authn

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	v, err := NewHMACVerifier([]byte(strings.Repeat("a", 32)), "aidos", "aidos-core")
	if err != nil {
		t.Fatalf("NewHMACVerifier: %v", err)
	}
	now := time.Unix(1000, 0)
	token, err := v.Issue("user-1", "operator", now, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := v.verifyAt(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verifyAt: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v, _ := NewHMACVerifier([]byte(strings.Repeat("a", 32)), "aidos", "aidos-core")
	now := time.Unix(1000, 0)
	token, _ := v.Issue("user-1", "operator", now, time.Second)
	if _, err := v.verifyAt(token, now.Add(time.Hour)); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	v, _ := NewHMACVerifier([]byte(strings.Repeat("a", 32)), "aidos", "aidos-core")
	now := time.Unix(1000, 0)
	token, _ := v.Issue("user-1", "operator", now, time.Hour)
	tampered := token[:len(token)-1] + "x"
	if _, err := v.verifyAt(tampered, now); err == nil {
		t.Fatal("expected tampered signature to be rejected")
	}
}

func TestNewHMACVerifierRejectsShortSecret(t *testing.T) {
	if _, err := NewHMACVerifier([]byte("short"), "aidos", "aidos-core"); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}
