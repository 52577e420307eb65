package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"github.com/youneslaaroussi/dealwhisperer/internal/crm"
)

func TestPrintColdDeals(t *testing.T) {
	var buf bytes.Buffer
	printColdDeals(&buf, []crm.ColdDeal{
		{Opportunity: crm.Opportunity{ID: "006A", Name: "Acme", StageName: "Negotiation"}, DaysSinceActivity: 12, Reason: "no recent activity"},
		{Opportunity: crm.Opportunity{ID: "006B", Name: "Globex", StageName: "Prospecting"}, DaysSinceActivity: -1, Reason: "no activity recorded"},
	}, 5)
	out := buf.String()
	for _, want := range []string{"REASON", "Acme", "no recent activity", "never", "2 of 5 open opportunities are cold"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintColdDeals_None(t *testing.T) {
	var buf bytes.Buffer
	printColdDeals(&buf, nil, 3)
	if got := buf.String(); got != "No cold deals among 3 open opportunities\n" {
		t.Errorf("output = %q", got)
	}
}

func TestCRMCold_NotConfigured(t *testing.T) {
	path := writeConfig(t, "")
	_, err := runCmd(t, "crm", "cold", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "salesforce is not configured") {
		t.Errorf("err = %v", err)
	}
}

func TestWriteAssertion(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(t.TempDir(), "server.key")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(keyPath, pemBytes, 0o600); err != nil {
		t.Fatal(err)
	}

	sf := config.SalesforceConfig{
		ClientID:   "client-1",
		Username:   "ops@example.com",
		JWTKeyPath: keyPath,
		LoginURL:   "https://login.salesforce.com",
	}
	var buf bytes.Buffer
	if err := writeAssertion(&buf, sf, time.Now()); err != nil {
		t.Fatalf("writeAssertion: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(buf.String()), claims, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("parse assertion: %v", err)
	}
	if claims.Issuer != "client-1" || claims.Subject != "ops@example.com" {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.VerifyAudience("https://login.salesforce.com", true) {
		t.Errorf("audience = %v", claims.Audience)
	}
}

func TestWriteAssertion_MissingSettings(t *testing.T) {
	err := writeAssertion(new(bytes.Buffer), config.SalesforceConfig{ClientID: "x"}, time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
}
