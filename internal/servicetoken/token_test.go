package servicetoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func writeTestKeys(t *testing.T) (privPath, pubPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	dir := t.TempDir()
	privPath = filepath.Join(dir, "private.pem")
	pubPath = filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0o600); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privPath, pubPath
}

func TestSignAndVerify(t *testing.T) {
	privPath, pubPath := writeTestKeys(t)

	signer, err := NewSigner("coordinator", privPath, 0)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier("parser", pubPath, []string{"coordinator"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := signer.Sign("parser")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != "coordinator" {
		t.Fatalf("issuer = %q, want coordinator", claims.Issuer)
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	privPath, pubPath := writeTestKeys(t)

	signer, err := NewSigner("coordinator", privPath, 0)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier("enrich", pubPath, []string{"coordinator"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := signer.Sign("parser")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("verify accepted token with wrong audience")
	}
}

func TestVerifyRejectsUnknownIssuer(t *testing.T) {
	privPath, pubPath := writeTestKeys(t)

	signer, err := NewSigner("rogue", privPath, 0)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier("parser", pubPath, []string{"coordinator"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := signer.Sign("parser")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("verify accepted token from unknown issuer")
	}
}
