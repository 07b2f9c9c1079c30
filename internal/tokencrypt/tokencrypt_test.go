package tokencrypt

import (
	"testing"

	"github.com/oidcware/rp/errs"
)

func testCryptor(t *testing.T) *Cryptor {
	t.Helper()
	key, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey: %v", err)
	}
	c, err := New(Config{MasterKey: key})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.Enabled() {
		t.Fatal("expected Cryptor to be enabled")
	}
	return c
}

func TestNewWithoutMasterKeyDisabled(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Enabled() {
		t.Fatal("expected nil Cryptor to report disabled")
	}
	out, err := c.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if out != "hello" {
		t.Errorf("Encrypt passthrough = %q, want %q", out, "hello")
	}
}

func TestNewRejectsShortMasterKey(t *testing.T) {
	_, err := New(Config{MasterKey: "dG9vc2hvcnQ="}) // "tooshort", 8 bytes
	if !errs.Is(err, errs.EncryptionError) {
		t.Fatalf("err = %v, want ENCRYPTION_ERROR", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCryptor(t)

	ciphertext, err := c.Encrypt("super-secret-access-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext == "super-secret-access-token" {
		t.Fatal("expected ciphertext to differ from plaintext")
	}
	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext != "super-secret-access-token" {
		t.Errorf("Decrypt = %q", plaintext)
	}
}

func TestEncryptEmptyStringPassesThrough(t *testing.T) {
	c := testCryptor(t)
	out, err := c.Encrypt("")
	if err != nil || out != "" {
		t.Fatalf("Encrypt(\"\") = %q, %v", out, err)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c := testCryptor(t)
	ciphertext, _ := c.Encrypt("payload")
	tampered := ciphertext[:len(ciphertext)-4] + "abcd"
	if _, err := c.Decrypt(tampered); !errs.Is(err, errs.DecryptionError) {
		t.Fatalf("err = %v, want DECRYPTION_ERROR", err)
	}
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	c := testCryptor(t)
	if _, err := c.Decrypt("aGk="); !errs.Is(err, errs.DecryptionError) {
		t.Fatalf("err = %v, want DECRYPTION_ERROR", err)
	}
}

func TestEncryptFieldsAndDecryptFields(t *testing.T) {
	c := testCryptor(t)

	fields := map[string]string{
		"access_token":  "at-value",
		"refresh_token": "rt-value",
		"other":         "unchanged",
	}
	encrypted, err := c.EncryptFields(fields, "access_token", "refresh_token")
	if err != nil {
		t.Fatalf("EncryptFields: %v", err)
	}
	if encrypted["other"] != "unchanged" {
		t.Errorf("other field mutated: %q", encrypted["other"])
	}
	if encrypted["access_token"] == "at-value" {
		t.Error("expected access_token to be encrypted")
	}

	decrypted, err := c.DecryptFields(encrypted, "access_token", "refresh_token")
	if err != nil {
		t.Fatalf("DecryptFields: %v", err)
	}
	if decrypted["access_token"] != "at-value" || decrypted["refresh_token"] != "rt-value" {
		t.Errorf("decrypted = %+v", decrypted)
	}
}

func TestDecryptFieldsKeepsUnencryptedJWTForBackwardCompatibility(t *testing.T) {
	c := testCryptor(t)

	fakeJWT := "header.payload.signature"
	fields := map[string]string{"id_token": fakeJWT}
	decrypted, err := c.DecryptFields(fields, "id_token")
	if err != nil {
		t.Fatalf("DecryptFields: %v", err)
	}
	if decrypted["id_token"] != fakeJWT {
		t.Errorf("id_token = %q, want unchanged %q", decrypted["id_token"], fakeJWT)
	}
}

func TestGenerateMasterKeyProducesUsableKey(t *testing.T) {
	key, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey: %v", err)
	}
	if _, err := New(Config{MasterKey: key}); err != nil {
		t.Fatalf("New with generated key: %v", err)
	}
}
