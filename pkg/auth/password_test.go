package auth

import (
	"testing"
)

func TestHashPassword(t *testing.T) {
	password := "testpassword123"

	hashed, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	if hashed == "" || hashed == password {
		t.Error("Hashed password should be non-empty and differ from the original")
	}

	hashed2, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password second time: %v", err)
	}

	if hashed == hashed2 {
		t.Error("Different hashes should be generated for same password (bcrypt salt)")
	}
}

func TestCheckPassword(t *testing.T) {
	hashed, err := HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	if !CheckPassword(hashed, "testpassword123") {
		t.Error("CheckPassword should accept the right password")
	}
	if CheckPassword(hashed, "wrongpassword") {
		t.Error("CheckPassword should reject a wrong password")
	}
	if CheckPassword("not-a-hash", "testpassword123") {
		t.Error("CheckPassword should reject malformed hashes")
	}
}
