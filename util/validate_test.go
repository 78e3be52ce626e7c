package util

import "testing"

func TestIsValidUUID(t *testing.T) {
	cases := map[string]bool{
		"550e8400-e29b-41d4-a716-446655440000": true,
		"not-a-uuid":                           false,
		"":                                     false,
	}
	for in, want := range cases {
		if got := IsValidUUID(in); got != want {
			t.Errorf("IsValidUUID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidatePath_RejectsNullByte(t *testing.T) {
	_, err := ValidatePath("/tmp/doc\x00.txt", nil)
	if err == nil {
		t.Fatal("expected error for null byte in path")
	}
}

func TestValidatePath_RejectsTraversalOutsideAllowList(t *testing.T) {
	_, err := ValidatePath("/tmp/allowed/../../../etc/passwd", []string{"/tmp/allowed"})
	if err == nil {
		t.Fatal("expected error for path escaping allow-list")
	}
}

func TestValidatePath_AllowsPathWithinBase(t *testing.T) {
	got, err := ValidatePath("/tmp/allowed/doc.txt", []string{"/tmp/allowed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/tmp/allowed/doc.txt" {
		t.Fatalf("unexpected cleaned path: %q", got)
	}
}
