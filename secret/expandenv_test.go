package secret

import (
	"errors"
	"testing"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("EXPAND_TEST_ORG", "acme")
	t.Setenv("EXPAND_TEST_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"no variables", "no variables"},
		{"https://api.example.com/orgs/${EXPAND_TEST_ORG}", "https://api.example.com/orgs/acme"},
		{"$EXPAND_TEST_ORG/repos", "acme/repos"},
		{"[${EXPAND_TEST_EMPTY}]", "[]"},
		{"$$${EXPAND_TEST_ORG}", "$acme"},
		{"price: $$5", "price: $5"},
		{"$$$$", "$$"},
		{"$UNBRACED_AND_UNSET/x", "/x"},
	}
	for _, tt := range tests {
		got, err := ExpandEnvStrict(tt.in)
		if err != nil {
			t.Errorf("ExpandEnvStrict(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandEnvStrict(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnvStrict_Missing(t *testing.T) {
	t.Setenv("EXPAND_TEST_ORG", "acme")

	_, err := ExpandEnvStrict("${EXPAND_TEST_ZONE}/${EXPAND_TEST_ORG}/${EXPAND_TEST_ACCOUNT}/${EXPAND_TEST_ZONE}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("error = %v, want ErrMissingEnv", err)
	}
	if want := ErrMissingEnv.Error() + ": EXPAND_TEST_ACCOUNT, EXPAND_TEST_ZONE"; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}

	if got, err := ExpandEnvStrict("$${EXPAND_TEST_ZONE}"); err != nil || got != "${EXPAND_TEST_ZONE}" {
		t.Errorf("escaped reference = %q, %v; want it left literal", got, err)
	}
}

func TestExpandStrict_CustomLookup(t *testing.T) {
	vars := map[string]string{"REGION": "eu-west-1"}
	lookup := func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}

	out, err := ExpandStrict("https://sts.${REGION}.amazonaws.com", lookup)
	if err != nil || out != "https://sts.eu-west-1.amazonaws.com" {
		t.Fatalf("ExpandStrict() = %q, %v", out, err)
	}
	if _, err := ExpandStrict("${ACCOUNT}", lookup); !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("ExpandStrict() error = %v, want ErrMissingEnv", err)
	}
}
