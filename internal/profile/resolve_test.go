package profile

import "testing"

func TestValidateName(t *testing.T) {
	valid := []string{"default", "prod", "staging-eu", "team_2", "a"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "Prod", "has space", "dot.name", "slash/name", "ünïcode",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestResolveFlagWins(t *testing.T) {
	if got := Resolve("staging"); got != "staging" {
		t.Errorf("Resolve(staging) = %q", got)
	}
}
