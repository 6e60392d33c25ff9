package i18n

import (
	"strings"
	"testing"
)

func TestTranslator(t *testing.T) {
	for _, lang := range []string{"en", "ru"} {
		tr, err := NewTranslator(LocalesFS, lang)
		if err != nil {
			t.Fatalf("NewTranslator(%s) failed: %v", lang, err)
		}

		if got := tr.T("ask_name"); got == "ask_name" {
			t.Errorf("%s: ask_name not resolved", lang)
		}
		if got := tr.T("nice_to_meet", "Alice"); !strings.Contains(got, "Alice") {
			t.Errorf("%s: expected name in greeting, got %q", lang, got)
		}
	}
}

func TestTranslator_EnglishStrings(t *testing.T) {
	tr, err := NewTranslator(LocalesFS, "en")
	if err != nil {
		t.Fatalf("NewTranslator failed: %v", err)
	}
	if got := tr.T("ask_name"); got != "What is your name?" {
		t.Errorf("unexpected ask_name: %q", got)
	}
	if got := tr.T("nice_to_meet", "Alice"); got != "Nice to meet you, Alice!" {
		t.Errorf("unexpected greeting: %q", got)
	}
}

func TestTranslator_MissingKeyAndLanguage(t *testing.T) {
	tr, err := NewTranslator(LocalesFS, "en")
	if err != nil {
		t.Fatalf("NewTranslator failed: %v", err)
	}
	if got := tr.T("no_such_key"); got != "no_such_key" {
		t.Errorf("expected the key back, got %q", got)
	}

	if _, err := NewTranslator(LocalesFS, "xx"); err == nil {
		t.Error("expected an error for an unknown language")
	}
}
