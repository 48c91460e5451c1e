//go:build !integration

package i18n

import (
	"testing"
	"testing/fstest"

	"telegram-access-subscription/internal/domain/model"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: hello\nwelcome_user: hello %s\nends: 'ends {{endDate}}'"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "hello" {
			t.Errorf("wanted 'hello', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted key back, got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ali"); got != "hello Ali" {
			t.Errorf("wanted 'hello Ali', got '%s'", got)
		}
	})

	t.Run("should render template variables", func(t *testing.T) {
		got := translator.Render("ends", model.TemplateVars{model.VarEndDate: "2025-01-02"})
		if got != "ends 2025-01-02" {
			t.Errorf("wanted 'ends 2025-01-02', got '%s'", got)
		}
	})
}

func TestNewTranslator_FromFS(t *testing.T) {
	fsys := fstest.MapFS{"locales/en.yaml": {Data: []byte("k: v")}}
	tr, err := NewTranslator(fsys, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Lang() != "en" || tr.T("k") != "v" {
		t.Errorf("unexpected translator state")
	}
	if _, err := NewTranslator(fsys, "de"); err == nil {
		t.Error("expected error for missing language file")
	}
}

func TestEmbeddedCataloguesShareKeys(t *testing.T) {
	en, err := NewTranslator(LocalesFS, "en")
	if err != nil {
		t.Fatalf("en: %v", err)
	}
	ru, err := NewTranslator(LocalesFS, "ru")
	if err != nil {
		t.Fatalf("ru: %v", err)
	}
	for key := range en.translations {
		if !ru.Has(key) {
			t.Errorf("ru catalogue is missing %q", key)
		}
	}
}
