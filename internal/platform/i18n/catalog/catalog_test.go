package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func TestLoadEmbeddedHasBaseLocaleNamespaces(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	if !bundle.HasLocale(BaseLocale) {
		t.Fatalf("expected base locale %s", BaseLocale)
	}
	for _, namespace := range []string{"errors", "events"} {
		if got := len(bundle.NamespaceMessages(BaseLocale, namespace)); got == 0 {
			t.Fatalf("expected %s namespace messages", namespace)
		}
	}
	if got, ok := bundle.Message(BaseLocale, "CASE_TOKEN_INVALID"); !ok || got != "QR code is invalid." {
		t.Fatalf("unexpected token message %q (ok=%v)", got, ok)
	}
}

func TestLoadFromFSRejectsDuplicateKeysAcrossNamespaces(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/en-US/errors.yaml"), `locale: "en-US"
namespace: "errors"
messages:
  "a.key": "a"
`)
	mustWriteFile(t, filepath.Join(tempDir, "locales/en-US/events.yaml"), `locale: "en-US"
namespace: "events"
messages:
  "a.key": "b"
`)

	if _, err := LoadFromFS(os.DirFS(tempDir)); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestLoadFromFSRejectsMismatchedPath(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/en-US/errors.yaml"), `locale: "fil-PH"
namespace: "errors"
messages:
  "a.key": "a"
`)

	if _, err := LoadFromFS(os.DirFS(tempDir)); err == nil {
		t.Fatal("expected locale mismatch error")
	}
}

func TestLoadFromFSRequiresBaseLocale(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/fil-PH/errors.yaml"), `locale: "fil-PH"
namespace: "errors"
messages:
  "a.key": "a"
`)

	if _, err := LoadFromFS(os.DirFS(tempDir)); err == nil {
		t.Fatal("expected missing base locale error")
	}
}

func TestMessageFallsBackToBaseLocale(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/en-US/errors.yaml"), `locale: "en-US"
namespace: "errors"
messages:
  "only.base": "base"
  "both": "base both"
`)
	mustWriteFile(t, filepath.Join(tempDir, "locales/fil-PH/errors.yaml"), `locale: "fil-PH"
namespace: "errors"
messages:
  "both": "local both"
`)

	bundle, err := LoadFromFS(os.DirFS(tempDir))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if got, _ := bundle.Message("fil-PH", "both"); got != "local both" {
		t.Fatalf("expected local message, got %q", got)
	}
	if got, _ := bundle.Message("fil-PH", "only.base"); got != "base" {
		t.Fatalf("expected base fallback, got %q", got)
	}
	resolved, messages := bundle.NamespaceMessagesWithFallback("fr-FR", "errors")
	if resolved != BaseLocale || len(messages) != 2 {
		t.Fatalf("expected base fallback namespace, got %s with %d messages", resolved, len(messages))
	}
}

func TestDefaultRegistersWithXText(t *testing.T) {
	_ = Default()
	printer := message.NewPrinter(language.MustParse(BaseLocale))
	if got := printer.Sprintf("event.exchange.cancelled"); got != "Exchange cancelled." {
		t.Fatalf("expected registered message, got %q", got)
	}
}

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
