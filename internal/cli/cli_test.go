package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/pkg/config"
)

func TestNewStorage(t *testing.T) {
	logger := zap.NewNop()

	mem, err := newStorage(config.DatabaseConfig{Driver: "memory"}, logger)
	if err != nil || mem == nil {
		t.Fatalf("memory storage: %v", err)
	}
	mem.Close()

	sqlite, err := newStorage(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "stylist.db"),
	}, logger)
	if err != nil {
		t.Fatalf("sqlite storage: %v", err)
	}
	sqlite.Close()

	if _, err := newStorage(config.DatabaseConfig{Driver: "mongo"}, logger); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestBuildApp(t *testing.T) {
	cfg := &config.Config{
		Database:   config.DatabaseConfig{Driver: "memory"},
		Classifier: config.ClassifierConfig{Mode: "gpt", Model: "openai", BaseURL: "http://127.0.0.1:1"},
	}
	a, err := buildApp(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()

	if a.selector.Current(context.Background()).ID != models.RecommendedModel().ID {
		t.Error("expected recommended model on a fresh store")
	}
	if s := a.sessions.Create(); s == nil || a.sessions.Len() != 1 {
		t.Error("expected a working session registry")
	}
}

func TestWriteModels(t *testing.T) {
	listing := modelListing{Selected: "gemini-flash", Models: models.Catalog()}

	var text bytes.Buffer
	if err := writeModels(&text, listing, "text"); err != nil {
		t.Fatalf("writeModels: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(text.String()), "\n")
	if len(lines) != len(listing.Models) {
		t.Fatalf("expected %d lines, got %d", len(listing.Models), len(lines))
	}
	if !strings.HasPrefix(lines[0], "* gemini-flash") || !strings.Contains(lines[0], "(recommended)") {
		t.Errorf("unexpected first line %q", lines[0])
	}

	var raw bytes.Buffer
	if err := writeModels(&raw, listing, "json"); err != nil {
		t.Fatalf("writeModels: %v", err)
	}
	var decoded modelListing
	if err := json.Unmarshal(raw.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded.Selected != "gemini-flash" || len(decoded.Models) != len(listing.Models) {
		t.Errorf("unexpected listing %+v", decoded)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestPrintTokens(t *testing.T) {
	var out bytes.Buffer
	emit := printTokens(&out)
	for _, tok := range []models.StreamToken{
		{Text: "Let me take a look at your outfit...", Phase: models.PhaseAcknowledgment},
		{Text: "Great ", Phase: models.PhaseStreaming},
		{Text: "choice.", Phase: models.PhaseComplete},
	} {
		if err := emit(tok); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	if out.String() != "Let me take a look at your outfit...\nGreat choice.\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	if err := printTokens(failingWriter{})(models.StreamToken{Text: "x"}); err == nil {
		t.Error("expected write error to propagate")
	}
}

func TestModelsCommand_ReturnsError(t *testing.T) {
	t.Setenv("STYLIST_DATABASE_DRIVER", "memory")

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs([]string{"models", "--select", "no-such-model", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	defer RootCmd.SetArgs(nil)

	if err := RootCmd.Execute(); err == nil {
		t.Fatal("expected unknown model selection to fail")
	}
	if strings.Contains(out.String(), "Usage:") {
		t.Error("usage should not be printed for runtime errors")
	}
}
