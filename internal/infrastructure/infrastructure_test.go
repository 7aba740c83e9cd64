package infrastructure_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/matchflow/internal/config"
	"github.com/JaimeStill/matchflow/internal/infrastructure"
	"github.com/JaimeStill/matchflow/pkg/database"
	"github.com/JaimeStill/matchflow/pkg/storage"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store:   config.StoreConfig{Provider: config.StoreProviderMemory},
		Storage: storage.Config{Provider: storage.ProviderMemory, ContainerName: "stage-outputs"},
		Logging: config.LoggingConfig{Level: "info", Format: config.LogFormatText},
		Version: "0.1.0",
	}
}

func TestNewMemory(t *testing.T) {
	infra, err := infrastructure.New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Lifecycle == nil {
		t.Error("Lifecycle is nil")
	}
	if infra.Logger == nil {
		t.Error("Logger is nil")
	}
	if infra.Database != nil {
		t.Error("Database should be nil for the memory store")
	}
	if infra.Firestore != nil {
		t.Error("Firestore should be nil for the memory store")
	}
	if infra.Storage == nil {
		t.Error("Storage is nil")
	}

	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	infra.Lifecycle.WaitForStartup()
	if err := infra.Lifecycle.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewArchiveDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Provider = storage.ProviderNone

	infra, err := infrastructure.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if infra.Storage != nil {
		t.Error("Storage should be nil when the archive is disabled")
	}
	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestReady(t *testing.T) {
	infra, err := infrastructure.New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Ready() {
		t.Error("should not be ready before startup")
	}

	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	infra.Lifecycle.WaitForStartup()

	if !infra.Ready() {
		t.Error("should be ready after startup")
	}

	if err := infra.Lifecycle.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if infra.Ready() {
		t.Error("should not be ready after shutdown")
	}
}

func TestChecksNamesDependencies(t *testing.T) {
	infra, err := infrastructure.New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	checks := infra.Checks()
	if len(checks) != 1 {
		t.Fatalf("checks: got %v, want lifecycle only", checks)
	}
	if checks["lifecycle"] {
		t.Error("lifecycle check passed before startup")
	}

	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	infra.Lifecycle.WaitForStartup()

	if !infra.Checks()["lifecycle"] {
		t.Error("lifecycle check failed after startup")
	}
	if _, ok := infra.Checks()["database"]; ok {
		t.Error("database check reported for the memory store")
	}
}

func TestNewPostgres(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Provider = config.StoreProviderPostgres
	cfg.Database = database.Config{
		Host:            "localhost",
		Port:            5432,
		Name:            "matchflow",
		User:            "matchflow",
		Password:        "matchflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: "15m",
		ConnTimeout:     "5s",
	}

	infra, err := infrastructure.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	conn := infra.Database.Connection()
	if conn == nil {
		t.Fatal("Database.Connection() returned nil")
	}
	conn.Close()
}

func TestNewInvalidStorageConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage = storage.Config{
		Provider:         storage.ProviderAzure,
		ContainerName:    "stage-outputs",
		ConnectionString: "not-a-connection-string",
	}

	if _, err := infrastructure.New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for invalid storage connection string")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := infrastructure.NewLogger(&config.LoggingConfig{Level: "warn", Format: config.LogFormatJSON}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "stage", "extract")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"stage":"extract"`) {
		t.Errorf("json output: got %s", out)
	}

	buf.Reset()
	logger = infrastructure.NewLogger(&config.LoggingConfig{Level: "info", Format: config.LogFormatText}, &buf)
	logger.Info("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("text output: got %s", buf.String())
	}
}
