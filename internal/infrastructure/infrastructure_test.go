package infrastructure_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/JaimeStill/headcount/internal/config"
	"github.com/JaimeStill/headcount/internal/infrastructure"
	"github.com/JaimeStill/headcount/pkg/cache"
	"github.com/JaimeStill/headcount/pkg/database"
	"github.com/JaimeStill/headcount/pkg/logging"
	"github.com/JaimeStill/headcount/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=headcountstore;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/headcountstore;"

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	srv := miniredis.RunT(t)
	return &config.Config{
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "headcount",
			User:            "headcount",
			Password:        "headcount",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "5s",
		},
		Cache: cache.Config{
			URL:         "redis://" + srv.Addr() + "/0",
			DialTimeout: "1s",
			OpTimeout:   "1s",
		},
		Storage: storage.Config{
			ContainerName:    "snapshots",
			ConnectionString: azuriteConnString,
		},
		Logging: logging.Config{Mode: "development", Level: "error"},
		Version: "0.1.0",
	}
}

func TestNew(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Lifecycle == nil {
		t.Error("Lifecycle is nil")
	}
	if infra.Logger == nil {
		t.Error("Logger is nil")
	}
	if infra.Database == nil {
		t.Error("Database is nil")
	}
	if infra.Cache == nil {
		t.Error("Cache is nil")
	}
	if infra.Storage == nil {
		t.Error("Storage is nil")
	}
	infra.Database.Connection().Close()
}

func TestNewWithoutStorage(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage = storage.Config{ContainerName: "snapshots"}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if infra.Storage != nil {
		t.Error("Storage should be nil when no endpoint is configured")
	}
}

func TestNewInvalidStorageConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.ConnectionString = "not-a-connection-string"

	if _, err := infrastructure.New(cfg); err == nil {
		t.Fatal("expected error for invalid storage connection string")
	}
}

func TestNewInvalidLogLevel(t *testing.T) {
	cfg := validConfig(t)
	cfg.Logging.Level = "loud"

	if _, err := infrastructure.New(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestStartWithoutStorage(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage = storage.Config{}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := infra.Lifecycle.Shutdown(5 * time.Second); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
