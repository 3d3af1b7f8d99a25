package database

import (
	"testing"
	"time"

	"github.com/asakaida/junban/internal/infrastructure/config"
)

func TestPostgres_Close(t *testing.T) {
	pg := &Postgres{DB: nil}
	if err := pg.Close(); err != nil {
		t.Errorf("Postgres.Close() with nil DB error = %v", err)
	}
}

func TestNewPostgres_InvalidConfig(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:            "invalid-host-that-does-not-exist",
		Port:            99999,
		User:            "invalid",
		Password:        "invalid",
		Database:        "invalid",
		SSLMode:         "disable",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}

	pg, err := NewPostgres(cfg)
	if err == nil {
		pg.Close()
		t.Error("NewPostgres() with invalid config should return error")
	}
}
