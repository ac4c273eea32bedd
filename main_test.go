package main

import (
	"testing"

	"github.com/Abhijeet1005/zendly-assignment/pkg/config"
)

func TestOpenStore_CloseReleasesPool(t *testing.T) {
	cfg := &config.AppConfig{Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}}
	gdb, closeStore, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("gdb.DB() error = %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("Ping() before close error = %v", err)
	}
	closeStore()
	if err := sqlDB.Ping(); err == nil {
		t.Fatalf("Ping() after close = nil, want error")
	}
}
