package main

import (
	"testing"

	"pg-graphql/internal/config"
)

func TestCheckConfig(t *testing.T) {
	cfg, err := config.LoadArgs([]string{"--env_file", ""})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := checkConfig(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Pagination.DefaultPageSize = cfg.Pagination.MaxPageSize + 1
	if err := checkConfig(cfg); err == nil {
		t.Fatalf("expected validation failure")
	}
}
