package storage_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/JaimeStill/mrv/pkg/problem"
	"github.com/JaimeStill/mrv/pkg/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigFinalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr string
	}{
		{"memory needs nothing", storage.Config{Backend: storage.BackendMemory}, ""},
		{"azure with connection string", storage.Config{ConnectionString: "UseDevelopmentStorage=true"}, ""},
		{"azure with account url", storage.Config{AccountURL: "https://acct.blob.core.windows.net"}, ""},
		{"azure without credentials", storage.Config{}, "connection_string or account_url required"},
		{"unknown backend", storage.Config{Backend: "s3"}, "unknown backend: s3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Finalize(nil)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if cfg.ContainerName != "mrv" {
					t.Errorf("ContainerName = %q, want mrv", cfg.ContainerName)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("TEST_STORAGE_BACKEND", "memory")
	t.Setenv("TEST_STORAGE_CONTAINER", "exports")

	cfg := storage.Config{}
	env := &storage.Env{Backend: "TEST_STORAGE_BACKEND", ContainerName: "TEST_STORAGE_CONTAINER"}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if cfg.Backend != storage.BackendMemory {
		t.Errorf("Backend = %q, want memory", cfg.Backend)
	}
	if cfg.ContainerName != "exports" {
		t.Errorf("ContainerName = %q, want exports", cfg.ContainerName)
	}
}

func TestConfigMerge(t *testing.T) {
	base := storage.Config{Backend: storage.BackendAzure, ContainerName: "mrv"}
	base.Merge(&storage.Config{ContainerName: "staging"})

	if base.Backend != storage.BackendAzure {
		t.Errorf("Backend = %q, want azure", base.Backend)
	}
	if base.ContainerName != "staging" {
		t.Errorf("ContainerName = %q, want staging", base.ContainerName)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory(discard())

	key := "uploads/p1/abc/trees.csv"
	if err := s.Upload(ctx, key, strings.NewReader("plot,tree\n1,1\n"), "text/csv"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}

	blob, err := s.Download(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer blob.Body.Close()

	data, _ := io.ReadAll(blob.Body)
	if string(data) != "plot,tree\n1,1\n" {
		t.Errorf("body = %q", data)
	}
	if blob.ContentType != "text/csv" {
		t.Errorf("ContentType = %q", blob.ContentType)
	}
	if blob.ContentLength != int64(len(data)) {
		t.Errorf("ContentLength = %d, want %d", blob.ContentLength, len(data))
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Download(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("download after delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestKeyValidation(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory(discard())

	tests := []struct {
		key  string
		want error
	}{
		{"", storage.ErrEmptyKey},
		{"exports/../secrets", storage.ErrInvalidKey},
	}

	for _, tt := range tests {
		if err := s.Upload(ctx, tt.key, strings.NewReader("x"), "text/plain"); !errors.Is(err, tt.want) {
			t.Errorf("Upload(%q) err = %v, want %v", tt.key, err, tt.want)
		}
		if _, err := s.Exists(ctx, tt.key); !errors.Is(err, tt.want) {
			t.Errorf("Exists(%q) err = %v, want %v", tt.key, err, tt.want)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("download exports/a.csv: %w", storage.ErrNotFound), http.StatusNotFound},
		{storage.ErrEmptyKey, http.StatusUnprocessableEntity},
		{storage.ErrInvalidKey, http.StatusUnprocessableEntity},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := problem.StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestNewMemoryBackend(t *testing.T) {
	s, err := storage.New(&storage.Config{Backend: storage.BackendMemory}, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s == nil {
		t.Fatal("New returned nil system")
	}
}
