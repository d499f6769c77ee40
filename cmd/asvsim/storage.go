package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/surveyor-hil/asvsim/internal/config"
	"github.com/surveyor-hil/asvsim/internal/storage"
	"github.com/surveyor-hil/asvsim/internal/storage/memory"
	pgstorage "github.com/surveyor-hil/asvsim/internal/storage/postgres"
	sqlitestorage "github.com/surveyor-hil/asvsim/internal/storage/sqlite"
	wsstorage "github.com/surveyor-hil/asvsim/internal/storage/websocket"
)

func createStorageBackend(storageCfg config.StorageConfig, apiCfg config.APIConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			DB:           config.GetDBConfig(),
			LogManager:   SlogManager,
			Logger:       ZLogger,
			FallbackPath: sessionFile(storageCfg.Memory.OutputDir, "db"),
		}), nil

	case "sqlite":
		sqliteCfg := storageCfg.SQLite
		if sqliteCfg.DumpPath == "" {
			sqliteCfg.DumpPath = sessionFile(storageCfg.Memory.OutputDir, "db")
		}
		backend, err := sqlitestorage.New(sqliteCfg, SlogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "path", sqliteCfg.DumpPath)
		return backend, nil

	case "websocket":
		wsCfg := storageCfg.WebSocket
		if wsCfg.URL == "" {
			wsCfg.URL = httpToWS(apiCfg.ServerURL) + "/api"
		}
		if wsCfg.Secret == "" {
			wsCfg.Secret = apiCfg.APIKey
		}
		Logger.Info("WebSocket storage backend initialized", "url", wsCfg.URL)
		return wsstorage.New(wsCfg, Logger), nil

	case "memory", "":
		Logger.Info("Memory storage backend initialized")
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// sessionFile names a per-session file in dir, e.g. asvsim_20260301_120000.db.
func sessionFile(dir, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", AppName, SessionStartTime.Format("20060102_150405"), ext))
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
