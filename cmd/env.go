package cmd

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/infoboard/infoboard/internal/config"
	"github.com/infoboard/infoboard/internal/db"
	"github.com/infoboard/infoboard/internal/manifest"
	"github.com/infoboard/infoboard/internal/objstore"
	"github.com/infoboard/infoboard/pkg/keyring"
	"github.com/infoboard/infoboard/pkg/logger"
)

var (
	newLogger = func() logger.Logger {
		return logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	}
	newTokenStore = func(dir string, l logger.Logger) keyring.Store {
		return keyring.New(dir, l)
	}
)

// withLogFile tees l into cfg.LogFile when one is configured.
func withLogFile(cfg *config.Config, l logger.Logger) logger.Logger {
	if cfg.LogFile == "" {
		return l
	}
	fl, err := logger.OpenFile(cfg.LogFile)
	if err != nil {
		l.Warning("log file disabled: %v", err)
		return l
	}
	return logger.NewMultiLogger(l, fl)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := ctx.String("listen"); v != "" {
		cfg.Listen = v
	}
	if v := ctx.String("data-dir"); v != "" {
		cfg.DataDir = v
	}
	return cfg, cfg.Validate()
}

// storage is the local object store with its database.
type storage struct {
	db      *sql.DB
	objects *objstore.Local
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	sqlDB, err := db.Open(ctx, cfg.DBPath())
	if err != nil {
		return nil, err
	}
	fs, err := objstore.NewOsFs(cfg.ObjectsDir())
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &storage{
		db:      sqlDB,
		objects: objstore.NewLocal(fs, sqlDB, cfg.PublicBase),
	}, nil
}

func (s *storage) Close() error {
	return s.db.Close()
}

func (s *storage) manifests(cfg *config.Config, l logger.Logger) *manifest.Client {
	return manifest.NewClient(s.objects, cfg.ManifestPath, cfg.BoardDurationMs(), l)
}

// adminToken returns the configured token, falling back to the keyring.
func adminToken(cfg *config.Config, l logger.Logger) (string, error) {
	if cfg.AdminToken != "" {
		return cfg.AdminToken, nil
	}
	tok, created, err := keyring.Ensure(newTokenStore(cfg.DataDir, l))
	if err != nil {
		return "", err
	}
	if created {
		l.Info("created admin token, run \"infoboard token\" to print it")
	}
	return tok, nil
}

// serverURL derives a client base URL from a listen address.
func serverURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen
}
