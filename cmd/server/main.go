package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/UkralStul/bunker-community-service/internal/blob"
	"github.com/UkralStul/bunker-community-service/internal/domain"
	"github.com/UkralStul/bunker-community-service/internal/httpapi"
	"github.com/UkralStul/bunker-community-service/internal/storage"
	"github.com/UkralStul/bunker-community-service/internal/storage/inmemory"
	"github.com/UkralStul/bunker-community-service/internal/storage/postgres"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultPort      = "8080"
	defaultUploadDir = "uploads"
)

func main() {
	// .env необязателен: в проде переменные приходят из окружения.
	_ = godotenv.Load()

	storageType := flag.String("storage", "in-memory", "Storage type (in-memory or postgres)")
	uploadDir := flag.String("uploads", envOr("UPLOAD_DIR", defaultUploadDir), "Directory for uploaded files")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var store storage.Storage
	var err error

	log.WithField("storage", *storageType).Info("starting server")
	if *storageType == "postgres" {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			log.Fatal("DATABASE_URL must be set for postgres storage")
		}
		store, err = postgres.New(dsn)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
	} else {
		store = inmemory.New()
	}

	// Явный идемпотентный шаг посева: корневая учетная запись
	// переутверждается при каждом старте.
	if err := store.SeedRootUser(context.Background()); err != nil {
		log.Fatalf("failed to seed root account: %v", err)
	}
	log.WithField("handle", domain.RootHandle).Info("root account asserted")

	blobs, err := blob.NewDisk(*uploadDir)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}

	handler := httpapi.NewHandler(store, blobs, log)

	port := envOr("PORT", defaultPort)
	log.WithField("port", port).Info("server listening")
	if err := http.ListenAndServe(":"+port, handler.Routes()); err != nil {
		log.Fatalf("server failed to start: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
