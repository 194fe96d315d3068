package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"securechat/internal/api"
	"securechat/internal/auth"
	"securechat/internal/cache"
	"securechat/internal/chat"
	"securechat/internal/config"
	"securechat/internal/crypto"
	"securechat/internal/database"
	"securechat/internal/server"
	"securechat/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	messageKey     string
	redisAddr      string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&messageKey, "message-key", "", "base64 encoded 32-byte message encryption key (derives a dev key when empty)")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for the page cache (disabled when empty)")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[secure-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, messageKey, redisAddr, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	db, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	cipher, err := crypto.NewCipher(cfg.MessageKey)
	if err != nil {
		logger.Fatal("cipher:", err)
	}

	pageCache := cache.NewPageCache(cfg.RedisAddr, logger)
	defer pageCache.Close()

	tokens := auth.NewTokenService(logger, db, cfg.SigningKey)
	store := chat.NewMessageStore(logger, db, cipher, pageCache)
	sessions := chat.NewSessionManager(logger, db)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	gateway, err := server.NewGateway(logger, store, statsUpdater)
	if err != nil {
		logger.Fatal("new gateway:", err)
	}

	srv := api.NewChatApp(mux, logger, gateway, db, tokens, store, sessions, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go gateway.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down gateway...")
	if err := gateway.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("gateway shutdown:", err)
	}

	logger.Println("shutdown complete")
}
