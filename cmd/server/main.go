package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stockpilot/auth-service/auth"
	"github.com/stockpilot/auth-service/internal/config"
	"github.com/stockpilot/auth-service/internal/rate"
	"github.com/stockpilot/auth-service/server"
	"github.com/stockpilot/auth-service/token"
	"github.com/stockpilot/auth-service/users"
	"github.com/stockpilot/auth-service/users/postgres"
	"github.com/stockpilot/auth-service/users/repofake"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	userRepo, cleanup, err := newUserRepo(c)
	if err != nil {
		return err
	}
	defer cleanup()

	tokenManager, err := token.NewManager(c)
	if err != nil {
		return err
	}

	options := []auth.ServiceOption{auth.WithBcryptCost(c.GetBcryptCost())}
	if addr := c.GetRedisAddr(); addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()
		options = append(options, auth.WithLimiter(rate.New(redisClient, rate.Config{
			MaxLoginAttempts:      c.GetMaxLoginAttempts(),
			LoginCooldownDuration: c.GetLoginCooldown(),
		})))
		zlog.Info().Str("addr", addr).Msg("login throttling enabled")
	}

	authService, err := auth.NewService(userRepo, tokenManager, options...)
	if err != nil {
		return err
	}

	handler, err := server.New(c, authService)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// newUserRepo picks Postgres when a DSN is configured, or the in-memory repo
// for local development.
func newUserRepo(c config.Config) (users.UserRepo, func(), error) {
	dsn := c.GetDatabaseURL()
	if dsn == "" {
		zlog.Warn().Msg("DATABASE_URL not set, using in-memory user store")
		return repofake.NewFakeUserRepo(), func() {}, nil
	}

	if err := postgres.Migrate(dsn, "up"); err != nil {
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	repo, err := postgres.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

func setupLogging(c config.Config) {
	if c.GetEnv() == "DEV" {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
