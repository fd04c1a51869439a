package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"group-chat/cooldown"
	"group-chat/crypto"
	"group-chat/repositories"
	"group-chat/runtime"
	"group-chat/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the process lifecycle, and
// centralizes error reporting so that every defer (database cleanup
// included) executes before the program exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load() // .env is optional; real environments set vars directly
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core assembly
	key, err := crypto.ParseKey(config.MessageKey)
	if err != nil {
		return err
	}
	codec, err := crypto.NewCodec(key)
	if err != nil {
		return err
	}

	bus := runtime.NewBus(log, config.SubscriberQueueSize)
	ledger := cooldown.NewLedger(db, config.RejoinCooldown, time.Now)
	groups := repositories.NewGroupRepository(db)
	users := repositories.NewUserRepository(db)
	messages := repositories.NewMessageRepository(db)

	membership := services.NewMembershipService(log, groups, users, messages, ledger, bus)
	messaging := services.NewMessageService(log, messages, membership, codec, bus,
		config.EditWindow, config.SearchScanWindow)

	// The HTTP and real-time delivery layers mount on membership,
	// messaging and the bus; this process only hosts the core.
	_ = messaging
	log.Info("group messaging core ready",
		"edit_window", config.EditWindow.String(),
		"rejoin_cooldown", config.RejoinCooldown.String())

	// 4. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("Shutting down", "signal", sig.String())
	return nil
}
