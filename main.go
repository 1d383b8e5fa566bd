package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/api"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/config"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/conversation"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/handlers"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/memstore"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/repository"
	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/service"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store  repository.Store
		states conversation.Store
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store = memstore.New()
		states = conversation.NewMemoryStore()
		log.Println("⚠️  Using in-memory storage, data is lost on restart")
	default:
		db, err := repository.Open(ctx, cfg.DSN())
		if err != nil {
			log.Fatalf("❌ Database connection error: %v", err)
		}
		defer db.Close()
		log.Println("✅ Connected to database")

		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatalf("❌ Database migration error: %v", err)
		}
		store = repository.NewRepository(db)
		states = repository.NewStateStore(db)
	}

	// Initialize bot
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("❌ Bot initialization error: %v", err)
	}
	bot.Debug = cfg.BotDebug
	log.Printf("✅ Bot authorized as @%s", bot.Self.UserName)

	// A nil channel, not a nil *TelegramPayments, marks payments as off.
	var payments service.PaymentChannel
	if cfg.PaymentConfigured() {
		payments = handlers.NewTelegramPayments(bot, cfg.Payment.ProviderToken)
	} else {
		log.Println("⚠️  PAYMENT_PROVIDER_TOKEN not set, purchases are disabled")
	}

	// Initialize service
	svc := service.NewService(store, payments, service.Options{
		AdminIDs:      cfg.AdminIDs,
		MinWithdrawal: cfg.WithdrawalMinAmount,
		Currency:      cfg.Payment.Currency,
		Logger:        logger,
	})
	if changed, err := svc.ReconcileAdmins(ctx); err != nil {
		log.Fatalf("❌ Admin sync error: %v", err)
	} else if changed > 0 {
		log.Printf("✅ Admin flags updated for %d users", changed)
	}

	engine := conversation.NewEngine(states, svc, conversation.Options{
		MinWithdrawal: svc.MinWithdrawal(),
		TTL:           cfg.ConversationTTL,
	})

	// Initialize handler
	handler := handlers.NewBotHandler(bot, svc, engine, logger)
	dispatcher := handlers.NewDispatcher(handler, logger)

	// Ops server
	var ops *http.Server
	if cfg.Ops.Addr != "" {
		ops = &http.Server{
			Addr:              cfg.Ops.Addr,
			Handler:           api.NewServer(svc, cfg.Ops.Token, logger).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("✅ Ops server listening on %s", cfg.Ops.Addr)
			if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("❌ Ops server error: %v", err)
			}
		}()
	}

	// Start receiving updates
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "pre_checkout_query"}

	updates := bot.GetUpdatesChan(u)

	log.Println("🚀 Bot is running...")

	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()

	// Handle updates
	dispatcher.Run(ctx, updates)

	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ Ops server shutdown: %v", err)
		}
	}
	log.Println("👋 Bot stopped")
}
