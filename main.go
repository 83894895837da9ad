package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nexus-im/bazaar/internal/api"
	"github.com/nexus-im/bazaar/internal/auth"
	"github.com/nexus-im/bazaar/internal/config"
	"github.com/nexus-im/bazaar/internal/realtime"
	"github.com/nexus-im/bazaar/store/conversation"
	"github.com/nexus-im/bazaar/store/message"
	"github.com/nexus-im/bazaar/store/user"

	_ "github.com/lib/pq"
)

var addr = flag.String("addr", ":8080", "http service address")

type stores struct {
	users         user.Store
	messages      message.Store
	conversations conversation.Store
	close         func()
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := newLogger(cfg)

	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.WithField("function", "main").Warn("JWT_SECRET is not set, using the development default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer st.close()

	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	hub := realtime.NewHub(st.messages, realtime.Config{
		Logger:         logger.WithField("component", "realtime"),
		Authenticator:  authenticator,
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
	})
	go hub.Run(ctx)

	handler := api.NewHandler(st.users, st.messages, st.conversations, hub, authenticator, logger.WithField("component", "api"))
	server := &http.Server{
		Addr:              *addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		logger.WithField("function", "main").Info("received stop signal, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("error during shutdown")
		}
	}()

	logger.WithFields(logrus.Fields{
		"function": "main",
		"addr":     *addr,
	}).Info("server starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("ListenAndServe")
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func openStores(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*stores, error) {
	backend, err := cfg.Backend()
	if err != nil {
		return nil, err
	}

	if backend == config.BackendMongo {
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.DatabaseURL))
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDatabase)

		messages := message.NewMongoStore(db)
		users := user.NewMongoStore(db)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			// Just log warning, maybe the database isn't up yet (Docker)
			logger.WithError(err).Warn("database unreachable")
		} else {
			if err := messages.EnsureIndexes(pingCtx); err != nil {
				logger.WithError(err).Warn("failed to create message indexes")
			}
			if err := users.EnsureIndexes(pingCtx); err != nil {
				logger.WithError(err).Warn("failed to create user indexes")
			}
			logger.WithField("backend", backend).Info("connected to database")
		}

		return &stores{
			users:         users,
			messages:      messages,
			conversations: conversation.NewMongoStore(db),
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					logger.WithError(err).Warn("error closing database")
				}
			},
		}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		// Just log warning, maybe the database isn't up yet (Docker)
		logger.WithError(err).Warn("database unreachable")
	} else {
		logger.WithField("backend", backend).Info("connected to database")
	}

	return &stores{
		users:         user.NewSQLStore(db),
		messages:      message.NewSQLStore(db),
		conversations: conversation.NewSQLStore(db),
		close: func() {
			if err := db.Close(); err != nil {
				logger.WithError(err).Warn("error closing database")
			}
		},
	}, nil
}
