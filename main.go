package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/exp/slog"
	"webpubsub/hookgw/internal"
)

type Env struct {
	Port            int      `env:"PORT,default=8080"`
	InstanceID      string   `env:"INSTANCE_ID,required"`
	RedisURL        string   `env:"REDIS_URL,required"`
	AccessKey       string   `env:"ACCESS_KEY"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS,default=*"`
	EventHandlerURL string   `env:"EVENT_HANDLER_URL"`
	Emulator        bool     `env:"EMULATOR,default=true"`
	ServiceDomain   string   `env:"SERVICE_DOMAIN"`
}

func doMain(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := Env{}
	if err := envconfig.Process(ctx, &env); err != nil {
		return err
	}

	logger = logger.With(slog.String("instance", env.InstanceID))

	rOpts, err := redis.ParseURL(env.RedisURL)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(rOpts)
	if err := rdb.Info(ctx).Err(); err != nil {
		return err
	}

	eventHandlerURL := ""
	if env.Emulator {
		eventHandlerURL = env.EventHandlerURL
		if eventHandlerURL == "" {
			// loop back into the built-in handlers
			eventHandlerURL = fmt.Sprintf("http://127.0.0.1:%v/eventhandler", env.Port)
		}
	}

	router, err := internal.Main(
		logger,
		ctx,
		env.InstanceID,
		rdb,
		[]byte(env.AccessKey),
		env.AllowedOrigins,
		echoHandlers(logger),
		eventHandlerURL,
	)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%v", env.Port),
		Handler: router,
	}

	if env.ServiceDomain != "" {
		tlsConfig, err := TLSConfig(ctx, env.ServiceDomain, rdb)
		if err != nil {
			return err
		}

		server.TLSConfig = tlsConfig
	}

	//goland:noinspection GoUnhandledErrorResult
	defer server.Close()

	ec := make(chan error)
	go func() {
		logger.Debug("starting...", slog.String("address", server.Addr))

		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			ec <- err
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sc:
		logger.Warn("shutdown signal", slog.String("signal", sig.String()))
	case err := <-ec:
		logger.Error("failed to start http server", err)
	}

	return nil
}

// echoHandlers is the built-in behavior: accept every connection and echo
// user messages back, counting them in the connection state.
func echoHandlers(logger *slog.Logger) *internal.Handlers {
	return &internal.Handlers{
		Connect: func(ctx context.Context, evt *internal.Event) (any, error) {
			return &internal.ConnectResponse{}, nil
		},
		User: func(ctx context.Context, evt *internal.Event) (any, error) {
			seen := 1
			if prior, ok := evt.State.Snapshot()["seen"].(float64); ok {
				seen = int(prior) + 1
			}

			return &internal.UserResponse{
				Data:     evt.Data,
				DataType: evt.DataType,
				States:   map[string]any{"seen": seen},
			}, nil
		},
		Disconnected: func(ctx context.Context, evt *internal.Event) (any, error) {
			logger.Debug("client left", slog.String("connection", evt.ConnectionID))
			return nil, nil
		},
	}
}

func main() {
	handler := slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug}
	logger := slog.New(handler.NewTextHandler(os.Stdout))

	if err := doMain(logger); err != nil {
		logger.Error("failed to start", err)
		os.Exit(1)
	}
}
