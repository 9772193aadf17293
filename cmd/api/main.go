package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"shop-assistant/handler"
	"shop-assistant/internal/cache"
	"shop-assistant/internal/devserver"
	"shop-assistant/internal/integrations/openai"
	"shop-assistant/internal/integrations/paramstore"
	"shop-assistant/internal/repository"
	"shop-assistant/internal/usecase"
	"shop-assistant/internal/vectorstore"
)

func main() {
	ctx := context.Background()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// ---- Configuration (read only here) ----
	productsTable := mustEnv("PRODUCTS_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	qdrantURL := os.Getenv("QDRANT_URL")
	qdrantCollection := envString("QDRANT_COLLECTION", "products")
	redisAddr := os.Getenv("REDIS_ADDR")
	cacheTTL := time.Duration(envInt("CACHE_TTL_SECONDS", 300)) * time.Second
	maxQueryLen := envInt("MAX_QUERY_LENGTH", 500)
	localAddr := os.Getenv("LOCAL_ADDR")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	products, err := repository.New(awsdynamodb.NewFromConfig(cfg), productsTable)
	if err != nil {
		slog.Error("failed to create product repository", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	// Qdrant and Redis are optional; without them search is keyword-only
	// and reads go straight to DynamoDB.
	var vectors usecase.VectorIndex
	if qdrantURL != "" {
		store, err := vectorstore.New(vectorstore.Config{
			URL:            qdrantURL,
			CollectionName: qdrantCollection,
			APIKey:         os.Getenv("QDRANT_API_KEY"),
		})
		if err != nil {
			slog.Error("failed to create vector store", "err", err)
			os.Exit(1)
		}
		defer store.Close()
		vectors = store
	}

	var productCache usecase.Cache
	if redisAddr != "" {
		c, client, err := cache.Dial(ctx, redisAddr, cacheTTL)
		if err != nil {
			slog.Warn("redis unavailable, continuing without cache", "err", err)
		} else {
			defer client.Close()
			productCache = c
		}
	}

	// ---- Handler ----
	catalogService, err := usecase.NewCatalogService(products, productCache, log)
	if err != nil {
		slog.Error("failed to create catalog service", "err", err)
		os.Exit(1)
	}
	recommendService, err := usecase.NewRecommendService(ssmClient, openaiClient, products, vectors, paramPrefix, maxQueryLen, log)
	if err != nil {
		slog.Error("failed to create recommend service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(catalogService, recommendService, log)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	if localAddr == "" {
		lambda.Start(h.Handle)
		return
	}
	if err := serveLocal(localAddr, h, log); err != nil {
		slog.Error("local server failed", "err", err)
		os.Exit(1)
	}
}

func serveLocal(addr string, h devserver.ProxyHandler, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	router, err := devserver.New(h, reg, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
