// Command seed imports a JSON product export into DynamoDB and, when Qdrant
// is configured, indexes each product's embedding.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"shop-assistant/internal/cache"
	"shop-assistant/internal/domain"
	"shop-assistant/internal/integrations/openai"
	"shop-assistant/internal/integrations/paramstore"
	"shop-assistant/internal/repository"
	"shop-assistant/internal/usecase"
	"shop-assistant/internal/vectorstore"
)

func main() {
	file := flag.String("file", "products_backup.json", "JSON array of products to import")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	productsTable := mustEnv("PRODUCTS_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	qdrantURL := os.Getenv("QDRANT_URL")
	qdrantCollection := envString("QDRANT_COLLECTION", "products")
	redisAddr := os.Getenv("REDIS_ADDR")

	products, err := readProducts(*file)
	if err != nil {
		slog.Error("failed to read products", "file", *file, "err", err)
		os.Exit(1)
	}

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
	repo, err := repository.New(awsdynamodb.NewFromConfig(cfg), productsTable)
	if err != nil {
		slog.Error("failed to create product repository", "err", err)
		os.Exit(1)
	}

	var (
		embedder       usecase.Embedder
		vectors        usecase.VectorWriter
		invalidator    usecase.CacheInvalidator
		embeddingModel string
	)
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

		openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
		if err != nil {
			slog.Error("failed to create OpenAI client", "err", err)
			os.Exit(1)
		}
		name := paramPrefix + "/config/embedding_model"
		values, err := ssmClient.GetParameters(ctx, []string{name})
		if err != nil {
			slog.Error("failed to read embedding model", "err", err)
			os.Exit(1)
		}
		embedder, vectors, embeddingModel = openaiClient, store, values[name]
	}
	if redisAddr != "" {
		c, client, err := cache.Dial(ctx, redisAddr, 0)
		if err != nil {
			slog.Warn("redis unavailable, cached products will expire on their own", "err", err)
		} else {
			defer client.Close()
			invalidator = c
		}
	}

	importer, err := usecase.NewImportService(repo, embedder, vectors, invalidator, embeddingModel, log)
	if err != nil {
		slog.Error("failed to create importer", "err", err)
		os.Exit(1)
	}

	start := time.Now()
	res, err := importer.Import(ctx, products)
	if err != nil {
		slog.Error("import failed", "imported", res.Products, "err", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d products (%d indexed, %d skipped) in %s\n",
		res.Products, res.Vectors, res.Skipped, time.Since(start).Round(time.Millisecond))
}

func readProducts(path string) ([]domain.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return products, nil
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
