package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	tea "github.com/charmbracelet/bubbletea"

	"shop-assistant/internal/catalog"
	"shop-assistant/internal/chat"
	"shop-assistant/internal/integrations/paramstore"
	"shop-assistant/internal/storefront"
	"shop-assistant/internal/tui"
)

const defaultAPIURL = "http://127.0.0.1:8000"

func main() {
	productID := flag.Int64("product", 0, "open the detail view for this product id")
	flag.Parse()

	// ---- Configuration (read only here) ----
	apiURL := envString("SHOP_API_URL", defaultAPIURL)
	apiURLParam := os.Getenv("SHOP_API_URL_PARAM")
	timeout := time.Duration(envInt("SHOP_HTTP_TIMEOUT_SECONDS", 30)) * time.Second
	logPath := envString("SHOP_LOG_FILE", "shop.log")
	markdownStyle := os.Getenv("SHOP_MARKDOWN_STYLE")

	// The terminal belongs to the UI, so logs go to a file.
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file %s: %v\n", logPath, err)
		os.Exit(1)
	}
	defer logFile.Close()
	log := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(log)

	if apiURLParam != "" {
		apiURL, err = resolveAPIURL(apiURLParam)
		if err != nil {
			fail(log, "failed to resolve API URL from SSM", err)
		}
	}

	// ---- Clients ----
	client, err := storefront.NewClient(apiURL,
		storefront.WithHTTPClient(&http.Client{Timeout: timeout}),
		storefront.WithLogger(log),
	)
	if err != nil {
		fail(log, "failed to create storefront client", err)
	}
	cat, err := catalog.New(client, log)
	if err != nil {
		fail(log, "failed to create catalog", err)
	}
	controller, err := chat.NewController(client, chat.WithLogger(log))
	if err != nil {
		fail(log, "failed to create chat controller", err)
	}

	// ---- UI ----
	m, err := tui.New(tui.Config{
		Catalog:        cat,
		Chat:           controller,
		StartProductID: *productID,
		MarkdownStyle:  markdownStyle,
	})
	if err != nil {
		fail(log, "failed to create view", err)
	}

	log.Info("starting", "api_url", client.BaseURL(), "product", *productID)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fail(log, "ui exited with error", err)
	}
	controller.Close()
}

// resolveAPIURL reads the backend address from SSM Parameter Store.
func resolveAPIURL(name string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		return "", err
	}
	v, err := ps.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func fail(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
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
