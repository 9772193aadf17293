package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type CatalogUseCase interface {
	ListProducts(ctx context.Context, skip, limit int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

type ChatUseCase interface {
	Recommend(ctx context.Context, query string) (domain.ChatResponse, error)
}

// Handler serves the storefront REST surface behind API Gateway.
type Handler struct {
	catalog CatalogUseCase
	chat    ChatUseCase
	log     *slog.Logger
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type statusResponse struct {
	Message string `json:"message"`
}

func NewHandler(catalog CatalogUseCase, chat ChatUseCase, log *slog.Logger) (*Handler, error) {
	if catalog == nil {
		return nil, errors.New("handler: catalog use case must not be nil")
	}
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{catalog: catalog, chat: chat, log: log}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.log.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)

	status, body := h.route(ctx, log, req)
	resp := jsonResponse(status, body, correlationID)
	log.Info("request handled", "status", status)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, log *slog.Logger, req events.APIGatewayProxyRequest) (int, any) {
	path := strings.TrimRight(req.Path, "/")
	method := strings.ToUpper(req.HTTPMethod)

	if method == http.MethodOptions {
		return http.StatusNoContent, nil
	}

	switch {
	case path == "":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return http.StatusOK, statusResponse{Message: "shop-assistant backend is running"}

	case path == "/products":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.listProducts(ctx, log, req.QueryStringParameters)

	case strings.HasPrefix(path, "/products/"):
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.getProduct(ctx, log, strings.TrimPrefix(path, "/products/"))

	case path == "/chat":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.chatTurn(ctx, log, req)
	}
	return http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Message: "route not found"}
}

func (h *Handler) listProducts(ctx context.Context, log *slog.Logger, query map[string]string) (int, any) {
	skip, err := intParam(query, "skip")
	if err != nil {
		return invalidInput("skip must be an integer")
	}
	limit, err := intParam(query, "limit")
	if err != nil {
		return invalidInput("limit must be an integer")
	}
	products, err := h.catalog.ListProducts(ctx, skip, limit)
	if err != nil {
		return errorStatus(log, err)
	}
	return http.StatusOK, products
}

func (h *Handler) getProduct(ctx context.Context, log *slog.Logger, rawID string) (int, any) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return invalidInput("product id must be an integer")
	}
	p, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		return errorStatus(log, err)
	}
	return http.StatusOK, p
}

func (h *Handler) chatTurn(ctx context.Context, log *slog.Logger, req events.APIGatewayProxyRequest) (int, any) {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return invalidInput("request body is not valid base64")
		}
		body = string(raw)
	}

	var in domain.ChatRequest
	dec := json.NewDecoder(bytes.NewBufferString(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return invalidInput("request body must be a JSON object with a query field")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidInput("request body must contain a single JSON object")
	}

	out, err := h.chat.Recommend(ctx, in.Query)
	if err != nil {
		return errorStatus(log, err)
	}
	if out.Products == nil {
		out.Products = []domain.Product{}
	}
	return http.StatusOK, out
}

func intParam(query map[string]string, name string) (int, error) {
	raw := strings.TrimSpace(query[name])
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func invalidInput(msg string) (int, any) {
	return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: msg}
}

func methodNotAllowed() (int, any) {
	return http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "method not allowed"}
}

// errorStatus maps a use case error to a status and body. Unknown errors
// are reported as internal without leaking their text.
func errorStatus(log *slog.Logger, err error) (int, any) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		log.Error("unexpected error", "err", err)
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Message: "internal error"}
	}

	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidQuestion:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorRateLimited:
		status = http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		status = http.StatusBadGateway
	}
	if status >= 500 {
		log.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		log.Warn("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}
	return status, errorResponse{Error: string(ucErr.Code), Message: ucErr.Reason}
}

func jsonResponse(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type," + correlationHeader,
		correlationHeader:              correlationID,
	}
	if body == nil {
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR","message":"encode response"}`)
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(raw)}
}

// headerValue looks up a header case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
