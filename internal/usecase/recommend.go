package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/integrations/openai"
	"shop-assistant/internal/vectorstore"
)

const (
	defaultMaxQuery       = 500
	searchLimit           = 20
	maxRecommendations    = 5
	replyTemperature      = 0.3
	defaultChatModel      = "gpt-4o"
	defaultAnalysisModel  = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// NoResultsReply is returned without an LLM call when nothing matches.
const NoResultsReply = "I'm sorry, I couldn't find any products matching your query. " +
	"Could you try searching for gym wear, leggings, sports bras, or other athletic clothing?"

// ParamGetter returns the values SSM knows among names; unknown names are
// left out of the map.
type ParamGetter interface {
	GetParameters(ctx context.Context, names []string) (map[string]string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, opts openai.ChatOptions) (string, error)
	Embed(ctx context.Context, model, input string) ([]float32, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

type ProductSearcher interface {
	GetProducts(ctx context.Context, ids []int64) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
}

type VectorIndex interface {
	Search(ctx context.Context, vector []float32, category string, limit int) ([]vectorstore.Hit, error)
}

// models names the LLMs used per stage; read from SSM once.
type models struct {
	chat      string
	analysis  string
	embedding string
}

// RecommendService answers one chat query with a reply and the products it
// recommends.
type RecommendService struct {
	params      ParamGetter
	llm         LLMClient
	products    ProductSearcher
	vectors     VectorIndex
	paramPrefix string
	maxQuery    int
	log         *slog.Logger

	cfgMu     sync.RWMutex
	cfgLoaded bool
	models    models
}

// NewRecommendService builds the service. vectors may be nil, in which case
// search is keyword-only.
func NewRecommendService(p ParamGetter, llm LLMClient, products ProductSearcher, vectors VectorIndex, paramPrefix string, maxQuery int, log *slog.Logger) (*RecommendService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if products == nil {
		return nil, errors.New("usecase: product searcher must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxQuery <= 0 {
		maxQuery = defaultMaxQuery
	}
	if log == nil {
		log = slog.Default()
	}
	return &RecommendService{
		params:      p,
		llm:         llm,
		products:    products,
		vectors:     vectors,
		paramPrefix: paramPrefix,
		maxQuery:    maxQuery,
		log:         log,
	}, nil
}

func (s *RecommendService) Recommend(ctx context.Context, query string) (domain.ChatResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ChatResponse{}, newError(ErrorInvalidInput, "empty_query", nil)
	}
	if utf8.RuneCountInString(query) > s.maxQuery {
		return domain.ChatResponse{}, newError(ErrorInvalidInput, "query_too_long", nil)
	}
	m, err := s.ensureConfig(ctx)
	if err != nil {
		return domain.ChatResponse{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	flagged, err := s.llm.Moderate(ctx, query)
	if err != nil {
		return domain.ChatResponse{}, upstreamError("moderation", err)
	}
	if flagged {
		return domain.ChatResponse{}, newError(ErrorInvalidQuestion, "moderation_flagged", nil)
	}

	analysis := s.analyse(ctx, m.analysis, query)
	candidates, err := s.hybridSearch(ctx, m.embedding, analysis)
	if err != nil {
		return domain.ChatResponse{}, newError(ErrorInternal, "product_search_error", err)
	}

	top := pickTop(query, candidates, maxRecommendations)
	if len(top) == 0 {
		return domain.ChatResponse{Response: NoResultsReply, Products: []domain.Product{}}, nil
	}

	temp := replyTemperature
	reply, err := s.llm.Chat(ctx, m.chat, buildRecommendationMessages(query, top), openai.ChatOptions{Temperature: &temp})
	if err != nil {
		return domain.ChatResponse{}, upstreamError("openai", err)
	}
	return domain.ChatResponse{Response: reply, Products: top}, nil
}

// analyse turns the query into a search phrase and filters. Any failure
// falls back to the raw query with no filters.
func (s *RecommendService) analyse(ctx context.Context, model, query string) queryAnalysis {
	raw, err := s.llm.Chat(ctx, model, buildAnalysisMessages(query), openai.ChatOptions{JSON: true})
	if err != nil {
		s.log.Warn("query analysis failed", "err", err)
		return queryAnalysis{Query: query}
	}
	a, err := parseAnalysis(raw, query)
	if err != nil {
		s.log.Warn("query analysis unparseable", "err", err)
		return queryAnalysis{Query: query}
	}
	s.log.Debug("query analysed", "search", a.Query, "category", a.Filters.Category)
	return a
}

// hybridSearch fuses vector and keyword matches, vector hits first, drops
// duplicates and products outside the price filter, and keeps searchLimit.
// It fails only when neither source could be queried.
func (s *RecommendService) hybridSearch(ctx context.Context, embeddingModel string, a queryAnalysis) ([]domain.Product, error) {
	vectorProducts, vecErr := s.vectorSearch(ctx, embeddingModel, a)
	if vecErr != nil {
		s.log.Warn("vector search failed, using keyword results only", "err", vecErr)
	}
	keywordProducts, kwErr := s.products.SearchProducts(ctx, a.Query, searchLimit)
	if kwErr != nil {
		if vecErr != nil || s.vectors == nil {
			return nil, errors.Join(vecErr, kwErr)
		}
		s.log.Warn("keyword search failed", "err", kwErr)
	}

	seen := make(map[int64]bool, len(vectorProducts)+len(keywordProducts))
	out := make([]domain.Product, 0, searchLimit)
	for _, group := range [][]domain.Product{vectorProducts, keywordProducts} {
		for _, p := range group {
			if seen[p.ID] || !a.Filters.AllowsPrice(p.Price) {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	s.log.Debug("hybrid search", "vector", len(vectorProducts), "keyword", len(keywordProducts), "kept", len(out))
	if len(out) > searchLimit {
		out = out[:searchLimit]
	}
	return out, nil
}

func (s *RecommendService) vectorSearch(ctx context.Context, model string, a queryAnalysis) ([]domain.Product, error) {
	if s.vectors == nil {
		return nil, nil
	}
	vec, err := s.llm.Embed(ctx, model, a.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.vectors.Search(ctx, vec, a.Filters.Category, searchLimit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ProductID)
	}
	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load vector hits: %w", err)
	}
	return products, nil
}

// pickTop prefers products whose title contains the user's query; otherwise
// it keeps the ranking as is.
func pickTop(query string, candidates []domain.Product, n int) []domain.Product {
	q := strings.ToLower(query)
	var exact []domain.Product
	for _, p := range candidates {
		if strings.Contains(strings.ToLower(p.Title), q) {
			exact = append(exact, p)
		}
	}
	pool := candidates
	if len(exact) > 0 {
		pool = exact
	}
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool
}

func (s *RecommendService) ensureConfig(ctx context.Context) (models, error) {
	s.cfgMu.RLock()
	if s.cfgLoaded {
		m := s.models
		s.cfgMu.RUnlock()
		return m, nil
	}
	s.cfgMu.RUnlock()

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	if s.cfgLoaded {
		return s.models, nil
	}

	m, err := s.loadModels(ctx)
	if err != nil {
		return models{}, err
	}
	s.models = m
	s.cfgLoaded = true
	return m, nil
}

func (s *RecommendService) loadModels(ctx context.Context) (models, error) {
	var m models
	params := []struct {
		name string
		dst  *string
		def  string
	}{
		{s.paramPrefix + "/config/openai_model", &m.chat, defaultChatModel},
		{s.paramPrefix + "/config/analysis_model", &m.analysis, defaultAnalysisModel},
		{s.paramPrefix + "/config/embedding_model", &m.embedding, DefaultEmbeddingModel},
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.name
	}

	values, err := s.params.GetParameters(ctx, names)
	if err != nil {
		return models{}, fmt.Errorf("usecase: load model config: %w", err)
	}
	for _, p := range params {
		v := strings.TrimSpace(values[p.name])
		if v == "" {
			v = p.def
		}
		*p.dst = v
	}
	return m, nil
}
