package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"shop-assistant/internal/domain"
)

const (
	// BatchGetItem accepts at most 100 keys per call.
	maxBatchKeys = 100
	// Unprocessed keys are retried with exponential backoff, 50ms up to 1s.
	maxBatchAttempts = 6
	batchRetryBase   = 50 * time.Millisecond
	batchRetryMax    = time.Second
)

var ErrNotFound = domain.ErrNotFound

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Client reads and writes the product table. Items are keyed by the numeric
// attribute "id"; "search_text" holds a lower-cased title and description for
// keyword matching.
type Client struct {
	api       dynamodbAPI
	tableName string
	retryBase time.Duration
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, retryBase: batchRetryBase}, nil
}

func productKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

// ListProducts returns products ordered by id, skipping the first skip and
// returning at most limit.
func (c *Client) ListProducts(ctx context.Context, skip, limit int) ([]domain.Product, error) {
	items, err := c.scan(ctx, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("repository: ListProducts: %w", err)
	}
	products, err := itemsToProducts(items)
	if err != nil {
		return nil, fmt.Errorf("repository: ListProducts: %w", err)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	if skip < 0 {
		skip = 0
	}
	if skip >= len(products) {
		return []domain.Product{}, nil
	}
	products = products[skip:]
	if limit > 0 && limit < len(products) {
		products = products[:limit]
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       productKey(id),
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("repository: GetProduct get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Product{}, ErrNotFound
	}
	p, err := itemToProduct(out.Item)
	if err != nil {
		return domain.Product{}, fmt.Errorf("repository: GetProduct decode: %w", err)
	}
	return p, nil
}

// GetProducts loads the given ids and returns them in the order requested.
// Ids with no item are skipped.
func (c *Client) GetProducts(ctx context.Context, ids []int64) ([]domain.Product, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	byID := make(map[int64]domain.Product, len(unique))
	for start := 0; start < len(unique); start += maxBatchKeys {
		end := min(start+maxBatchKeys, len(unique))
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range unique[start:end] {
			keys = append(keys, productKey(id))
		}

		request := map[string]types.KeysAndAttributes{c.tableName: {Keys: keys}}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt > 0 {
				if attempt >= maxBatchAttempts {
					return nil, fmt.Errorf("repository: GetProducts: %d keys unprocessed after %d attempts",
						len(request[c.tableName].Keys), attempt)
				}
				if err := c.backoff(ctx, attempt); err != nil {
					return nil, fmt.Errorf("repository: GetProducts: %w", err)
				}
			}
			out, err := c.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("repository: GetProducts batch get: %w", err)
			}
			for _, item := range out.Responses[c.tableName] {
				p, err := itemToProduct(item)
				if err != nil {
					return nil, fmt.Errorf("repository: GetProducts decode: %w", err)
				}
				byID[p.ID] = p
			}
			request = out.UnprocessedKeys
		}
	}

	products := make([]domain.Product, 0, len(byID))
	for _, id := range unique {
		if p, ok := byID[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// backoff waits before retry attempt n (n >= 1).
func (c *Client) backoff(ctx context.Context, n int) error {
	d := min(c.retryBase<<(n-1), batchRetryMax)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SearchProducts scans for products whose title or description contains
// query, case-insensitively. Category filtering belongs to the vector index.
func (c *Client) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []domain.Product{}, nil
	}

	items, err := c.scan(ctx, &dynamodb.ScanInput{
		FilterExpression: aws.String("contains(search_text, :q)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": &types.AttributeValueMemberS{Value: query},
		},
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: SearchProducts: %w", err)
	}
	products, err := itemsToProducts(items)
	if err != nil {
		return nil, fmt.Errorf("repository: SearchProducts: %w", err)
	}
	return products, nil
}

// PutProduct writes or replaces a product.
func (c *Client) PutProduct(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("repository: PutProduct: %w", err)
	}
	item, err := productItem(p)
	if err != nil {
		return fmt.Errorf("repository: PutProduct: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("repository: PutProduct: %w", err)
	}
	return nil
}

// scan pages through the table until exhausted or maxItems (when > 0)
// have been collected.
func (c *Client) scan(ctx context.Context, in *dynamodb.ScanInput, maxItems int) ([]map[string]types.AttributeValue, error) {
	if in == nil {
		in = &dynamodb.ScanInput{}
	}
	in.TableName = aws.String(c.tableName)

	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, out.Items...)
		if maxItems > 0 && len(items) >= maxItems {
			return items[:maxItems], nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func itemsToProducts(items []map[string]types.AttributeValue) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		p, err := itemToProduct(item)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func itemToProduct(item map[string]types.AttributeValue) (domain.Product, error) {
	id, err := int64Attr(item, "id")
	if err != nil {
		return domain.Product{}, err
	}
	title, err := strAttr(item, "title")
	if err != nil {
		return domain.Product{}, err
	}
	price, err := floatAttr(item, "price")
	if err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{ID: id, Title: title, Price: price}
	// Optional attributes.
	p.Category, _ = strAttr(item, "category")
	p.ImageURL, _ = strAttr(item, "image_url")
	p.Description, _ = strAttr(item, "description")
	p.ProductURL, _ = strAttr(item, "product_url")

	if raw, _ := strAttr(item, "features"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Features); err != nil {
			return domain.Product{}, fmt.Errorf("repository: decode features of product %d: %w", id, err)
		}
	}
	return p, nil
}

func productItem(p domain.Product) (map[string]types.AttributeValue, error) {
	item := productKey(p.ID)
	item["title"] = &types.AttributeValueMemberS{Value: p.Title}
	item["price"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(p.Price, 'f', -1, 64)}
	item["search_text"] = &types.AttributeValueMemberS{Value: strings.ToLower(p.Title + " " + p.Description)}

	// Optional fields are written only when set.
	for name, v := range map[string]string{
		"category":    p.Category,
		"image_url":   p.ImageURL,
		"description": p.Description,
		"product_url": p.ProductURL,
	} {
		if v != "" {
			item[name] = &types.AttributeValueMemberS{Value: v}
		}
	}
	if len(p.Features) > 0 {
		raw, err := json.Marshal(p.Features)
		if err != nil {
			return nil, fmt.Errorf("encode features: %w", err)
		}
		item["features"] = &types.AttributeValueMemberS{Value: string(raw)}
	}
	return item, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func numAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a number", key)
	}
	return n.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
