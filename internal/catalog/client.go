// Package catalog предоставляет клиент внешнего каталога товаров.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с каталогом. baseURL указывает на коллекцию товаров,
// отдельный товар доступен по адресу baseURL/{id}.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type methodKey struct{}

// retryIdempotent применяет стандартную политику retryablehttp ко всем методам, кроме POST.
func retryIdempotent(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if method, _ := ctx.Value(methodKey{}).(string); method == http.MethodPost {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// NewClient создаёт клиент каталога по указанному адресу. Временные ошибки сети и ответы 5xx
// повторяются с экспоненциальной задержкой. Создание товара (POST) не повторяется.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = retryLogger{logger.Sugar()}
	rc.CheckRetry = retryIdempotent

	return &Client{
		baseURL:    base,
		httpClient: rc,
	}
}

// ListProducts возвращает все товары каталога.
func (c *Client) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := c.do(ctx, http.MethodGet, c.baseURL, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct возвращает товар по идентификатору или model.ErrProductNotFound.
func (c *Client) GetProduct(ctx context.Context, id string) (model.Product, error) {
	var p model.Product
	if err := c.do(ctx, http.MethodGet, c.itemURL(id), nil, &p); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// CreateProduct добавляет товар и возвращает его с присвоенным идентификатором.
func (c *Client) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	var created model.Product
	if err := c.do(ctx, http.MethodPost, c.baseURL, p, &created); err != nil {
		return model.Product{}, err
	}
	return created, nil
}

// UpdateProduct заменяет товар с идентификатором p.ID.
func (c *Client) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if p.ID == "" {
		return model.Product{}, fmt.Errorf("%w: product id is required", model.ErrValidation)
	}
	var updated model.Product
	if err := c.do(ctx, http.MethodPut, c.itemURL(p.ID), p, &updated); err != nil {
		return model.Product{}, err
	}
	return updated, nil
}

// DeleteProduct удаляет товар.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.itemURL(id), nil, nil)
}

func (c *Client) itemURL(id string) string {
	return c.baseURL + "/" + id
}

func (c *Client) do(ctx context.Context, method, url string, body, dst any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("catalog client not configured")
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	ctx = context.WithValue(ctx, methodKey{}, method)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", model.ErrProductNotFound, url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryLogger направляет сообщения retryablehttp в zap.
type retryLogger struct {
	l *zap.SugaredLogger
}

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Errorw(msg, kv...) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.l.Infow(msg, kv...) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Debugw(msg, kv...) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.l.Warnw(msg, kv...) }
