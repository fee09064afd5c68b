// Package elasticsearch opens the go-elasticsearch client and verifies the cluster is reachable.
package elasticsearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/retry"
)

// NewClient builds a client and pings it until it answers or the connect budget runs out.
func NewClient(ctx context.Context, cfg Config, log logger.Logger) (*es.Client, error) {
	cfg.SetDefaults()
	url := normalizeURL(cfg.URL)

	clientCfg := es.Config{
		Addresses:  []string{url},
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.InsecureSkipVerify {
		clientCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // dev clusters only
		}
	}
	switch {
	case cfg.APIKey != "":
		clientCfg.APIKey = cfg.APIKey
	case cfg.Username != "":
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	client, err := es.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.String("url", url))
	if err = retry.Retry(ctx, *cfg.Connect, func() error {
		return Ping(ctx, client, cfg)
	}); err != nil {
		return nil, fmt.Errorf("connect to elasticsearch: %w", err)
	}
	log.Info("Elasticsearch connection established", logger.String("url", url))

	return client, nil
}

// Ping checks the cluster answers within cfg.PingTimeout.
func Ping(ctx context.Context, client *es.Client, cfg Config) error {
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("ping elasticsearch [%s]: %s", res.Status(), body)
	}
	return nil
}

func normalizeURL(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}
