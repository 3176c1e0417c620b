// internal/common/alerting/elasticsearch.go
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"extension-recovery/internal/common/config"
	"extension-recovery/internal/recovery"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchAlerter indexes escalations so they can be searched and
// charted alongside the rest of the platform's logs.
type ElasticsearchAlerter struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticsearchAlerter creates a client from configuration.
func NewElasticsearchAlerter(cfg config.ElasticsearchConfig) (*ElasticsearchAlerter, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.GetAddresses(),
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = "extension-escalations"
	}
	return &ElasticsearchAlerter{client: es, index: index}, nil
}

// Ping tests the Elasticsearch connection
func (a *ElasticsearchAlerter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := a.client.Ping(a.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

func (a *ElasticsearchAlerter) Alert(ctx context.Context, e *recovery.Escalation) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode escalation: %w", err)
	}

	res, err := a.client.Index(
		a.index,
		bytes.NewReader(raw),
		a.client.Index.WithContext(ctx),
		a.client.Index.WithDocumentID(e.ID),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", res.Status())
	}
	return nil
}
