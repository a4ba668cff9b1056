// Package bigquery opens the analytics dataset that stores price history.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errNoProject = errors.New("gcp project id is required")
	errNoDataset = errors.New("bigquery dataset is required")
	errNoTable   = errors.New("bigquery table name is required")
	errClosed    = errors.New("bigquery client not initialized")
)

// Client is a dataset-scoped BigQuery handle.
type Client struct {
	bq           *bigquery.Client
	dataset      *bigquery.Dataset
	priceHistory string
}

// NewClient connects and fails fast when the dataset or the price history
// table is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	table := strings.TrimSpace(cfg.PriceHistoryTable)
	switch {
	case project == "":
		return nil, errNoProject
	case dataset == "":
		return nil, errNoDataset
	case table == "":
		return nil, errNoTable
	}

	bq, err := bigquery.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), priceHistory: table}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": dataset, "table": table}), "bigquery client initialized")
	}
	return c, nil
}

// credentials prefers inline JSON over a key file. With neither, the
// library falls back to application default credentials.
func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping reads the dataset and table metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClosed
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe("dataset", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.priceHistory).Metadata(ctx); err != nil {
		return describe("table", c.priceHistory, err)
	}
	return nil
}

func describe(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// PriceHistoryTable is the configured table name.
func (c *Client) PriceHistoryTable() string {
	if c == nil {
		return ""
	}
	return c.priceHistory
}

// InsertRows streams rows into table. Rows must be bigquery.ValueSaver
// values or structs carrying bigquery tags.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClosed
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errNoTable
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// TableRef is the backtick-quoted dataset.table name for use in SQL.
func (c *Client) TableRef(table string) string {
	return fmt.Sprintf("`%s.%s`", c.dataset.DatasetID, table)
}

// Query runs sql with named parameters and loads every result row into a T.
func Query[T any](ctx context.Context, c *Client, sql string, params map[string]any) ([]T, error) {
	if c == nil || c.bq == nil {
		return nil, errClosed
	}
	q := c.bq.Query(sql)
	for name, value := range params {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Name: name, Value: value})
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}

	var out []T
	for {
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read query row: %w", err)
		}
		out = append(out, row)
	}
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
