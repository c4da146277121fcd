package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/stockcache/internal/api"
	"github.com/rickgao/stockcache/internal/model"
)

// Source names.
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// CatalogClient downloads the equity list. *api.Client satisfies it.
type CatalogClient interface {
	GetEquityList(ctx context.Context) ([]api.CatalogRow, error)
}

// HTTPSource loads the catalog from the upstream equity list CSV.
type HTTPSource struct {
	client CatalogClient
	series string
}

// NewHTTPSource creates an HTTPSource. A non-empty series keeps only rows of
// that series (case-insensitive).
func NewHTTPSource(client CatalogClient, series string) *HTTPSource {
	return &HTTPSource{client: client, series: strings.TrimSpace(series)}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return SourceHTTP }

// Load implements Source.
func (s *HTTPSource) Load(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.client.GetEquityList(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Instrument, 0, len(rows))
	for _, row := range rows {
		if s.series != "" && !strings.EqualFold(row.Series, s.series) {
			continue
		}
		out = append(out, model.Instrument{Symbol: row.Symbol, DisplayName: row.Name})
	}
	return out, nil
}

// Querier is the subset of *pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource loads the catalog from a table with symbol, display_name
// and sort_order columns.
type PostgresSource struct {
	db    Querier
	query string
}

// NewPostgresSource creates a PostgresSource over table, which may be
// schema-qualified ("market.instruments").
func NewPostgresSource(db Querier, table string) *PostgresSource {
	return &PostgresSource{db: db, query: catalogQuery(table)}
}

func catalogQuery(table string) string {
	ident := pgx.Identifier(strings.Split(table, ".")).Sanitize()
	return fmt.Sprintf("SELECT symbol, display_name FROM %s ORDER BY sort_order, symbol", ident)
}

// Name implements Source.
func (s *PostgresSource) Name() string { return SourcePostgres }

// Load implements Source. NULL columns become empty strings; rows left
// without a symbol are dropped when the universe is built.
func (s *PostgresSource) Load(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.db.Query(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Instrument, error) {
		var symbol, name *string
		if err := row.Scan(&symbol, &name); err != nil {
			return model.Instrument{}, err
		}
		var inst model.Instrument
		if symbol != nil {
			inst.Symbol = *symbol
		}
		if name != nil {
			inst.DisplayName = *name
		}
		return inst, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan catalog: %w", err)
	}
	return out, nil
}
