package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

const (
	acceptJSON = "application/json, text/plain, */*"
	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptCSV  = "text/csv, text/plain, */*"
)

// Prime bootstraps a fresh upstream session: existing cookies are dropped,
// the landing page is fetched, and after delay the market page is fetched.
// Each step waits for its own turn from the pacer.
// A 401/403 on either step is reported as ErrRejected.
func (c *Client) Prime(ctx context.Context, delay time.Duration) error {
	c.jar.Reset()

	if err := c.pace(ctx); err != nil {
		return fmt.Errorf("prime landing: %w", err)
	}
	if _, err := c.doRequest(ctx, c.baseURL+primeLandingPath, nil, acceptHTML); err != nil {
		return fmt.Errorf("prime landing: %w", err)
	}

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if err := c.pace(ctx); err != nil {
		return fmt.Errorf("prime market page: %w", err)
	}
	if _, err := c.doRequest(ctx, c.baseURL+primeMarketPath, nil, acceptHTML); err != nil {
		return fmt.Errorf("prime market page: %w", err)
	}

	c.logger.Debug("upstream session primed")
	return nil
}

// GetQuotes fetches raw quote records for one batch of symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]RawRecord, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))

	var env quotesEnvelope
	if err := c.getJSON(ctx, c.baseURL+c.quotesPath, query, &env); err != nil {
		return nil, fmt.Errorf("get quotes (%d symbols): %w", len(symbols), err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("get quotes: %w: missing data array", ErrSchema)
	}
	return env.Data, nil
}

// GetQuoteDetail fetches the raw detail document for one symbol. The
// document carries info, priceInfo and securityInfo objects.
func (c *Client) GetQuoteDetail(ctx context.Context, symbol string) (RawRecord, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var doc RawRecord
	if err := c.getJSON(ctx, c.baseURL+c.detailPath, query, &doc); err != nil {
		return nil, fmt.Errorf("get quote detail %s: %w", symbol, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("get quote detail %s: %w: empty document", symbol, ErrSchema)
	}
	return doc, nil
}

// GetIndices fetches raw records for every index the upstream publishes.
func (c *Client) GetIndices(ctx context.Context) ([]RawRecord, error) {
	var env quotesEnvelope
	if err := c.getJSON(ctx, c.baseURL+c.indicesPath, nil, &env); err != nil {
		return nil, fmt.Errorf("get indices: %w", err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("get indices: %w: missing data array", ErrSchema)
	}
	return env.Data, nil
}

// GetEquityList downloads and parses the equity catalog CSV. Rows without a
// symbol are kept; filtering is the caller's concern.
func (c *Client) GetEquityList(ctx context.Context) ([]CatalogRow, error) {
	if c.catalogURL == "" {
		return nil, errors.New("get equity list: catalog url not configured")
	}

	body, err := c.doWithRetry(ctx, c.catalogURL, nil, acceptCSV)
	if err != nil {
		return nil, fmt.Errorf("get equity list: %w", err)
	}

	rows, err := parseCatalog(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("get equity list: %w", err)
	}
	return rows, nil
}

// getJSON performs a GET with retries and decodes the body, keeping numbers
// as json.Number.
func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, rawURL, query, acceptJSON)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(result); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", ErrSchema, err)
	}
	return nil
}

func parseCatalog(r io.Reader) ([]CatalogRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", ErrSchema, err)
	}

	cols := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[strings.ToUpper(h)] = i
	}

	symIdx, ok := cols[catalogColSymbol]
	if !ok {
		return nil, fmt.Errorf("%w: csv missing %q column", ErrSchema, catalogColSymbol)
	}
	nameIdx, hasName := cols[catalogColName]
	seriesIdx, hasSeries := cols[catalogColSeries]

	field := func(rec []string, i int, present bool) string {
		if !present || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []CatalogRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv row: %v", ErrSchema, err)
		}
		rows = append(rows, CatalogRow{
			Symbol: field(rec, symIdx, true),
			Name:   field(rec, nameIdx, hasName),
			Series: field(rec, seriesIdx, hasSeries),
		})
	}
	return rows, nil
}
