package solr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.Index = (*Index)(nil)

const (
	// DefaultTimeout bounds a single request when Config.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// SettingsID is the id of the document holding the Yard settings.
	SettingsID = "urn:x-yard:settings"

	// pageSize is the row count fetched per request for unlimited queries.
	pageSize = 500
)

// notSettings excludes the settings document from searches.
var notSettings = `-id:"` + SettingsID + `"`

// Config holds configuration for the Solr index.
type Config struct {
	// URL is the Solr base URL, e.g. http://localhost:8983/solr.
	URL string

	// Core is the core or collection name.
	Core string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// RequestsPerSecond throttles requests. Zero disables throttling.
	RequestsPerSecond float64

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	// SkipSchema leaves the core schema alone. Set it when the dynamic
	// fields of EnsureSchema are provided by the core's own configset.
	SkipSchema bool
}

// Index is a driven.Index over a Solr core. Documents are written with an
// immediate commit so a stored entity is visible to the next read.
type Index struct {
	client     *client
	skipSchema bool

	schemaMu    sync.Mutex
	schemaReady bool
}

// document is a Solr document as sent and received over JSON.
type document map[string]any

type getResponse struct {
	Doc document `json:"doc"`
}

type selectResponse struct {
	Response struct {
		NumFound int64      `json:"numFound"`
		Start    int64      `json:"start"`
		Docs     []document `json:"docs"`
	} `json:"response"`
}

// NewIndex creates a Solr index client. It does not contact the server;
// the schema is installed before the first write or settings read.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.URL == "" || cfg.Core == "" {
		return nil, fmt.Errorf("%w: solr url and core are required", domain.ErrInvalidInput)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: solr url %q", domain.ErrInvalidInput, cfg.URL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Index{
		client: &client{
			http:    httpClient,
			base:    strings.TrimRight(cfg.URL, "/") + "/" + url.PathEscape(cfg.Core),
			limiter: newLimiter(cfg.RequestsPerSecond),
		},
		skipSchema: cfg.SkipSchema,
	}, nil
}

// Store adds the document, replacing any document with the same id.
func (x *Index) Store(ctx context.Context, doc *domain.IndexDocument) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}
	if doc.ID == SettingsID {
		return fmt.Errorf("%w: id %s is reserved", domain.ErrInvalidInput, SettingsID)
	}
	if err := x.prepare(ctx); err != nil {
		return err
	}
	return x.add(ctx, toSolr(doc))
}

func (x *Index) add(ctx context.Context, doc document) error {
	params := url.Values{"commit": {"true"}}
	if err := x.client.post(ctx, "/update", params, []document{doc}, nil); err != nil {
		return fmt.Errorf("storing %v: %w", doc[domain.IDField], err)
	}
	return nil
}

// Load retrieves a document through the real-time get handler.
func (x *Index) Load(ctx context.Context, id string) (*domain.IndexDocument, error) {
	if id == SettingsID {
		return nil, domain.ErrNotFound
	}
	return x.load(ctx, id)
}

func (x *Index) load(ctx context.Context, id string) (*domain.IndexDocument, error) {
	var resp getResponse
	if err := x.client.get(ctx, "/get", url.Values{"id": {id}}, &resp); err != nil {
		return nil, fmt.Errorf("loading %s: %w", id, err)
	}
	if resp.Doc == nil {
		return nil, domain.ErrNotFound
	}
	return fromSolr(resp.Doc)
}

// Remove deletes a document by id.
func (x *Index) Remove(ctx context.Context, id string) error {
	return x.delete(ctx, map[string]any{"id": id})
}

// RemoveAll deletes every document except the settings document.
func (x *Index) RemoveAll(ctx context.Context) error {
	return x.delete(ctx, map[string]any{"query": "*:* " + notSettings})
}

func (x *Index) delete(ctx context.Context, target map[string]any) error {
	body := map[string]any{"delete": target}
	if err := x.client.post(ctx, "/update", url.Values{"commit": {"true"}}, body, nil); err != nil {
		return fmt.Errorf("deleting: %w", err)
	}
	return nil
}

// Query sends the compiled query string to the select handler, ordered by
// id. A query without limit is fetched page by page.
func (x *Index) Query(ctx context.Context, q *domain.CompiledQuery) ([]domain.IndexDocument, error) {
	var results []domain.IndexDocument
	start := q.Offset()
	for {
		rows := pageSize
		if q.Limit() > 0 {
			rows = min(rows, q.Limit()-len(results))
		}
		resp, err := x.search(ctx, q.String(), start, rows)
		if err != nil {
			return nil, err
		}
		for _, d := range resp.Response.Docs {
			doc, err := fromSolr(d)
			if err != nil {
				return nil, err
			}
			results = append(results, *doc)
		}

		got := len(resp.Response.Docs)
		start += got
		if got < rows || int64(start) >= resp.Response.NumFound {
			break
		}
		if q.Limit() > 0 && len(results) >= q.Limit() {
			break
		}
	}
	logger.Debug("solr: %q returned %d documents", q.String(), len(results))
	return results, nil
}

func (x *Index) search(ctx context.Context, query string, start, rows int) (*selectResponse, error) {
	params := url.Values{
		"q":     {query},
		"fq":    {notSettings},
		"sort":  {domain.IDField + " asc"},
		"start": {strconv.Itoa(start)},
		"rows":  {strconv.Itoa(rows)},
	}
	var resp selectResponse
	if err := x.client.get(ctx, "/select", params, &resp); err != nil {
		return nil, fmt.Errorf("querying %q: %w", query, err)
	}
	return &resp, nil
}

// Count returns the number of entity documents.
func (x *Index) Count(ctx context.Context) (int, error) {
	resp, err := x.search(ctx, "*:*", 0, 0)
	if err != nil {
		return 0, err
	}
	return int(resp.Response.NumFound), nil
}

// Settings reads the settings document. Empty if none was saved.
func (x *Index) Settings(ctx context.Context) (map[string]string, error) {
	if err := x.prepare(ctx); err != nil {
		return nil, err
	}
	doc, err := x.load(ctx, SettingsID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	settings := make(map[string]string, len(doc.Fields))
	for name, values := range doc.Fields {
		if len(values) > 0 {
			settings[name] = values[0]
		}
	}
	return settings, nil
}

// SaveSettings replaces the settings document.
func (x *Index) SaveSettings(ctx context.Context, settings map[string]string) error {
	if err := x.prepare(ctx); err != nil {
		return err
	}
	doc := document{domain.IDField: SettingsID}
	for k, v := range settings {
		doc[k] = v
	}
	return x.add(ctx, doc)
}

// Close releases idle connections.
func (x *Index) Close() error {
	x.client.http.CloseIdleConnections()
	return nil
}

func toSolr(doc *domain.IndexDocument) document {
	out := make(document, len(doc.Fields)+1)
	out[domain.IDField] = doc.ID
	for name, values := range doc.Fields {
		out[name] = append([]string(nil), values...)
	}
	return out
}

// fromSolr converts a returned document. Solr bookkeeping fields, which
// start with an underscore, are dropped.
func fromSolr(d document) (*domain.IndexDocument, error) {
	id, ok := d[domain.IDField].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: solr document without id", domain.ErrBackendUnavailable)
	}
	doc := domain.NewIndexDocument(id)
	for name, raw := range d {
		if name == domain.IDField || strings.HasPrefix(name, "_") {
			continue
		}
		values, err := stringValues(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s of %s: %v", domain.ErrBackendUnavailable, name, id, err)
		}
		if len(values) > 0 {
			doc.Add(name, values...)
		}
	}
	return doc, nil
}
