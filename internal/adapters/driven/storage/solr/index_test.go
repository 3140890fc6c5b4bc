package solr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/stanbol-sub040/internal/codec"
	"github.com/apache/stanbol-sub040/internal/compiler"
	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// --- Fake Solr core for Index testing ---

// fakeSolr keeps documents in memory and answers match-all selects. It
// records the parameters of every select so tests can check the rendered
// query without a real query parser.
type fakeSolr struct {
	mu      sync.Mutex
	docs    map[string]map[string]any
	selects []url.Values
	updates int
	status  int

	fieldTypes    map[string]bool
	dynamicFields map[string]bool
	schemaPosts   [][]byte
	schemaStatus  int
}

func newFakeSolr() *fakeSolr {
	return &fakeSolr{
		docs:          make(map[string]map[string]any),
		fieldTypes:    map[string]bool{"string": true, "text_general": true},
		dynamicFields: map[string]bool{"*_s": true},
	}
}

func (f *fakeSolr) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"msg": "core is down", "code": f.status},
		})
		return
	}

	switch r.URL.Path {
	case "/solr/cities/update":
		f.update(w, r)
	case "/solr/cities/get":
		doc, ok := f.docs[r.URL.Query().Get("id")]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"doc": nil})
			return
		}
		withVersion := map[string]any{"_version_": 1}
		for k, v := range doc {
			withVersion[k] = v
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"doc": withVersion})
	case "/solr/cities/select":
		f.selectDocs(w, r.URL.Query())
	case "/solr/cities/schema/fieldtypes":
		_ = json.NewEncoder(w).Encode(map[string]any{"fieldTypes": names(f.fieldTypes)})
	case "/solr/cities/schema/dynamicfields":
		_ = json.NewEncoder(w).Encode(map[string]any{"dynamicFields": names(f.dynamicFields)})
	case "/solr/cities/schema":
		f.schema(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeSolr) update(w http.ResponseWriter, r *http.Request) {
	f.updates++
	body, _ := io.ReadAll(r.Body)

	var adds []map[string]any
	if json.Unmarshal(body, &adds) == nil {
		for _, d := range adds {
			f.docs[d["id"].(string)] = d
		}
		_, _ = w.Write([]byte(`{"responseHeader":{"status":0}}`))
		return
	}

	var del struct {
		Delete struct {
			ID    string `json:"id"`
			Query string `json:"query"`
		} `json:"delete"`
	}
	if err := json.Unmarshal(body, &del); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"msg":"bad update","code":400}}`))
		return
	}
	if del.Delete.ID != "" {
		delete(f.docs, del.Delete.ID)
	}
	if del.Delete.Query != "" {
		for id := range f.docs {
			if id != SettingsID {
				delete(f.docs, id)
			}
		}
	}
	_, _ = w.Write([]byte(`{"responseHeader":{"status":0}}`))
}

// schema applies add commands and rejects adds of existing definitions,
// as the Schema API does.
func (f *fakeSolr) schema(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.schemaPosts = append(f.schemaPosts, body)
	if f.schemaStatus != 0 {
		w.WriteHeader(f.schemaStatus)
		_, _ = w.Write([]byte(`{"error":{"msg":"schema is immutable","code":400}}`))
		return
	}

	var cmds map[string][]struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &cmds); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	apply := func(existing map[string]bool, add, replace string) bool {
		for _, d := range cmds[add] {
			if existing[d.Name] {
				return false
			}
			existing[d.Name] = true
		}
		for _, d := range cmds[replace] {
			if !existing[d.Name] {
				return false
			}
		}
		return true
	}
	if !apply(f.fieldTypes, "add-field-type", "replace-field-type") ||
		!apply(f.dynamicFields, "add-dynamic-field", "replace-dynamic-field") {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"msg":"schema conflict","code":400}}`))
		return
	}
	_, _ = w.Write([]byte(`{"responseHeader":{"status":0}}`))
}

func names(set map[string]bool) []map[string]string {
	out := make([]map[string]string, 0, len(set))
	for name := range set {
		out = append(out, map[string]string{"name": name})
	}
	return out
}

func (f *fakeSolr) selectDocs(w http.ResponseWriter, params url.Values) {
	f.selects = append(f.selects, params)

	var ids []string
	for id := range f.docs {
		if id != SettingsID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	start, _ := strconv.Atoi(params.Get("start"))
	rows, _ := strconv.Atoi(params.Get("rows"))
	docs := []map[string]any{}
	for i := start; i < len(ids) && i < start+rows; i++ {
		docs = append(docs, f.docs[ids[i]])
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"response": map[string]any{"numFound": len(ids), "start": start, "docs": docs},
	})
}

func (f *fakeSolr) fail(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeSolr) lastSelect() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selects[len(f.selects)-1]
}

func setupTestIndex(t *testing.T) (*Index, *fakeSolr) {
	t.Helper()
	fake := newFakeSolr()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	idx, err := NewIndex(Config{URL: server.URL + "/solr/", Core: "cities"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, fake
}

func city(id, name string, population int64) *domain.IndexDocument {
	rep := domain.NewRepresentation(id)
	rep.Add("http://ex.org/name", domain.NewText(name, "en"))
	rep.Add("http://ex.org/population", domain.Integer(population))
	doc, err := codec.ToDocument(rep)
	if err != nil {
		panic(err)
	}
	return doc
}

// ==================== Construction ====================

func TestNewIndex_Validation(t *testing.T) {
	_, err := NewIndex(Config{URL: "http://localhost:8983/solr"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewIndex(Config{URL: "localhost", Core: "cities"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	idx, err := NewIndex(Config{URL: "http://localhost:8983/solr/", Core: "cities"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8983/solr/cities", idx.client.base)
	assert.Equal(t, DefaultTimeout, idx.client.http.Timeout)
	assert.Nil(t, idx.client.limiter)
}

// ==================== Documents ====================

func TestIndex_StoreLoad(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	doc := city("urn:city:paris", "Paris", 2100000)
	require.NoError(t, idx.Store(ctx, doc))

	loaded, err := idx.Load(ctx, "urn:city:paris")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, loaded.ID)
	assert.Equal(t, doc.Fields, loaded.Fields)
	assert.NotContains(t, loaded.Fields, "_version_")
}

func TestIndex_Store_Invalid(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	assert.ErrorIs(t, idx.Store(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, idx.Store(ctx, domain.NewIndexDocument(SettingsID)), domain.ErrInvalidInput)
}

func TestIndex_Load_NotFound(t *testing.T) {
	idx, _ := setupTestIndex(t)

	_, err := idx.Load(context.Background(), "urn:missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndex_Remove(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Store(ctx, city("urn:city:paris", "Paris", 1)))

	require.NoError(t, idx.Remove(ctx, "urn:city:paris"))
	require.NoError(t, idx.Remove(ctx, "urn:city:paris"))

	_, err := idx.Load(ctx, "urn:city:paris")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndex_RemoveAll_KeepsSettings(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Store(ctx, city("urn:city:paris", "Paris", 1)))
	require.NoError(t, idx.SaveSettings(ctx, map[string]string{domain.SettingYardID: "cities"}))

	require.NoError(t, idx.RemoveAll(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	settings, err := idx.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cities", settings[domain.SettingYardID])
}

// ==================== Queries ====================

func TestIndex_Query_SendsCompiledQuery(t *testing.T) {
	idx, fake := setupTestIndex(t)
	ctx := context.Background()

	q := domain.NewFieldQuery().Constrain("http://ex.org/population",
		domain.NewRangeConstraint(domain.Integer(1000), nil))
	q.Limit = 5
	q.Offset = 2
	compiled, err := compiler.New().CompileQuery(q)
	require.NoError(t, err)

	_, err = idx.Query(ctx, compiled)
	require.NoError(t, err)

	params := fake.lastSelect()
	assert.Equal(t, compiled.String(), params.Get("q"))
	assert.Equal(t, `-id:"`+SettingsID+`"`, params.Get("fq"))
	assert.Equal(t, "id asc", params.Get("sort"))
	assert.Equal(t, "2", params.Get("start"))
	assert.Equal(t, "5", params.Get("rows"))
	assert.Equal(t, "json", params.Get("wt"))
}

func TestIndex_Query_Pagination(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	for _, id := range []string{"urn:c", "urn:a", "urn:b"} {
		require.NoError(t, idx.Store(ctx, city(id, "x", 1)))
	}
	require.NoError(t, idx.SaveSettings(ctx, map[string]string{domain.SettingYardID: "cities"}))

	q := domain.NewFieldQuery()
	q.Limit = 1
	q.Offset = 1
	compiled, err := compiler.New().CompileQuery(q)
	require.NoError(t, err)

	docs, err := idx.Query(ctx, compiled)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "urn:b", docs[0].ID)
}

func TestIndex_Query_Unlimited_FetchesPages(t *testing.T) {
	idx, fake := setupTestIndex(t)
	ctx := context.Background()

	fake.mu.Lock()
	for i := 0; i < pageSize+20; i++ {
		id := "urn:e:" + strconv.Itoa(10000+i)
		fake.docs[id] = map[string]any{"id": id}
	}
	fake.mu.Unlock()

	compiled, err := compiler.New().CompileQuery(domain.NewFieldQuery())
	require.NoError(t, err)

	docs, err := idx.Query(ctx, compiled)
	require.NoError(t, err)
	assert.Len(t, docs, pageSize+20)
	assert.Len(t, fake.selects, 2)
	assert.Equal(t, strconv.Itoa(pageSize), fake.lastSelect().Get("start"))
}

func TestIndex_Count_ExcludesSettings(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Store(ctx, city("urn:city:paris", "Paris", 1)))
	require.NoError(t, idx.SaveSettings(ctx, map[string]string{domain.SettingYardID: "cities"}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ==================== Settings ====================

func TestIndex_Settings(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	settings, err := idx.Settings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings)

	in := map[string]string{domain.SettingYardID: "cities", domain.SettingStrategy: "all"}
	require.NoError(t, idx.SaveSettings(ctx, in))

	settings, err = idx.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, settings)

	// The settings document is not an entity.
	_, err = idx.Load(ctx, SettingsID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Failures ====================

// ==================== Schema ====================

func TestIndex_InstallsSchemaBeforeFirstWrite(t *testing.T) {
	idx, fake := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Store(ctx, city("urn:city:paris", "Paris", 1)))
	require.NoError(t, idx.Store(ctx, city("urn:city:lyon", "Lyon", 1)))
	_, err := idx.Settings(ctx)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.schemaPosts, 1, "schema is installed once")
	for _, name := range []string{"str.*", "txt.*", "ref.*", "int.*", "dbl.*", "dat.*", "bool.*", "yard.*"} {
		assert.True(t, fake.dynamicFields[name], name)
	}
	assert.True(t, fake.fieldTypes[exactType])
	assert.True(t, fake.fieldTypes[textType])

	body := string(fake.schemaPosts[0])
	assert.Less(t, strings.Index(body, `"add-field-type"`), strings.Index(body, `"add-dynamic-field"`),
		"field types are defined before the fields using them")
}

func TestIndex_Schema_Analyzers(t *testing.T) {
	idx, fake := setupTestIndex(t)
	require.NoError(t, idx.EnsureSchema(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	var cmds schemaCommands
	require.NoError(t, json.Unmarshal(fake.schemaPosts[0], &cmds))

	types := make(map[string]fieldType)
	for _, ft := range cmds.AddFieldType {
		types[ft.Name] = ft
	}
	assert.Equal(t, "solr.KeywordTokenizerFactory", types[exactType].Analyzer.Tokenizer.Class)
	assert.Equal(t, "solr.WhitespaceTokenizerFactory", types[textType].Analyzer.Tokenizer.Class)
	for _, ft := range types {
		require.Len(t, ft.Analyzer.Filters, 1)
		assert.Equal(t, "solr.LowerCaseFilterFactory", ft.Analyzer.Filters[0].Class)
	}

	fieldTypes := make(map[string]string)
	for _, f := range cmds.AddDynamicField {
		fieldTypes[f.Name] = f.Type
		assert.True(t, f.Indexed && f.Stored, f.Name)
	}
	assert.Equal(t, exactType, fieldTypes["str.*"])
	assert.Equal(t, textType, fieldTypes["txt.*"])
	assert.Equal(t, "string", fieldTypes["int.*"])
	assert.Equal(t, "string", fieldTypes["dat.*"])
}

func TestIndex_Schema_ReplacesExistingDefinitions(t *testing.T) {
	idx, fake := setupTestIndex(t)
	fake.mu.Lock()
	fake.dynamicFields["txt.*"] = true
	fake.fieldTypes[exactType] = true
	fake.mu.Unlock()

	require.NoError(t, idx.EnsureSchema(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	var cmds schemaCommands
	require.NoError(t, json.Unmarshal(fake.schemaPosts[0], &cmds))
	require.Len(t, cmds.ReplaceDynamicField, 1)
	assert.Equal(t, "txt.*", cmds.ReplaceDynamicField[0].Name)
	require.Len(t, cmds.ReplaceFieldType, 1)
	assert.Equal(t, exactType, cmds.ReplaceFieldType[0].Name)
}

func TestIndex_Schema_FailureIsRetried(t *testing.T) {
	idx, fake := setupTestIndex(t)
	ctx := context.Background()
	fake.mu.Lock()
	fake.schemaStatus = http.StatusBadRequest
	fake.mu.Unlock()

	err := idx.Store(ctx, city("urn:city:paris", "Paris", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "updating schema")

	fake.mu.Lock()
	fake.schemaStatus = 0
	fake.mu.Unlock()
	require.NoError(t, idx.Store(ctx, city("urn:city:paris", "Paris", 1)))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Len(t, fake.schemaPosts, 2)
}

func TestIndex_SkipSchema(t *testing.T) {
	fake := newFakeSolr()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	idx, err := NewIndex(Config{URL: server.URL + "/solr", Core: "cities", SkipSchema: true})
	require.NoError(t, err)

	require.NoError(t, idx.Store(context.Background(), city("urn:city:paris", "Paris", 1)))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.schemaPosts)
}

func TestIndex_ServerError(t *testing.T) {
	idx, fake := setupTestIndex(t)
	fake.fail(http.StatusServiceUnavailable)

	err := idx.Store(context.Background(), city("urn:city:paris", "Paris", 1))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "core is down")
}

func TestIndex_BadRequest(t *testing.T) {
	idx, fake := setupTestIndex(t)
	fake.fail(http.StatusBadRequest)

	_, err := idx.Count(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	idx, err := NewIndex(Config{URL: server.URL, Core: "cities", Timeout: time.Second})
	require.NoError(t, err)

	_, err = idx.Count(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestIndex_RateLimit_HonoursContext(t *testing.T) {
	fake := newFakeSolr()
	server := httptest.NewServer(fake)
	defer server.Close()

	idx, err := NewIndex(Config{URL: server.URL + "/solr", Core: "cities", RequestsPerSecond: 0.001})
	require.NoError(t, err)
	require.NotNil(t, idx.client.limiter)

	ctx := context.Background()
	_, err = idx.Count(ctx)
	require.NoError(t, err, "the first request uses the burst")

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = idx.Count(ctx)
	assert.Error(t, err)
	assert.Len(t, fake.selects, 1)
}

func TestStringValues(t *testing.T) {
	values, err := stringValues([]any{"a", json.Number("42"), true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "42", "true"}, values)

	values, err = stringValues(nil)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = stringValues(map[string]any{"x": 1})
	assert.Error(t, err)
}
