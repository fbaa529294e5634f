package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mamadbah2/coffee-counter/internal/auth"
	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/observability/metrics"
	"github.com/mamadbah2/coffee-counter/internal/repository/memory"
	"github.com/mamadbah2/coffee-counter/internal/server/handlers"
	"github.com/mamadbah2/coffee-counter/internal/service/coffee"
	"github.com/mamadbah2/coffee-counter/internal/service/metacount"
	"github.com/mamadbah2/coffee-counter/internal/service/reporting"
)

const testPassword = "espresso"

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	hash, err := auth.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(hash)
	require.NoError(t, err)

	m := metrics.New()
	counts := metacount.NewStore(memory.NewCollection(), m, nil)
	svc := coffee.NewService(memory.NewCollection(), memory.NewCollection(), counts, m, nil)

	return New(
		handlers.NewCoffeeHandler(svc, nil),
		handlers.NewSummaryHandler(reporting.NewService(svc, nil), nil),
		verifier, m, nil)
}

func do(t *testing.T, engine *gin.Engine, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set(passwordHeader, testPassword)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createBag(t *testing.T, engine *gin.Engine, body string) models.CoffeeBag {
	t.Helper()
	w := do(t, engine, http.MethodPost, "/bags", body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.CoffeeBag](t, w)
}

func logUse(t *testing.T, engine *gin.Engine, bagID, datetime string) models.CoffeeUse {
	t.Helper()
	w := do(t, engine, http.MethodPost, "/uses", `{"bag_id":"`+bagID+`","datetime":"`+datetime+`"}`, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.CoffeeUse](t, w)
}

func TestRootAndHealth(t *testing.T) {
	engine := newTestEngine(t)

	w := do(t, engine, http.MethodGet, "/", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Coffee Counter API"}`, w.Body.String())

	w = do(t, engine, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMutationsRequirePassword(t *testing.T) {
	engine := newTestEngine(t)

	w := do(t, engine, http.MethodPost, "/bags", `{"brand":"BRCC","name":"Flying Elk"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/bags", strings.NewReader(`{"brand":"BRCC","name":"Flying Elk"}`))
	req.Header.Set(passwordHeader, "decaf")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, engine, http.MethodPost, "/admin/recount?password="+testPassword, "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bag_count":0,"use_count":0}`, w.Body.String())

	w = do(t, engine, http.MethodPost, "/admin/migrate", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, engine, http.MethodPost, "/admin/migrate", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"migrated":0}`, w.Body.String())

	w = do(t, engine, http.MethodGet, "/counts", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBagLifecycle(t *testing.T) {
	engine := newTestEngine(t)

	bag := createBag(t, engine, `{"brand":"BRCC","name":"Flying Elk","start":"2021-02-19"}`)
	assert.Equal(t, models.DefaultBagWeight, bag.Weight)
	assert.True(t, bag.Active)
	assert.Equal(t, "2021-02-19", bag.Start.String())

	w := do(t, engine, http.MethodGet, "/bags/"+bag.Key, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bag, decode[models.CoffeeBag](t, w))

	w = do(t, engine, http.MethodPatch, "/bags/"+bag.Key, `{"weight":907}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 907.0, decode[models.CoffeeBag](t, w).Weight)

	w = do(t, engine, http.MethodPost, "/bags/"+bag.Key+"/deactivate", `{"finish":"2021-03-07"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	finished := decode[models.CoffeeBag](t, w)
	assert.False(t, finished.Active)
	assert.Equal(t, "2021-03-07", finished.Finish.String())

	w = do(t, engine, http.MethodPost, "/bags/"+bag.Key+"/deactivate", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, engine, http.MethodGet, "/bags/active", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = do(t, engine, http.MethodPost, "/bags/"+bag.Key+"/activate", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[models.CoffeeBag](t, w).Finish)

	w = do(t, engine, http.MethodDelete, "/bags/"+bag.Key, "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, engine, http.MethodGet, "/bags/"+bag.Key, "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, engine, http.MethodDelete, "/bags/"+bag.Key, "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBagValidation(t *testing.T) {
	engine := newTestEngine(t)

	for _, body := range []string{
		`{"name":"Flying Elk"}`,
		`{"brand":"BRCC","name":"Flying Elk","weight":-5}`,
		`{"brand":"BRCC","name":"Flying Elk","start":"19/02/2021"}`,
		`not json`,
	} {
		w := do(t, engine, http.MethodPost, "/bags", body, true)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	bag := createBag(t, engine, `{"brand":"BRCC","name":"Flying Elk"}`)
	w := do(t, engine, http.MethodPatch, "/bags/"+bag.Key, `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActiveBagsLastN(t *testing.T) {
	engine := newTestEngine(t)

	older := createBag(t, engine, `{"brand":"BRCC","name":"Beyond Black","start":"2021-02-01"}`)
	newer := createBag(t, engine, `{"brand":"BRCC","name":"Flying Elk","start":"2021-02-19"}`)

	w := do(t, engine, http.MethodGet, "/bags/active?n_last=1", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	bags := decode[map[string]models.CoffeeBag](t, w)
	require.Len(t, bags, 1)
	assert.Contains(t, bags, newer.Key)

	w = do(t, engine, http.MethodGet, "/bags", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Less(t, strings.Index(body, older.Key), strings.Index(body, newer.Key))

	w = do(t, engine, http.MethodGet, "/bags/active?n_last=0", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, engine, http.MethodGet, "/bags?n_last=abc", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUseQueries(t *testing.T) {
	engine := newTestEngine(t)

	bag1 := createBag(t, engine, `{"brand":"BRCC","name":"Flying Elk","start":"2021-02-19"}`)
	bag2 := createBag(t, engine, `{"brand":"BRCC","name":"Beyond Black","start":"2021-02-01"}`)

	u1 := logUse(t, engine, bag1.Key, "2021-02-21T07:00:00")
	u2 := logUse(t, engine, bag1.Key, "2021-02-25T07:00:00")
	u3 := logUse(t, engine, bag1.Key, "2021-03-05T07:00:00")
	u4 := logUse(t, engine, bag2.Key, "2021-03-03T07:00:00")

	w := do(t, engine, http.MethodGet, "/uses?n_last=2&bag_id="+bag1.Key, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	uses := decode[map[string]models.CoffeeUse](t, w)
	assert.Len(t, uses, 2)
	assert.Contains(t, uses, u2.Key)
	assert.Contains(t, uses, u3.Key)
	body := w.Body.String()
	assert.Less(t, strings.Index(body, u2.Key), strings.Index(body, u3.Key))

	w = do(t, engine, http.MethodGet, "/uses?since=2021-03-01", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	uses = decode[map[string]models.CoffeeUse](t, w)
	assert.Len(t, uses, 2)
	assert.Contains(t, uses, u3.Key)
	assert.Contains(t, uses, u4.Key)

	w = do(t, engine, http.MethodGet, "/uses", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string]models.CoffeeUse](t, w), 4)

	w = do(t, engine, http.MethodGet, "/uses/"+u1.Key, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2021-02-21T07:00:00Z", decode[map[string]any](t, w)["datetime"])

	for _, path := range []string{"/uses?n_last=0", "/uses?since=yesterday", "/uses?since=2021-03-01junk"} {
		w = do(t, engine, http.MethodGet, path, "", false)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w = do(t, engine, http.MethodGet, "/counts", "", false)
	assert.JSONEq(t, `{"bag_count":2,"use_count":4}`, w.Body.String())

	w = do(t, engine, http.MethodDelete, "/uses/"+u1.Key, "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, engine, http.MethodGet, "/uses/"+u1.Key, "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, engine, http.MethodDelete, "/uses", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":3}`, w.Body.String())

	w = do(t, engine, http.MethodDelete, "/bags", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())

	w = do(t, engine, http.MethodGet, "/counts", "", false)
	assert.JSONEq(t, `{"bag_count":0,"use_count":0}`, w.Body.String())
}

func TestLogUseForMissingBag(t *testing.T) {
	engine := newTestEngine(t)

	w := do(t, engine, http.MethodPost, "/uses", `{"bag_id":"missing"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, engine, http.MethodPost, "/uses", `{"bag_id":"x","datetime":"soon"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummaryAndMetrics(t *testing.T) {
	engine := newTestEngine(t)
	createBag(t, engine, `{"brand":"Onyx","name":"Geometry"}`)

	w := do(t, engine, http.MethodGet, "/summary", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	payload := decode[map[string]any](t, w)
	assert.Contains(t, payload["text"], "Active: Geometry (Onyx).")

	w = do(t, engine, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `coffee_http_requests_total{method="GET",route="/summary",status="200"} 1`)
	assert.Contains(t, w.Body.String(), `coffee_records_written_total{kind="bag",op="create"} 1`)
}
