package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/mcphub/internal/authgate"
	"github.com/imyashkale/mcphub/internal/database"
	"github.com/imyashkale/mcphub/internal/draft"
	"github.com/imyashkale/mcphub/internal/handlers"
	"github.com/imyashkale/mcphub/internal/middleware"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/queue"
	"github.com/imyashkale/mcphub/internal/repository"
	"github.com/imyashkale/mcphub/internal/services"
)

const (
	testSecret   = "router-secret"
	testAudience = "authenticated"
	alice        = "user-alice"
	bob          = "user-bob"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	echo   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	raw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/octo/hello/main/README.md" {
			_, _ = w.Write([]byte("# Hello"))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(raw.Close)

	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": body["input"]})
	}))
	t.Cleanup(echo.Close)

	store := database.NewMemoryStore()
	servers := repository.NewServerRepository(store)
	profiles := repository.NewProfileRepository(store)
	fetcher := services.NewReadmeFetcher(raw.URL, time.Second)

	jobs := queue.NewJobQueue(10)
	pool := queue.NewWorkerPool(jobs, 2)
	pool.Start()
	t.Cleanup(pool.Stop)

	drafts := draft.NewStore(time.Minute)
	t.Cleanup(drafts.Close)

	r := Setup(Handlers{
		Health:   handlers.NewHealthHandler(),
		Auth:     handlers.NewAuthHandler(authgate.Parse("github, email"), profiles),
		Servers:  handlers.NewServerHandler(servers, services.NewTester(time.Second, "test", services.WithPrivateAddresses())),
		Profiles: handlers.NewProfileHandler(profiles),
		Readme:   handlers.NewReadmeHandler(fetcher),
		Drafts:   handlers.NewDraftHandler(drafts, servers, draft.Deps{Fetcher: fetcher, Scheduler: jobs}),
	}, Options{
		CorsAllowedOrigin: "*",
		JWTSecret:         testSecret,
		JWTAudience:       testAudience,
	})

	return &testEnv{router: r, echo: echo}
}

// do sends a request as user; an empty user sends no token
func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		token, err := middleware.IssueToken(testSecret, testAudience, models.SessionUser{
			Id:    user,
			Email: user + "@example.com",
		}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) createServer(t *testing.T, user string, req models.CreateServerRequest) models.ServerResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/servers", user, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.ServerResponse](t, w)
}

func TestHealthAndProviders(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[models.HealthResponse](t, w).Status)

	w = env.do(t, http.MethodGet, "/api/v1/auth/providers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ProvidersResponse{
		Providers: []string{"github", "email"},
		GitHub:    true,
		Email:     true,
	}, decode[models.ProvidersResponse](t, w))
}

func TestServers_CreateRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/servers", "", models.CreateServerRequest{Name: "x", Description: "y"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServers_CreateAppliesDefaultsAndOwner(t *testing.T) {
	env := newTestEnv(t)

	created := env.createServer(t, alice, models.CreateServerRequest{
		Name:        "Weather",
		Description: "Forecasts",
		EndpointUrl: "https://github.com/octo/weather",
	})

	assert.NotEmpty(t, created.Id)
	assert.Equal(t, alice, created.OwnerId)
	assert.Equal(t, models.DefaultProtocolVersion, created.ProtocolVersion)
	assert.Equal(t, []string{models.DefaultTag}, created.Tags)
	assert.Equal(t, models.StatusActive, created.Status)
	assert.Equal(t, float64(models.DefaultUptime), created.Metrics.Uptime)

	w := env.do(t, http.MethodGet, "/api/v1/servers/"+created.Id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.Id, decode[models.ServerResponse](t, w).Id)
}

func TestServers_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/servers", alice, models.CreateServerRequest{
		Name:        " ",
		EndpointUrl: "not a url",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Contains(t, resp.Fields, draft.FieldName)
	assert.Contains(t, resp.Fields, draft.FieldDescription)
	assert.Contains(t, resp.Fields, draft.FieldEndpointUrl)
}

func TestServers_MetricsOutOfRange(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/servers", alice, models.CreateServerRequest{
		Name:        "Weather",
		Description: "Forecasts",
		Metrics:     &models.Metrics{Users: -5, Rating: 42, Uptime: 250},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Fields, draft.FieldMetrics)

	created := env.createServer(t, alice, models.CreateServerRequest{Name: "Weather", Description: "Forecasts"})
	w = env.do(t, http.MethodPatch, "/api/v1/servers/"+created.Id, alice, map[string]any{
		"metrics": map[string]any{"users": 10, "rating": 3, "uptime": 101},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Fields, draft.FieldMetrics)

	w = env.do(t, http.MethodGet, "/api/v1/servers/"+created.Id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(models.DefaultUptime), decode[models.ServerResponse](t, w).Metrics.Uptime)
}

func TestServers_GetMissing(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/servers/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServers_ListFiltersAndSorts(t *testing.T) {
	env := newTestEnv(t)

	env.createServer(t, alice, models.CreateServerRequest{Name: "Low", Description: "d", Metrics: &models.Metrics{Rating: 1}})
	env.createServer(t, alice, models.CreateServerRequest{Name: "High", Description: "d", Metrics: &models.Metrics{Rating: 4}, Tags: []string{"ai"}})
	env.createServer(t, bob, models.CreateServerRequest{Name: "Old", Description: "d", Status: models.StatusDeprecated, Metrics: &models.Metrics{Rating: 4.9}})

	w := env.do(t, http.MethodGet, "/api/v1/servers?status=active&sort_by=rating", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.ServerListResponse](t, w)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "High", list.Servers[0].Name)
	assert.Equal(t, "Low", list.Servers[1].Name)

	w = env.do(t, http.MethodGet, "/api/v1/servers?tag=ai", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[models.ServerListResponse](t, w)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "High", list.Servers[0].Name)

	w = env.do(t, http.MethodGet, "/api/v1/servers?featured=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Old", decode[models.ServerListResponse](t, w).Servers[0].Name)

	for _, q := range []string{"sort_by=name", "status=archived", "limit=x"} {
		w = env.do(t, http.MethodGet, "/api/v1/servers?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestServers_UpdateIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	created := env.createServer(t, alice, models.CreateServerRequest{Name: "Weather", Description: "Forecasts"})
	path := "/api/v1/servers/" + created.Id

	name := "Climate"
	w := env.do(t, http.MethodPatch, path, bob, models.UpdateServerRequest{Name: &name})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPatch, path, alice, models.UpdateServerRequest{Name: &name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.ServerResponse](t, w)
	assert.Equal(t, "Climate", updated.Name)
	assert.Equal(t, "Forecasts", updated.Description)

	w = env.do(t, http.MethodPatch, path, alice, map[string]any{"ownerId": bob})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "immutable_field", decode[models.ErrorResponse](t, w).Error)

	w = env.do(t, http.MethodPatch, path, alice, map[string]any{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Fields, draft.FieldStatus)

	empty := ""
	w = env.do(t, http.MethodPatch, path, alice, models.UpdateServerRequest{Description: &empty})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Fields, draft.FieldDescription)
}

func TestServers_DeleteIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	created := env.createServer(t, alice, models.CreateServerRequest{Name: "Weather", Description: "Forecasts"})
	path := "/api/v1/servers/" + created.Id

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, path, bob, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, path, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, alice, nil).Code)
}

func TestServers_Test(t *testing.T) {
	env := newTestEnv(t)
	withEndpoint := env.createServer(t, alice, models.CreateServerRequest{Name: "Echo", Description: "d", EndpointUrl: env.echo.URL})
	withoutEndpoint := env.createServer(t, alice, models.CreateServerRequest{Name: "None", Description: "d"})

	w := env.do(t, http.MethodPost, "/api/v1/servers/"+withEndpoint.Id+"/test", bob, models.TestServerRequest{Input: "ping"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[models.TestResult](t, w)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"echo": "ping"}, result.Response)

	w = env.do(t, http.MethodPost, "/api/v1/servers/"+withoutEndpoint.Id+"/test", bob, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMe_ReconcilesProfileOnce(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/me", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.MeResponse](t, w)
	assert.Equal(t, alice, me.User.Id)
	assert.Equal(t, models.ProviderEmail, me.User.AuthProvider)
	assert.Equal(t, alice, me.User.Profile.Name)
	assert.Equal(t, models.ProfileSyncCreated, me.ProfileSync.Status)

	w = env.do(t, http.MethodGet, "/api/v1/me", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ProfileSyncExists, decode[models.MeResponse](t, w).ProfileSync.Status)

	w = env.do(t, http.MethodGet, "/api/v1/profiles/"+alice, bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.ProfileListResponse](t, w).Total)
}

func TestProfiles_PutIsSelfOnly(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/profiles/"+alice, bob, models.Profile{Name: "mallory"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/profiles/"+alice, alice, models.Profile{
		Email:        "alice@example.com",
		AuthProvider: models.ProviderEmail,
		Name:         "Alice",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode[models.Profile](t, w)
	assert.Equal(t, alice, saved.Id)
	assert.Equal(t, "Alice", saved.Name)
}

func TestReadme(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/readme?url=https://github.com/octo/hello", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ReadmeResponse{Url: "https://github.com/octo/hello", Found: true, Content: "# Hello"},
		decode[models.ReadmeResponse](t, w))

	w = env.do(t, http.MethodGet, "/api/v1/readme?url=https://github.com/octo/empty", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.ReadmeResponse](t, w).Found)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/readme?url=https://gitlab.com/a/b", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/readme", "", nil).Code)
}

func TestDrafts_RegisterWithEnrichment(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/drafts", alice, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode[models.DraftSnapshot](t, w)
	assert.Equal(t, models.DraftCreate, snap.Mode)
	path := "/api/v1/drafts/" + snap.Id

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, path, bob, nil).Code)

	endpoint := "https://github.com/octo/hello"
	name, desc := "Hello", "Says hello"
	w = env.do(t, http.MethodPatch, path, alice, models.UpdateServerRequest{
		Name:        &name,
		Description: &desc,
		EndpointUrl: &endpoint,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		s := decode[models.DraftSnapshot](t, env.do(t, http.MethodGet, path, alice, nil))
		return !s.LoadingReadme && s.Listing.Documentation == "# Hello"
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(t, http.MethodPost, path+"/save", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode[models.DraftSaveResponse](t, w)
	assert.Equal(t, alice, saved.Server.OwnerId)
	assert.Equal(t, "# Hello", saved.Server.Documentation)
	assert.Equal(t, models.DraftEdit, saved.Draft.Mode)
	assert.True(t, saved.Draft.Saved)

	w = env.do(t, http.MethodGet, "/api/v1/servers/"+saved.Server.Id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, alice, nil).Code)
}

func TestDrafts_SaveValidation(t *testing.T) {
	env := newTestEnv(t)

	snap := decode[models.DraftSnapshot](t, env.do(t, http.MethodPost, "/api/v1/drafts", alice, nil))

	w := env.do(t, http.MethodPost, "/api/v1/drafts/"+snap.Id+"/save", alice, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Contains(t, resp.Fields, draft.FieldName)
	assert.Contains(t, resp.Fields, draft.FieldDescription)

	w = env.do(t, http.MethodGet, "/api/v1/drafts/"+snap.Id, alice, nil)
	assert.Contains(t, decode[models.DraftSnapshot](t, w).FieldErrors, draft.FieldName)
}

func TestDrafts_EditIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	created := env.createServer(t, alice, models.CreateServerRequest{Name: "Weather", Description: "Forecasts"})

	w := env.do(t, http.MethodPost, "/api/v1/drafts", bob, models.CreateDraftRequest{ServerId: created.Id})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/drafts", alice, models.CreateDraftRequest{ServerId: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/drafts", alice, models.CreateDraftRequest{ServerId: created.Id})
	require.Equal(t, http.StatusCreated, w.Code)
	snap := decode[models.DraftSnapshot](t, w)
	assert.Equal(t, models.DraftEdit, snap.Mode)
	assert.Equal(t, created.Id, snap.ServerId)

	desc := "Forecasts and alerts"
	w = env.do(t, http.MethodPatch, "/api/v1/drafts/"+snap.Id, alice, models.UpdateServerRequest{Description: &desc})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/drafts/"+snap.Id+"/save", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Forecasts and alerts", decode[models.DraftSaveResponse](t, w).Server.Description)
	assert.Equal(t, "Weather", decode[models.DraftSaveResponse](t, w).Server.Name)
}
