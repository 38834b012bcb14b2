package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/ManuelReschke/ApexAgent/app/repository"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/database"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/streamvideo"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/usercontext"
)

func newTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.NewRepositories(db)
}

func seedUser(t *testing.T, repos *repository.Repositories, name string) *models.User {
	t.Helper()
	user := &models.User{Name: name, Email: strings.ToLower(name) + "@example.com"}
	require.NoError(t, repos.User.Create(context.Background(), user))
	return user
}

func seedAgent(t *testing.T, repos *repository.Repositories, userID, name string) *models.Agent {
	t.Helper()
	agent := &models.Agent{Name: name, UserID: userID, Instructions: "Be helpful as " + name}
	require.NoError(t, repos.Agent.Create(context.Background(), agent))
	return agent
}

func seedMeeting(t *testing.T, repos *repository.Repositories, userID, agentID string, status models.MeetingStatus) *models.Meeting {
	t.Helper()
	meeting := &models.Meeting{Name: "Weekly sync", UserID: userID, AgentID: agentID, Status: status}
	require.NoError(t, repos.Meeting.Create(context.Background(), meeting))
	return meeting
}

// asUser authenticates every request of the test app as userID
func asUser(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{UserID: userID, Username: "test", IsAuthenticated: true})
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]interface{}{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

// fakeCallPlatform records the video platform calls made by the meetings API
type fakeCallPlatform struct {
	mu         sync.Mutex
	calls      map[string]streamvideo.CreateCallRequest
	users      []streamvideo.User
	createErr  error
	upsertErr  error
	tokenTTL   time.Duration
	tokenOwner string
}

func newFakeCallPlatform() *fakeCallPlatform {
	return &fakeCallPlatform{calls: map[string]streamvideo.CreateCallRequest{}}
}

func (f *fakeCallPlatform) CreateCall(_ context.Context, callType, callID string, req streamvideo.CreateCallRequest) (*streamvideo.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.calls[callType+":"+callID] = req
	return &streamvideo.Call{ID: callID, Type: callType, CID: callType + ":" + callID, Custom: req.Custom}, nil
}

func (f *fakeCallPlatform) UpsertUsers(_ context.Context, users ...streamvideo.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.users = append(f.users, users...)
	return nil
}

func (f *fakeCallPlatform) GenerateUserToken(userID string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenOwner = userID
	f.tokenTTL = ttl
	return "token-for-" + userID, nil
}
