package handlers

import (
	"context"
	"net/http"
	"time"

	"plant_monitor/internal/logger"
	"plant_monitor/internal/models"
	"plant_monitor/internal/repository"
	"plant_monitor/internal/service"
	"plant_monitor/internal/tsdb"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockMonitoring struct {
	machines      []models.MachineKey
	statuses      []models.Reading
	kpis          []models.KPIRecord
	notifications []models.Notification
	history       []models.Reading
	filtered      []tsdb.FilteredPoint
	err           error
	resolveErr    error

	lastKey       models.MachineKey
	lastParam     string
	lastFrom      time.Time
	lastTo        time.Time
	lastFilter    repository.NotificationFilter
	lastResolveID string
}

func (m *mockMonitoring) Machines(ctx context.Context) ([]models.MachineKey, error) {
	return m.machines, m.err
}
func (m *mockMonitoring) LatestStatuses(ctx context.Context) ([]models.Reading, error) {
	return m.statuses, m.err
}
func (m *mockMonitoring) KPIs(ctx context.Context) ([]models.KPIRecord, error) {
	return m.kpis, m.err
}
func (m *mockMonitoring) Notifications(ctx context.Context, f repository.NotificationFilter) ([]models.Notification, error) {
	m.lastFilter = f
	return m.notifications, m.err
}
func (m *mockMonitoring) ResolveNotification(ctx context.Context, id string) error {
	m.lastResolveID = id
	return m.resolveErr
}
func (m *mockMonitoring) HistoricalData(ctx context.Context, key models.MachineKey, start, end time.Time) ([]models.Reading, error) {
	m.lastKey = key
	m.lastFrom = start
	m.lastTo = end
	return m.history, m.err
}
func (m *mockMonitoring) FilteredData(ctx context.Context, key models.MachineKey, param string, start, end time.Time) ([]tsdb.FilteredPoint, error) {
	m.lastKey = key
	m.lastParam = param
	m.lastFrom = start
	m.lastTo = end
	return m.filtered, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil, logger.Nop())
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
