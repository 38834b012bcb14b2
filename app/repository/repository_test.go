package repository

import (
	"context"
	"testing"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Agent{}, &models.Meeting{}, &models.WebhookDelivery{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes writers the way row locks do on MySQL.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedAgent(t *testing.T, repos *Repositories, userID, name string) *models.Agent {
	t.Helper()
	agent := &models.Agent{Name: name, UserID: userID, Instructions: "Answer questions about " + name}
	require.NoError(t, repos.Agent.Create(context.Background(), agent))
	return agent
}

func seedMeeting(t *testing.T, repos *Repositories, userID, agentID, name string, status models.MeetingStatus) *models.Meeting {
	t.Helper()
	meeting := &models.Meeting{Name: name, UserID: userID, AgentID: agentID, Status: status}
	require.NoError(t, repos.Meeting.Create(context.Background(), meeting))
	return meeting
}
