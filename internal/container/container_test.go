package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jinwill/docflow/internal/application/engine"
	"github.com/jinwill/docflow/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Database: config.DatabaseConfig{
			Path:         filepath.Join(t.TempDir(), "test.db"),
			MaxOpenConns: 1,
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
	}
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Ready())

	require.NoError(t, c.Start())
	assert.True(t, c.Ready())

	assert.NotNil(t, c.WorkflowEngine())
	assert.NotNil(t, c.Documents())
	assert.NotNil(t, c.Notifications())
	assert.NotNil(t, c.Audit())
	assert.NotNil(t, c.Dispatcher())
	assert.NotNil(t, c.Repositories())
	assert.NotNil(t, c.DB())

	// Starting twice is an error
	assert.Error(t, c.Start())

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start())
}

func TestContainer_RequiresConfigAndLogger(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)
}

func TestContainer_EndToEndWorkflow(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Close()

	ctx := context.Background()

	doc, err := c.Documents().Create(ctx, "requester", "Quarterly report")
	require.NoError(t, err)

	requester := engine.Actor{ID: "requester", Role: engine.RoleUser}
	wf, err := c.WorkflowEngine().Create(ctx, requester, engine.CreateRequest{
		DocumentID:  doc.ID,
		ApproverIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	alice := engine.Actor{ID: "alice", Role: engine.RoleUser}
	res, err := c.WorkflowEngine().ApproveStep(ctx, alice, wf.ID, "looks good")
	require.NoError(t, err)
	assert.False(t, res.IsCompleted)
	require.NotNil(t, res.Workflow.CurrentApproverID)
	assert.Equal(t, "bob", *res.Workflow.CurrentApproverID)

	bob := engine.Actor{ID: "bob", Role: engine.RoleUser}
	res, err = c.WorkflowEngine().ApproveStep(ctx, bob, wf.ID, "")
	require.NoError(t, err)
	assert.True(t, res.IsCompleted)

	// Post-commit handlers run asynchronously
	deadline := time.Now().Add(2 * time.Second)
	for {
		notes, err := c.Notifications().ListForRecipient(ctx, "requester", 10, 0)
		require.NoError(t, err)
		if len(notes) > 0 || time.Now().After(deadline) {
			assert.NotEmpty(t, notes, "requester should be notified of the approved workflow")
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}
