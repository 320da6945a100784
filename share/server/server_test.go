package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/server"
)

func newTestCommand(t *testing.T) *server.Command {
	t.Helper()

	cfg := server.NewConfig()
	cfg.Bind = "localhost:0"
	cfg.DataDir = t.TempDir()

	cmd := server.NewCommand(io.Discard, server.OptCommandConfig(cfg))
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		assert.NoError(t, cmd.Close())
	})

	return cmd
}

func post(t *testing.T, cmd *server.Command, path string, req, resp interface{}) {
	t.Helper()

	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(req))

	httpResp, err := http.Post("http://"+cmd.Address()+path, "application/json", buf)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	if resp != nil {
		require.NoError(t, json.NewDecoder(httpResp.Body).Decode(resp))
	}
}

func TestCommand(t *testing.T) {
	cmd := newTestCommand(t)

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get("http://" + cmd.Address() + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("share-lifecycle-over-http", func(t *testing.T) {
		post(t, cmd, "/register-environment", &share.Environment{
			EnvironmentURI: "env-source",
			Name:           "analytics-prod",
			AWSAccountID:   "111111111111",
			Region:         "us-east-1",
			Groups:         []string{"data-platform"},
		}, nil)
		post(t, cmd, "/register-environment", &share.Environment{
			EnvironmentURI: "env-target",
			Name:           "research-dev",
			AWSAccountID:   "222222222222",
			Region:         "us-east-1",
			Groups:         []string{"research"},
		}, nil)
		post(t, cmd, "/register-dataset", &share.Dataset{
			DatasetURI:     "ds-orders",
			Name:           "orders",
			Type:           share.DatasetTypeS3,
			EnvironmentURI: "env-source",
			Region:         "us-east-1",
			AdminGroup:     "data-platform",
			Stewards:       "governance",
		}, nil)

		so := &share.ShareObject{}
		post(t, cmd, "/create-share", map[string]interface{}{
			"datasetUri":        "ds-orders",
			"environmentUri":    "env-target",
			"groupUri":          "research",
			"principalId":       "research",
			"principalType":     share.PrincipalTypeGroup,
			"principalRoleName": "research-role",
			"owner":             "alice",
			"requestPurpose":    "ad-hoc analytics",
		}, so)
		assert.Equal(t, share.ShareObjectStatusDraft, so.Status)

		item := &share.ShareItem{}
		post(t, cmd, "/add-item", map[string]interface{}{
			"shareUri": so.ShareURI,
			"itemType": share.ShareableTypeTable,
			"itemUri":  "tbl-orders",
			"itemName": "orders_db.orders",
		}, item)
		assert.Equal(t, share.ShareItemStatusPendingApproval, item.Status)

		submitted := &share.ShareObject{}
		post(t, cmd, "/submit-share", map[string]interface{}{"shareUri": so.ShareURI}, submitted)
		assert.Equal(t, share.ShareObjectStatusSubmitted, submitted.Status)
	})
}
