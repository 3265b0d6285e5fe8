package copytrader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_copy/internal/smartapi"
)

// brokerStub эмулирует SmartAPI для нескольких аккаунтов: по client_id
// решает, пускать ли логин
type brokerStub struct {
	srv        *httptest.Server
	rejectAuth map[string]bool
	logins     []string
}

func newBrokerStub(t *testing.T) *brokerStub {
	t.Helper()

	stub := &brokerStub{rejectAuth: make(map[string]bool)}

	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "loginByPassword"):
			var body struct {
				ClientCode string `json:"clientcode"`
			}
			decodeJSONBody(r, &body)
			stub.logins = append(stub.logins, body.ClientCode)

			if stub.rejectAuth[body.ClientCode] {
				fmt.Fprint(w, `{"status":false,"message":"Invalid password","errorcode":"AB1045","data":null}`)
				return
			}

			fmt.Fprint(w, `{"status":true,"message":"SUCCESS","errorcode":"","data":{"jwtToken":"jwt","refreshToken":"r","feedToken":"f"}}`)

		case strings.HasSuffix(r.URL.Path, "getProfile"):
			fmt.Fprint(w, `{"status":true,"message":"SUCCESS","errorcode":"","data":{"clientcode":"C000","name":"Test Holder","email":"test@example.com"}}`)

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(stub.srv.Close)

	return stub
}

func decodeJSONBody(r *http.Request, v any) {
	_ = json.NewDecoder(r.Body).Decode(v)
}

func testManager(t *testing.T, stub *brokerStub) *ClientManager {
	t.Helper()

	m := NewClientManager(discardLogger())
	m.newClient = func(creds smartapi.Credentials) *smartapi.Client {
		client := smartapi.New(creds, discardLogger())
		client.SetBaseURL(stub.srv.URL)
		return client
	}
	m.sleep = func(context.Context, time.Duration) error { return nil }
	m.baseRetryDelay = time.Millisecond

	return m
}

func accountCreds(name, clientID string) smartapi.Credentials {
	return smartapi.Credentials{
		Name:       name,
		APIKey:     "key",
		ClientID:   clientID,
		Password:   "0000",
		TOTPSecret: "JBSWY3DPEHPK3PXP",
		SecretKey:  "secret",
	}
}

func TestManagerInitializeAllAccounts(t *testing.T) {
	stub := newBrokerStub(t)
	m := testManager(t, stub)

	err := m.Initialize(context.Background(),
		accountCreds("master", "C001"),
		[]smartapi.Credentials{
			accountCreds("follower_1", "C002"),
			accountCreds("follower_2", "C003"),
		})
	require.NoError(t, err)

	require.NotNil(t, m.Master())
	assert.Equal(t, "master", m.Master().Name)
	assert.Len(t, m.ActiveFollowers(), 2)

	// Логины идут последовательно: master первым
	assert.Equal(t, []string{"C001", "C002", "C003"}, stub.logins)
}

func TestManagerMasterFailureIsFatal(t *testing.T) {
	stub := newBrokerStub(t)
	stub.rejectAuth["C001"] = true

	m := testManager(t, stub)

	err := m.Initialize(context.Background(),
		accountCreds("master", "C001"),
		[]smartapi.Credentials{accountCreds("follower_1", "C002")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "master")
	assert.Nil(t, m.Master())

	// До followers дело не дошло
	assert.Equal(t, []string{"C001"}, stub.logins)
}

func TestManagerFailedFollowerSkipped(t *testing.T) {
	stub := newBrokerStub(t)
	stub.rejectAuth["C002"] = true

	m := testManager(t, stub)

	err := m.Initialize(context.Background(),
		accountCreds("master", "C001"),
		[]smartapi.Credentials{
			accountCreds("follower_1", "C002"),
			accountCreds("follower_2", "C003"),
		})
	require.NoError(t, err, "follower failure is not fatal")

	require.Len(t, m.ActiveFollowers(), 1)
	assert.Equal(t, "follower_2", m.ActiveFollowers()[0].Name)
}

func TestManagerVerifySessions(t *testing.T) {
	stub := newBrokerStub(t)
	m := testManager(t, stub)

	require.NoError(t, m.Initialize(context.Background(),
		accountCreds("master", "C001"),
		[]smartapi.Credentials{accountCreds("follower_1", "C002")}))

	assert.NoError(t, m.VerifySessions(context.Background()))
}

func TestManagerVerifyWithoutInit(t *testing.T) {
	m := NewClientManager(discardLogger())

	err := m.VerifySessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}
