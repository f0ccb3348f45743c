package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gateway "github.com/nimasrn/donation-ledger/internal/gateways"
	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/internal/repository"
	"github.com/nimasrn/donation-ledger/pkg/pg"
	"github.com/nimasrn/donation-ledger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func SetupTestDB(t *testing.T) *pg.DB {
	return repository.NewTestDB(t)
}

// SetupTestRedis starts a miniredis and an adapter with its own connection
// name, since adapters are cached per name.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	adapter, err := redis.NewRedisAdapter(connName, "test:", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redis.Close(connName) })

	return mr, adapter
}

// ServeInMemory runs h on an in-memory listener and returns a dialer for it.
func ServeInMemory(t *testing.T, h fasthttp.RequestHandler) fasthttp.DialFunc {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return func(string) (net.Conn, error) { return ln.Dial() }
}

// FakePaymentAPI answers create-payment-intent calls and records them.
type FakePaymentAPI struct {
	AccountID string
	Calls     atomic.Int64
	LastBody  atomic.Value
	Decline   atomic.Bool
}

func (f *FakePaymentAPI) Handler(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != gateway.PathCreatePaymentIntent {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	n := f.Calls.Add(1)
	var req gateway.IntentRequest
	_ = json.Unmarshal(ctx.PostBody(), &req)
	f.LastBody.Store(req)

	var resp gateway.IntentResponse
	if f.Decline.Load() {
		ctx.SetStatusCode(fasthttp.StatusPaymentRequired)
		resp.Error = "The payment could not be started."
	} else {
		resp.ClientSecret = fmt.Sprintf("pi_%d_secret_x", n)
		resp.ConnectedAccountID = f.AccountID
	}
	b, _ := json.Marshal(resp)
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}

func (f *FakePaymentAPI) LastRequest() gateway.IntentRequest {
	v, _ := f.LastBody.Load().(gateway.IntentRequest)
	return v
}

func CreateTestCampaign(t *testing.T, repo *repository.CampaignRepository, title string, goal int64) *model.Campaign {
	c := model.NewCampaign(title)
	c.GoalAmount = goal
	id, err := repo.Create(context.Background(), c)
	require.NoError(t, err)
	c.ID = id
	return c
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
