package aevo

import (
	"bytes"
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/pkg/env"
	"github.com/coachpo/aevo/pkg/wire"
)

func TestNewRejectsUnknownEnvironment(t *testing.T) {
	_, err := New(Credentials{}, env.Environment("devnet"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeConfig))
}

func TestNewRejectsMalformedCredentials(t *testing.T) {
	_, err := New(Credentials{SigningKey: "not-hex", WalletAddress: testWallet}, env.Staging)
	require.True(t, errs.Is(err, errs.CodeConfig))

	_, err = New(Credentials{SigningKey: testKey, WalletAddress: "0x1234"}, env.Staging)
	require.True(t, errs.Is(err, errs.CodeConfig))
}

func TestMissingCredentialsFailBeforeAnyIO(t *testing.T) {
	server := newRESTServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c, dialer := newTestClient(t, Credentials{}, WithRESTBaseURL(server.URL))
	ctx := context.Background()

	_, err := c.CreateOrder(ctx, LimitOrder(1, true, decimal.NewFromInt(2500), decimal.NewFromInt(1)))
	require.True(t, errs.Is(err, errs.CodeConfig))
	var e *errs.E
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CanonicalMissingCredentials, e.Canonical)

	_, err = c.REST().GetAccount(ctx)
	require.True(t, errs.Is(err, errs.CodeConfig))
	_, err = c.REST().Withdraw(ctx, WithdrawRequest{Amount: decimal.NewFromInt(10)})
	require.True(t, errs.Is(err, errs.CodeConfig))
	_, err = c.REST().Snapshot(ctx)
	require.True(t, errs.Is(err, errs.CodeConfig))

	require.Zero(t, dialer.dials.Load())
	require.Zero(t, server.hits.Load())
}

func TestConnectWritesAuthFrameFirst(t *testing.T) {
	c, dialer := newTestClient(t, fullCredentials())
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	frames := dialer.conn.frames()
	require.Len(t, frames, 1)
	auth := decodeFrame(t, frames[0])
	require.Equal(t, "auth", auth["op"])
	require.EqualValues(t, 1, auth["id"])
	require.Equal(t, map[string]any{"key": "key", "secret": "secret"}, auth["data"])
	require.Equal(t, StateReady, c.State())
}

func TestConnectWithoutAPIKeySkipsAuth(t *testing.T) {
	c, dialer := newTestClient(t, Credentials{})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	require.Empty(t, dialer.conn.frames())
	require.NoError(t, c.SubscribeIndex(context.Background(), "ETH"))
	frames := dialer.conn.frames()
	require.Len(t, frames, 1)
	require.JSONEq(t, `{"op":"subscribe","data":["index:ETH"],"id":2}`, string(frames[0]))
}

func TestSubscribeAckReachesInbox(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, dialer := newTestClient(t, Credentials{})
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.SubscribeIndex(ctx, "ETH"))
	require.NoError(t, c.Unsubscribe(ctx, "index:ETH"))

	dialer.conn.inbound <- []byte(`{"id":2,"data":["index:ETH"]}`)
	dialer.conn.inbound <- []byte(`{"id":3,"data":[]}`)

	inbox := c.NewInbox(4)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, inbox) }()

	ack := receive(t, inbox)
	require.Equal(t, wire.KindReply, ack.Kind)
	require.Equal(t, wire.OpSubscribe, ack.Op)
	require.Equal(t, []string{"index:ETH"}, ack.Payload)

	ack = receive(t, inbox)
	require.Equal(t, wire.OpUnsubscribe, ack.Op)
	require.Empty(t, ack.Payload)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestSubscriptionsReplayedAfterReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, dialer := newTestClient(t, fullCredentials())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx, "index:ETH", "orders"))
	require.NoError(t, c.Unsubscribe(ctx, "orders"))
	require.NoError(t, c.SubscribeFills(ctx))
	require.Equal(t, []string{"fills", "index:ETH"}, c.Subscriptions())

	inbox := c.NewInbox(4)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, inbox) }()

	require.NoError(t, dialer.conn.Close())
	require.Eventually(t, func() bool {
		second := dialer.redialed(0)
		return second != nil && len(second.frames()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	second := dialer.redialed(0)
	frames := second.frames()
	require.Equal(t, "auth", decodeFrame(t, frames[0])["op"])
	require.JSONEq(t, `{"op":"subscribe","data":["fills","index:ETH"],"id":5}`, string(frames[1]))

	second.inbound <- []byte(`{"id":5,"data":["fills","index:ETH"]}`)
	ack := receive(t, inbox)
	require.Equal(t, wire.OpSubscribe, ack.Op)
	require.Equal(t, []string{"fills", "index:ETH"}, ack.Payload)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestFailedSubscribeIsNotReplayed(t *testing.T) {
	c, _ := newTestClient(t, Credentials{})
	require.Error(t, c.SubscribeOrders(context.Background()))
	require.Empty(t, c.Subscriptions())
}

func TestStalePendingIDsAreEvicted(t *testing.T) {
	var now atomic.Int64
	now.Store(testNow.UnixNano())
	c, _ := newTestClient(t, Credentials{}, WithClock(func() time.Time { return time.Unix(0, now.Load()) }))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Ping(ctx))
	require.Equal(t, 2, pendingCount(c))

	now.Add(int64(2 * pendingTTL))
	require.NoError(t, c.Ping(ctx))
	require.Equal(t, 1, pendingCount(c))

	_, ok := c.resolve(2)
	require.False(t, ok)
	op, ok := c.resolve(4)
	require.True(t, ok)
	require.Equal(t, wire.OpPing, op)
	require.Zero(t, pendingCount(c))
}

func TestRunClosesInboxOnReturn(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, dialer := newTestClient(t, Credentials{})
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	dialer.conn.inbound <- []byte(`{"channel":"index:ETH","data":{"price":"1","timestamp":"1"}}`)

	inbox := c.NewInbox(4)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, inbox) }()
	require.Equal(t, wire.KindPush, receive(t, inbox).Kind)

	err := c.Run(ctx, inbox)
	require.True(t, errs.Is(err, errs.CodeInvalid))

	require.NoError(t, c.Close())
	require.NoError(t, <-done)

	var drained int
	for range inbox.C {
		drained++
	}
	require.Zero(t, drained)
	require.ErrorIs(t, inbox.Deliver(ctx, wire.Response{}), ErrConsumerGone)
}

func TestOrderLogCarriesScaledAmount(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newTestClient(t, fullCredentials(), WithLogger(zerolog.New(&buf)))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.CreateOrder(ctx, LimitOrder(1, true, decimal.NewFromInt(2500), decimal.RequireFromString("0.2500009")))
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"amount":"0.25"`)
}

func receive(t *testing.T, inbox *Inbox) wire.Response {
	t.Helper()
	select {
	case resp := <-inbox.C:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return wire.Response{}
	}
}

func pendingCount(c *Client) int {
	var n int
	c.pending.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func TestSubscribeRequiresChannel(t *testing.T) {
	c, _ := newTestClient(t, Credentials{})
	err := c.Subscribe(context.Background(), " ", "")
	require.True(t, errs.Is(err, errs.CodeInvalid))
}

func TestSendWithoutConnectFails(t *testing.T) {
	c, _ := newTestClient(t, Credentials{})
	err := c.SubscribeOrders(context.Background())
	require.True(t, errs.Is(err, errs.CodeNotConnected))
}

func TestCreateOrderFrame(t *testing.T) {
	c, dialer := newTestClient(t, fullCredentials())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })

	orderID, err := c.CreateOrder(ctx, LimitOrder(1, true, decimal.RequireFromString("2500.5"), decimal.RequireFromString("0.25")))
	require.NoError(t, err)
	require.Regexp(t, `^0x[0-9a-f]{64}$`, orderID)

	frames := dialer.conn.frames()
	require.Len(t, frames, 2)
	frame := decodeFrame(t, frames[1])
	require.Equal(t, "create_order", frame["op"])
	require.EqualValues(t, 2, frame["id"])

	data, ok := frame["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, testWallet, data["maker"])
	require.Equal(t, true, data["is_buy"])
	require.Equal(t, "1", data["instrument"])
	require.Equal(t, "2500500000", data["limit_price"])
	require.Equal(t, "250000", data["amount"])
	require.Equal(t, "7", data["salt"])
	require.Equal(t, true, data["post_only"])
	require.Equal(t, true, data["mmp"])
	require.Equal(t, "1700000000", data["timestamp"])
	require.Regexp(t, `^0x[0-9a-f]{130}$`, data["signature"])
}

func TestMarketOrderDefaultsPostOnlyOff(t *testing.T) {
	c, dialer := newTestClient(t, fullCredentials())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })

	req := MarketOrder(3, false, decimal.NewFromInt(2))
	req.MMP = Bool(false)
	_, err := c.CreateOrder(ctx, req)
	require.NoError(t, err)

	frames := dialer.conn.frames()
	data := decodeFrame(t, frames[len(frames)-1])["data"].(map[string]any)
	require.Equal(t, "0", data["limit_price"])
	require.Equal(t, false, data["post_only"])
	require.Equal(t, false, data["mmp"])
}

func TestEditAndCancelFrames(t *testing.T) {
	c, dialer := newTestClient(t, fullCredentials())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })

	newID, err := c.EditOrder(ctx, "0xold", LimitOrder(1, false, decimal.NewFromInt(10), decimal.NewFromInt(1)))
	require.NoError(t, err)
	require.NotEqual(t, "0xold", newID)
	require.NoError(t, c.CancelOrder(ctx, "0xold"))
	require.NoError(t, c.CancelAllOrders(ctx))

	_, err = c.EditOrder(ctx, "", LimitOrder(1, false, decimal.NewFromInt(10), decimal.NewFromInt(1)))
	require.True(t, errs.Is(err, errs.CodeInvalid))
	require.True(t, errs.Is(c.CancelOrder(ctx, " "), errs.CodeInvalid))

	frames := dialer.conn.frames()
	require.Len(t, frames, 4)
	edit := decodeFrame(t, frames[1])
	require.Equal(t, "edit_order", edit["op"])
	editData := edit["data"].(map[string]any)
	require.Equal(t, "0xold", editData["order_id"])
	require.Equal(t, testWallet, editData["maker"])
	require.JSONEq(t, `{"op":"cancel_order","data":{"order_id":"0xold"},"id":3}`, string(frames[2]))
	require.JSONEq(t, `{"op":"cancel_all_orders","data":{},"id":4}`, string(frames[3]))
}

func TestRunDeliversTypedReplies(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, dialer := newTestClient(t, fullCredentials())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	orderID, err := c.CreateOrder(ctx, LimitOrder(1, true, decimal.NewFromInt(2500), decimal.NewFromInt(1)))
	require.NoError(t, err)

	dialer.conn.inbound <- []byte(`{"id":1,"data":{"account":"0xabc","subscriptions":[]}}`)
	dialer.conn.inbound <- []byte(`not json`)
	dialer.conn.inbound <- []byte(`{"id":2,"data":{"order_id":"` + orderID + `","order_status":"opened","side":"buy"}}`)
	dialer.conn.inbound <- []byte(`{"channel":"index:ETH","data":{"price":"3000.5","timestamp":"1"}}`)

	inbox := c.NewInbox(8)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, inbox) }()

	next := func() wire.Response {
		select {
		case resp := <-inbox.C:
			return resp
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for response")
			return wire.Response{}
		}
	}

	auth := next()
	require.Equal(t, wire.KindReply, auth.Kind)
	require.Equal(t, wire.OpAuth, auth.Op)
	require.Equal(t, "0xabc", auth.Payload.(wire.StatusReply).Account)

	reply := next()
	require.Equal(t, wire.OpCreateOrder, reply.Op)
	order, ok := reply.Payload.(wire.OrderReply)
	require.True(t, ok)
	require.Equal(t, orderID, order.OrderID)

	push := next()
	require.Equal(t, wire.KindPush, push.Kind)
	index, ok := push.Payload.(wire.IndexData)
	require.True(t, ok)
	require.True(t, decimal.RequireFromString("3000.5").Equal(index.Price))

	require.NoError(t, c.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestRunRequiresInbox(t *testing.T) {
	c, _ := newTestClient(t, Credentials{})
	err := c.Run(context.Background(), nil)
	require.True(t, errs.Is(err, errs.CodeInvalid))
}

func TestInboxStopDropsDeliveries(t *testing.T) {
	inbox := NewInbox(1)
	ctx := context.Background()
	require.NoError(t, inbox.Deliver(ctx, wire.Response{Kind: wire.KindPush}))

	inbox.Stop()
	inbox.Stop()
	require.ErrorIs(t, inbox.Deliver(ctx, wire.Response{Kind: wire.KindPush}), ErrConsumerGone)
	<-inbox.Done()
}

func TestInboxDeliverHonoursContext(t *testing.T) {
	inbox := NewInbox(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, inbox.Deliver(ctx, wire.Response{}), context.Canceled)
}
