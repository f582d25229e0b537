package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

func connectedProvider(t *testing.T, conn *MockConn) *Provider {
	t.Helper()
	p := NewProvider("nats://localhost:4222", "devbridge-test")
	p.connect = func(url string, opts ...nats.Option) (Conn, error) {
		return conn, nil
	}
	require.NoError(t, p.Connect(context.Background()))
	return p
}

func TestProvider_NotConnected(t *testing.T) {
	p := NewProvider("nats://localhost:4222", "")

	_, err := p.NewPublisher(pubsub.PublisherOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = p.NewConsumer(pubsub.ConsumerOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, p.Close())
}

func TestProvider_ConnectError(t *testing.T) {
	p := NewProvider("nats://nowhere:4222", "")
	p.connect = func(url string, opts ...nats.Option) (Conn, error) {
		return nil, errors.New("no servers available")
	}

	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats://nowhere:4222")
	assert.Contains(t, err.Error(), "no servers available")
}

func TestProvider_ConnectOnce(t *testing.T) {
	calls := 0
	conn := NewMockConn()
	p := NewProvider("nats://localhost:4222", "")
	p.connect = func(url string, opts ...nats.Option) (Conn, error) {
		calls++
		return conn, nil
	}

	require.NoError(t, p.Connect(context.Background()))
	require.NoError(t, p.Connect(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestProvider_ConnectCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewProvider("nats://localhost:4222", "")
	assert.ErrorIs(t, p.Connect(ctx), context.Canceled)
}

func TestProvider_Close(t *testing.T) {
	conn := NewMockConn()
	conn.On("Close").Return().Once()
	p := connectedProvider(t, conn)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	conn.AssertExpectations(t)

	_, err := p.NewPublisher(pubsub.PublisherOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublisher_Publish(t *testing.T) {
	conn := NewMockConn()
	conn.On("Publish", "devtools.app.up.state", []byte("data")).Return(nil)
	p := connectedProvider(t, conn)

	var published string
	pub, err := p.NewPublisher(pubsub.PublisherOptions{
		SubjectPrefix: "devtools.app.up",
		OnPublish: func(subject string, err error, latency time.Duration) {
			published = subject
		},
	})
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), "state", []byte("data")))
	assert.Equal(t, "devtools.app.up.state", published)
	assert.NoError(t, pub.Close())
	conn.AssertExpectations(t)
}

func TestPublisher_PublishError(t *testing.T) {
	conn := NewMockConn()
	conn.On("Publish", "init", mock.Anything).Return(nats.ErrConnectionClosed)

	pub, err := NewPublisher(conn, pubsub.PublisherOptions{})
	require.NoError(t, err)

	err = pub.Publish(context.Background(), "init", nil)
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestNewPublisher_NilConn(t *testing.T) {
	_, err := NewPublisher(nil, pubsub.PublisherOptions{})
	assert.EqualError(t, err, "nats connection cannot be nil")
}

func TestConsumer_SubscribeDelivers(t *testing.T) {
	conn := NewMockConn()
	sub := &MockSubscription{}
	sub.On("Unsubscribe").Return(nil)
	conn.On("Subscribe", "devtools.app.down.dispatch").Return(sub, nil)

	consumer, err := NewConsumer(conn, pubsub.ConsumerOptions{FilterSubject: "devtools.app.down.dispatch"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := consumer.Subscribe(ctx)
	require.NoError(t, err)

	conn.Deliver("devtools.app.down.dispatch", []byte(`{"type":"DISPATCH"}`))

	select {
	case msg := <-ch:
		assert.Equal(t, "devtools.app.down.dispatch", msg.Subject())
		assert.Equal(t, []byte(`{"type":"DISPATCH"}`), msg.Data())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
	sub.AssertExpectations(t)

	// deliveries after close are dropped, not panics
	conn.Deliver("devtools.app.down.dispatch", []byte("late"))
}

func TestConsumer_SubscribeError(t *testing.T) {
	conn := NewMockConn()
	conn.On("Subscribe", ">").Return(nil, errors.New("permissions violation"))

	consumer, err := NewConsumer(conn, pubsub.ConsumerOptions{})
	require.NoError(t, err)

	_, err = consumer.Subscribe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions violation")
}

func TestWrapMessage(t *testing.T) {
	msg := WrapMessage(&nats.Msg{Subject: "a.b", Data: []byte("x")})
	assert.Equal(t, "a.b", msg.Subject())
	assert.Equal(t, []byte("x"), msg.Data())
	assert.WithinDuration(t, time.Now(), msg.Timestamp(), time.Second)
}
