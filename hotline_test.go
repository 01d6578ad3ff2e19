package hotline_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hotline "github.com/smnsjas/go-hotline"
	"github.com/smnsjas/go-hotline/params"
	"github.com/smnsjas/go-hotline/session"
	"github.com/smnsjas/go-hotline/transaction"
)

func TestConnectAccept(t *testing.T) {
	registry := session.NewRegistry()
	err := registry.Register(transaction.TypeLogin, func(_ context.Context, req *transaction.Transaction) (*transaction.Transaction, error) {
		login, err := req.Params.GetCredential(params.FieldUserLogin)
		if err != nil {
			return nil, err
		}
		if login != "guest" {
			return nil, &transaction.RemoteError{Code: 7, Message: "unknown user"}
		}
		return transaction.NewReply(req,
			params.NewUint16(params.FieldVersion, 185)), nil
	})
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	serverCh := make(chan *session.Session, 1)
	go func() {
		srv, err := hotline.Accept(serverConn, registry, nil)
		assert.NoError(t, err)
		serverCh <- srv
	}()

	client, err := hotline.Connect(clientConn, nil,
		hotline.WithRequestTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	srv := <-serverCh
	require.NotNil(t, srv)
	t.Cleanup(func() { srv.Close() })

	reply, err := client.SendRequest(context.Background(),
		transaction.NewRequest(transaction.TypeLogin,
			params.NewCredential(params.FieldUserLogin, "guest"),
			params.NewCredential(params.FieldUserPassword, "")))
	require.NoError(t, err)
	require.NoError(t, reply.Err())

	version, err := reply.Params.GetUint16(params.FieldVersion)
	require.NoError(t, err)
	assert.Equal(t, uint16(185), version)
}

func TestConnectWithOptions(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	go hotline.Accept(serverConn, nil, nil)
	client, err := hotline.Connect(clientConn, nil,
		hotline.WithMaxFragmentSize(64),
		hotline.WithRequestTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
