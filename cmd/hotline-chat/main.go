// Command hotline-chat is a minimal interactive client: it connects to a
// server, logs in, and relays chat between stdin and the server.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	hotline "github.com/smnsjas/go-hotline"
	"github.com/smnsjas/go-hotline/params"
	"github.com/smnsjas/go-hotline/session"
	"github.com/smnsjas/go-hotline/transaction"
)

func main() {
	addr := flag.String("addr", "localhost:5500", "server address")
	login := flag.String("login", "guest", "account login")
	password := flag.String("password", "", "account password")
	nickname := flag.String("nick", "gopher", "nickname shown in chat")
	debug := flag.Bool("debug", false, "log protocol traffic")
	flag.Parse()

	// Trap Ctrl+C for clean shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Printf("Connecting to %s...", *addr)
	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// Print chat pushed at us by the server.
	registry := session.NewRegistry()
	onChat := func(_ context.Context, req *transaction.Transaction) (*transaction.Transaction, error) {
		text, err := req.Params.GetString(params.FieldData)
		if err != nil {
			return nil, err
		}
		log.Print(text)
		return nil, nil
	}
	if err := registry.Register(transaction.TypeChatMessage, onChat); err != nil {
		log.Fatalf("Register failed: %v", err)
	}

	opts := []hotline.Option{hotline.WithRequestTimeout(10 * time.Second)}
	if *debug {
		opts = append(opts, hotline.WithLogger(log.Default()))
	}

	sess, err := hotline.Connect(conn, registry, opts...)
	if err != nil {
		log.Fatalf("Handshake failed: %v", err)
	}
	defer sess.Close()

	log.Printf("Logging in as %q...", *login)
	reply, err := sess.SendRequest(ctx, transaction.NewRequest(
		transaction.TypeLogin,
		params.NewCredential(params.FieldUserLogin, *login),
		params.NewCredential(params.FieldUserPassword, *password),
		params.NewString(params.FieldUserName, *nickname),
	))
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	if err := reply.Err(); err != nil {
		log.Fatalf("Login rejected: %v", err)
	}
	log.Println("Logged in. Type to chat; Ctrl+C to quit.")

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := sess.Send(transaction.NewRequest(
				transaction.TypeSendChat,
				params.NewString(params.FieldData, line),
			)); err != nil {
				log.Printf("Send failed: %v", err)
				cancel()
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Interrupted.")
	case <-sess.Done():
		if err := sess.Err(); err != nil {
			log.Printf("Connection lost: %v", err)
		} else {
			log.Println("Server closed the connection.")
		}
	}
}
