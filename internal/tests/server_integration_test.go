// Package tests provides end-to-end integration tests for emberdb.
//
// The tests start a full server (storage engine, pub/sub broker, RESP
// listener) on a loopback port and drive it through the client
// package, verifying:
//   - command round trips over a real TCP connection
//   - persistence across an engine restart
//   - message delivery between two connections
//   - password authentication
package tests

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/solask/emberdb/internal/cli/client"
	"github.com/solask/emberdb/internal/pubsub"
	"github.com/solask/emberdb/internal/server/respserver"
	"github.com/solask/emberdb/internal/storage"
	"github.com/solask/emberdb/internal/storage/wal"
)

// newTestEngine opens a storage engine in dir and replays any state
// left behind by a previous instance. Close is the caller's job so
// restart tests can cycle the engine explicitly.
func newTestEngine(t *testing.T, dir string) *storage.Engine {
	t.Helper()

	cfg := storage.DefaultConfig(dir)
	cfg.SnapshotInterval = 0
	cfg.WALSyncMode = wal.SyncModeSync
	cfg.Logger = slog.New(slog.DiscardHandler)

	engine, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if err := engine.Recover(); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	return engine
}

// startTestServer starts a RESP listener on a random loopback port and
// returns the server together with its bound address.
func startTestServer(t *testing.T, engine *storage.Engine, password string) (*respserver.Server, string) {
	t.Helper()

	cfg := respserver.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.Password = password

	srv := respserver.New(cfg, engine, pubsub.NewBroker(), nil, slog.New(slog.DiscardHandler))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return srv, srv.Addr().String()
}

func stopTestServer(t *testing.T, srv *respserver.Server) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestServer_CommandRoundTrip_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine := newTestEngine(t, t.TempDir())
	defer engine.Close()

	srv, addr := startTestServer(t, engine, "")
	defer stopTestServer(t, srv)

	c, err := client.Dial(addr, "")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	reply, err := c.Do("SET", "greeting", "hello")
	if err != nil {
		t.Fatalf("SET error = %v", err)
	}
	if reply.Kind != client.ReplySimple || reply.Str != "OK" {
		t.Fatalf("SET reply = %+v, want +OK", reply)
	}

	reply, err = c.Do("GET", "greeting")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	if reply.Kind != client.ReplyBulk || reply.Str != "hello" {
		t.Fatalf("GET reply = %+v, want bulk hello", reply)
	}

	for i := 0; i < 3; i++ {
		if reply, err = c.Do("INCR", "counter"); err != nil {
			t.Fatalf("INCR error = %v", err)
		}
	}
	if reply.Kind != client.ReplyInteger || reply.Int != 3 {
		t.Fatalf("third INCR reply = %+v, want :3", reply)
	}

	if _, err = c.Do("RPUSH", "queue", "a", "b", "c"); err != nil {
		t.Fatalf("RPUSH error = %v", err)
	}
	reply, err = c.Do("LRANGE", "queue", "0", "-1")
	if err != nil {
		t.Fatalf("LRANGE error = %v", err)
	}
	if reply.Kind != client.ReplyArray || len(reply.Elems) != 3 {
		t.Fatalf("LRANGE reply = %+v, want 3 elements", reply)
	}
	for i, want := range []string{"a", "b", "c"} {
		if reply.Elems[i].Str != want {
			t.Fatalf("LRANGE[%d] = %q, want %q", i, reply.Elems[i].Str, want)
		}
	}

	if _, err = c.Do("EXPIRE", "greeting", "100"); err != nil {
		t.Fatalf("EXPIRE error = %v", err)
	}
	reply, err = c.Do("TTL", "greeting")
	if err != nil {
		t.Fatalf("TTL error = %v", err)
	}
	if reply.Kind != client.ReplyInteger || reply.Int <= 0 || reply.Int > 100 {
		t.Fatalf("TTL reply = %+v, want 0 < n <= 100", reply)
	}

	reply, err = c.Do("GET", "missing")
	if err != nil {
		t.Fatalf("GET missing error = %v", err)
	}
	if reply.Kind != client.ReplyNil {
		t.Fatalf("GET missing reply = %+v, want nil", reply)
	}
}

func TestServer_PersistenceAcrossRestart_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()

	engine := newTestEngine(t, dir)
	srv, addr := startTestServer(t, engine, "")

	c, err := client.Dial(addr, "")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	seed := [][]string{
		{"SET", "city", "vienna"},
		{"RPUSH", "queue", "a", "b"},
		{"HSET", "user:1", "name", "ann", "role", "admin"},
		{"SADD", "tags", "go", "db"},
	}
	for _, args := range seed {
		reply, err := c.Do(args...)
		if err != nil {
			t.Fatalf("%s error = %v", args[0], err)
		}
		if reply.Kind == client.ReplyError {
			t.Fatalf("%s reply = %q", args[0], reply.Str)
		}
	}
	if reply, err := c.Do("SAVE"); err != nil || reply.Kind != client.ReplySimple {
		t.Fatalf("SAVE reply = %+v, err = %v", reply, err)
	}

	c.Close()
	stopTestServer(t, srv)
	if err := engine.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Second instance over the same data directory.
	engine = newTestEngine(t, dir)
	defer engine.Close()
	srv, addr = startTestServer(t, engine, "")
	defer stopTestServer(t, srv)

	c, err = client.Dial(addr, "")
	if err != nil {
		t.Fatalf("Dial() after restart error = %v", err)
	}
	defer c.Close()

	reply, err := c.Do("GET", "city")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	if reply.Str != "vienna" {
		t.Fatalf("GET city after restart = %+v, want vienna", reply)
	}

	checks := []struct {
		args []string
		want int64
	}{
		{[]string{"LLEN", "queue"}, 2},
		{[]string{"HLEN", "user:1"}, 2},
		{[]string{"SCARD", "tags"}, 2},
	}
	for _, check := range checks {
		reply, err := c.Do(check.args...)
		if err != nil {
			t.Fatalf("%s error = %v", check.args[0], err)
		}
		if reply.Int != check.want {
			t.Fatalf("%s after restart = %d, want %d", check.args[0], reply.Int, check.want)
		}
	}
}

func TestServer_PubSub_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine := newTestEngine(t, t.TempDir())
	defer engine.Close()

	srv, addr := startTestServer(t, engine, "")
	defer stopTestServer(t, srv)

	sub, err := client.Dial(addr, "")
	if err != nil {
		t.Fatalf("Dial() subscriber error = %v", err)
	}
	defer sub.Close()

	reply, err := sub.Do("SUBSCRIBE", "news")
	if err != nil {
		t.Fatalf("SUBSCRIBE error = %v", err)
	}
	if reply.Kind != client.ReplyArray || len(reply.Elems) != 3 {
		t.Fatalf("SUBSCRIBE reply = %+v, want 3-element array", reply)
	}

	pub, err := client.Dial(addr, "")
	if err != nil {
		t.Fatalf("Dial() publisher error = %v", err)
	}
	defer pub.Close()

	reply, err = pub.Do("PUBLISH", "news", "hello")
	if err != nil {
		t.Fatalf("PUBLISH error = %v", err)
	}
	if reply.Int != 1 {
		t.Fatalf("PUBLISH receivers = %d, want 1", reply.Int)
	}

	msg, err := sub.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if msg.Kind != client.ReplyArray || len(msg.Elems) != 3 {
		t.Fatalf("pushed reply = %+v, want 3-element array", msg)
	}
	if msg.Elems[0].Str != "message" || msg.Elems[1].Str != "news" || msg.Elems[2].Str != "hello" {
		t.Fatalf("pushed reply = %+v, want [message news hello]", msg)
	}
}

func TestServer_Auth_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine := newTestEngine(t, t.TempDir())
	defer engine.Close()

	srv, addr := startTestServer(t, engine, "sesame")
	defer stopTestServer(t, srv)

	if _, err := client.Dial(addr, "wrong"); err == nil {
		t.Fatal("Dial() with wrong password succeeded, want error")
	}

	c, err := client.Dial(addr, "sesame")
	if err != nil {
		t.Fatalf("Dial() with password error = %v", err)
	}
	defer c.Close()

	reply, err := c.Do("PING")
	if err != nil {
		t.Fatalf("PING error = %v", err)
	}
	if reply.Str != "PONG" {
		t.Fatalf("PING reply = %+v, want +PONG", reply)
	}
}
