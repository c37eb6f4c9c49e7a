package schedcore

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestServeAcceptsConnectionAndNegotiates(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "sched.sock")
	db := NewTaskDatabase()

	accepted := make(chan *Writer, 1)
	server, err := NewServer(socketPath, db, func(w *Writer) (AdapterPolicy, ResourceResolver) {
		accepted <- w
		return MainPolicy{}, mapResourceResolver{}
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go server.Serve()
	defer server.Close()

	conn, err := DialClient(socketPath)
	if err != nil {
		t.Fatalf("DialClient: %v", err)
	}
	defer conn.Close()

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatalf("server never accepted and negotiated the connection")
	}
}

func TestNegotiateServerSideRejectsLegacyV0(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- negotiateServerSide(serverConn) }()

	clientConn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := clientConn.Write([]byte("S")); err != nil {
		t.Fatalf("write legacy handshake byte: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected negotiateServerSide to reject a legacy v0 handshake")
		}
	case <-time.After(time.Second):
		t.Fatalf("negotiateServerSide never returned")
	}
}

func TestNegotiateServerSideAcceptsCurrentProtocol(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- negotiateServerSide(serverConn) }()

	clientConn.SetWriteDeadline(time.Now().Add(time.Second))
	handshake := []byte("PROTOCOL=1")
	handshake = append(handshake, ProtocolRecordTerminator)
	if _, err := clientConn.Write(handshake); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("negotiateServerSide rejected a well-formed handshake: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("negotiateServerSide never returned")
	}
}

func TestReadLoopDispatchesFramedMessages(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "sched2.sock")
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	resolver := mapResourceResolver{"cpu0": r}

	server, err := NewServer(socketPath, db, func(w *Writer) (AdapterPolicy, ResourceResolver) {
		return MainPolicy{}, resolver
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go server.Serve()
	defer server.Close()

	conn, err := DialClient(socketPath)
	if err != nil {
		t.Fatalf("DialClient: %v", err)
	}
	defer conn.Close()

	msg := &Message{
		Msg: MsgTaskList,
		TaskList: []TaskListEntry{
			{Name: "t0", Size: 1, Checkpoints: 4, Resources: []string{"cpu0"}},
		},
	}
	encoded, err := encodeMessage(msg)
	if err != nil {
		t.Fatalf("encodeMessage: %v", err)
	}
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := conn.Write(encoded); err != nil {
		t.Fatalf("write TASKLIST: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString(ProtocolRecordTerminator)
	if err != nil {
		t.Fatalf("read TASKIDS reply: %v", err)
	}
	reply, err := decodeMessage([]byte(line[:len(line)-1]))
	if err != nil {
		t.Fatalf("decode TASKIDS reply: %v", err)
	}
	if reply.Msg != MsgTaskIDs || len(reply.TaskIDs) != 1 {
		t.Fatalf("reply = %+v, want one TASKIDS entry", reply)
	}
}
