package testhelper

import (
	"io"
	"net"
	"testing"

	"gopkg.in/tomb.v1"
)

// TCPServer is a throwaway TCP listener that accepts connections and
// discards whatever arrives, standing in for a proxy upstream or a
// reachability target.
type TCPServer struct {
	listener net.Listener
	tomb     tomb.Tomb

	// Connections receives one value per accepted connection.
	Connections chan string
}

// NewTCPServer listens on an ephemeral local port and starts accepting.
func NewTCPServer(t testing.TB) *TCPServer {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create TCP server: %v", err)
	}

	server := &TCPServer{
		listener:    listener,
		Connections: make(chan string, 16),
	}

	go server.serve()
	go func() {
		// Unblock Accept() when the server is being shut down.
		<-server.tomb.Dying()
		server.listener.Close()
	}()

	return server
}

func (server *TCPServer) Addr() string {
	return server.listener.Addr().String()
}

func (server *TCPServer) serve() {
	defer server.tomb.Done()

	for {
		conn, err := server.listener.Accept()
		if err != nil {
			// Accept returns an opaque error when the listener is
			// closed from Close(), so sync up with the tomb to tell
			// shutdown apart from a real failure.
			select {
			case <-server.tomb.Dying():
			default:
			}
			return
		}

		select {
		case server.Connections <- conn.RemoteAddr().String():
		default:
		}

		go func(c net.Conn) {
			io.Copy(io.Discard, c)
			c.Close()
		}(conn)
	}
}

// Close stops accepting and waits for the accept loop to finish.
func (server *TCPServer) Close() {
	server.tomb.Killf("Shutting down from Close()")
	server.tomb.Wait()
}
