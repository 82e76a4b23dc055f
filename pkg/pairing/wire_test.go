package pairing

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	want := Request{Type: TypeRequest, Code: "4242", Hostname: "laptop"}
	go func() {
		if _, err := writeMessage(client, want); err != nil {
			t.Errorf("writeMessage failed: %v", err)
		}
		client.Close()
	}()

	var got Request
	if _, err := readMessage(server, &got); err != nil {
		t.Fatalf("readMessage failed: %v", err)
	}
	if got != want {
		t.Errorf("readMessage = %+v, want %+v", got, want)
	}
}

func TestReadMessageChunked(t *testing.T) {
	// A message split across several writes must still parse: the reader
	// accumulates until a complete document arrives.
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	parts := []string{
		`{"type":"pairing_requ`,
		`est","code":"12`,
		`34","hostname":"desktop"}`,
	}
	go func() {
		for _, p := range parts {
			if _, err := client.Write([]byte(p)); err != nil {
				t.Errorf("write failed: %v", err)
				return
			}
		}
	}()

	var got Request
	raw, err := readMessage(server, &got)
	if err != nil {
		t.Fatalf("readMessage failed: %v", err)
	}
	want := Request{Type: TypeRequest, Code: "1234", Hostname: "desktop"}
	if got != want {
		t.Errorf("readMessage = %+v, want %+v", got, want)
	}
	joined := []byte(parts[0] + parts[1] + parts[2])
	if !bytes.Equal(raw, joined) {
		t.Errorf("raw bytes = %q, want %q", raw, joined)
	}
}

func TestReadMessageTruncated(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		client.Write([]byte(`{"type":"pairing_request","code"`))
		client.Close()
	}()

	var got Request
	if _, err := readMessage(server, &got); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("readMessage error = %v, want ErrMalformedMessage", err)
	}
}

func TestReadMessageNotJSON(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		client.Write([]byte("GET / HTTP/1.1\r\n"))
		client.Close()
	}()

	var got Request
	if _, err := readMessage(server, &got); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("readMessage error = %v, want ErrMalformedMessage", err)
	}
}

func TestReadMessageEmptyClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go client.Close()

	var got Request
	if _, err := readMessage(server, &got); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("readMessage error = %v, want ErrMalformedMessage", err)
	}
}

func TestReadMessageTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// An endless open brace stream never becomes a valid document; the
	// size guard must trip instead of buffering forever.
	go func() {
		junk := bytes.Repeat([]byte("{"), MaxMessageSize+readChunkSize)
		client.Write(junk)
	}()

	var got Request
	if _, err := readMessage(server, &got); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("readMessage error = %v, want ErrMessageTooLarge", err)
	}
}

func TestReadMessageDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	server.SetReadDeadline(time.Now().Add(50 * time.Millisecond))

	var got Request
	_, err := readMessage(server, &got)
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("readMessage error = %v, want timeout", err)
	}
}
