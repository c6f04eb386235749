// Package client implements a minimal RESP client for emberdb-cli.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrServerError wraps error replies from the server.
var ErrServerError = errors.New("client: server error")

// ReplyKind discriminates the wire reply variants.
type ReplyKind uint8

const (
	ReplySimple ReplyKind = iota
	ReplyError
	ReplyInteger
	ReplyBulk
	ReplyNil
	ReplyArray
)

// Reply is one decoded server reply.
type Reply struct {
	Kind  ReplyKind
	Str   string
	Int   int64
	Elems []Reply
}

// Client is a connection to an emberdb server.
type Client struct {
	conn    net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request read/write deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Dial connects to addr. When password is non-empty, AUTH is sent
// before Dial returns.
func Dial(addr, password string, opts ...Option) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	c := &Client{
		conn:    conn,
		br:      bufio.NewReader(conn),
		bw:      bufio.NewWriter(conn),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if password != "" {
		reply, err := c.Do("AUTH", password)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if reply.Kind == ReplyError {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrServerError, reply.Str)
		}
	}
	return c, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one command and reads its reply. Error replies come back as
// a Reply with Kind ReplyError, not as a Go error; the error return
// covers transport failures only.
func (c *Client) Do(args ...string) (Reply, error) {
	if len(args) == 0 {
		return Reply{}, errors.New("client: empty command")
	}
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Reply{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(a), a)
	}
	if _, err := c.bw.WriteString(b.String()); err != nil {
		return Reply{}, fmt.Errorf("client: write: %w", err)
	}
	if err := c.bw.Flush(); err != nil {
		return Reply{}, fmt.Errorf("client: flush: %w", err)
	}
	return c.readReply()
}

// Receive reads the next server-pushed reply without sending anything.
// Subscriber connections use it to collect message deliveries after
// SUBSCRIBE has been acknowledged.
func (c *Client) Receive() (Reply, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Reply{}, err
	}
	return c.readReply()
}

func (c *Client) readReply() (Reply, error) {
	line, err := c.readLine()
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, errors.New("client: empty reply line")
	}

	payload := line[1:]
	switch line[0] {
	case '+':
		return Reply{Kind: ReplySimple, Str: payload}, nil
	case '-':
		return Reply{Kind: ReplyError, Str: payload}, nil
	case ':':
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("client: bad integer reply %q", line)
		}
		return Reply{Kind: ReplyInteger, Int: n}, nil
	case '$':
		n, err := strconv.Atoi(payload)
		if err != nil {
			return Reply{}, fmt.Errorf("client: bad bulk header %q", line)
		}
		if n < 0 {
			return Reply{Kind: ReplyNil}, nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(c.br, buf); err != nil {
			return Reply{}, fmt.Errorf("client: read bulk: %w", err)
		}
		return Reply{Kind: ReplyBulk, Str: string(buf[:n])}, nil
	case '*':
		n, err := strconv.Atoi(payload)
		if err != nil {
			return Reply{}, fmt.Errorf("client: bad array header %q", line)
		}
		if n < 0 {
			return Reply{Kind: ReplyNil}, nil
		}
		elems := make([]Reply, 0, n)
		for i := 0; i < n; i++ {
			elem, err := c.readReply()
			if err != nil {
				return Reply{}, err
			}
			elems = append(elems, elem)
		}
		return Reply{Kind: ReplyArray, Elems: elems}, nil
	default:
		return Reply{}, fmt.Errorf("client: unexpected reply line %q", line)
	}
}

func (c *Client) readLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("client: read: %w", err)
	}
	return strings.TrimSuffix(line, "\r\n"), nil
}

// Format renders the reply the way an interactive user expects.
func (r Reply) Format() string {
	switch r.Kind {
	case ReplySimple:
		return r.Str
	case ReplyError:
		return "(error) " + r.Str
	case ReplyInteger:
		return "(integer) " + strconv.FormatInt(r.Int, 10)
	case ReplyBulk:
		return strconv.Quote(r.Str)
	case ReplyNil:
		return "(nil)"
	case ReplyArray:
		if len(r.Elems) == 0 {
			return "(empty array)"
		}
		var b strings.Builder
		for i, elem := range r.Elems {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%d) %s", i+1, elem.Format())
		}
		return b.String()
	default:
		return "(unknown reply)"
	}
}
