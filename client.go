package tpool

import (
	"bufio"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

// Client sends one request line per connection and reads back the Response.
type Client struct {
	config ClientConfig
}

func NewClientWithConfig(cnf ClientConfig) *Client {
	return &Client{config: cnf}
}

func (c *Client) dial() (net.Conn, error) {
	var conn net.Conn
	op := func() error {
		var err error
		conn, err = net.DialTimeout("tcp", c.config.Addr, c.config.DialTimeout)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithMaxRetries(b, c.config.DialRetries)); err != nil {
		return nil, errors.Wrapf(err, "dial %s", c.config.Addr)
	}
	return conn, nil
}

// Do writes requestLine and returns the parsed response.
func (c *Client) Do(requestLine string) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(requestLine + "\r\n")); err != nil {
		return nil, errors.Wrap(err, "write request")
	}
	return ReadResponse(bufio.NewReader(conn))
}

// Get requests path with an HTTP/1.1 GET request line.
func (c *Client) Get(path string) (*Response, error) {
	return c.Do("GET " + path + " HTTP/1.1")
}
