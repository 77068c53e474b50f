package tpool

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

type Conn struct {
	ID        uint64
	Conn      net.Conn
	reader    *bufio.Reader
	closeOnce sync.Once
}

func NewConn(id uint64, conn net.Conn) *Conn {
	return &Conn{
		ID:     id,
		Conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// ReadRequestLine reads the first line of the request. A zero timeout
// means no deadline.
func (c *Conn) ReadRequestLine(timeout time.Duration) (string, error) {
	if timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return "", err
		}
	}
	return readLine(c.reader)
}

func (c *Conn) WriteResponse(resp *Response) error {
	return c.writeFull(resp.Encode())
}

func (c *Conn) writeFull(buf []byte) error {
	if c.Conn == nil {
		return io.ErrClosedPipe
	}

	total := 0
	for total < len(buf) {
		n, err := c.Conn.Write(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}

func (c *Conn) RemoteAddr() string {
	return c.Conn.RemoteAddr().String()
}

func (c *Conn) String() string {
	return fmt.Sprintf("Conn[%d] %s", c.ID, c.RemoteAddr())
}
