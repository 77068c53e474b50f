package tpool

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const contentLengthHeader = "Content-Length: "

// Response is the wire answer: status line, Content-Length header, blank
// line, body.
type Response struct {
	StatusLine string
	Body       []byte
}

func (r *Response) Encode() []byte {
	head := fmt.Sprintf("%s\r\n%s%d\r\n\r\n", r.StatusLine, contentLengthHeader, len(r.Body))
	buf := make([]byte, 0, len(head)+len(r.Body))
	buf = append(buf, head...)
	return append(buf, r.Body...)
}

// ReadResponse parses one encoded Response from br.
func ReadResponse(br *bufio.Reader) (*Response, error) {
	status, err := readLine(br)
	if err != nil {
		return nil, errors.Wrap(err, "read status line")
	}
	resp := &Response{StatusLine: status}

	length := -1
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, errors.Wrap(err, "read header")
		}
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, contentLengthHeader); ok {
			length, err = strconv.Atoi(v)
			if err != nil || length < 0 {
				return nil, errors.Errorf("bad content length %q", v)
			}
		}
	}
	if length < 0 {
		return nil, errors.New("missing content length")
	}

	resp.Body = make([]byte, length)
	if _, err := io.ReadFull(br, resp.Body); err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return resp, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
