package listener

import (
	"bytes"
	"io"
)

// lineEndingReadWriter normalizes line endings on a raw stream: reads fold
// \r\n and bare \r down to \n, writes expand \n to \r\n. Telnet requires
// CRLF and SSH without a PTY sends bare \r.
type lineEndingReadWriter struct {
	rw io.ReadWriter
}

func newLineEndingReadWriter(rw io.ReadWriter) io.ReadWriter {
	return &lineEndingReadWriter{rw: rw}
}

func (c *lineEndingReadWriter) Read(p []byte) (int, error) {
	n, err := c.rw.Read(p)
	if n > 0 {
		data := bytes.ReplaceAll(p[:n], []byte("\r\n"), []byte("\n"))
		data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
		n = copy(p, data)
	}
	return n, err
}

func (c *lineEndingReadWriter) Write(p []byte) (int, error) {
	converted := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.rw.Write(converted)
	// Report the caller's length, not the expanded one.
	return len(p), err
}
