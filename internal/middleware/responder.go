package middleware

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/groove-net/ignis/internal/engine"
)

// sender is the subset of engine.Conn's send methods the responder calls.
// Nothing uses it as a parameter type: WriteResponse and its helpers take
// *engine.Conn directly, so a fake cannot be substituted for it.
type sender interface {
	SendAsync(ctx context.Context, buf []byte) (int, error)
	SendfileAsync(ctx context.Context, srcFD int, offset, count int64) (int64, error)
}

// WriteResponse serializes resp as an HTTP/1.1 response onto c, streaming
// FilePath's contents with sendfile when present. keepAlive controls the
// emitted Connection header; the caller (connhandler) is the keep-alive
// authority since it also decides whether to read another request. A HEAD
// request gets every header a GET would (including Content-Length) but no
// body, per HTTP/1.1's definition of HEAD as a bodyless GET.
func WriteResponse(ctx context.Context, c *engine.Conn, method string, resp Response, keepAlive bool) error {
	fd := c.FD()
	corkOn(fd)
	defer corkOff(fd)

	headOnly := method == "HEAD"

	if resp.Status == 301 {
		return writeHeaderOnly(ctx, c, resp.Status, keepAlive, map[string]string{
			"Location": resp.Location,
		})
	}

	if resp.Status != 200 {
		return writeHeaderOnly(ctx, c, resp.Status, keepAlive, nil)
	}

	f, err := os.Open(resp.FilePath)
	if err != nil {
		return writeHeaderOnly(ctx, c, 404, keepAlive, nil)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return writeHeaderOnly(ctx, c, 500, keepAlive, nil)
	}

	headers := map[string]string{
		"Content-Type":   resp.ContentType,
		"Content-Length": strconv.FormatInt(info.Size(), 10),
	}
	if err := writeStatusAndHeaders(ctx, c, 200, keepAlive, headers); err != nil {
		return err
	}

	if headOnly || info.Size() == 0 {
		return nil
	}
	_, err = c.SendfileAsync(ctx, int(f.Fd()), 0, info.Size())
	return err
}

func writeHeaderOnly(ctx context.Context, c *engine.Conn, status int, keepAlive bool, extra map[string]string) error {
	return writeStatusAndHeaders(ctx, c, status, keepAlive, extra)
}

func writeStatusAndHeaders(ctx context.Context, c *engine.Conn, status int, keepAlive bool, extra map[string]string) error {
	conn := "close"
	if keepAlive {
		conn = "keep-alive"
	}
	buf := fmt.Sprintf("HTTP/1.1 %d %s\r\nConnection: %s\r\nDate: %s\r\n",
		status, statusText(status), conn, time.Now().UTC().Format(http1Date))
	for k, v := range extra {
		if v == "" {
			continue
		}
		buf += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	if _, ok := extra["Content-Length"]; !ok {
		buf += "Content-Length: 0\r\n"
	}
	buf += "\r\n"
	_, err := c.SendAsync(ctx, []byte(buf))
	return err
}

const http1Date = "Mon, 02 Jan 2006 15:04:05 GMT"
