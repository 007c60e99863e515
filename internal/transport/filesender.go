package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

// FileSender streams files to the NUC, one connection per file. The
// header line is kind:name:size followed by the raw bytes.
type FileSender struct {
	Addr    string
	Timeout time.Duration
}

// SendFile delivers path as name
func (f FileSender) SendFile(ctx context.Context, kind, name, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", f.Addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", f.Addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if name == "" {
		name = filepath.Base(path)
	}
	if _, err := fmt.Fprintf(conn, "%s:%s:%d\n", kind, name, info.Size()); err != nil {
		return fmt.Errorf("failed to send header: %w", err)
	}
	if _, err := io.Copy(conn, file); err != nil {
		return fmt.Errorf("failed to send %s: %w", path, err)
	}
	return nil
}
