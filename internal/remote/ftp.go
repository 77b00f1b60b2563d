// Package remote moves input and output files over FTP.
package remote

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultTimeout bounds dialing and each control exchange.
const DefaultTimeout = 30 * time.Second

// Location is a parsed ftp:// URL.
type Location struct {
	Host     string // host:port
	Path     string
	User     string
	Password string
}

// IsFTP reports whether raw is an ftp:// URL.
func IsFTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "ftp"
}

// ParseURL extracts host, path and credentials. Missing credentials fall
// back to anonymous login.
func ParseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, eris.Wrap(err, "remote: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return Location{}, eris.Errorf("remote: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return Location{}, eris.New("remote: empty path in ftp url")
	}

	loc := Location{Host: u.Host, Path: u.Path, User: "anonymous", Password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(loc.Host); splitErr != nil {
		loc.Host = net.JoinHostPort(loc.Host, "21")
	}
	if u.User != nil {
		loc.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			loc.Password = pw
		}
	}
	return loc, nil
}

// Client opens short-lived FTP sessions.
type Client struct {
	timeout time.Duration
}

// NewClient returns a Client. A zero timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{timeout: timeout}
}

func (c *Client) connect(ctx context.Context, loc Location) (*ftp.ServerConn, error) {
	zap.L().Debug("remote: connecting", zap.String("host", loc.Host), zap.String("path", loc.Path))

	conn, err := ftp.Dial(loc.Host, ftp.DialWithTimeout(c.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "remote: ftp dial")
	}
	if err := conn.Login(loc.User, loc.Password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "remote: ftp login")
	}
	return conn, nil
}

// DownloadToFile retrieves rawURL into dst and returns the bytes written.
func (c *Client) DownloadToFile(ctx context.Context, rawURL, dst string) (int64, error) {
	loc, err := ParseURL(rawURL)
	if err != nil {
		return 0, err
	}
	conn, err := c.connect(ctx, loc)
	if err != nil {
		return 0, err
	}
	defer conn.Quit() //nolint:errcheck

	resp, err := conn.Retr(loc.Path)
	if err != nil {
		return 0, eris.Wrapf(err, "remote: ftp retrieve %s", loc.Path)
	}
	defer resp.Close() //nolint:errcheck

	f, err := os.Create(dst)
	if err != nil {
		return 0, eris.Wrap(err, "remote: create file")
	}

	n, err := io.Copy(f, resp)
	if err != nil {
		_ = f.Close()
		return n, eris.Wrap(err, "remote: write file")
	}
	if err := f.Close(); err != nil {
		return n, eris.Wrap(err, "remote: close file")
	}
	return n, nil
}

// UploadFile stores src under the directory named by rawURL. When the URL
// path ends in "/" the local file name is kept.
func (c *Client) UploadFile(ctx context.Context, src, rawURL string) (string, error) {
	loc, err := ParseURL(rawURL)
	if err != nil {
		return "", err
	}
	target := loc.Path
	if target[len(target)-1] == '/' {
		target = path.Join(target, filepath.Base(src))
	}

	f, err := os.Open(src)
	if err != nil {
		return "", eris.Wrap(err, "remote: open upload")
	}
	defer f.Close() //nolint:errcheck

	conn, err := c.connect(ctx, loc)
	if err != nil {
		return "", err
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Stor(target, f); err != nil {
		return "", eris.Wrapf(err, "remote: ftp store %s", target)
	}
	zap.L().Info("remote: uploaded", zap.String("host", loc.Host), zap.String("path", target))
	return "ftp://" + loc.Host + target, nil
}
