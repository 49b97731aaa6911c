// Package publish uploads rendered charts to an FTP drop.
package publish

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
)

const defaultTimeout = 30 * time.Second

// ftpConn is the part of *ftp.ServerConn used by Publish.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

func dialFTP(addr string, timeout time.Duration) (ftpConn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FTPPublisher stores files in a directory on an FTP server. Every Publish
// opens its own connection.
type FTPPublisher struct {
	addr     string
	user     string
	password string
	dir      string
	timeout  time.Duration

	dial func(addr string, timeout time.Duration) (ftpConn, error)
}

// NewFTPPublisher parses ftp://[user[:password]@]host[:port][/dir]. Without
// credentials it logs in anonymously.
func NewFTPPublisher(rawURL string, timeout time.Duration) (*FTPPublisher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse ftp url: %w", err)
	}
	if u.Scheme != "ftp" {
		return nil, fmt.Errorf("parse ftp url: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parse ftp url: missing host")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	p := &FTPPublisher{
		addr:     u.Host,
		user:     "anonymous",
		password: "anonymous",
		dir:      path.Clean("/" + u.Path),
		timeout:  timeout,
		dial:     dialFTP,
	}
	if u.Port() == "" {
		p.addr = net.JoinHostPort(u.Hostname(), "21")
	}
	if u.User != nil {
		p.user = u.User.Username()
		p.password, _ = u.User.Password()
	}
	return p, nil
}

// Addr is the host:port dialled by Publish.
func (p *FTPPublisher) Addr() string { return p.addr }

// Dir is the remote directory files are stored in.
func (p *FTPPublisher) Dir() string { return p.dir }

// Publish uploads localPath into the remote directory under its base name,
// creating the directory when it does not exist.
func (p *FTPPublisher) Publish(localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	conn, err := p.dial(p.addr, p.timeout)
	if err != nil {
		return fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(p.user, p.password); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}

	if p.dir != "/" {
		if err := conn.ChangeDir(p.dir); err != nil {
			if mkErr := conn.MakeDir(p.dir); mkErr != nil {
				return fmt.Errorf("ftp mkdir %s: %w", p.dir, mkErr)
			}
			if err := conn.ChangeDir(p.dir); err != nil {
				return fmt.Errorf("ftp cwd %s: %w", p.dir, err)
			}
		}
	}

	name := filepath.Base(localPath)
	if err := conn.Stor(name, f); err != nil {
		return fmt.Errorf("ftp stor %s: %w", name, err)
	}

	log.Printf("publish: uploaded %s to ftp://%s%s", name, p.addr, path.Join(p.dir, name))
	return nil
}
