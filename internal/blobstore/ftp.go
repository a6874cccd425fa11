package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPStore keeps blobs on an FTP server. The control connection is shared and
// serialized; a broken connection is dropped and redialed on the next call.
type FTPStore struct {
	addr     string
	user     string
	password string
	root     string
	baseURL  string

	mu   sync.Mutex
	conn *ftp.ServerConn
}

func NewFTPStore(addr, user, password, root, baseURL string) *FTPStore {
	return &FTPStore{
		addr:     addr,
		user:     user,
		password: password,
		root:     strings.TrimRight(root, "/"),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := ftp.Dial(s.addr, ftp.DialWithTimeout(10*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to FTP: %w", err)
	}
	if err := conn.Login(s.user, s.password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to login to FTP: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *FTPStore) do(ctx context.Context, fn func(*ftp.ServerConn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if err := fn(conn); err != nil {
		_ = conn.Quit()
		s.conn = nil
		return err
	}
	return nil
}

func (s *FTPStore) remotePath(key string) string {
	if s.root == "" {
		return key
	}
	return s.root + "/" + key
}

func (s *FTPStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}
	remote := s.remotePath(key)
	return s.do(ctx, func(conn *ftp.ServerConn) error {
		// MakeDir fails when the directory exists, which is fine.
		_ = conn.MakeDir(path.Dir(remote))
		if err := conn.Stor(remote, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to upload file: %w", err)
		}
		return nil
	})
}

func (s *FTPStore) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.do(ctx, func(conn *ftp.ServerConn) error {
		if err := conn.Delete(s.remotePath(key)); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		return nil
	})
}

func (s *FTPStore) URL(key string) string {
	return s.baseURL + "/" + key
}

func (s *FTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Quit()
	s.conn = nil
	return err
}
