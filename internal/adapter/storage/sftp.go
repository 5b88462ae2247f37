package storage

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/domain"
)

const defaultConnectTimeout = 30 * time.Second

type dialResult struct {
	conn *ssh.Client
	err  error
}

// discardLateDial closes the connection of a dial that completed after the
// caller stopped waiting for it.
func discardLateDial(done <-chan dialResult) {
	if res := <-done; res.conn != nil {
		res.conn.Close()
	}
}

// SFTPBackend stores artifacts in a directory on a remote file server
// reached over SSH.
type SFTPBackend struct {
	cfg    config.SFTPConfig
	conn   *ssh.Client
	client *sftp.Client
}

func NewSFTP(cfg config.SFTPConfig) *SFTPBackend {
	return &SFTPBackend{cfg: cfg}
}

func (s *SFTPBackend) Name() string { return "sftp" }

// Connect dials the server and opens the sftp subsystem. The dial runs in
// its own goroutine delivering into a one-shot channel, so a server that
// accepts the TCP connection but stalls the handshake cannot hang the run
// past the configured timeout.
func (s *SFTPBackend) Connect(ctx context.Context) error {
	if s.cfg.Host == "" || s.cfg.Username == "" {
		return fmt.Errorf("%w: sftp host and username are required", domain.ErrBackendPrereq)
	}

	timeout := s.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	port := s.cfg.Port
	if port <= 0 {
		port = 22
	}

	// The callback error is captured on the side: the ssh package folds it
	// into a generic handshake failure, and the pinning mismatch must stay
	// distinguishable from transport trouble.
	var identityErr error
	callback := ssh.InsecureIgnoreHostKey()
	if s.cfg.HostIdentity != "" {
		callback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			presented := presentedIdentity(key)
			if presented != s.cfg.HostIdentity {
				identityErr = fmt.Errorf("%w: %s presented %s", domain.ErrHostIdentityUntrusted, hostname, presented)
				return identityErr
			}
			return nil
		}
	}

	sshCfg := &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.cfg.Password)},
		HostKeyCallback: callback,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))

	done := make(chan dialResult, 1)
	go func() {
		conn, err := ssh.Dial("tcp", addr, sshCfg)
		done <- dialResult{conn: conn, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if identityErr != nil {
				return identityErr
			}
			return fmt.Errorf("%w: %s: %v", domain.ErrTransportConnect, addr, res.err)
		}
		s.conn = res.conn
	case <-ctx.Done():
		go discardLateDial(done)
		return fmt.Errorf("%w: %s: %v", domain.ErrTransportConnect, addr, ctx.Err())
	case <-time.After(timeout):
		go discardLateDial(done)
		return fmt.Errorf("%w: %s: connect timed out after %s", domain.ErrTransportConnect, addr, timeout)
	}

	client, err := sftp.NewClient(s.conn)
	if err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("%w: failed to open sftp subsystem: %v", domain.ErrTransportConnect, err)
	}
	s.client = client

	return nil
}

func (s *SFTPBackend) Close() error {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// EnsureTarget makes sure the configured remote directory exists. Read
// failures other than not-found propagate, so a permission problem doesn't
// get papered over with a create attempt.
func (s *SFTPBackend) EnsureTarget(ctx context.Context, name string) (domain.Target, error) {
	dir := s.cfg.Dir
	if dir == "" {
		dir = "backups"
	}

	if _, err := s.client.ReadDir(dir); err != nil {
		if !os.IsNotExist(err) {
			return domain.Target{}, fmt.Errorf("failed to read remote directory %s: %w", dir, err)
		}
		if err := s.client.MkdirAll(dir); err != nil {
			return domain.Target{}, fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}

	return domain.Target{Locator: dir}, nil
}

func (s *SFTPBackend) Upload(ctx context.Context, target domain.Target, art domain.Artifact) (domain.UploadResult, error) {
	source, err := os.Open(art.Path)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	remotePath := path.Join(target.Locator, art.Name)

	dest, err := s.client.Create(remotePath)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to create remote file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to copy to remote: %w", err)
	}

	return domain.UploadResult{ID: remotePath, Name: art.Name}, nil
}

// composeIdentity builds the pinned identity string for a host key: the key
// type and the base64 forms of the wire-encoded key and its fingerprint,
// joined with '#'.
func composeIdentity(keyType string, key, fingerprint []byte) string {
	return keyType + "#" +
		base64.StdEncoding.EncodeToString(key) + "#" +
		base64.StdEncoding.EncodeToString(fingerprint)
}

// presentedIdentity derives the identity a connecting server presents,
// fingerprinting the wire-encoded key with MD5.
func presentedIdentity(key ssh.PublicKey) string {
	blob := key.Marshal()
	sum := md5.Sum(blob)
	return composeIdentity(key.Type(), blob, sum[:])
}
