package storage

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/sftp"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/ssh"

	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/domain"
)

func TestComposeIdentity(t *testing.T) {
	Convey("Given key material", t, func() {
		Convey("The identity joins type, key and fingerprint in base64", func() {
			So(composeIdentity("ssh-rsa", []byte("ABC"), []byte("EFG")),
				ShouldEqual, "ssh-rsa#QUJD#RUZH")
		})

		Convey("A presented identity uses the MD5 of the wire-encoded key", func() {
			signer := newHostSigner(t)
			pub := signer.PublicKey()

			id := presentedIdentity(pub)
			So(id, ShouldStartWith, pub.Type()+"#")
			So(id, ShouldContainSubstring, "#")

			// Same key always composes the same identity.
			So(presentedIdentity(pub), ShouldEqual, id)
		})
	})
}

func TestSFTPBackend(t *testing.T) {
	Convey("Given an in-process SFTP server", t, func() {
		signer := newHostSigner(t)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		defer ln.Close()
		go serveSFTP(ln, signer)

		remoteDir := filepath.Join(t.TempDir(), "drop")

		base := config.SFTPConfig{
			Host:           "127.0.0.1",
			Port:           ln.Addr().(*net.TCPAddr).Port,
			Username:       "backup",
			Password:       "hunter2",
			Dir:            remoteDir,
			ConnectTimeout: 5 * time.Second,
		}
		ctx := context.Background()

		Convey("With the matching pinned identity, an upload round-trips", func() {
			cfg := base
			cfg.HostIdentity = presentedIdentity(signer.PublicKey())

			b := NewSFTP(cfg)
			So(b.Connect(ctx), ShouldBeNil)
			defer b.Close()

			target, err := b.EnsureTarget(ctx, "Backups")
			So(err, ShouldBeNil)
			So(target.Locator, ShouldEqual, remoteDir)

			src := filepath.Join(t.TempDir(), "dump.sql")
			So(os.WriteFile(src, []byte("-- dump"), 0o600), ShouldBeNil)

			res, err := b.Upload(ctx, target, domain.Artifact{Name: "web1.sql", Path: src})
			So(err, ShouldBeNil)
			So(res.Name, ShouldEqual, "web1.sql")

			data, err := os.ReadFile(filepath.Join(remoteDir, "web1.sql"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "-- dump")

			// Resolving again finds the existing directory instead of recreating it.
			again, err := b.EnsureTarget(ctx, "Backups")
			So(err, ShouldBeNil)
			So(again, ShouldResemble, target)
		})

		Convey("With a different pinned identity, connect refuses the host", func() {
			cfg := base
			cfg.HostIdentity = "ssh-rsa#QUJD#RUZH"

			b := NewSFTP(cfg)
			err := b.Connect(ctx)
			So(errors.Is(err, domain.ErrHostIdentityUntrusted), ShouldBeTrue)
		})

		Convey("With no pinned identity, any host key is accepted", func() {
			b := NewSFTP(base)
			So(b.Connect(ctx), ShouldBeNil)
			So(b.Close(), ShouldBeNil)
		})
	})

	Convey("Given incomplete settings", t, func() {
		b := NewSFTP(config.SFTPConfig{})

		Convey("Connect fails the prerequisite check", func() {
			err := b.Connect(context.Background())
			So(errors.Is(err, domain.ErrBackendPrereq), ShouldBeTrue)
		})
	})

	Convey("Given a server that accepts and then stalls", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		defer ln.Close()
		// Nothing ever answers the handshake.

		b := NewSFTP(config.SFTPConfig{
			Host:           "127.0.0.1",
			Port:           ln.Addr().(*net.TCPAddr).Port,
			Username:       "backup",
			ConnectTimeout: 200 * time.Millisecond,
		})

		Convey("Connect gives up after the timeout", func() {
			start := time.Now()
			err := b.Connect(context.Background())
			So(errors.Is(err, domain.ErrTransportConnect), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, 5*time.Second)
		})
	})

	Convey("Given a server that answers only after the client gave up", t, func() {
		signer := newHostSigner(t)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		defer ln.Close()

		// The handshake finishes long after the client stopped waiting. The
		// server goroutine ends once its side of the connection dies.
		serverDone := make(chan struct{})
		go func() {
			defer close(serverDone)

			nConn, err := ln.Accept()
			if err != nil {
				return
			}
			defer nConn.Close()

			time.Sleep(250 * time.Millisecond)

			conn, chans, reqs, err := ssh.NewServerConn(nConn, hostConfig(signer))
			if err != nil {
				return
			}
			go ssh.DiscardRequests(reqs)
			go func() {
				for newChan := range chans {
					newChan.Reject(ssh.Prohibited, "no channels")
				}
			}()
			conn.Wait()
		}()

		b := NewSFTP(config.SFTPConfig{
			Host:           "127.0.0.1",
			Port:           ln.Addr().(*net.TCPAddr).Port,
			Username:       "backup",
			Password:       "hunter2",
			ConnectTimeout: 50 * time.Millisecond,
		})

		Convey("Connect times out and the late connection is closed", func() {
			err := b.Connect(context.Background())
			So(errors.Is(err, domain.ErrTransportConnect), ShouldBeTrue)

			var closed bool
			select {
			case <-serverDone:
				closed = true
			case <-time.After(5 * time.Second):
			}
			So(closed, ShouldBeTrue)
		})
	})
}

func newHostSigner(t *testing.T) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

// hostConfig builds a server-side configuration accepting the test
// credentials and presenting signer as the host key.
func hostConfig(signer ssh.Signer) *ssh.ServerConfig {
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() == "backup" && string(pass) == "hunter2" {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(signer)
	return cfg
}

// serveSFTP answers SSH connections on ln with an sftp subsystem over the
// real filesystem, the way the sftp package's example server does.
func serveSFTP(ln net.Listener, signer ssh.Signer) {
	cfg := hostConfig(signer)

	for {
		nConn, err := ln.Accept()
		if err != nil {
			return
		}

		go func() {
			conn, chans, reqs, err := ssh.NewServerConn(nConn, cfg)
			if err != nil {
				return
			}
			defer conn.Close()
			go ssh.DiscardRequests(reqs)

			for newChan := range chans {
				if newChan.ChannelType() != "session" {
					newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
					continue
				}
				channel, requests, err := newChan.Accept()
				if err != nil {
					continue
				}
				go func(in <-chan *ssh.Request) {
					for req := range in {
						ok := req.Type == "subsystem" &&
							len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
						req.Reply(ok, nil)
					}
				}(requests)

				server, err := sftp.NewServer(channel)
				if err != nil {
					channel.Close()
					continue
				}
				server.Serve()
				channel.Close()
			}
		}()
	}
}
