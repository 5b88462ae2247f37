package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/domain"
)

// frameSentinel opens and closes every message on the wire.
const frameSentinel = 0x0F

// messagePrefix tags every broadcast so channel readers can tell backup
// traffic from chat.
const messagePrefix = "[b]Backup System[/b]: "

const dialTimeout = 10 * time.Second

// Broadcaster pushes authenticated one-line messages into the server's
// announce port. Fire and forget: one connection per message, nothing is
// read back.
type Broadcaster struct {
	host   string
	port   int
	secret string
}

func NewBroadcaster(cfg config.NotifyConfig) *Broadcaster {
	return &Broadcaster{host: cfg.Host, port: cfg.Port, secret: cfg.Secret}
}

// Enabled reports whether a complete destination is configured. A disabled
// broadcaster drops every message without error.
func (b *Broadcaster) Enabled() bool {
	return b.host != "" && b.secret != "" && b.port >= 1 && b.port <= 65535
}

func (b *Broadcaster) Notify(ctx context.Context, sev domain.Severity, text string) error {
	if !b.Enabled() {
		return nil
	}

	addr, err := b.resolve(ctx)
	if err != nil {
		return err
	}

	payload := frame(b.secret, decorate(sev, text))

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to reach announce port: %w", err)
	}
	defer conn.Close()

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to write announce frame: %w", err)
	}
	return nil
}

// resolve turns the configured host into a dialable address. Literal IPs
// pass through untouched; names resolve to their first IPv4 address.
func (b *Broadcaster) resolve(ctx context.Context) (string, error) {
	host := b.host
	if net.ParseIP(host) == nil {
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", host, err)
		}
		if len(ips) == 0 {
			return "", fmt.Errorf("no IPv4 address for %s", host)
		}
		host = ips[0].String()
	}
	return net.JoinHostPort(host, strconv.Itoa(b.port)), nil
}

// decorate wraps the message body in announce markup. Failures are colored
// red so they stand out in the channel.
func decorate(sev domain.Severity, text string) string {
	if sev == domain.SeverityFailure {
		return messagePrefix + "[color=red]" + text + "[/color]"
	}
	return messagePrefix + text
}

// frame builds the wire form of a decorated message: sentinel byte, the
// lowercase hex HMAC-SHA256 of the text under the shared secret, the text
// itself, closing sentinel.
func frame(secret, decorated string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(decorated))
	digest := hex.EncodeToString(mac.Sum(nil))

	buf := make([]byte, 0, len(digest)+len(decorated)+2)
	buf = append(buf, frameSentinel)
	buf = append(buf, digest...)
	buf = append(buf, decorated...)
	buf = append(buf, frameSentinel)
	return buf
}
