package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	defaultTimeout = 2 * time.Second
	defaultCount   = 2

	protocolICMP = 1 // IANA protocol number, for icmp.ParseMessage
	maxReplySize = 1500
)

var echoPayload = []byte("iotmon-probe")

// ICMPProber sends ICMP echo requests directly.
type ICMPProber struct {
	timeout    time.Duration
	count      int
	privileged bool
	id         int
	seq        atomic.Uint32
	resolver   *net.Resolver
}

// NewICMPProber creates an ICMP prober making up to count attempts, each
// waiting up to timeout for a reply.
func NewICMPProber(timeout time.Duration, count int, privileged bool) *ICMPProber {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if count <= 0 {
		count = defaultCount
	}
	return &ICMPProber{
		timeout:    timeout,
		count:      count,
		privileged: privileged,
		id:         os.Getpid() & 0xffff,
		resolver:   net.DefaultResolver,
	}
}

// Probe reports whether address answered any of the echo attempts.
func (p *ICMPProber) Probe(ctx context.Context, address string) (bool, error) {
	ip, err := resolveIPv4(ctx, p.resolver, address)
	if err != nil {
		return false, err
	}

	network, dst := "udp4", net.Addr(&net.UDPAddr{IP: ip})
	if p.privileged {
		network, dst = "ip4:icmp", &net.IPAddr{IP: ip}
	}

	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return false, fmt.Errorf("%w: opening %s socket: %v", ErrFailed, network, err)
	}
	defer conn.Close()

	var lastErr error
	for attempt := 0; attempt < p.count; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		ok, err := p.echo(ctx, conn, dst, ip)
		if ok {
			return true, nil
		}
		lastErr = err
	}
	return false, lastErr
}

// echo sends one request and waits for its matching reply.
func (p *ICMPProber) echo(ctx context.Context, conn *icmp.PacketConn, dst net.Addr, ip net.IP) (bool, error) {
	seq := int(p.seq.Add(1) & 0xffff)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: echoPayload},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return false, fmt.Errorf("%w: marshalling echo: %v", ErrFailed, err)
	}

	if err := conn.SetDeadline(attemptDeadline(ctx, p.timeout)); err != nil {
		return false, fmt.Errorf("%w: setting deadline: %v", ErrFailed, err)
	}
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return false, fmt.Errorf("%w: sending echo to %s: %v", ErrFailed, ip, err)
	}

	buf := make([]byte, maxReplySize)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return false, fmt.Errorf("%w: %s", ErrTimeout, ip)
			}
			return false, fmt.Errorf("%w: reading reply: %v", ErrFailed, err)
		}

		if p.matches(buf[:n], peer, ip, seq) {
			return true, nil
		}
	}
}

// matches reports whether a received packet is the reply to our request.
// Datagram sockets rewrite the echo ID, so it is only checked on raw sockets.
func (p *ICMPProber) matches(packet []byte, peer net.Addr, ip net.IP, seq int) bool {
	reply, err := icmp.ParseMessage(protocolICMP, packet)
	if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
		return false
	}
	echo, ok := reply.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return false
	}
	if p.privileged && echo.ID != p.id {
		return false
	}

	switch a := peer.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}
