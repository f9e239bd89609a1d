package stream

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/satbridge/satbridge/internal/mpegts"
)

// Sink is where the worker hands full buffers. Send must not retain b; the
// ring reuses it immediately.
type Sink interface {
	Send(b *mpegts.PacketBuffer) error
	Close() error
}

// UDPSink writes RTP datagrams to one client endpoint. TOS/TTL are applied
// through the ipv4 control layer when non-zero.
type UDPSink struct {
	conn *net.UDPConn
}

// NewUDPSink connects a UDP socket to addr ("host:port") and applies the
// given TOS and TTL when non-zero.
func NewUDPSink(addr string, tos, ttl int) (*UDPSink, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	p := ipv4.NewConn(conn)
	if tos > 0 {
		if err := p.SetTOS(tos); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set tos: %w", err)
		}
	}
	if ttl > 0 {
		if err := p.SetTTL(ttl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set ttl: %w", err)
		}
	}
	return &UDPSink{conn: conn}, nil
}

// RemoteAddr returns the bound client endpoint.
func (u *UDPSink) RemoteAddr() net.Addr { return u.conn.RemoteAddr() }

func (u *UDPSink) Send(b *mpegts.PacketBuffer) error {
	_, err := u.conn.Write(b.Datagram())
	return err
}

func (u *UDPSink) Close() error { return u.conn.Close() }
