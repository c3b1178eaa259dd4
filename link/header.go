// File: link/header.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Link-layer addressing of the pair.

package link

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/momentics/netpair/api"
)

var baseHardwareAddr = [6]byte{0x00, 'S', 'N', 'U', 'L', '0'}

// HardwareAddrOf returns the hardware address of endpoint id: "\0SNUL0"
// for endpoint 0 and "\0SNUL1" for endpoint 1.
func HardwareAddrOf(id api.EndpointID) net.HardwareAddr {
	addr := baseHardwareAddr
	addr[5] += byte(id)
	return net.HardwareAddr(addr[:])
}

// peerOf flips the low bit of the last octet, turning one endpoint's
// address into the other's.
func peerOf(addr net.HardwareAddr) net.HardwareAddr {
	out := make(net.HardwareAddr, len(addr))
	copy(out, addr)
	if n := len(out); n > 0 {
		out[n-1] ^= 0x01
	}
	return out
}

// EncodeHeader writes a 14-byte Ethernet header into b. A nil saddr or
// daddr selects the endpoint's own address; the destination always has
// the low bit of its last octet flipped so that it names the peer.
func (e *Endpoint) EncodeHeader(b []byte, ethType layers.EthernetType, saddr, daddr net.HardwareAddr) (int, error) {
	if len(b) < api.HeaderLen {
		return 0, errors.Wrapf(api.ErrInvalidArgument, "header buffer of %d bytes", len(b))
	}
	if saddr == nil {
		saddr = e.hwaddr
	}
	if daddr == nil {
		daddr = e.hwaddr
	}
	if len(saddr) != 6 || len(daddr) != 6 {
		return 0, errors.Wrapf(api.ErrInvalidArgument, "hardware address %s -> %s", saddr, daddr)
	}
	copy(b[0:6], peerOf(daddr))
	copy(b[6:12], saddr)
	binary.BigEndian.PutUint16(b[12:14], uint16(ethType))
	return api.HeaderLen, nil
}

// EncodeFrame serializes ls behind an Ethernet header that goes from e
// to its peer. Lengths and checksums of the inner layers are fixed up.
func (e *Endpoint) EncodeFrame(ethType layers.EthernetType, ls ...gopacket.SerializableLayer) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       e.hwaddr,
		DstMAC:       peerOf(e.hwaddr),
		EthernetType: ethType,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, append([]gopacket.SerializableLayer{eth}, ls...)...); err != nil {
		return nil, errors.Wrap(err, "link: encode frame")
	}
	return buf.Bytes(), nil
}
