// File: link/loopback.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package link

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/momentics/netpair/api"
)

// ShapeLoopback rewrites an IPv4 frame in place so that it looks as if it
// came from the other network of the pair: the low bit of the third octet
// of both source and destination address is flipped (192.168.0.x becomes
// 192.168.1.x and back) and the header checksum is recomputed.
//
// Frames that are not IPv4, or whose IPv4 header does not decode, are left
// alone and ShapeLoopback returns false.
func ShapeLoopback(frame []byte) bool {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return false
	}
	if eth.EthernetType != layers.EthernetTypeIPv4 || len(frame) < api.HeaderLen {
		return false
	}
	hdr := frame[api.HeaderLen:]
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(hdr, gopacket.NilDecodeFeedback); err != nil {
		return false
	}
	ihl := int(ip.IHL) * 4
	if ihl > len(hdr) {
		return false
	}
	ip.SrcIP = flipThirdOctet(ip.SrcIP)
	ip.DstIP = flipThirdOctet(ip.DstIP)

	buf := gopacket.NewSerializeBuffer()
	if err := ip.SerializeTo(buf, gopacket.SerializeOptions{ComputeChecksums: true}); err != nil {
		return false
	}
	out := buf.Bytes()
	if len(out) != ihl {
		// Options did not survive the round trip byte for byte.
		return false
	}
	copy(hdr[:ihl], out)
	return true
}

func flipThirdOctet(addr net.IP) net.IP {
	v4 := addr.To4()
	if v4 == nil {
		return addr
	}
	out := make(net.IP, net.IPv4len)
	copy(out, v4)
	out[2] ^= 0x01
	return out
}
