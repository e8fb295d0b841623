package tracker

import (
	"net"
	"strconv"

	"github.com/BSiddharth/Rusty-Bit/bencode"
	"github.com/pkg/errors"
)

// PeerAddr is an (ipv4, port) pair parsed from a tracker's peer list.
type PeerAddr struct {
	IP   net.IP
	Port uint16
}

func (p PeerAddr) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Response is the typed view of a bencoded tracker announce response.
type Response struct {
	FailureReason string // empty if the announce succeeded
	Interval      int64
	MinInterval   int64
	Complete      int64
	Incomplete    int64
	TrackerID     string // opaque, carry verbatim into subsequent requests
	Peers         []PeerAddr
}

// TrackerFailure is returned when the tracker responds with a bencoded
// {failure reason: <string>} dictionary.
type TrackerFailure struct {
	Reason string
}

func (e *TrackerFailure) Error() string {
	return "tracker: announce failed: " + e.Reason
}

// ParseResponse decodes a bencoded tracker announce response body.
func ParseResponse(body []byte) (*Response, error) {
	root, _, err := bencode.Decode(body)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: decode response")
	}
	if root.Kind != bencode.Dict {
		return nil, errors.Wrap(bencode.ErrTypeMismatch, "tracker: response is not a dictionary")
	}

	if reason, ok := root.GetString("failure reason"); ok {
		return nil, &TrackerFailure{Reason: reason}
	}

	resp := &Response{}
	resp.Interval, _ = root.GetInt("interval")
	resp.MinInterval, _ = root.GetInt("min interval")
	resp.Complete, _ = root.GetInt("complete")
	resp.Incomplete, _ = root.GetInt("incomplete")
	resp.TrackerID, _ = root.GetString("tracker id")

	peersVal, ok := root.Get("peers")
	if !ok {
		return resp, nil
	}

	switch peersVal.Kind {
	case bencode.String:
		peers, err := parseCompactPeers(peersVal.Str)
		if err != nil {
			return nil, err
		}
		resp.Peers = peers
	case bencode.List:
		peers, err := parseDictPeers(peersVal.List)
		if err != nil {
			return nil, err
		}
		resp.Peers = peers
	default:
		return nil, errors.Wrap(bencode.ErrTypeMismatch, "tracker: peers is neither a string nor a list")
	}

	return resp, nil
}

// parseCompactPeers parses the packed IPv4 peer list: 6 bytes per peer, 4
// network-byte-order address octets followed by 2 network-byte-order port
// octets. IPv6 compact peers (BEP 7) are out of scope.
func parseCompactPeers(packed []byte) ([]PeerAddr, error) {
	const peerSize = 6
	if len(packed)%peerSize != 0 {
		return nil, errors.Errorf("tracker: compact peers length %d not a multiple of %d", len(packed), peerSize)
	}
	n := len(packed) / peerSize
	peers := make([]PeerAddr, n)
	for i := 0; i < n; i++ {
		off := i * peerSize
		ip := make(net.IP, 4)
		copy(ip, packed[off:off+4])
		port := uint16(packed[off+4])<<8 | uint16(packed[off+5])
		peers[i] = PeerAddr{IP: ip, Port: port}
	}
	return peers, nil
}

// parseDictPeers parses the non-compact {ip, port} list form.
func parseDictPeers(items []*bencode.Value) ([]PeerAddr, error) {
	peers := make([]PeerAddr, 0, len(items))
	for _, item := range items {
		ipStr, ok := item.GetString("ip")
		if !ok {
			return nil, errors.Wrap(bencode.ErrTypeMismatch, "tracker: peer entry missing ip")
		}
		port, ok := item.GetInt("port")
		if !ok {
			return nil, errors.Wrap(bencode.ErrTypeMismatch, "tracker: peer entry missing port")
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return nil, errors.Errorf("tracker: peer entry has invalid ip %q", ipStr)
		}
		peers = append(peers, PeerAddr{IP: ip.To4(), Port: uint16(port)})
	}
	return peers, nil
}
