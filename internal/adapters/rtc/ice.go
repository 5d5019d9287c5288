package rtc

import (
	"fmt"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers is what browsers get when nothing is configured.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	}
}

// ParseICEServers validates configured stun:/turn: URLs and returns them in
// the shape browsers pass to RTCPeerConnection.
func ParseICEServers(urls []string) ([]webrtc.ICEServer, error) {
	if len(urls) == 0 {
		return DefaultICEServers(), nil
	}
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, raw := range urls {
		if _, err := stun.ParseURI(raw); err != nil {
			return nil, fmt.Errorf("ice server %q: %w", raw, err)
		}
		out = append(out, webrtc.ICEServer{URLs: []string{raw}})
	}
	return out, nil
}
