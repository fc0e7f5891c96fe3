package capture

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// SessionDescription is a small DTO to avoid exposing webrtc types in
// transport payloads.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Peer is an established WebRTC leg for one interview session: the remote
// mic track feeds the device, and Sink carries synthesized question audio
// back to the candidate.
type Peer struct {
	Sink *OpusTrackSink

	pc *webrtc.PeerConnection
}

// Close tears down the peer connection and the playback sink.
func (p *Peer) Close() {
	if p.Sink != nil {
		p.Sink.Close()
	}
	if p.pc != nil {
		_ = p.pc.Close()
	}
}

// WebRTCTransport answers browser offers and bridges audio both ways.
type WebRTCTransport struct {
	iceServersJSON string
}

func NewWebRTCTransport(iceServersJSON string) *WebRTCTransport {
	return &WebRTCTransport{iceServersJSON: iceServersJSON}
}

// HandleOffer accepts an SDP offer and returns an SDP answer. Incoming opus
// audio is decoded to 16kHz PCM and fed to the device; "control" data
// channel messages (done, skip, abort) are forwarded to onControl.
func (t *WebRTCTransport) HandleOffer(offer SessionDescription, device *Device, onControl func(cmd string), onClosed func()) (SessionDescription, *Peer, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, nil, errors.New("invalid offer")
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: t.iceServers()})
	if err != nil {
		return SessionDescription{}, nil, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1}, "interviewer-audio", "interviewer")
	if err != nil {
		_ = pc.Close()
		return SessionDescription{}, nil, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return SessionDescription{}, nil, err
	}

	sink, err := NewOpusTrackSink(outTrack)
	if err != nil {
		_ = pc.Close()
		return SessionDescription{}, nil, err
	}
	peer := &Peer{Sink: sink, pc: pc}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			if cmd != "" && onControl != nil {
				onControl(cmd)
			}
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("webrtc: peer state %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			sink.Close()
			if onClosed != nil {
				onClosed()
			}
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("webrtc: remote audio track: codec=%s", remote.Codec().MimeType)
		dec, derr := opus.NewDecoder(SampleRate, 1)
		if derr != nil {
			log.Printf("webrtc: opus decoder error: %v", derr)
			return
		}
		go func() {
			pcmSamples := make([]int16, 1920)
			for {
				pkt, _, readErr := remote.ReadRTP()
				if readErr != nil {
					return
				}
				if len(pkt.Payload) == 0 {
					continue
				}
				n, decErr := dec.Decode(pkt.Payload, pcmSamples)
				if decErr != nil {
					log.Printf("webrtc: opus decode error: %v", decErr)
					continue
				}
				frame := make([]byte, n*2)
				for i := 0; i < n; i++ {
					binary.LittleEndian.PutUint16(frame[i*2:(i+1)*2], uint16(pcmSamples[i]))
				}
				device.Feed(frame)
			}
		}()
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		peer.Close()
		return SessionDescription{}, nil, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		peer.Close()
		return SessionDescription{}, nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		peer.Close()
		return SessionDescription{}, nil, err
	}
	<-gatherComplete
	local := pc.LocalDescription()
	if local == nil {
		peer.Close()
		return SessionDescription{}, nil, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, peer, nil
}

func (t *WebRTCTransport) iceServers() []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	if t.iceServersJSON == "" {
		return servers
	}
	var parsed []webrtc.ICEServer
	if err := json.Unmarshal([]byte(t.iceServersJSON), &parsed); err != nil || len(parsed) == 0 {
		log.Printf("webrtc: bad ICE_SERVERS_JSON, using default STUN: %v", err)
		return servers
	}
	return parsed
}
