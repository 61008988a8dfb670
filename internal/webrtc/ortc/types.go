package ortc

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// Capabilities and parameters below are serialized with the same field names
// the mediasoup-client Device expects, so they can be handed to browsers as-is.
type (
	RTCPFeedback struct {
		Type      string `json:"type"`
		Parameter string `json:"parameter,omitempty"`
	}

	RTPCodecCapability struct {
		Kind                 MediaKind      `json:"kind"`
		MimeType             string         `json:"mimeType"`
		PreferredPayloadType uint8          `json:"preferredPayloadType,omitempty"`
		ClockRate            uint32         `json:"clockRate"`
		Channels             uint16         `json:"channels,omitempty"`
		Parameters           Parameters     `json:"parameters"`
		RTCPFeedback         []RTCPFeedback `json:"rtcpFeedback"`
	}

	RTPHeaderExtension struct {
		Kind             MediaKind `json:"kind"`
		URI              string    `json:"uri"`
		PreferredID      int       `json:"preferredId"`
		PreferredEncrypt bool      `json:"preferredEncrypt"`
		Direction        string    `json:"direction,omitempty"`
	}

	RTPCapabilities struct {
		Codecs           []RTPCodecCapability `json:"codecs"`
		HeaderExtensions []RTPHeaderExtension `json:"headerExtensions"`
	}

	RTPCodecParameters struct {
		MimeType     string         `json:"mimeType"`
		PayloadType  uint8          `json:"payloadType"`
		ClockRate    uint32         `json:"clockRate"`
		Channels     uint16         `json:"channels,omitempty"`
		Parameters   Parameters     `json:"parameters"`
		RTCPFeedback []RTCPFeedback `json:"rtcpFeedback"`
	}

	RTPHeaderExtensionParameters struct {
		URI        string     `json:"uri"`
		ID         int        `json:"id"`
		Encrypt    bool       `json:"encrypt"`
		Parameters Parameters `json:"parameters"`
	}

	RTXParameters struct {
		SSRC uint32 `json:"ssrc"`
	}

	RTPEncodingParameters struct {
		SSRC uint32         `json:"ssrc,omitempty"`
		RID  string         `json:"rid,omitempty"`
		RTX  *RTXParameters `json:"rtx,omitempty"`
	}

	RTCPParameters struct {
		CNAME       string `json:"cname,omitempty"`
		ReducedSize bool   `json:"reducedSize"`
	}

	RTPParameters struct {
		MID              string                         `json:"mid,omitempty"`
		Codecs           []RTPCodecParameters           `json:"codecs"`
		HeaderExtensions []RTPHeaderExtensionParameters `json:"headerExtensions"`
		Encodings        []RTPEncodingParameters        `json:"encodings"`
		RTCP             RTCPParameters                 `json:"rtcp"`
	}
)

type DTLSRole string

const (
	DTLSRoleAuto   DTLSRole = "auto"
	DTLSRoleClient DTLSRole = "client"
	DTLSRoleServer DTLSRole = "server"
)

type (
	DTLSFingerprint struct {
		Algorithm string `json:"algorithm"`
		Value     string `json:"value"`
	}

	DTLSParameters struct {
		Role         DTLSRole          `json:"role,omitempty"`
		Fingerprints []DTLSFingerprint `json:"fingerprints"`
	}

	ICEParameters struct {
		UsernameFragment string `json:"usernameFragment"`
		Password         string `json:"password"`
		ICELite          bool   `json:"iceLite,omitempty"`
	}

	ICECandidate struct {
		Foundation string `json:"foundation"`
		Priority   uint32 `json:"priority"`
		IP         string `json:"ip"`
		Address    string `json:"address"`
		Protocol   string `json:"protocol"`
		Port       uint16 `json:"port"`
		Type       string `json:"type"`
		TCPType    string `json:"tcpType,omitempty"`
	}
)

// Codec and header extension negotiated between two endpoints. "local" is the
// side that computed the capabilities (the WHIP publisher), "remote" the router.
type (
	ExtendedCodec struct {
		Kind                 MediaKind
		MimeType             string
		ClockRate            uint32
		Channels             uint16
		LocalPayloadType     uint8
		LocalRTXPayloadType  uint8
		RemotePayloadType    uint8
		RemoteRTXPayloadType uint8
		LocalParameters      Parameters
		RemoteParameters     Parameters
		RTCPFeedback         []RTCPFeedback
	}

	ExtendedHeaderExtension struct {
		Kind      MediaKind
		URI       string
		SendID    int
		RecvID    int
		Encrypt   bool
		Direction string
	}

	ExtendedRTPCapabilities struct {
		Codecs           []ExtendedCodec
		HeaderExtensions []ExtendedHeaderExtension
	}
)
