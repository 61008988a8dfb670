package environment

const (
	// SERVER
	AppEnv             = "APP_ENV"
	HTTPAddress        = "HTTP_ADDRESS"
	HTTPSRedirectPort  = "HTTPS_REDIRECT_PORT"
	HTTPEnableRedirect = "ENABLE_HTTP_REDIRECT"
	PublicURL          = "PUBLIC_URL"
	CORSOrigins        = "CORS_ORIGINS"
	DisableStatus      = "DISABLE_STATUS"
	EnableProfiling    = "ENABLE_PROFILING"

	// SSL
	SSLKey  = "SSL_KEY"
	SSLCert = "SSL_CERT"

	// STORE
	StorePath  = "STORE_PATH"
	AdminToken = "ADMIN_TOKEN"

	// RELAY
	StatusInterval    = "STATUS_INTERVAL"
	PublisherICEGrace = "PUBLISHER_ICE_GRACE"

	// WEBRTC
	IncludeLoopbackCandidate = "INCLUDE_LOOPBACK_CANDIDATE"
	NetworkTypes             = "NETWORK_TYPES"
	TCPMuxForce              = "TCP_MUX_FORCE"
	TCPMuxAddress            = "TCP_MUX_ADDRESS"
	InterfaceFilter          = "INTERFACE_FILTER"
	UDPMuxPort               = "UDP_MUX_PORT"
	NAT1To1IP                = "NAT_1_TO_1_IP"
	NATICECandidateType      = "NAT_ICE_CANDIDATE_TYPE"

	// STUN
	STUNServers = "STUN_SERVERS"

	// DEBUGGING
	DebugIncomingAPIRequest = "DEBUG_INCOMING_API_REQUEST"
	DebugPrintAnswer        = "DEBUG_PRINT_ANSWER"
	DebugPrintOffer         = "DEBUG_PRINT_OFFER"
	DebugPrintSSEMessages   = "DEBUG_PRINT_SSE_MESSAGES"

	// LOGGING
	LogLevel  = "LOG_LEVEL"
	LogFormat = "LOG_FORMAT"
)
