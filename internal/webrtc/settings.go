package webrtc

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/pion/dtls/v3/pkg/crypto/elliptic"
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

// GetSettingEngine builds the pion settings shared by every transport. The UDP
// and TCP muxes are opened once and shared as well.
func GetSettingEngine() (settingEngine webrtc.SettingEngine, err error) {
	var udpMuxOpts []ice.UDPMuxFromPortOption

	settingEngine.LoggerFactory = &sfu.LoggerFactory{Logger: log.Logger}

	if err = setupNAT(&settingEngine); err != nil {
		return settingEngine, err
	}
	setupInterfaceFilter(&settingEngine, &udpMuxOpts)
	if err = setupUDPMux(&settingEngine, udpMuxOpts); err != nil {
		return settingEngine, err
	}
	if err = setupTCPMux(&settingEngine); err != nil {
		return settingEngine, err
	}

	settingEngine.SetDTLSEllipticCurves(elliptic.X25519, elliptic.P384, elliptic.P256)
	settingEngine.SetNetworkTypes(setupNetworkTypes())
	settingEngine.DisableSRTCPReplayProtection(true)
	settingEngine.DisableSRTPReplayProtection(true)
	settingEngine.SetIncludeLoopbackCandidate(os.Getenv(environment.IncludeLoopbackCandidate) != "")

	return settingEngine, nil
}

func GetICEServers() []webrtc.ICEServer {
	urls := environment.GetList(environment.STUNServers)
	if len(urls) == 0 {
		return nil
	}

	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, url := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{"stun:" + url}})
	}

	return servers
}

func setupNetworkTypes() []webrtc.NetworkType {
	networkTypes := []webrtc.NetworkType{}

	// TCP Mux Force will enforce TCP4/6 instead of requested types
	if os.Getenv(environment.TCPMuxForce) != "" {
		return []webrtc.NetworkType{webrtc.NetworkTypeTCP4, webrtc.NetworkTypeTCP6}
	}

	for _, networkTypeStr := range environment.GetList(environment.NetworkTypes) {
		networkType, err := webrtc.NewNetworkType(networkTypeStr)
		if err != nil {
			log.Warn().Err(err).Str("networkType", networkTypeStr).Msg("Settings.NetworkTypes.Skipped")
			continue
		}

		networkTypes = append(networkTypes, networkType)
	}

	// No network types found, use default values
	if len(networkTypes) == 0 {
		networkTypes = append(networkTypes, webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6)
	}

	return networkTypes
}

func setupTCPMux(settingEngine *webrtc.SettingEngine) error {
	address := os.Getenv(environment.TCPMuxAddress)
	if address == "" {
		return nil
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return fmt.Errorf("%s: %w", environment.TCPMuxAddress, err)
	}

	tcpListener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("%s: %w", environment.TCPMuxAddress, err)
	}

	log.Info().Str("address", address).Msg("Settings.TCPMux")
	settingEngine.SetICETCPMux(webrtc.NewICETCPMux(nil, tcpListener, 8))

	return nil
}

func setupUDPMux(settingEngine *webrtc.SettingEngine, udpMuxOpts []ice.UDPMuxFromPortOption) error {
	value := os.Getenv(environment.UDPMuxPort)
	if value == "" {
		return nil
	}

	udpMuxPort, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", environment.UDPMuxPort, err)
	}

	udpMux, err := ice.NewMultiUDPMuxFromPort(udpMuxPort, udpMuxOpts...)
	if err != nil {
		return fmt.Errorf("%s: %w", environment.UDPMuxPort, err)
	}

	log.Info().Int("port", udpMuxPort).Msg("Settings.UDPMux")
	settingEngine.SetICEUDPMux(udpMux)

	return nil
}

func setupInterfaceFilter(settingEngine *webrtc.SettingEngine, muxOpts *[]ice.UDPMuxFromPortOption) {
	filter := os.Getenv(environment.InterfaceFilter)
	if filter == "" {
		return
	}

	interfaceFilter := func(i string) bool {
		return i == filter
	}

	settingEngine.SetInterfaceFilter(interfaceFilter)
	*muxOpts = append(*muxOpts, ice.UDPMuxFromPortWithInterfaceFilter(interfaceFilter))
}

func setupNAT(settingEngine *webrtc.SettingEngine) error {
	natIPs := environment.GetList(environment.NAT1To1IP)
	if len(natIPs) == 0 {
		return nil
	}

	natICECandidateType := webrtc.ICECandidateTypeHost
	if os.Getenv(environment.NATICECandidateType) == "srflx" {
		natICECandidateType = webrtc.ICECandidateTypeSrflx
	}

	if err := settingEngine.SetICEAddressRewriteRules(webrtc.ICEAddressRewriteRule{
		External:        natIPs,
		AsCandidateType: natICECandidateType,
		Mode:            webrtc.ICEAddressRewriteAppend,
	}); err != nil {
		return fmt.Errorf("%s: %w", environment.NAT1To1IP, err)
	}

	return nil
}
