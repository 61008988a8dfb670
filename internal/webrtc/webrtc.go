package webrtc

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
	"github.com/videmus/relay/internal/store"
	"github.com/videmus/relay/internal/webrtc/codecs"
	"github.com/videmus/relay/internal/webrtc/sessions/manager"
	"github.com/videmus/relay/internal/webrtc/sfu"
)

type (
	// Relay implements the publisher and viewer operations on top of the media
	// engine. Live broadcasts are kept in its session manager.
	Relay struct {
		engine     sfu.Engine
		tokens     store.TokenValidator
		broadcasts store.BroadcastStore
		sessions   *manager.SessionManager

		// channelLock orders a channel switch against the channel check of an
		// ingest that registered its session while the switch was running
		channelLock sync.Mutex

		publicURL         string
		publisherICEGrace time.Duration
	}

	Options struct {
		// PublicURL prefixes the WHIP teardown location
		PublicURL string

		// PublisherICEGrace is how long a publisher may stay disconnected before
		// its broadcast is torn down
		PublisherICEGrace time.Duration
	}
)

func NewRelay(engine sfu.Engine, tokens store.TokenValidator, broadcasts store.BroadcastStore, options Options) *Relay {
	return &Relay{
		engine:            engine,
		tokens:            tokens,
		broadcasts:        broadcasts,
		sessions:          manager.New(),
		publicURL:         options.PublicURL,
		publisherICEGrace: options.PublisherICEGrace,
	}
}

// Setup builds the relay on the pion engine configured from the environment
func Setup(tokens store.TokenValidator, broadcasts store.BroadcastStore) (*Relay, error) {
	capabilities, err := codecs.RouterCapabilities()
	if err != nil {
		return nil, fmt.Errorf("router capabilities: %w", err)
	}

	settingEngine, err := GetSettingEngine()
	if err != nil {
		return nil, fmt.Errorf("setting engine: %w", err)
	}

	engine := sfu.NewPionEngine(settingEngine, GetICEServers(), capabilities)

	log.Info().
		Int("codecs", len(capabilities.Codecs)).
		Int("headerExtensions", len(capabilities.HeaderExtensions)).
		Msg("WebRTC.Setup")

	return NewRelay(engine, tokens, broadcasts, Options{
		PublicURL:         environment.GetPublicURL(),
		PublisherICEGrace: environment.GetPublisherICEGrace(),
	}), nil
}

func (r *Relay) Sessions() *manager.SessionManager {
	return r.sessions
}

func (r *Relay) teardownURL(broadcastID string) string {
	return r.publicURL + "/whip/sessions/" + url.PathEscape(broadcastID)
}
