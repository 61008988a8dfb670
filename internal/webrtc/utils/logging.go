package utils

import (
	"github.com/rs/zerolog/log"

	"github.com/videmus/relay/internal/environment"
)

func DebugOutputOffer(offer string) string {
	if environment.IsEnabled(environment.DebugPrintOffer) {
		log.Info().Msg("WHIP.Offer\n" + offer)
	}

	return offer
}

func DebugOutputAnswer(answer string) string {
	if environment.IsEnabled(environment.DebugPrintAnswer) {
		log.Info().Msg("WHIP.Answer\n" + answer)
	}

	return answer
}
