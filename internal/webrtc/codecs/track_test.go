package codecs

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

var errWriteFailed = errors.New("write failed")

type failingWriter struct {
	headers atomic.Int64
}

func (w *failingWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	w.headers.Add(1)
	return 0, errWriteFailed
}

func (w *failingWriter) Write(b []byte) (int, error) {
	return 0, errWriteFailed
}

func TestConsumerTrackUnbound(t *testing.T) {
	track := CreateConsumerTrack("track", "stream", webrtc.RTPCodecTypeVideo, 107)
	require.NoError(t, track.WriteRTP(&rtp.Packet{Payload: []byte{0x65}}))
}

func TestConsumerTrackWriteErrorsFromManyProducers(t *testing.T) {
	const (
		writers = 16
		packets = 50
	)

	writer := &failingWriter{}
	track := CreateConsumerTrack("track", "stream", webrtc.RTPCodecTypeVideo, 107)
	track.writeStream = writer

	var (
		wg       sync.WaitGroup
		reported atomic.Int64
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range packets {
				err := track.WriteRTP(&rtp.Packet{Payload: []byte{0x65}})
				if errors.Is(err, errWriteFailed) {
					reported.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// every 50th failed write is reported, no count is lost between writers
	require.Equal(t, int64(writers*packets), writer.headers.Load())
	require.Equal(t, int64(writers*packets), track.errorCount.Load())
	require.Equal(t, int64(writers), reported.Load())
}
