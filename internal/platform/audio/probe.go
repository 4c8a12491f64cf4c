// Package audio inspects synthesized audio.
package audio

import (
	"bytes"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/generation"
)

// go-mp3 always decodes to 16-bit little-endian stereo.
const (
	decodedChannels = 2
	bytesPerFrame   = 2 * decodedChannels
)

// MP3Prober implements generation.AudioProber for MP3 data.
type MP3Prober struct{}

// Probe decodes the MP3 frame headers of data and reports its duration.
func (MP3Prober) Probe(data []byte) (generation.AudioInfo, error) {
	const op = "audio.Probe"

	if len(data) == 0 {
		return generation.AudioInfo{}, domain.Errorf(domain.KindValidation, op, "audio is empty")
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return generation.AudioInfo{}, domain.E(domain.KindValidation, op, err)
	}
	rate := dec.SampleRate()
	length := dec.Length()
	if rate <= 0 || length <= 0 {
		return generation.AudioInfo{}, domain.Errorf(domain.KindValidation, op,
			"cannot determine audio length")
	}

	frames := length / bytesPerFrame
	return generation.AudioInfo{
		Duration:   time.Duration(frames) * time.Second / time.Duration(rate),
		SampleRate: rate,
		Channels:   decodedChannels,
	}, nil
}
