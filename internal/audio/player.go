// Package audio implements the playback side of the broadcast engine:
// the device player, the priority dispatcher, the asset pickers, and the
// time-announcement reporter.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
)

// Device format. Assets are expected at this rate; files that differ are
// played through anyway with a warning (rotation filler tolerates a
// slight speed shift, and transcoded inserts always arrive normalized).
const (
	SampleRate   = 44100
	ChannelCount = 2
)

// cancelPoll is how often the play loop checks the cancel flag.
const cancelPoll = 10 * time.Millisecond

// Compile-time interface check.
var _ domain.Driver = (*Player)(nil)

// Player decodes and plays one audio file at a time via oto. Cancellation
// is cooperative: Play polls the caller's flag and stops the device when
// it is set. There is no preemptive kill of an in-flight decode.
type Player struct {
	ctx    *oto.Context
	log    *logger.Logger
	mu     sync.Mutex
	active *oto.Player // currently playing, nil when idle
}

// NewPlayer creates a device player. Returns an error if the audio
// device is unavailable.
func NewPlayer(log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("audio player initialized (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Player{ctx: ctx, log: log}, nil
}

// Play decodes path and plays it synchronously. Returns
// domain.ErrPlaybackStopped when the cancel flag interrupts playback,
// or a decode/device error for the dispatcher to log and skip.
func (p *Player) Play(path string, cancel *domain.StopFlag) error {
	pcm, err := decodeFile(path)
	if err != nil {
		return err
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))

	p.mu.Lock()
	p.active = player
	p.mu.Unlock()

	player.Play()
	p.log.Debug("playing %s (%d bytes of PCM)", filepath.Base(path), len(pcm))

	interrupted := false
	for player.IsPlaying() {
		time.Sleep(cancelPoll)
		if cancel != nil && cancel.IsSet() {
			player.Pause()
			interrupted = true
			break
		}
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()

	if err := player.Close(); err != nil {
		p.log.Warn("closing device player: %v", err)
	}
	if interrupted {
		p.log.Debug("playback interrupted: %s", filepath.Base(path))
		return domain.ErrPlaybackStopped
	}
	return nil
}

// Stop interrupts the currently playing audio, if any. Safe to call
// concurrently and when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if active != nil {
		active.Pause()
	}
}

// decodeFile turns an asset file into interleaved S16LE stereo PCM.
func decodeFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return decodeMP3(f)
	case ".wav":
		return decodeWAV(f)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), domain.ErrUnsupportedAudio)
	}
}

// decodeMP3 reads the full 16-bit stereo PCM stream from an mp3 file.
func decodeMP3(r io.Reader) ([]byte, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decoding mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("reading mp3 stream: %w", err)
	}
	return pcm, nil
}

// decodeWAV reads a wav file into S16LE bytes, widening mono to stereo
// and rescaling other bit depths to 16 bits.
func decodeWAV(f *os.File) ([]byte, error) {
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("decoding wav: %w", domain.ErrUnsupportedAudio)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	return pcmBytes(buf, depth), nil
}

// pcmBytes converts an IntBuffer to interleaved S16LE, widening mono to
// stereo and rescaling other bit depths to 16 bits.
func pcmBytes(buf *goaudio.IntBuffer, depth int) []byte {
	shift := depth - 16 // rescale 24/32-bit samples down, 8-bit up
	mono := buf.Format.NumChannels == 1

	out := make([]byte, 0, len(buf.Data)*2*2)
	var sample [2]byte

	for _, v := range buf.Data {
		if depth == 8 {
			v -= 128 // 8-bit WAV samples are unsigned
		}
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		binary.LittleEndian.PutUint16(sample[:], uint16(int16(v)))
		out = append(out, sample[0], sample[1])
		if mono {
			out = append(out, sample[0], sample[1]) // duplicate into both channels
		}
	}
	return out
}
