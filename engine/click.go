package engine

import (
	"bytes"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

const (
	clickSampleRate = 44100
	clickMillis     = 30
	accentFreq      = 1760.0
	beatFreq        = 880.0
)

// ClickPlayer plays the metronome clicks through the system audio
// output. The two click sounds are synthesized once up front; each
// Play spawns a short one-shot player over the shared context.
type ClickPlayer struct {
	ctx    *oto.Context
	ready  atomic.Bool
	accent []byte
	beat   []byte

	mu     sync.Mutex
	active []*oto.Player
}

// NewClickPlayer opens the audio context. The context becomes ready
// asynchronously; clicks played before that are dropped.
func NewClickPlayer() (*ClickPlayer, error) {
	ctx, readyCh, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   clickSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, err
	}
	p := &ClickPlayer{
		ctx:    ctx,
		accent: synthClick(accentFreq),
		beat:   synthClick(beatFreq),
	}
	go func() {
		<-readyCh
		p.ready.Store(true)
	}()
	return p, nil
}

// synthClick renders a short decaying sine burst as 16-bit mono PCM.
func synthClick(freq float64) []byte {
	n := clickSampleRate * clickMillis / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / clickSampleRate
		env := 1 - float64(i)/float64(n)
		s := int16(math.Sin(2*math.Pi*freq*t) * env * env * 32000)
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// Ready reports whether the audio context has come up.
func (p *ClickPlayer) Ready() bool { return p.ready.Load() }

// Play sounds one click. accent selects the bar-start sound; velocity
// (0..127) scales the volume.
func (p *ClickPlayer) Play(accent bool, velocity int) {
	if !p.Ready() {
		return
	}
	buf := p.beat
	if accent {
		buf = p.accent
	}
	pl := p.ctx.NewPlayer(bytes.NewReader(buf))
	if velocity < 0 {
		velocity = 0
	} else if velocity > 127 {
		velocity = 127
	}
	pl.SetVolume(float64(velocity) / 127)
	pl.Play()

	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.active[:0]
	for _, old := range p.active {
		if old.IsPlaying() {
			kept = append(kept, old)
		} else {
			old.Close()
		}
	}
	p.active = append(kept, pl)
}

// Close stops every sounding click.
func (p *ClickPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pl := range p.active {
		pl.Close()
	}
	p.active = nil
}
