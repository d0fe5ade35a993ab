package notify

import (
	"encoding/binary"
	"math"
)

// ChimeSampleRate is the sample rate of the rendered chime PCM.
const ChimeSampleRate = 44100

const (
	chimeNoteDur = 120 * chimeMillis
	chimeRampDur = 10 * chimeMillis
	chimeMillis  = ChimeSampleRate / 1000
)

// Chime renders the notification sound: a two-note synthesized chime
// (A5 then D6), mono 16-bit little-endian PCM. The output is deterministic.
func Chime() []byte {
	samples := make([]int16, 0, 2*chimeNoteDur)
	samples = appendNote(samples, 880.0)
	samples = appendNote(samples, 1174.66)

	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// appendNote renders one sine note with short linear attack/decay ramps so
// the transition between notes doesn't click.
func appendNote(samples []int16, freq float64) []int16 {
	for i := 0; i < chimeNoteDur; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / ChimeSampleRate)
		env := 1.0
		if i < chimeRampDur {
			env = float64(i) / chimeRampDur
		} else if remaining := chimeNoteDur - i; remaining < chimeRampDur {
			env = float64(remaining) / chimeRampDur
		}
		samples = append(samples, int16(v*env*0.4*math.MaxInt16))
	}
	return samples
}
