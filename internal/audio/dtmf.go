package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DefaultSampleRate is the telephone narrowband rate.
const DefaultSampleRate = 8000

// dtmfPairs maps keypad symbols to their (row, column) frequencies in Hz.
var dtmfPairs = map[string][2]float64{
	"1": {697, 1209}, "2": {697, 1336}, "3": {697, 1477}, "A": {697, 1633},
	"4": {770, 1209}, "5": {770, 1336}, "6": {770, 1477}, "B": {770, 1633},
	"7": {852, 1209}, "8": {852, 1336}, "9": {852, 1477}, "C": {852, 1633},
	"*": {941, 1209}, "0": {941, 1336}, "#": {941, 1477}, "D": {941, 1633},
}

// Frequencies returns the DTMF row and column frequencies for a key.
func Frequencies(key string) (low, high float64, ok bool) {
	f, ok := dtmfPairs[key]
	return f[0], f[1], ok
}

// Tone synthesizes a DTMF key as PCM16LE mono. A short linear fade at both
// ends keeps playback free of clicks.
func Tone(key string, d time.Duration, sampleRate int) ([]byte, error) {
	low, high, ok := Frequencies(key)
	if !ok {
		return nil, fmt.Errorf("no dtmf tone for key %q", key)
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if d <= 0 {
		d = 150 * time.Millisecond
	}

	n := int(float64(sampleRate) * d.Seconds())
	fade := sampleRate / 200
	if fade*2 > n {
		fade = n / 2
	}
	const amplitude = 0.45 * math.MaxInt16

	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		v := 0.5*math.Sin(2*math.Pi*low*t) + 0.5*math.Sin(2*math.Pi*high*t)
		gain := 1.0
		switch {
		case i < fade:
			gain = float64(i) / float64(fade)
		case i >= n-fade:
			gain = float64(n-1-i) / float64(fade)
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*gain*amplitude)))
	}
	return pcm, nil
}
