package transcribe

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// readWAVSamples decodes a 16 kHz mono PCM WAV file into normalized float32
// samples in [-1, 1], the input format the speech model expects.
func readWAVSamples(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format.NumChannels != 1 {
		return nil, fmt.Errorf("decode wav: expected mono audio, got %d channels", buf.Format.NumChannels)
	}
	if buf.Format.SampleRate != 16000 {
		return nil, fmt.Errorf("decode wav: expected 16000 Hz, got %d", buf.Format.SampleRate)
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}
