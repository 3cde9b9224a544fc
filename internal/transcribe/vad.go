package transcribe

// speechEnergyThreshold is the mean absolute amplitude below which a window is
// treated as silence. Tuned against close-mic speech recordings; quiet rooms
// sit an order of magnitude below it.
const speechEnergyThreshold = 0.005

const speechWindow = 1600 // 100ms at 16 kHz

// containsSpeech reports whether any 100ms window of the recording carries
// enough energy to plausibly hold speech. Running it before inference skips
// the model entirely on silent or near-silent recordings.
func containsSpeech(samples []float32) bool {
	for start := 0; start < len(samples); start += speechWindow {
		end := start + speechWindow
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			if s < 0 {
				sum -= float64(s)
			} else {
				sum += float64(s)
			}
		}
		if sum/float64(end-start) >= speechEnergyThreshold {
			return true
		}
	}
	return false
}
