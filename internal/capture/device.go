package capture

// DeviceInfo describes one input device reported by the audio subsystem.
type DeviceInfo struct {
	ID                string
	Name              string
	MaxChannels       int
	DefaultSampleRate int
}

// StreamConfig is the fixed stream shape the recorder opens: mono PCM at the
// model input rate, small blocks for low callback latency.
type StreamConfig struct {
	DeviceID   string
	SampleRate int
	Channels   int
	BlockSize  int
}

// Stream is a running input stream. Stop halts delivery and releases the
// device; no blocks arrive after Stop returns.
type Stream interface {
	Stop() error
}

// Backend abstracts the audio subsystem so the recorder can be driven by a
// real microphone or a fake in tests. The onBlock callback runs on the
// driver's realtime thread and must never block.
type Backend interface {
	InputDevices() ([]DeviceInfo, error)
	OpenStream(cfg StreamConfig, onBlock func(block []int16)) (Stream, error)
}
