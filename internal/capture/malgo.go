package capture

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// MalgoBackend drives capture through miniaudio. One backend owns the audio
// context; streams opened from it share that context.
type MalgoBackend struct {
	ctx *malgo.AllocatedContext
}

func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

func (b *MalgoBackend) Close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func (b *MalgoBackend) InputDevices() ([]DeviceInfo, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("query capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		d := DeviceInfo{
			ID:   deviceIDString(info.ID),
			Name: info.Name(),
		}
		for _, f := range info.Formats {
			if int(f.Channels) > d.MaxChannels {
				d.MaxChannels = int(f.Channels)
			}
			if d.DefaultSampleRate == 0 {
				d.DefaultSampleRate = int(f.SampleRate)
			}
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (b *MalgoBackend) OpenStream(cfg StreamConfig, onBlock func(block []int16)) (Stream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockSize)

	if cfg.DeviceID != "" {
		infos, err := b.ctx.Devices(malgo.Capture)
		if err != nil {
			return nil, fmt.Errorf("query capture devices: %w", err)
		}
		found := false
		for i := range infos {
			if deviceIDString(infos[i].ID) == cfg.DeviceID {
				deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("input device %q not found", cfg.DeviceID)
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			block := make([]int16, frameCount)
			for i := range block {
				block[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
			}
			onBlock(block)
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	return &malgoStream{device: device}, nil
}

type malgoStream struct {
	device *malgo.Device
}

func (s *malgoStream) Stop() error {
	if s.device == nil {
		return nil
	}
	err := s.device.Stop()
	s.device.Uninit()
	s.device = nil
	return err
}

func deviceIDString(id malgo.DeviceID) string {
	return strings.TrimRight(hex.EncodeToString(id[:]), "0")
}
