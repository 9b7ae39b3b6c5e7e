//go:build linux

package rtc

import (
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

func populateCodecs(me *webrtc.MediaEngine, bitRate int) (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = bitRate

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
	)
	selector.Populate(me)
	return selector, nil
}

func captureDisplay(selector *mediadevices.CodecSelector) ([]mediadevices.Track, error) {
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameRate = prop.Float(15)
		},
		Codec: selector,
	})
	if err != nil {
		return nil, err
	}
	return stream.GetVideoTracks(), nil
}
