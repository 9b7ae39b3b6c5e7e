//go:build !linux

package rtc

import (
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// populateCodecs registers the default codecs; there is no capture driver
// on this platform, so the selector is nil.
func populateCodecs(me *webrtc.MediaEngine, _ int) (*mediadevices.CodecSelector, error) {
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return nil, nil
}

func captureDisplay(*mediadevices.CodecSelector) ([]mediadevices.Track, error) {
	return nil, ErrCaptureUnsupported
}
