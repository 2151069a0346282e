//go:build !portaudio

package audio

import "errors"

func openPortAudio(int, int) (Stream, error) {
	return nil, errors.New("portaudio capture not compiled in (build with -tags portaudio)")
}
