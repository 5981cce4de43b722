package audio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_Validate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"default", DefaultFormat(), false},
		{"wav s16", Format{Container: ContainerWAV, Encoding: EncodingS16LE, SampleRate: 16000}, false},
		{"mp3", Format{Container: ContainerMP3, SampleRate: 44100, BitRate: 128}, false},
		{"mp3 without bit rate", Format{Container: ContainerMP3, SampleRate: 44100}, true},
		{"raw with bit rate", Format{Container: ContainerRaw, Encoding: EncodingF32LE, SampleRate: 44100, BitRate: 128}, true},
		{"unknown container", Format{Container: "ogg", Encoding: EncodingF32LE, SampleRate: 44100}, true},
		{"unknown encoding", Format{Container: ContainerRaw, Encoding: "pcm_u8", SampleRate: 44100}, true},
		{"zero sample rate", Format{Container: ContainerRaw, Encoding: EncodingF32LE}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFormat)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveFormat(t *testing.T) {
	f, err := ResolveFormat(ContainerMP3, EncodingF32LE, 22050)
	require.NoError(t, err)
	assert.Equal(t, DefaultMP3BitRate, f.BitRate)

	f, err = ResolveFormat(ContainerRaw, EncodingS16LE, 22050)
	require.NoError(t, err)
	assert.Zero(t, f.BitRate)

	_, err = ResolveFormat("flac", EncodingS16LE, 22050)
	assert.Error(t, err)
}

func TestFormat_JSONOmitsBitRate(t *testing.T) {
	data, err := json.Marshal(DefaultFormat())
	require.NoError(t, err)
	assert.JSONEq(t, `{"container":"raw","encoding":"pcm_f32le","sample_rate":44100}`, string(data))
}

func TestEncoding_BytesPerSample(t *testing.T) {
	assert.Equal(t, 4, EncodingF32LE.BytesPerSample())
	assert.Equal(t, 2, EncodingS16LE.BytesPerSample())
	assert.Equal(t, 1, EncodingMulaw.BytesPerSample())
	assert.Equal(t, 1, EncodingAlaw.BytesPerSample())
	assert.Equal(t, 0, Encoding("x").BytesPerSample())
}
