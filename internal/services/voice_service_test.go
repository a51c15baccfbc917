package services

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everbloom-ai/everbloom/internal/gate"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

type fakeTTS struct {
	audio []byte
	err   error
}

func (f *fakeTTS) Synthesize(context.Context, string) ([]byte, error) { return f.audio, f.err }
func (f *fakeTTS) Close() error                                       { return nil }

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Transcribe(context.Context, []byte, string) (string, float64, error) {
	return f.text, 0.93, f.err
}
func (f *fakeSTT) Close() error { return nil }

type fakeUploader struct {
	objects []string
}

func (f *fakeUploader) Upload(_ context.Context, objectName, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	f.objects = append(f.objects, objectName)
	return "https://storage.googleapis.com/bucket/" + objectName, nil
}

func TestSynthesizeUploadsUnderUserPrefix(t *testing.T) {
	up := &fakeUploader{}
	svc := NewVoiceService(&fakeTTS{audio: []byte("mp3!")}, &fakeSTT{}, up, gate.New(1, 1))

	url, err := svc.Synthesize(context.Background(), "u1", "hello there")
	require.NoError(t, err)
	assert.Contains(t, url, "/voice/u1/")
	require.Len(t, up.objects, 1)
	assert.True(t, strings.HasPrefix(up.objects[0], "voice/u1/"))
	assert.True(t, strings.HasSuffix(up.objects[0], ".mp3"))
}

func TestSynthesizeQueueFullMapsToUnavailable(t *testing.T) {
	g := gate.New(1, 0)
	require.NoError(t, g.Acquire(context.Background())) // hold the only slot

	svc := NewVoiceService(&fakeTTS{audio: []byte("x")}, &fakeSTT{}, &fakeUploader{}, g)
	_, err := svc.Synthesize(context.Background(), "u1", "hello")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}

func TestSynthesizeProviderFailureReleasesSlot(t *testing.T) {
	g := gate.New(1, 0)
	svc := NewVoiceService(&fakeTTS{err: errBoom}, &fakeSTT{}, &fakeUploader{}, g)

	_, err := svc.Synthesize(context.Background(), "u1", "hello")
	require.Error(t, err)
	assert.Zero(t, g.InFlight(), "the slot is released on failure")
}

func TestTranscribe(t *testing.T) {
	svc := NewVoiceService(&fakeTTS{}, &fakeSTT{text: "I miss you"}, &fakeUploader{}, gate.New(1, 1))

	text, err := svc.Transcribe(context.Background(), []byte{1, 2, 3}, "en-US")
	require.NoError(t, err)
	assert.Equal(t, "I miss you", text)

	_, err = svc.Transcribe(context.Background(), nil, "en-US")
	assert.Error(t, err)
}
