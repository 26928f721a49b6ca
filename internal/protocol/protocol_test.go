package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRoundTrip(t *testing.T) {
	p := &Payload{Origin: "laptop", Content: TextContent("hello")}
	raw, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, "laptop", got.Origin)
	assert.Equal(t, KindText, got.Content.Kind)
	assert.Equal(t, "hello", got.Content.Text)
}

func TestImageRoundTrip(t *testing.T) {
	img := []byte{0x89, 0x50, 0x4e, 0x47, 0, 1, 2, 3}
	p := &Payload{Origin: "desktop", Content: ImageContent(img, "png")}
	raw, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, KindImage, got.Content.Kind)
	assert.Equal(t, img, got.Content.Image)
	assert.Equal(t, "png", got.Content.ImageEncoding)
}

func TestImageDefaultEncoding(t *testing.T) {
	c := ImageContent([]byte{1}, "")
	assert.Equal(t, DefaultImageEncoding, c.ImageEncoding)
}

func TestFilesRoundTrip(t *testing.T) {
	entries := []FileEntry{
		{Path: "notes.txt", Size: 5, Data: []byte("notes")},
		{Path: "sub/pic.png", Size: 3, Data: []byte{1, 2, 3}},
	}
	p := &Payload{Origin: "laptop", Content: FilesContent(entries)}
	raw, err := p.MarshalBinary()
	require.NoError(t, err)

	got, err := Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, KindFiles, got.Content.Kind)
	require.Len(t, got.Content.Files, 2)
	assert.Equal(t, entries, got.Content.Files)
	assert.Equal(t, uint64(8), got.Content.TotalFileSize())
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	valid, err := (&Payload{Origin: "a", Content: TextContent("hi")}).MarshalBinary()
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":            {},
		"truncated header": {3, 'a'},
		"unknown kind":     {1, 'a', 99, 0, 0, 0, 0, 0, 0, 0, 0},
		"length mismatch":  append(append([]byte{}, valid...), 'x'),
		"bad utf8 text":    {1, 'a', 1, 0, 0, 0, 0, 0, 0, 0, 1, 0xff},
		"empty file list":  {1, 'a', 3, 0, 0, 0, 0, 0, 0, 0, 2, '[', ']'},
		"files not json":   {1, 'a', 3, 0, 0, 0, 0, 0, 0, 0, 1, '{'},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal(raw)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestMarshalRejectsEmptyFileList(t *testing.T) {
	_, err := (&Payload{Origin: "a", Content: FilesContent(nil)}).MarshalBinary()
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	a := TextContent("hello").Fingerprint()
	b := TextContent("hello").Fingerprint()
	c := TextContent("world").Fingerprint()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	// Same bytes under a different kind must not collide.
	img := ImageContent([]byte("hello"), "png").Fingerprint()
	assert.NotEqual(t, a, img)
}

func TestFilesFingerprintIgnoresDirectory(t *testing.T) {
	sent := FilesContent([]FileEntry{
		{Path: "/home/user/docs/report.pdf", Size: 1024},
	})
	received := FilesContent([]FileEntry{
		{Path: "/home/other/Downloads/lan-clipboard/20250101-120000/report.pdf", Size: 1024},
	})
	assert.Equal(t, sent.Fingerprint(), received.Fingerprint())

	renamed := FilesContent([]FileEntry{
		{Path: "/home/user/docs/other.pdf", Size: 1024},
	})
	assert.NotEqual(t, sent.Fingerprint(), renamed.Fingerprint())

	resized := FilesContent([]FileEntry{
		{Path: "/home/user/docs/report.pdf", Size: 2048},
	})
	assert.NotEqual(t, sent.Fingerprint(), resized.Fingerprint())
}
