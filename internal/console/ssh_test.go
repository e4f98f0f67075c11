package console

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPtyPayload(term string, width, height int) []byte {
	buf := make([]byte, 4+len(term)+16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(term)))
	copy(buf[4:], term)
	offset := 4 + len(term)
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(width))
	binary.BigEndian.PutUint32(buf[offset+4:offset+8], uint32(height))
	return buf
}

func TestParsePtyRequest_ExtractsTermAndDimensions(t *testing.T) {
	payload := buildPtyPayload("xterm-256color", 100, 40)

	term, width, height, ok := parsePtyRequest(payload)

	require.True(t, ok)
	assert.Equal(t, "xterm-256color", term)
	assert.Equal(t, 100, width)
	assert.Equal(t, 40, height)
}

func TestParsePtyRequest_TruncatedPayloadIsRejected(t *testing.T) {
	_, _, _, ok := parsePtyRequest([]byte{0, 0, 0, 5, 'x'})
	assert.False(t, ok)
}

func TestParseWindowChange_ExtractsDimensions(t *testing.T) {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], 120)
	binary.BigEndian.PutUint32(payload[4:8], 45)

	width, height, ok := parseWindowChange(payload)

	require.True(t, ok)
	assert.Equal(t, 120, width)
	assert.Equal(t, 45, height)
}

func TestParseWindowChange_ShortPayloadIsRejected(t *testing.T) {
	_, _, ok := parseWindowChange([]byte{0, 0})
	assert.False(t, ok)
}

func TestHostKeySigner_GeneratesAndPersistsThenReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host_key")

	signer1, err := hostKeySigner(path)
	require.NoError(t, err)
	require.NotNil(t, signer1)

	signer2, err := hostKeySigner(path)
	require.NoError(t, err)
	assert.Equal(t, signer1.PublicKey().Marshal(), signer2.PublicKey().Marshal())
}

func TestServer_StartFailsWithoutPassword(t *testing.T) {
	cs := newFakeControlSurface()
	srv := NewServer(Config{Addr: "127.0.0.1:0", HostKeyPath: filepath.Join(t.TempDir(), "hk")}, cs)

	err := srv.Start()

	require.Error(t, err)
}

func TestServer_StartAndStopOpensThenClosesListener(t *testing.T) {
	cs := newFakeControlSurface()
	srv := NewServer(Config{
		Addr:        "127.0.0.1:0",
		Password:    "secret",
		HostKeyPath: filepath.Join(t.TempDir(), "hk"),
	}, cs)

	require.NoError(t, srv.Start())
	assert.Equal(t, 0, srv.SessionCount())
	srv.Stop()
}
