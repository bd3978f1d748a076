package delbin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashByAlgo_EmptyInput(t *testing.T) {
	tests := []struct {
		algo       string
		wantLen    int
		wantFirst4 []byte
	}{
		{algo: "sha256", wantLen: 32, wantFirst4: []byte{0xE3, 0xB0, 0xC4, 0x42}},
	}

	for _, tt := range tests {
		t.Run(tt.algo, func(t *testing.T) {
			v, err := hashByAlgo(tt.algo, nil)
			assert.NoError(t, err)
			assert.Equal(t, KindBytes, v.Kind)
			assert.Len(t, v.Bytes, tt.wantLen)
			assert.Equal(t, tt.wantFirst4, v.Bytes[:4])
		})
	}
}

func TestHashByAlgo_Lengths(t *testing.T) {
	data := []byte("delbin")

	sha256Val, err := hashByAlgo("sha256", data)
	assert.NoError(t, err)
	assert.Len(t, sha256Val.Bytes, 32)

	sha1Val, err := hashByAlgo("sha1", data)
	assert.NoError(t, err)
	assert.Len(t, sha1Val.Bytes, 20)

	md5Val, err := hashByAlgo("md5", data)
	assert.NoError(t, err)
	assert.Len(t, md5Val.Bytes, 16)
}

func TestHashByAlgo_Unknown(t *testing.T) {
	_, err := hashByAlgo("sha512", nil)
	assert.Error(t, err)
}
