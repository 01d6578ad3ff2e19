package frame

import (
	"bytes"
	"testing"
)

// FuzzDecode checks that arbitrary input never panics and that accepted
// frames survive a re-encode byte for byte.
func FuzzDecode(f *testing.F) {
	f.Add([]byte{})
	f.Add(loginFrame)
	f.Add((&Frame{Type: 500, ID: 1}).Encode())
	f.Add(loginFrame[:HeaderSize])

	f.Fuzz(func(t *testing.T, data []byte) {
		frame, err := Decode(data)
		if err != nil {
			return
		}
		if got := frame.Encode(); !bytes.Equal(got, data) {
			t.Errorf("re-encode mismatch:\n got %x\nwant %x", got, data)
		}
	})
}
