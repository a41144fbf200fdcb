package crypto

import (
	"bytes"
	"crypto/subtle"
)

// pad applies PKCS#7 padding. A block-aligned input gets a full block.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data), len(data)+n)
	copy(padded, data)
	return append(padded, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding. The last block is always inspected in full so
// the time taken does not depend on where the padding is broken.
func unpad(data []byte, blockSize int) ([]byte, bool) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, false
	}

	padLen := int(data[n-1])
	good := subtle.ConstantTimeLessOrEq(1, padLen) & subtle.ConstantTimeLessOrEq(padLen, blockSize)

	for i := 0; i < blockSize; i++ {
		inPad := subtle.ConstantTimeLessOrEq(i+1, padLen)
		match := subtle.ConstantTimeByteEq(data[n-1-i], byte(padLen))
		good &= match | (inPad ^ 1)
	}

	if good != 1 {
		return nil, false
	}

	return data[:n-padLen], true
}
