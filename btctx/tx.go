package btctx

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// outPointSize is the encoded size of a previous outpoint reference,
	// a 32 byte txid followed by a 4 byte output index.
	outPointSize = 36

	// sequenceSize is the encoded size of an input's sequence field.
	sequenceSize = 4

	// valueSize is the encoded size of an output's satoshi value.
	valueSize = 8
)

var (
	// ErrMalformedLength is returned when a buffer is too short for the
	// compact size encoding it declares, or for a fixed size field.
	ErrMalformedLength = errors.New("buffer too short for declared length")

	// ErrIndexOutOfRange is returned when an element index points past
	// the end of a vector, or when the vector is exhausted before the
	// indexed element is reached.
	ErrIndexOutOfRange = errors.New("element index out of range")

	// ErrMalformedVector is returned when a vector's elements do not
	// consume exactly the vector's byte length.
	ErrMalformedVector = errors.New("vector length inconsistent with elements")
)

// TxInfo is a parsed view over a raw bitcoin transaction, split into its
// four top level fields. The input and output vectors are kept as raw byte
// strings and are only walked on demand. A TxInfo is never mutated.
type TxInfo struct {
	// Version is the raw little-endian transaction version.
	Version [4]byte

	// InputVector is the compact size prefixed sequence of inputs.
	InputVector []byte

	// OutputVector is the compact size prefixed sequence of outputs.
	OutputVector []byte

	// Locktime is the raw little-endian transaction locktime.
	Locktime [4]byte
}

// Hash returns the canonical transaction id, the double-SHA256 of the
// concatenated raw fields. The result is in the chain's native little-endian
// byte order; chainhash.Hash.String reverses it for display.
func (t *TxInfo) Hash() chainhash.Hash {
	raw := make([]byte, 0, 8+len(t.InputVector)+len(t.OutputVector))
	raw = append(raw, t.Version[:]...)
	raw = append(raw, t.InputVector...)
	raw = append(raw, t.OutputVector...)
	raw = append(raw, t.Locktime[:]...)

	return chainhash.DoubleHashH(raw)
}

// ReadCompactSize decodes the compact size unsigned integer at the start of
// buf and returns its value along with the number of bytes the encoding
// occupies.
func ReadCompactSize(buf []byte) (uint64, int, error) {
	if len(buf) < 1 {
		return 0, 0, ErrMalformedLength
	}

	switch buf[0] {
	case 0xfd:
		if len(buf) < 3 {
			return 0, 0, ErrMalformedLength
		}
		return uint64(binary.LittleEndian.Uint16(buf[1:3])), 3, nil

	case 0xfe:
		if len(buf) < 5 {
			return 0, 0, ErrMalformedLength
		}
		return uint64(binary.LittleEndian.Uint32(buf[1:5])), 5, nil

	case 0xff:
		if len(buf) < 9 {
			return 0, 0, ErrMalformedLength
		}
		return binary.LittleEndian.Uint64(buf[1:9]), 9, nil

	default:
		return uint64(buf[0]), 1, nil
	}
}

// inputLength returns the encoded length of the input element at the start
// of buf: a 36 byte outpoint, a compact size prefixed signature script and a
// 4 byte sequence. Inputs are expected in the non-witness serialization, the
// one the txid commits to.
func inputLength(buf []byte) (int, error) {
	if len(buf) < outPointSize+1 {
		return 0, ErrMalformedLength
	}

	scriptLen, width, err := ReadCompactSize(buf[outPointSize:])
	if err != nil {
		return 0, err
	}
	if scriptLen > math.MaxInt32 {
		return 0, ErrMalformedLength
	}

	total := outPointSize + width + int(scriptLen) + sequenceSize
	if total > len(buf) {
		return 0, ErrMalformedLength
	}

	return total, nil
}

// outputLength returns the encoded length of the output element at the start
// of buf: an 8 byte value followed by a compact size prefixed script.
func outputLength(buf []byte) (int, error) {
	if len(buf) < valueSize+1 {
		return 0, ErrMalformedLength
	}

	scriptLen, width, err := ReadCompactSize(buf[valueSize:])
	if err != nil {
		return 0, err
	}
	if scriptLen > math.MaxInt32 {
		return 0, ErrMalformedLength
	}

	total := valueSize + width + int(scriptLen)
	if total > len(buf) {
		return 0, ErrMalformedLength
	}

	return total, nil
}

// extractElementAt walks the compact size prefixed vector until it reaches
// the element at index and returns its raw bytes. A vector that runs out of
// bytes before delivering the element fails with ErrIndexOutOfRange even
// when the declared count covers the index.
func extractElementAt(vector []byte, index uint32,
	elemLen func([]byte) (int, error)) ([]byte, error) {

	count, width, err := ReadCompactSize(vector)
	if err != nil {
		return nil, err
	}
	if uint64(index) >= count {
		return nil, ErrIndexOutOfRange
	}

	offset := width
	for i := uint64(0); ; i++ {
		n, err := elemLen(vector[offset:])
		if err != nil {
			return nil, ErrIndexOutOfRange
		}

		if i == uint64(index) {
			return vector[offset : offset+n], nil
		}
		offset += n
	}
}

// validateVector checks that the vector's declared element count consumes
// exactly the vector's byte length.
func validateVector(vector []byte,
	elemLen func([]byte) (int, error)) error {

	count, width, err := ReadCompactSize(vector)
	if err != nil {
		return err
	}

	offset := width
	for i := uint64(0); i < count; i++ {
		n, err := elemLen(vector[offset:])
		if err != nil {
			return err
		}
		offset += n
	}

	if offset != len(vector) {
		return ErrMalformedVector
	}

	return nil
}

// ExtractInputAt returns the raw bytes of the input element at index.
func ExtractInputAt(inputVector []byte, index uint32) ([]byte, error) {
	return extractElementAt(inputVector, index, inputLength)
}

// ExtractOutputAt returns the raw bytes of the output element at index.
func ExtractOutputAt(outputVector []byte, index uint32) ([]byte, error) {
	return extractElementAt(outputVector, index, outputLength)
}

// InputCount returns the declared number of elements in an input vector.
func InputCount(inputVector []byte) (uint64, error) {
	count, _, err := ReadCompactSize(inputVector)
	return count, err
}

// OutputCount returns the declared number of elements in an output vector.
func OutputCount(outputVector []byte) (uint64, error) {
	count, _, err := ReadCompactSize(outputVector)
	return count, err
}

// ValidateInputVector checks an input vector for length consistency.
func ValidateInputVector(inputVector []byte) error {
	return validateVector(inputVector, inputLength)
}

// ValidateOutputVector checks an output vector for length consistency.
func ValidateOutputVector(outputVector []byte) error {
	return validateVector(outputVector, outputLength)
}

// InputOutpoint returns the previous transaction id and output index
// referenced by a raw input element. The txid stays in little-endian
// internal order.
func InputOutpoint(input []byte) (chainhash.Hash, uint32, error) {
	if len(input) < outPointSize {
		return chainhash.Hash{}, 0, ErrMalformedLength
	}

	var hash chainhash.Hash
	copy(hash[:], input[:32])

	return hash, binary.LittleEndian.Uint32(input[32:outPointSize]), nil
}

// OutputValueLE returns an output's raw 8 byte little-endian satoshi value.
// Callers widen it with LeBytesToU64 only at use sites.
func OutputValueLE(output []byte) ([8]byte, error) {
	var value [8]byte
	if len(output) < valueSize {
		return value, ErrMalformedLength
	}

	copy(value[:], output[:valueSize])
	return value, nil
}

// OutputScript returns an output's locking script bytes.
func OutputScript(output []byte) ([]byte, error) {
	if len(output) < valueSize+1 {
		return nil, ErrMalformedLength
	}

	scriptLen, width, err := ReadCompactSize(output[valueSize:])
	if err != nil {
		return nil, err
	}

	if scriptLen > math.MaxInt32 {
		return nil, ErrMalformedLength
	}

	start := valueSize + width
	end := start + int(scriptLen)
	if end > len(output) {
		return nil, ErrMalformedLength
	}

	return output[start:end], nil
}

// LeBytesToU64 widens a raw little-endian 8 byte value to an integer.
func LeBytesToU64(value [8]byte) uint64 {
	return binary.LittleEndian.Uint64(value[:])
}

// U64ToLeBytes narrows an integer to its raw little-endian 8 byte form.
func U64ToLeBytes(value uint64) [8]byte {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], value)
	return raw
}
