// Package codec serializes cache values into a portable file format and back.
//
// Every value file starts with a 4-byte little-endian length, followed by a
// JSON descriptor of that length, followed by an optional binary payload:
//
//	┌──────────┬──────────────────────┬─────────────────┐
//	│ uint32le │  JSON descriptor     │  payload bytes  │
//	│ length   │  {"type":...}        │  (binary kinds) │
//	└──────────┴──────────────────────┴─────────────────┘
//
// JSON-representable values travel inside the descriptor itself. Byte
// slices and numeric slices keep their elements as a little-endian payload
// after the descriptor, so a megabyte of samples is not inflated into JSON
// number text. The descriptor records enough to rebuild the exact slice
// type on the way out.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/driftcache/driftcache/pkg/errors"
)

// RawBuffer is a byte slice that round-trips as itself rather than as a
// generic byte-view. Use it for payloads whose bytes must not be
// reinterpreted, such as pre-compressed blobs.
type RawBuffer []byte

// Descriptor type tags.
const (
	typeJSON      = "JSON"
	typeBuffer    = "Buffer"
	typeRawBuffer = "RawBuffer"
)

// Buffer element kinds.
const (
	subtypeInt8    = "int8"
	subtypeUint8   = "uint8"
	subtypeInt16   = "int16"
	subtypeUint16  = "uint16"
	subtypeInt32   = "int32"
	subtypeUint32  = "uint32"
	subtypeFloat32 = "float32"
	subtypeFloat64 = "float64"
)

type descriptor struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Serialize encodes value into the portable file format.
//
// RawBuffer, []byte, and slices of 8/16/32-bit integers and 32/64-bit
// floats are stored as binary payloads. Every other value is stored as
// JSON; values JSON cannot represent (channels, functions, cycles) fail
// with a SERIALIZATION_FAILED error.
func Serialize(value any) ([]byte, error) {
	var desc descriptor
	var payload []byte

	switch v := value.(type) {
	case RawBuffer:
		desc.Type = typeRawBuffer
		payload = v
	case []byte:
		desc.Type = typeBuffer
		desc.Subtype = subtypeUint8
		payload = v
	case []int8:
		desc.Type = typeBuffer
		desc.Subtype = subtypeInt8
		payload = make([]byte, len(v))
		for i, e := range v {
			payload[i] = byte(e)
		}
	case []int16:
		desc.Type = typeBuffer
		desc.Subtype = subtypeInt16
		payload = packLE(v, 2)
	case []uint16:
		desc.Type = typeBuffer
		desc.Subtype = subtypeUint16
		payload = packLE(v, 2)
	case []int32:
		desc.Type = typeBuffer
		desc.Subtype = subtypeInt32
		payload = packLE(v, 4)
	case []uint32:
		desc.Type = typeBuffer
		desc.Subtype = subtypeUint32
		payload = packLE(v, 4)
	case []float32:
		desc.Type = typeBuffer
		desc.Subtype = subtypeFloat32
		payload = packLE(v, 4)
	case []float64:
		desc.Type = typeBuffer
		desc.Subtype = subtypeFloat64
		payload = packLE(v, 8)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeSerializationFailed,
				fmt.Sprintf("value of type %T is not serializable", value)).
				WithComponent("codec").
				WithCause(err)
		}
		desc.Type = typeJSON
		desc.Data = data
	}

	head, err := json.Marshal(desc)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeSerializationFailed,
			"cannot encode value descriptor").
			WithComponent("codec").
			WithCause(err)
	}

	out := make([]byte, 4, 4+len(head)+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(head)))
	out = append(out, head...)
	out = append(out, payload...)
	return out, nil
}

// Deserialize decodes a value file produced by Serialize. Truncated
// blobs, unparseable descriptors, unknown type tags, and payloads whose
// length does not divide by the element size all fail with a
// DESERIALIZATION_FAILED error.
func Deserialize(blob []byte) (any, error) {
	if len(blob) < 4 {
		return nil, decodeError("value file shorter than its header", nil)
	}
	headLen := int(binary.LittleEndian.Uint32(blob))
	if headLen < 0 || 4+headLen > len(blob) {
		return nil, decodeError(
			fmt.Sprintf("descriptor length %d exceeds file size %d", headLen, len(blob)), nil)
	}

	var desc descriptor
	if err := json.Unmarshal(blob[4:4+headLen], &desc); err != nil {
		return nil, decodeError("cannot parse value descriptor", err)
	}
	payload := blob[4+headLen:]

	switch desc.Type {
	case typeJSON:
		if len(desc.Data) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(desc.Data, &v); err != nil {
			return nil, decodeError("cannot parse JSON value", err)
		}
		return v, nil

	case typeRawBuffer:
		return RawBuffer(cloneBytes(payload)), nil

	case typeBuffer:
		return decodeBuffer(desc.Subtype, payload)

	default:
		return nil, decodeError(fmt.Sprintf("unknown value type %q", desc.Type), nil)
	}
}

// ApproxSize estimates the serialized size of value in bytes. Binary kinds
// count their exact payload length; everything else counts its JSON text.
// Unserializable values estimate to zero. The estimate deliberately skips
// the descriptor overhead, so it tracks payload growth rather than format
// constants.
func ApproxSize(value any) int64 {
	switch v := value.(type) {
	case RawBuffer:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	case []int8:
		return int64(len(v))
	case []int16:
		return int64(len(v)) * 2
	case []uint16:
		return int64(len(v)) * 2
	case []int32:
		return int64(len(v)) * 4
	case []uint32:
		return int64(len(v)) * 4
	case []float32:
		return int64(len(v)) * 4
	case []float64:
		return int64(len(v)) * 8
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return 0
		}
		return int64(len(data))
	}
}

func decodeBuffer(subtype string, payload []byte) (any, error) {
	switch subtype {
	case subtypeUint8, "":
		return cloneBytes(payload), nil
	case subtypeInt8:
		out := make([]int8, len(payload))
		for i, b := range payload {
			out[i] = int8(b)
		}
		return out, nil
	case subtypeInt16:
		return unpackLE[int16](subtype, payload, 2)
	case subtypeUint16:
		return unpackLE[uint16](subtype, payload, 2)
	case subtypeInt32:
		return unpackLE[int32](subtype, payload, 4)
	case subtypeUint32:
		return unpackLE[uint32](subtype, payload, 4)
	case subtypeFloat32:
		return unpackLE[float32](subtype, payload, 4)
	case subtypeFloat64:
		return unpackLE[float64](subtype, payload, 8)
	default:
		return nil, decodeError(fmt.Sprintf("unknown buffer subtype %q", subtype), nil)
	}
}

func packLE[E any](elems []E, elemSize int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(elems)*elemSize))
	// Write on fixed-size slices cannot fail against a bytes.Buffer.
	_ = binary.Write(buf, binary.LittleEndian, elems)
	return buf.Bytes()
}

func unpackLE[E any](subtype string, payload []byte, elemSize int) (any, error) {
	if len(payload)%elemSize != 0 {
		return nil, decodeError(
			fmt.Sprintf("%s payload length %d is not a multiple of %d", subtype, len(payload), elemSize), nil)
	}
	out := make([]E, len(payload)/elemSize)
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, out); err != nil {
		return nil, decodeError(fmt.Sprintf("cannot decode %s payload", subtype), err)
	}
	return out, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func decodeError(msg string, cause error) error {
	err := errors.NewError(errors.ErrCodeDeserializationFailed, msg).WithComponent("codec")
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
