package core

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldLocked = 1

	fieldName         = 1
	fieldSerialNumber = 2
)

// EncodeLockStatus encodes a LockStatus payload.
func EncodeLockStatus(locked bool) []byte {
	b := protowire.AppendTag(nil, fieldLocked, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(locked))
}

// DecodeLockStatus decodes a LockStatus payload. A missing field means unlocked.
func DecodeLockStatus(data []byte) (bool, error) {
	var locked bool

	err := walk(data, func(num protowire.Number, typ protowire.Type, v uint64, _ []byte) error {
		if num != fieldLocked {
			return nil
		}
		if typ != protowire.VarintType {
			return fmt.Errorf("%w: locked has wire type %d", ErrMalformedPayload, typ)
		}
		locked = protowire.DecodeBool(v)

		return nil
	})

	return locked, err
}

// EncodeDeviceInfo encodes a DeviceInfo payload.
func EncodeDeviceInfo(info DeviceInfo) []byte {
	var b []byte
	if info.Name != "" {
		b = protowire.AppendTag(b, fieldName, protowire.BytesType)
		b = protowire.AppendString(b, info.Name)
	}
	if len(info.SerialNumber) > 0 {
		b = protowire.AppendTag(b, fieldSerialNumber, protowire.BytesType)
		b = protowire.AppendBytes(b, info.SerialNumber)
	}

	return b
}

// DecodeDeviceInfo decodes a DeviceInfo payload.
func DecodeDeviceInfo(data []byte) (DeviceInfo, error) {
	var info DeviceInfo

	err := walk(data, func(num protowire.Number, typ protowire.Type, _ uint64, raw []byte) error {
		if num != fieldName && num != fieldSerialNumber {
			return nil
		}
		if typ != protowire.BytesType {
			return fmt.Errorf("%w: field %d has wire type %d", ErrMalformedPayload, num, typ)
		}

		if num == fieldName {
			info.Name = string(raw)
		} else {
			info.SerialNumber = append([]byte(nil), raw...)
		}

		return nil
	})

	return info, err
}

// walk calls fn for every field of data. v is set for varint fields, raw for
// length-delimited fields; other wire types are skipped.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, protowire.ParseError(n))
		}
		data = data[n:]

		var (
			v   uint64
			raw []byte
		)

		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformedPayload, num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(num, typ, v, raw); err != nil {
			return err
		}
	}

	return nil
}
