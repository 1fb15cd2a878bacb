package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeMembershipPublication/DecodeMembershipPublication live in types,
// not core, so MembershipPublication.Serialize/Deserialize never needs to
// reach into the package that imports types (core imports types, not the
// other way around). The wire shape matches spec.md §6.

func mpWriteUint8(w *bytes.Buffer, v uint8)  { w.WriteByte(v) }
func mpWriteUint16(w *bytes.Buffer, v uint16) { binary.Write(w, binary.BigEndian, v) }
func mpWriteUint32(w *bytes.Buffer, v uint32) { binary.Write(w, binary.BigEndian, v) }
func mpWriteInt64(w *bytes.Buffer, v int64)   { binary.Write(w, binary.BigEndian, v) }

func mpReadUint8(r *bytes.Reader) (uint8, error)  { return r.ReadByte() }

func mpReadUint16(r *bytes.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func mpReadUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func mpReadInt64(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// EncodeMembershipPublication serializes the §6 membership-publication wire
// shape.
func EncodeMembershipPublication(m *MembershipPublication) []byte {
	w := &bytes.Buffer{}
	mpWriteUint16(w, uint16(m.Id))
	if m.AuthByKey {
		mpWriteUint8(w, 1)
	} else {
		mpWriteUint8(w, 0)
	}
	mpWriteUint32(w, uint32(len(m.MemberKey)))
	w.WriteString(m.MemberKey)
	mpWriteInt64(w, m.Ver)
	mpWriteUint8(w, uint8(m.Command))
	mpWriteUint8(w, uint8(len(m.SyncAddresses)))
	for _, addr := range m.SyncAddresses {
		mpWriteUint8(w, uint8(len(addr.IP)))
		w.WriteString(addr.IP)
		mpWriteUint32(w, addr.Port)
	}
	return w.Bytes()
}

// DecodeMembershipPublication parses the §6 membership-publication wire
// shape.
func DecodeMembershipPublication(data []byte) (*MembershipPublication, error) {
	r := bytes.NewReader(data)
	m := &MembershipPublication{}

	id, err := mpReadUint16(r)
	if err != nil {
		return nil, fmt.Errorf("decode id: %w", err)
	}
	m.Id = NodeId(id)

	authByKey, err := mpReadUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode authByKey: %w", err)
	}
	m.AuthByKey = authByKey != 0

	keyLen, err := mpReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode keyLen: %w", err)
	}
	keyBuf := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBuf); err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	m.MemberKey = string(keyBuf)

	m.Ver, err = mpReadInt64(r)
	if err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}

	command, err := mpReadUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	m.Command = MembershipCommand(command)

	addrLen, err := mpReadUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode syncAddressesLen: %w", err)
	}
	for i := uint8(0); i < addrLen; i++ {
		ipLen, err := mpReadUint8(r)
		if err != nil {
			return nil, fmt.Errorf("decode addr[%d].ipLen: %w", i, err)
		}
		ipBuf := make([]byte, ipLen)
		if _, err := io.ReadFull(r, ipBuf); err != nil {
			return nil, fmt.Errorf("decode addr[%d].ip: %w", i, err)
		}
		port, err := mpReadUint32(r)
		if err != nil {
			return nil, fmt.Errorf("decode addr[%d].port: %w", i, err)
		}
		m.SyncAddresses = append(m.SyncAddresses, Address{IP: string(ipBuf), Port: port})
	}

	return m, nil
}
