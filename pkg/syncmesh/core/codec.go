package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// Wire framing per spec.md §6: all integers big-endian, strings are
// length-prefixed UTF-8. A 4-byte frame-length prefix wraps every encoded
// envelope on the socket (see Session.readLoop/writeFrame); this file only
// encodes/decodes the payload shape itself.

func writeUint16(w *bytes.Buffer, v uint16) { binary.Write(w, binary.BigEndian, v) }
func writeUint32(w *bytes.Buffer, v uint32) { binary.Write(w, binary.BigEndian, v) }
func writeUint8(w *bytes.Buffer, v uint8)   { w.WriteByte(v) }
func writeInt64(w *bytes.Buffer, v int64)   { binary.Write(w, binary.BigEndian, v) }

func writeString(w *bytes.Buffer, s string) {
	writeUint16(w, uint16(len(s)))
	w.WriteString(s)
}

func writeBytes32(w *bytes.Buffer, b []byte) {
	writeUint32(w, uint32(len(b)))
	w.Write(b)
}

func writeIdSet16(w *bytes.Buffer, ids *types.IdSet) {
	if ids == nil {
		ids = types.NewIdSet()
	}
	slice := ids.ToSlice()
	writeUint16(w, uint16(len(slice)))
	for _, id := range slice {
		writeUint16(w, uint16(id))
	}
}

func readUint8(r *bytes.Reader) (uint8, error) {
	return r.ReadByte()
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readInt64(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readBytes32(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readIdSet16(r *bytes.Reader) (*types.IdSet, error) {
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	ids := make([]types.NodeId, 0, n)
	for i := uint16(0); i < n; i++ {
		id, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, types.NodeId(id))
	}
	return types.NewIdSet(ids...), nil
}

// EncodeEnvelope serializes env into the §6 sync-envelope wire shape.
func EncodeEnvelope(env *types.SyncEnvelope) []byte {
	w := &bytes.Buffer{}
	writeUint16(w, uint16(env.SenderId))
	writeUint8(w, uint8(env.Type))
	writeUint8(w, env.Sequence)
	if env.InStartup {
		writeUint8(w, 1)
	} else {
		writeUint8(w, 0)
	}
	writeUint8(w, uint8(env.SyncMode))
	writeUint8(w, uint8(env.SyncType))

	writeUint8(w, uint8(len(env.KeyChain)))
	for _, k := range env.KeyChain {
		writeString(w, k)
	}

	writeIdSet16(w, env.ExpectedIds)

	writeUint32(w, uint32(len(env.Contents)))
	for _, c := range env.Contents {
		writeBytes32(w, c.Payload)
		writeInt64(w, c.Version)
		writeString(w, c.Key)
		writeIdSet16(w, c.AwareIds)
	}

	return w.Bytes()
}

// DecodeEnvelope parses the §6 sync-envelope wire shape.
func DecodeEnvelope(data []byte) (*types.SyncEnvelope, error) {
	r := bytes.NewReader(data)
	env := &types.SyncEnvelope{}

	senderId, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("decode senderId: %w", err)
	}
	env.SenderId = types.NodeId(senderId)

	msgType, err := readUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode type: %w", err)
	}
	env.Type = types.MessageType(msgType)

	seq, err := readUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode sequence: %w", err)
	}
	env.Sequence = seq

	startup, err := readUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode inStartup: %w", err)
	}
	env.InStartup = startup != 0

	syncMode, err := readUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode syncMode: %w", err)
	}
	env.SyncMode = types.SyncMode(syncMode)

	syncType, err := readUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode syncType: %w", err)
	}
	env.SyncType = types.DispatchPolicy(syncType)

	keyChainLen, err := readUint8(r)
	if err != nil {
		return nil, fmt.Errorf("decode keyChainLen: %w", err)
	}
	for i := uint8(0); i < keyChainLen; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("decode keyChain[%d]: %w", i, err)
		}
		env.KeyChain = append(env.KeyChain, k)
	}

	expected, err := readIdSet16(r)
	if err != nil {
		return nil, fmt.Errorf("decode expectedIds: %w", err)
	}
	env.ExpectedIds = expected

	contentsLen, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode contentsLen: %w", err)
	}
	for i := uint32(0); i < contentsLen; i++ {
		var c types.SyncContent
		c.Payload, err = readBytes32(r)
		if err != nil {
			return nil, fmt.Errorf("decode content[%d].payload: %w", i, err)
		}
		c.Version, err = readInt64(r)
		if err != nil {
			return nil, fmt.Errorf("decode content[%d].version: %w", i, err)
		}
		c.Key, err = readString(r)
		if err != nil {
			return nil, fmt.Errorf("decode content[%d].key: %w", i, err)
		}
		c.AwareIds, err = readIdSet16(r)
		if err != nil {
			return nil, fmt.Errorf("decode content[%d].awareIds: %w", i, err)
		}
		env.Contents = append(env.Contents, c)
	}

	return env, nil
}

// The membership-publication wire shape is encoded by
// types.EncodeMembershipPublication/DecodeMembershipPublication directly,
// since types.MembershipPublication.Serialize/Deserialize must not depend
// on this package.
