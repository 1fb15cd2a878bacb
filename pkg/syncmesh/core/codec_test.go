package core

import (
	"testing"

	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

func TestEnvelopeCodec_RoundTrip(t *testing.T) {
	env := &types.SyncEnvelope{
		SenderId:    7,
		Type:        types.TypeCheck,
		Sequence:    2,
		InStartup:   true,
		SyncMode:    types.SyncMessage,
		SyncType:    types.RingBalanceQuorum,
		KeyChain:    []string{"a", "b"},
		ExpectedIds: types.NewIdSet(1, 2, 3),
		Contents: []types.SyncContent{
			{Key: "chan\x00k1", Version: 5, AwareIds: types.NewIdSet(1), Payload: []byte("hello")},
			{Key: "chan\x00k2", Version: 0, AwareIds: types.NewIdSet()},
		},
	}

	encoded := EncodeEnvelope(env)
	decoded, err := DecodeEnvelope(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.SenderId != env.SenderId || decoded.Type != env.Type || decoded.Sequence != env.Sequence {
		t.Fatalf("header mismatch: got %+v", decoded)
	}
	if decoded.InStartup != env.InStartup || decoded.SyncMode != env.SyncMode || decoded.SyncType != env.SyncType {
		t.Fatalf("flags mismatch: got %+v", decoded)
	}
	if len(decoded.KeyChain) != 2 || decoded.KeyChain[0] != "a" || decoded.KeyChain[1] != "b" {
		t.Fatalf("keyChain mismatch: got %v", decoded.KeyChain)
	}
	if !decoded.ExpectedIds.Equals(env.ExpectedIds) {
		t.Fatalf("expectedIds mismatch: got %v", decoded.ExpectedIds.ToSlice())
	}
	if len(decoded.Contents) != 2 {
		t.Fatalf("contents length mismatch: got %d", len(decoded.Contents))
	}
	if decoded.Contents[0].Key != "chan\x00k1" || string(decoded.Contents[0].Payload) != "hello" {
		t.Fatalf("content[0] mismatch: got %+v", decoded.Contents[0])
	}
	if decoded.Contents[1].Payload != nil {
		t.Fatalf("content[1] payload should round-trip as nil, got %v", decoded.Contents[1].Payload)
	}
}

func TestMembershipPublicationCodec_RoundTrip(t *testing.T) {
	m := &types.MembershipPublication{
		Id:            42,
		AuthByKey:     true,
		MemberKey:     "secret",
		Ver:           99,
		SyncAddresses: []types.Address{{IP: "127.0.0.1", Port: 9001}, {IP: "10.0.0.1", Port: 9002}},
		Command:       types.GiveThis,
	}

	payload, err := m.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	var decoded types.MembershipPublication
	if err := decoded.Deserialize(payload); err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	if decoded.Id != m.Id || decoded.AuthByKey != m.AuthByKey || decoded.MemberKey != m.MemberKey {
		t.Fatalf("scalar mismatch: got %+v", decoded)
	}
	if decoded.Ver != m.Ver || decoded.Command != m.Command {
		t.Fatalf("version/command mismatch: got %+v", decoded)
	}
	if len(decoded.SyncAddresses) != 2 || decoded.SyncAddresses[0].String() != "127.0.0.1:9001" {
		t.Fatalf("addresses mismatch: got %+v", decoded.SyncAddresses)
	}
}
