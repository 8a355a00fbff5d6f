// wire.go: wire protocol definitions for the Kademlia message payloads,
// grounded on the teacher's wire.go envelope/hex-contact shape
// (adityasissodiya-d7024e) and original_source/kademlia/message_structs.hpp's
// PingMessage/FindNodesMessage/StoreMessage records (spec.md §6).
package kademlia

import (
	"encoding/json"
	"fmt"

	"github.com/sid-code/dhtsim/key"
	"github.com/sid-code/dhtsim/message"
)

// wireBucketEntry hex-encodes key.Key the way the teacher's wireContact
// hex-encodes a KademliaID, keeping the JSON payload readable and avoiding
// raw byte arrays in the wire representation.
type wireBucketEntry struct {
	Key      string          `json:"key"`
	Address  message.Address `json:"address"`
	LastSeen uint64          `json:"last_seen"`
}

func toWireBucketEntry(e BucketEntry) wireBucketEntry {
	return wireBucketEntry{Key: e.Key.String(), Address: e.Address, LastSeen: e.LastSeen}
}

func (w wireBucketEntry) toBucketEntry() (BucketEntry, error) {
	k, err := key.FromHex(w.Key)
	if err != nil {
		return BucketEntry{}, err
	}
	return BucketEntry{Key: k, Address: w.Address, LastSeen: w.LastSeen}, nil
}

// PingMessage is the PING payload: a request carries IsPing=true and the
// sender's key; the reply echoes it back with IsPing=false.
type PingMessage struct {
	IsPing bool
	Sender key.Key
}

type wirePing struct {
	IsPing bool   `json:"is_ping"`
	Sender string `json:"sender"`
}

// MarshalPing serializes a PingMessage for Message.Payload.
func MarshalPing(m PingMessage) []byte {
	w := wirePing{IsPing: m.IsPing, Sender: m.Sender.String()}
	b, _ := json.Marshal(w)
	return b
}

// UnmarshalPing parses a PingMessage from a Message.Payload, per spec.md
// §7's error kind 4: a structural failure is reported, and the caller
// (HandleMessage) treats it as silent loss, letting the normal retry/
// timeout path recover.
func UnmarshalPing(payload []byte) (PingMessage, error) {
	var w wirePing
	if err := json.Unmarshal(payload, &w); err != nil {
		return PingMessage{}, fmt.Errorf("kademlia: malformed ping payload: %w", err)
	}
	sender, err := key.FromHex(w.Sender)
	if err != nil {
		return PingMessage{}, fmt.Errorf("kademlia: malformed ping sender: %w", err)
	}
	return PingMessage{IsPing: w.IsPing, Sender: sender}, nil
}

// FindNodesMessage serves both FIND_NODES and FIND_VALUE (spec.md §4.3.5:
// "the same state machine serves both; a find_value flag changes only the
// terminal behavior and request semantics").
type FindNodesMessage struct {
	Sender     key.Key
	IsRequest  bool
	FindValue  bool
	Target     key.Key
	Nearest    []BucketEntry
	ValueFound bool
	Value      []byte
}

type wireFindNodes struct {
	Sender     string            `json:"sender"`
	IsRequest  bool              `json:"is_request"`
	FindValue  bool              `json:"find_value"`
	Target     string            `json:"target"`
	NumFound   uint32            `json:"num_found"`
	Nearest    []wireBucketEntry `json:"nearest,omitempty"`
	ValueFound bool              `json:"value_found"`
	Value      []byte            `json:"value,omitempty"`
}

// MarshalFindNodes serializes a FindNodesMessage for Message.Payload.
func MarshalFindNodes(m FindNodesMessage) []byte {
	w := wireFindNodes{
		Sender:     m.Sender.String(),
		IsRequest:  m.IsRequest,
		FindValue:  m.FindValue,
		Target:     m.Target.String(),
		NumFound:   uint32(len(m.Nearest)),
		ValueFound: m.ValueFound,
		Value:      m.Value,
	}
	for _, e := range m.Nearest {
		w.Nearest = append(w.Nearest, toWireBucketEntry(e))
	}
	b, _ := json.Marshal(w)
	return b
}

// UnmarshalFindNodes parses a FindNodesMessage from a Message.Payload.
func UnmarshalFindNodes(payload []byte) (FindNodesMessage, error) {
	var w wireFindNodes
	if err := json.Unmarshal(payload, &w); err != nil {
		return FindNodesMessage{}, fmt.Errorf("kademlia: malformed find_nodes payload: %w", err)
	}
	sender, err := key.FromHex(w.Sender)
	if err != nil {
		return FindNodesMessage{}, fmt.Errorf("kademlia: malformed find_nodes sender: %w", err)
	}
	target, err := key.FromHex(w.Target)
	if err != nil {
		return FindNodesMessage{}, fmt.Errorf("kademlia: malformed find_nodes target: %w", err)
	}
	if int(w.NumFound) != len(w.Nearest) {
		return FindNodesMessage{}, fmt.Errorf("kademlia: find_nodes num_found mismatch: declared %d, got %d", w.NumFound, len(w.Nearest))
	}
	nearest := make([]BucketEntry, 0, len(w.Nearest))
	for _, we := range w.Nearest {
		e, err := we.toBucketEntry()
		if err != nil {
			return FindNodesMessage{}, fmt.Errorf("kademlia: malformed find_nodes entry: %w", err)
		}
		nearest = append(nearest, e)
	}
	return FindNodesMessage{
		Sender: sender, IsRequest: w.IsRequest, FindValue: w.FindValue, Target: target,
		Nearest: nearest, ValueFound: w.ValueFound, Value: w.Value,
	}, nil
}

// StoreMessage is the STORE payload: a request carries the value to store;
// the acknowledgment reply carries neither (spec.md §4.3.6).
type StoreMessage struct {
	IsRequest bool
	Sender    key.Key
	Value     []byte
}

type wireStore struct {
	IsRequest bool   `json:"is_request"`
	Sender    string `json:"sender"`
	Value     []byte `json:"value,omitempty"`
}

// MarshalStore serializes a StoreMessage for Message.Payload.
func MarshalStore(m StoreMessage) []byte {
	w := wireStore{IsRequest: m.IsRequest, Sender: m.Sender.String(), Value: m.Value}
	b, _ := json.Marshal(w)
	return b
}

// UnmarshalStore parses a StoreMessage from a Message.Payload.
func UnmarshalStore(payload []byte) (StoreMessage, error) {
	var w wireStore
	if err := json.Unmarshal(payload, &w); err != nil {
		return StoreMessage{}, fmt.Errorf("kademlia: malformed store payload: %w", err)
	}
	sender, err := key.FromHex(w.Sender)
	if err != nil {
		return StoreMessage{}, fmt.Errorf("kademlia: malformed store sender: %w", err)
	}
	return StoreMessage{IsRequest: w.IsRequest, Sender: sender, Value: w.Value}, nil
}
