package vars

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformedBatch is returned by DecodeBatch for frames that do not carry
// (key, version, value) records.
var ErrMalformedBatch = errors.New("vars: malformed batch")

// Replica is the client-side read copy of the replicated variables. It
// applies updates in arrival order and discards any whose version is not
// newer than the one it already holds.
type Replica struct {
	entries map[string]Update
	seq     uint64
}

func NewReplica() *Replica {
	return &Replica{entries: make(map[string]Update)}
}

// Apply stores u unless it is stale or a duplicate. It reports whether the
// replica changed.
func (r *Replica) Apply(u Update) bool {
	if u.Seq > r.seq {
		r.seq = u.Seq
	}
	if cur, ok := r.entries[u.Key]; ok && cur.Version >= u.Version {
		return false
	}
	r.entries[u.Key] = u
	return true
}

// ApplyAll applies a batch and returns how many updates took effect.
func (r *Replica) ApplyAll(updates []Update) int {
	n := 0
	for _, u := range updates {
		if r.Apply(u) {
			n++
		}
	}
	return n
}

// Begin prepares the replica for a new stream. Unless the server resumed
// from the replica's own sequence, everything held is dropped: a snapshot
// follows, and its versions may restart below the ones held.
func (r *Replica) Begin(resumed bool) {
	if resumed {
		return
	}
	clear(r.entries)
	r.seq = 0
}

// Get returns the replicated value of key or def.
func (r *Replica) Get(key string, def any) any {
	if u, ok := r.entries[key]; ok {
		return u.Interface()
	}
	return def
}

// Version returns the version held for key.
func (r *Replica) Version(key string) uint64 {
	return r.entries[key].Version
}

// Seq is the highest flush sequence seen, used to resume after reconnecting.
func (r *Replica) Seq() uint64 { return r.seq }

// Keys returns all keys held, sorted.
func (r *Replica) Keys() []string {
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EncodeBatch marshals updates into a binary protobuf frame: a ListValue of
// {k, v, s, val} structs.
func EncodeBatch(updates []Update) ([]byte, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(updates))}
	for _, u := range updates {
		value := u.Value
		if value == nil {
			value = structpb.NewNullValue()
		}
		rec := &structpb.Struct{Fields: map[string]*structpb.Value{
			"k":   structpb.NewStringValue(u.Key),
			"v":   structpb.NewNumberValue(float64(u.Version)),
			"s":   structpb.NewNumberValue(float64(u.Seq)),
			"val": value,
		}}
		list.Values = append(list.Values, structpb.NewStructValue(rec))
	}
	data, err := proto.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	return data, nil
}

// DecodeBatch is the inverse of EncodeBatch.
func DecodeBatch(data []byte) ([]Update, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	out := make([]Update, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		rec := item.GetStructValue()
		if rec == nil {
			return nil, fmt.Errorf("%w: record %d is not a struct", ErrMalformedBatch, i)
		}
		fields := rec.GetFields()
		key := fields["k"].GetStringValue()
		if key == "" {
			return nil, fmt.Errorf("%w: record %d has no key", ErrMalformedBatch, i)
		}
		out = append(out, Update{
			Key:     key,
			Version: uint64(fields["v"].GetNumberValue()),
			Seq:     uint64(fields["s"].GetNumberValue()),
			Value:   fields["val"],
		})
	}
	return out, nil
}
