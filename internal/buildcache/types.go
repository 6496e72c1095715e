package buildcache

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type Kind string

const (
	KindExecutable Kind = "executable"
	KindPlugin     Kind = "plugin"
)

// Entry describes one cached build artifact.
type Entry struct {
	Digest   string `msgpack:"digest"`
	Kind     Kind   `msgpack:"kind"`
	Package  string `msgpack:"package"`
	Artifact string `msgpack:"artifact"`
	Size     int64  `msgpack:"size"`
	BuiltAt  int64  `msgpack:"builtAt"` // Unix timestamp (seconds)
}

func (e *Entry) Key() []byte {
	return []byte(e.Digest)
}

func (e *Entry) MarshalBinary() (data []byte, err error) {
	type alias Entry
	return msgpack.Marshal((*alias)(e))
}

func (e *Entry) UnmarshalBinary(data []byte) error {
	type alias Entry
	return msgpack.Unmarshal(data, (*alias)(e))
}
