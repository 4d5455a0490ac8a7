// Package transfer defines Pentagon's wire types (byte content as JSON
// integer arrays, tagged unions for File and FilePath) and the Transfer
// Resolver that moves bytes between workspace files, tmp buffers, standard
// streams, and the blob store according to the legal source/sink matrix.
package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Bytes marshals to and from a JSON array of integers in [0,255], matching
// the wire format mandated for byte content — Go's default []byte
// base64 encoding is not used anywhere on this service's wire.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%d", v)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("decode byte array: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range [0,255]", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Kind identifies which FilePath/File variant a value holds.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
	KindStdin  Kind = "stdin"
	KindStdout Kind = "stdout"
	KindStderr Kind = "stderr"
	KindTmp    Kind = "tmp"
)

// FilePath is a transfer endpoint: a tagged union over local/remote/stdin/
// stdout/stderr/tmp, matching §3 of the specification exactly. Only the
// fields relevant to Kind are populated.
type FilePath struct {
	Kind       Kind
	Name       string // local
	Executable bool   // local
	Key        string // remote
	TmpID      uint32 // tmp
}

type filePathWire struct {
	Type       string          `json:"type"`
	Name       string          `json:"name,omitempty"`
	Executable bool            `json:"executable,omitempty"`
	ID         json.RawMessage `json:"id,omitempty"`
}

func (p FilePath) MarshalJSON() ([]byte, error) {
	wire := filePathWire{Type: string(p.Kind)}
	switch p.Kind {
	case KindLocal:
		wire.Name = p.Name
		wire.Executable = p.Executable
	case KindRemote:
		raw, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		wire.ID = raw
	case KindTmp:
		raw, err := json.Marshal(p.TmpID)
		if err != nil {
			return nil, err
		}
		wire.ID = raw
	case KindStdin, KindStdout, KindStderr:
		// no additional fields
	default:
		return nil, fmt.Errorf("marshal filepath: unknown kind %q", p.Kind)
	}
	return json.Marshal(wire)
}

func (p *FilePath) UnmarshalJSON(data []byte) error {
	var wire filePathWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode filepath: %w", err)
	}
	switch Kind(wire.Type) {
	case KindLocal:
		*p = FilePath{Kind: KindLocal, Name: wire.Name, Executable: wire.Executable}
	case KindRemote:
		var key string
		if len(wire.ID) > 0 {
			if err := json.Unmarshal(wire.ID, &key); err != nil {
				return fmt.Errorf("decode filepath: remote id: %w", err)
			}
		}
		*p = FilePath{Kind: KindRemote, Key: key}
	case KindTmp:
		var id uint32
		if len(wire.ID) == 0 {
			return fmt.Errorf("decode filepath: tmp variant missing id")
		}
		if err := json.Unmarshal(wire.ID, &id); err != nil {
			return fmt.Errorf("decode filepath: tmp id: %w", err)
		}
		*p = FilePath{Kind: KindTmp, TmpID: id}
	case KindStdin:
		*p = FilePath{Kind: KindStdin}
	case KindStdout:
		*p = FilePath{Kind: KindStdout}
	case KindStderr:
		*p = FilePath{Kind: KindStderr}
	default:
		return fmt.Errorf("decode filepath: unknown type %q", wire.Type)
	}
	return nil
}

// File is a prestaged input to the request: either inline bytes destined
// for a workspace path, or a reference into the blob store to be fetched
// into a workspace path.
type File struct {
	Kind    Kind
	Name    string
	Content Bytes // local
	Key     string // remote
}

type fileWire struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content Bytes  `json:"content,omitempty"`
	Key     string `json:"id,omitempty"`
}

func (f File) MarshalJSON() ([]byte, error) {
	wire := fileWire{Type: string(f.Kind), Name: f.Name}
	switch f.Kind {
	case KindLocal:
		wire.Content = f.Content
	case KindRemote:
		wire.Key = f.Key
	default:
		return nil, fmt.Errorf("marshal file: unsupported kind %q", f.Kind)
	}
	return json.Marshal(wire)
}

func (f *File) UnmarshalJSON(data []byte) error {
	var wire fileWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode file: %w", err)
	}
	switch Kind(wire.Type) {
	case KindLocal:
		*f = File{Kind: KindLocal, Name: wire.Name, Content: wire.Content}
	case KindRemote:
		*f = File{Kind: KindRemote, Name: wire.Name, Key: wire.Key}
	default:
		return fmt.Errorf("decode file: unknown type %q", wire.Type)
	}
	return nil
}

// ExecutionTransfer is one {from, to} movement declared in copy_in or copy_out.
type ExecutionTransfer struct {
	From FilePath `json:"from"`
	To   FilePath `json:"to"`
}

// Execution is one stage of an ExecutionRequest.
type Execution struct {
	Program       string              `json:"program"`
	Args          []string            `json:"args"`
	TimeLimit     int                 `json:"time_limit"`
	WallTimeLimit int                 `json:"wall_time_limit"`
	MemoryLimit   int                 `json:"memory_limit"`
	CopyIn        []ExecutionTransfer `json:"copy_in"`
	CopyOut       []ExecutionTransfer `json:"copy_out"`
	ReturnFiles   []FilePath          `json:"return_files"`
	DieOnError    bool                `json:"die_on_error"`
}

// NamedBytes is one entry of an ExecutionResult's return_files.
type NamedBytes struct {
	Name    string `json:"name"`
	Content Bytes  `json:"content"`
}

// ExecutionResult is the outcome of one stage.
type ExecutionResult struct {
	ExitCode    int          `json:"exit_code"`
	TimeUsed    int64        `json:"time_used"`
	MemoryUsed  int64        `json:"memory_used"`
	ReturnFiles []NamedBytes `json:"return_files"`
}

// ExecutionRequest is the full body of POST /execute.
type ExecutionRequest struct {
	Executions []Execution `json:"executions"`
	Files      []File      `json:"files"`
}
