// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// StreamContentType is the media type of an encoded result stream.
const StreamContentType = "application/x-ndjson"

// Frame kinds following the root line of a stream.
const (
	frameValue     = "v"
	frameRejected  = "x"
	frameFile      = "f"
	frameFileChunk = "c"
)

const chunkSize = 48 << 10

// StreamEncoder writes a value as a sequence of newline delimited frames.
//
// The first line holds the value with references in place of deferred values
// and files. Each following line resolves one reference.
type StreamEncoder struct {
	w     io.Writer
	flush func()

	// RejectMessage converts the error of a failed deferred value into the
	// message sent to the reader. It defaults to err.Error().
	RejectMessage func(error) string
}

// NewStreamEncoder returns a StreamEncoder writing to w. If flush is non-nil
// it is called after every line.
func NewStreamEncoder(w io.Writer, flush func()) *StreamEncoder {
	return &StreamEncoder{w: w, flush: flush}
}

// Encode writes v and everything it refers to.
func (s *StreamEncoder) Encode(v any) error {
	enc := newEncoder()
	root, err := enc.value(v, 0)
	if err != nil {
		return errors.Wrap(err, "encoding value")
	}
	if err := s.line(root); err != nil {
		return err
	}
	var nd, nf int
	for nd < len(enc.deferred) || nf < len(enc.files) {
		if nd < len(enc.deferred) {
			ref := enc.deferred[nd]
			nd++
			if err := s.resolve(enc, ref); err != nil {
				return err
			}
			continue
		}
		ref := enc.files[nf]
		nf++
		if err := s.file(ref); err != nil {
			return err
		}
	}
	return nil
}

func (s *StreamEncoder) resolve(enc *encoder, ref deferredRef) error {
	var v any
	var err error
	if ref.d.fn != nil {
		v, err = ref.d.fn()
	}
	if err != nil {
		msg := err.Error()
		if s.RejectMessage != nil {
			msg = s.RejectMessage(err)
		}
		return s.line(object{{"k", frameRejected}, {"p", ref.id}, {"e", msg}})
	}
	ev, err := enc.value(v, 0)
	if err != nil {
		return errors.Wrapf(err, "encoding deferred value %d", ref.id)
	}
	return s.line(object{{"k", frameValue}, {"p", ref.id}, {"v", ev}})
}

func (s *StreamEncoder) file(ref fileRef) error {
	if err := s.line(object{{"k", frameFile}, {"f", ref.key}, {"name", ref.file.Name}, {"type", ref.file.Type}}); err != nil {
		return err
	}
	r, err := ref.file.Open()
	if err != nil {
		return errors.Wrapf(err, "opening %s", ref.file.Name)
	}
	defer r.Close()
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := base64.StdEncoding.EncodeToString(buf[:n])
			if err := s.line(object{{"k", frameFileChunk}, {"f", ref.key}, {"c", chunk}}); err != nil {
				return err
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		} else if err != nil {
			return errors.Wrapf(err, "reading %s", ref.file.Name)
		}
	}
}

func (s *StreamEncoder) line(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshalling frame")
	}
	b = append(b, '\n')
	if _, err := s.w.Write(b); err != nil {
		return errors.Wrap(err, "writing frame")
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

type frame struct {
	Kind  string          `json:"k"`
	ID    *int            `json:"p"`
	Value json.RawMessage `json:"v"`
	Err   string          `json:"e"`
	File  string          `json:"f"`
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Chunk string          `json:"c"`
}

type spoolFile struct {
	path string
	name string
	typ  string
	w    billy.File
}

// DecodeStream reads a stream written by a StreamEncoder and returns the value
// once every frame has been consumed.
func DecodeStream(r io.Reader, opts ...DecodeOption) (any, error) {
	o := makeDecodeOptions(opts)
	br := bufio.NewReader(r)
	root, err := readLine(br)
	if err == io.EOF {
		return nil, decodeErrorf("empty stream")
	} else if err != nil {
		return nil, wrapDecodeError(err, "reading stream")
	}
	rv := newReviver()
	dir := uuid.NewString()
	spooled := make(map[string]*spoolFile)
	var order []string
	defer func() {
		for _, sf := range spooled {
			if sf.w != nil {
				sf.w.Close()
			}
		}
	}()
	for {
		line, err := readLine(br)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, wrapDecodeError(err, "reading stream")
		}
		if len(line) == 0 {
			continue
		}
		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, wrapDecodeError(err, "invalid frame")
		}
		switch f.Kind {
		case frameValue, frameRejected:
			if f.ID == nil {
				return nil, decodeErrorf("frame %q without id", f.Kind)
			}
			if _, ok := rv.deferred[*f.ID]; ok {
				return nil, decodeErrorf("deferred value %d resolved twice", *f.ID)
			}
			if _, ok := rv.rejected[*f.ID]; ok {
				return nil, decodeErrorf("deferred value %d resolved twice", *f.ID)
			}
			if f.Kind == frameRejected {
				rv.rejected[*f.ID] = f.Err
			} else if len(f.Value) == 0 {
				rv.deferred[*f.ID] = json.RawMessage("null")
			} else {
				rv.deferred[*f.ID] = f.Value
			}
		case frameFile:
			if !validKey(f.File) {
				return nil, decodeErrorf("invalid file key %q", f.File)
			}
			if _, ok := spooled[f.File]; ok {
				return nil, decodeErrorf("file %q sent twice", f.File)
			}
			p := path.Join(dir, f.File)
			if err := o.fs.MkdirAll(dir, 0o755); err != nil {
				return nil, wrapDecodeError(err, "creating spool directory")
			}
			w, err := o.fs.Create(p)
			if err != nil {
				return nil, wrapDecodeError(err, "creating spool file")
			}
			spooled[f.File] = &spoolFile{path: p, name: f.Name, typ: f.Type, w: w}
			order = append(order, f.File)
		case frameFileChunk:
			sf, ok := spooled[f.File]
			if !ok {
				return nil, decodeErrorf("chunk for unknown file %q", f.File)
			}
			b, err := base64.StdEncoding.DecodeString(f.Chunk)
			if err != nil {
				return nil, wrapDecodeError(err, "invalid file chunk")
			}
			if _, err := sf.w.Write(b); err != nil {
				return nil, wrapDecodeError(err, "writing spool file")
			}
		default:
			return nil, decodeErrorf("unknown frame kind %q", f.Kind)
		}
	}
	for _, key := range order {
		sf := spooled[key]
		err := sf.w.Close()
		sf.w = nil
		if err != nil {
			return nil, wrapDecodeError(err, "closing spool file")
		}
		file, err := OpenFile(o.fs, sf.path, sf.name, sf.typ)
		if err != nil {
			return nil, wrapDecodeError(err, "opening spool file")
		}
		rv.files[key] = file
	}
	return rv.parse(root)
}

// readLine returns the next line without its terminator. A final line with
// no terminator is returned with a nil error.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}
