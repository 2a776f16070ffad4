// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ArgsField is the name of the multipart part holding the tagged arguments.
const ArgsField = "$args"

// Payload is an encoded argument list ready to be sent as a request body.
type Payload struct {
	Body        io.ReadCloser
	ContentType string
}

// Encode converts an argument list into a multipart payload.
//
// File contents are copied into the body lazily as it is read.
func Encode(values []any) (*Payload, error) {
	enc := newEncoder()
	args := make([]any, len(values))
	for i, v := range values {
		ev, err := enc.value(v, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding argument %d", i)
		}
		args[i] = ev
	}
	if len(enc.deferred) > 0 {
		return nil, errors.New("deferred values are not supported in arguments")
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling arguments")
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, b, enc.files))
	}()
	return &Payload{Body: pr, ContentType: mw.FormDataContentType()}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeParts(mw *multipart.Writer, args []byte, files []fileRef) error {
	if err := mw.WriteField(ArgsField, string(args)); err != nil {
		return errors.Wrap(err, "writing arguments")
	}
	for _, ref := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(tagFile+ref.key), quoteEscaper.Replace(ref.file.Name)))
		contentType := ref.file.Type
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return errors.Wrapf(err, "creating part for %s", ref.file.Name)
		}
		r, err := ref.file.Open()
		if err != nil {
			return errors.Wrapf(err, "opening %s", ref.file.Name)
		}
		_, err = io.Copy(w, r)
		r.Close()
		if err != nil {
			return errors.Wrapf(err, "copying %s", ref.file.Name)
		}
	}
	return mw.Close()
}

// Decode reads an argument list produced by Encode.
//
// File parts are written to the configured filesystem before the argument
// tree is rebuilt, and every file reference in the tree must match a part.
func Decode(body io.Reader, contentType string, opts ...DecodeOption) ([]any, error) {
	o := makeDecodeOptions(opts)
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, wrapDecodeError(err, "invalid content type")
	}
	if mediaType != "multipart/form-data" || params["boundary"] == "" {
		return nil, decodeErrorf("unsupported content type %q", mediaType)
	}
	mr := multipart.NewReader(body, params["boundary"])
	part, err := mr.NextPart()
	if err == io.EOF {
		return nil, decodeErrorf("missing %s part", ArgsField)
	} else if err != nil {
		return nil, wrapDecodeError(err, "reading multipart body")
	}
	if part.FormName() != ArgsField {
		return nil, decodeErrorf("first part is %q, want %s", part.FormName(), ArgsField)
	}
	args, err := io.ReadAll(io.LimitReader(part, o.maxArgsSize+1))
	if err != nil {
		return nil, wrapDecodeError(err, "reading arguments")
	}
	if int64(len(args)) > o.maxArgsSize {
		return nil, decodeErrorf("arguments exceed %d bytes", o.maxArgsSize)
	}
	r := newReviver()
	dir := uuid.NewString()
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, wrapDecodeError(err, "reading multipart body")
		}
		name := part.FormName()
		if !strings.HasPrefix(name, tagFile) {
			return nil, decodeErrorf("unexpected part %q", name)
		}
		key := strings.TrimPrefix(name, tagFile)
		if !validKey(key) {
			return nil, decodeErrorf("invalid file key %q", key)
		}
		if _, dup := r.files[key]; dup {
			return nil, decodeErrorf("duplicate file part %q", key)
		}
		f, err := spool(o.fs, path.Join(dir, key), part)
		if err != nil {
			return nil, wrapDecodeError(err, "spooling file")
		}
		r.files[key] = f
	}
	tree, err := r.parse(args)
	if err != nil {
		return nil, err
	}
	list, ok := tree.([]any)
	if !ok {
		return nil, &DecodeError{Msg: "invalid arguments", Err: ErrNotSequence}
	}
	return list, nil
}

func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}

func spool(fs billy.Filesystem, p string, part *multipart.Part) (*File, error) {
	if err := fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating spool directory")
	}
	w, err := fs.Create(p)
	if err != nil {
		return nil, errors.Wrap(err, "creating spool file")
	}
	if _, err := io.Copy(w, part); err != nil {
		w.Close()
		return nil, errors.Wrap(err, "writing spool file")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing spool file")
	}
	return OpenFile(fs, p, part.FileName(), part.Header.Get("Content-Type"))
}
