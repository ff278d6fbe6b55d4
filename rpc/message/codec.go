package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"github.com/pyropy/idxshare/core/model"
)

// encoder writes the fields of one object in the order they are added.
// The first failure sticks and later writes are ignored.
type encoder struct {
	buf bytes.Buffer
	err error
}

func newEncoder(class string) *encoder {
	e := &encoder{}
	e.buf.WriteByte('{')
	e.quote(classKey)
	e.buf.WriteByte(':')
	e.quote(class)

	return e
}

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}

	e.buf.WriteByte('}')

	return e.buf.Bytes(), nil
}

func (e *encoder) failf(name, format string, args ...interface{}) {
	if e.err == nil {
		e.err = serializationErrorf(name+": "+format, args...)
	}
}

func (e *encoder) quote(s string) {
	b, err := json.Marshal(s)
	if err != nil {
		e.failf("string", "%v", err)
		return
	}

	e.buf.Write(b)
}

func (e *encoder) field(name string) bool {
	if e.err != nil {
		return false
	}

	e.buf.WriteByte(',')
	e.quote(name)
	e.buf.WriteByte(':')

	return true
}

func (e *encoder) String(name, v string) {
	if e.field(name) {
		e.quote(v)
	}
}

func (e *encoder) Bool(name string, v bool) {
	if e.field(name) {
		e.buf.WriteString(strconv.FormatBool(v))
	}
}

func (e *encoder) Int64(name string, v int64) {
	if e.field(name) {
		e.buf.WriteString(strconv.FormatInt(v, 10))
	}
}

func (e *encoder) Int32(name string, v int32) {
	e.Int64(name, int64(v))
}

// Int writes a Go int that must fit the 32-bit wire range.
func (e *encoder) Int(name string, v int) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		e.failf(name, "%d out of 32-bit range", v)
		return
	}

	e.Int64(name, int64(v))
}

func (e *encoder) Strings(name string, vs []string) {
	if !e.field(name) {
		return
	}

	e.buf.WriteByte('[')
	for i, v := range vs {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.quote(v)
	}
	e.buf.WriteByte(']')
}

func (e *encoder) Ints(name string, vs []int) {
	if !e.field(name) {
		return
	}

	e.buf.WriteByte('[')
	for i, v := range vs {
		if v < math.MinInt32 || v > math.MaxInt32 {
			e.failf(name, "element %d: %d out of 32-bit range", i, v)
			return
		}
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.buf.WriteString(strconv.Itoa(v))
	}
	e.buf.WriteByte(']')
}

func (e *encoder) Descriptor(name string, d *model.ChunkDescriptor) {
	if !e.field(name) {
		return
	}

	b, err := encodeDescriptor(d)
	if err != nil {
		e.nestedFailure(name, err)
		return
	}

	e.buf.Write(b)
}

func (e *encoder) Elements(name string, es []*model.IndexElement) {
	if !e.field(name) {
		return
	}

	e.buf.WriteByte('[')
	for i, el := range es {
		b, err := encodeIndexElement(el)
		if err != nil {
			e.nestedFailure(name+"["+strconv.Itoa(i)+"]", err)
			return
		}
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.buf.Write(b)
	}
	e.buf.WriteByte(']')
}

func (e *encoder) nestedFailure(name string, err error) {
	var se *SerializationError
	if errors.As(err, &se) {
		e.failf(name, "%s", se.Msg)
		return
	}

	e.failf(name, "%v", err)
}

func encodeDescriptor(d *model.ChunkDescriptor) ([]byte, error) {
	if d == nil {
		return nil, serializationErrorf("nil %s", kindChunkDescriptor)
	}

	e := newEncoder(kindChunkDescriptor)
	e.Int64("fileLength", d.FileLength)
	e.Int32("blockLength", d.BlockLength)
	e.Int32("numBlocks", d.NumBlocks)
	e.String("fileMd5", d.FileHash())
	e.Strings("blockMd5", d.BlockMD5)

	return e.bytes()
}

func encodeIndexElement(el *model.IndexElement) ([]byte, error) {
	if el == nil {
		return nil, serializationErrorf("nil %s", kindIndexElement)
	}

	e := newEncoder(kindIndexElement)
	e.String("ip", el.IP)
	e.Int("port", el.Port)
	e.Descriptor("fileDescr", el.FileDescr)
	e.String("filename", el.Filename)
	e.String("secret", el.Secret)

	return e.bytes()
}

// decoder reads the declared fields of one object. Every declared field
// must be present; undeclared fields are ignored. The first failure sticks
// and later reads return zero values.
type decoder struct {
	fields map[string]json.RawMessage
	err    error
}

func newDecoder(data []byte) (*decoder, error) {
	if !isObject(data) {
		return nil, serializationErrorf("expected a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, serializationErrorf("invalid JSON: %v", err)
	}

	return &decoder{fields: fields}, nil
}

func (d *decoder) failf(name, format string, args ...interface{}) {
	if d.err == nil {
		d.err = serializationErrorf(name+": "+format, args...)
	}
}

func (d *decoder) fail(name string, err error) {
	var se *SerializationError
	if errors.As(err, &se) {
		d.failf(name, "%s", se.Msg)
		return
	}

	d.failf(name, "%v", err)
}

func (d *decoder) field(name string) (json.RawMessage, bool) {
	if d.err != nil {
		return nil, false
	}

	raw, ok := d.fields[name]
	if !ok {
		d.failf(name, "missing field")
		return nil, false
	}

	return bytes.TrimSpace(raw), true
}

func (d *decoder) class() string {
	return d.String(classKey)
}

func (d *decoder) expectClass(want string) {
	if got := d.class(); d.err == nil && got != want {
		d.failf(classKey, "expected %q, got %q", want, got)
	}
}

func (d *decoder) String(name string) string {
	raw, ok := d.field(name)
	if !ok {
		return ""
	}

	s, err := parseString(raw)
	if err != nil {
		d.fail(name, err)
	}

	return s
}

func (d *decoder) Bool(name string) bool {
	raw, ok := d.field(name)
	if !ok {
		return false
	}

	switch string(raw) {
	case "true":
		return true
	case "false":
		return false
	}

	d.failf(name, "expected a boolean, got %s", raw)

	return false
}

func (d *decoder) Int64(name string) int64 {
	raw, ok := d.field(name)
	if !ok {
		return 0
	}

	v, err := parseInt(raw, 64)
	if err != nil {
		d.fail(name, err)
	}

	return v
}

func (d *decoder) Int32(name string) int32 {
	raw, ok := d.field(name)
	if !ok {
		return 0
	}

	v, err := parseInt(raw, 32)
	if err != nil {
		d.fail(name, err)
	}

	return int32(v)
}

func (d *decoder) Int(name string) int {
	return int(d.Int32(name))
}

func (d *decoder) array(name string) []json.RawMessage {
	raw, ok := d.field(name)
	if !ok {
		return nil
	}

	if len(raw) == 0 || raw[0] != '[' {
		d.failf(name, "expected an array, got %s", raw)
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		d.fail(name, err)
		return nil
	}

	return elems
}

func (d *decoder) Strings(name string) []string {
	elems := d.array(name)
	if d.err != nil {
		return nil
	}

	out := make([]string, 0, len(elems))
	for i, raw := range elems {
		s, err := parseString(bytes.TrimSpace(raw))
		if err != nil {
			d.fail(name+"["+strconv.Itoa(i)+"]", err)
			return nil
		}
		out = append(out, s)
	}

	return out
}

func (d *decoder) Ints(name string) []int {
	elems := d.array(name)
	if d.err != nil {
		return nil
	}

	out := make([]int, 0, len(elems))
	for i, raw := range elems {
		v, err := parseInt(bytes.TrimSpace(raw), 32)
		if err != nil {
			d.fail(name+"["+strconv.Itoa(i)+"]", err)
			return nil
		}
		out = append(out, int(v))
	}

	return out
}

func (d *decoder) Descriptor(name string) *model.ChunkDescriptor {
	raw, ok := d.field(name)
	if !ok {
		return nil
	}

	descr, err := decodeDescriptor(raw)
	if err != nil {
		d.fail(name, err)
		return nil
	}

	return descr
}

func (d *decoder) Elements(name string) []*model.IndexElement {
	elems := d.array(name)
	if d.err != nil {
		return nil
	}

	out := make([]*model.IndexElement, 0, len(elems))
	for i, raw := range elems {
		el, err := decodeIndexElement(raw)
		if err != nil {
			d.fail(name+"["+strconv.Itoa(i)+"]", err)
			return nil
		}
		out = append(out, el)
	}

	return out
}

func decodeDescriptor(raw json.RawMessage) (*model.ChunkDescriptor, error) {
	d, err := newDecoder(raw)
	if err != nil {
		return nil, err
	}

	d.expectClass(kindChunkDescriptor)
	descr := &model.ChunkDescriptor{
		FileLength:  d.Int64("fileLength"),
		BlockLength: d.Int32("blockLength"),
		NumBlocks:   d.Int32("numBlocks"),
		FileMD5:     d.String("fileMd5"),
		BlockMD5:    d.Strings("blockMd5"),
	}
	if d.err != nil {
		return nil, d.err
	}

	return descr, nil
}

func decodeIndexElement(raw json.RawMessage) (*model.IndexElement, error) {
	d, err := newDecoder(raw)
	if err != nil {
		return nil, err
	}

	d.expectClass(kindIndexElement)
	el := &model.IndexElement{
		IP:        d.String("ip"),
		Port:      d.Int("port"),
		FileDescr: d.Descriptor("fileDescr"),
		Filename:  d.String("filename"),
		Secret:    d.String("secret"),
	}
	if d.err != nil {
		return nil, d.err
	}

	return el, nil
}

func parseString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", serializationErrorf("expected a string, got %s", raw)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", serializationErrorf("%v", err)
	}

	return s, nil
}

// parseInt accepts only a bare JSON integer literal within bitSize.
func parseInt(raw json.RawMessage, bitSize int) (int64, error) {
	v, err := strconv.ParseInt(string(raw), 10, bitSize)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, serializationErrorf("%s out of %d-bit range", raw, bitSize)
		}

		return 0, serializationErrorf("expected an integer, got %s", raw)
	}

	return v, nil
}
