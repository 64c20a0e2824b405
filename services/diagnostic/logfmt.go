package diagnostic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

var logfmtPool = buffer.NewPool()

// logfmtEncoder writes each entry as one line of
//
//	ts=<time> lvl=<level> msg=<message> key=value ...
//
// Values containing spaces, quotes or '=' are quoted.
type logfmtEncoder struct {
	// Fields added with With, each preceded by a space.
	fields    *buffer.Buffer
	namespace string
}

func newLogfmtEncoder() zapcore.Encoder {
	return &logfmtEncoder{fields: logfmtPool.Get()}
}

func (e *logfmtEncoder) Clone() zapcore.Encoder {
	c := &logfmtEncoder{
		fields:    logfmtPool.Get(),
		namespace: e.namespace,
	}
	_, _ = c.fields.Write(e.fields.Bytes())
	return c
}

func (e *logfmtEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := e.Clone().(*logfmtEncoder)
	defer c.fields.Free()
	for _, f := range fields {
		f.AddTo(c)
	}

	line := logfmtPool.Get()
	line.AppendString("ts=")
	line.AppendString(ent.Time.Format(rfc3339Milli))
	line.AppendString(" lvl=")
	line.AppendString(ent.Level.String())
	line.AppendString(" msg=")
	appendLogfmtValue(line, ent.Message)
	_, _ = line.Write(c.fields.Bytes())
	if ent.Stack != "" {
		line.AppendString(" stack=")
		appendLogfmtValue(line, ent.Stack)
	}
	line.AppendByte('\n')
	return line, nil
}

func appendLogfmtValue(b *buffer.Buffer, s string) {
	if s == "" || strings.ContainsAny(s, " \"=\t\n") {
		b.AppendString(strconv.Quote(s))
		return
	}
	b.AppendString(s)
}

func (e *logfmtEncoder) key(k string) {
	e.fields.AppendByte(' ')
	if e.namespace != "" {
		e.fields.AppendString(e.namespace)
		e.fields.AppendByte('.')
	}
	e.fields.AppendString(k)
	e.fields.AppendByte('=')
}

// addComplex renders arrays and objects through a map encoder.
func (e *logfmtEncoder) addComplex(key string, add func(*zapcore.MapObjectEncoder) error) error {
	m := zapcore.NewMapObjectEncoder()
	if err := add(m); err != nil {
		return err
	}
	e.AddString(key, fmt.Sprint(m.Fields[key]))
	return nil
}

func (e *logfmtEncoder) AddArray(key string, v zapcore.ArrayMarshaler) error {
	return e.addComplex(key, func(m *zapcore.MapObjectEncoder) error { return m.AddArray(key, v) })
}

func (e *logfmtEncoder) AddObject(key string, v zapcore.ObjectMarshaler) error {
	return e.addComplex(key, func(m *zapcore.MapObjectEncoder) error { return m.AddObject(key, v) })
}

func (e *logfmtEncoder) AddReflected(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.AddString(key, string(b))
	return nil
}

func (e *logfmtEncoder) OpenNamespace(key string) {
	if e.namespace == "" {
		e.namespace = key
		return
	}
	e.namespace += "." + key
}

func (e *logfmtEncoder) AddString(key, v string) {
	e.key(key)
	appendLogfmtValue(e.fields, v)
}

func (e *logfmtEncoder) AddBinary(key string, v []byte) {
	e.AddString(key, base64.StdEncoding.EncodeToString(v))
}

func (e *logfmtEncoder) AddByteString(key string, v []byte) { e.AddString(key, string(v)) }

func (e *logfmtEncoder) AddBool(key string, v bool) {
	e.key(key)
	e.fields.AppendBool(v)
}

func (e *logfmtEncoder) AddComplex128(key string, v complex128) { e.AddString(key, fmt.Sprint(v)) }
func (e *logfmtEncoder) AddComplex64(key string, v complex64)   { e.AddString(key, fmt.Sprint(v)) }

func (e *logfmtEncoder) AddDuration(key string, v time.Duration) { e.AddString(key, v.String()) }

func (e *logfmtEncoder) AddFloat64(key string, v float64) {
	e.key(key)
	e.fields.AppendFloat(v, 64)
}

func (e *logfmtEncoder) AddFloat32(key string, v float32) {
	e.key(key)
	e.fields.AppendFloat(float64(v), 32)
}

func (e *logfmtEncoder) AddInt64(key string, v int64) {
	e.key(key)
	e.fields.AppendInt(v)
}

func (e *logfmtEncoder) AddInt(key string, v int)     { e.AddInt64(key, int64(v)) }
func (e *logfmtEncoder) AddInt32(key string, v int32) { e.AddInt64(key, int64(v)) }
func (e *logfmtEncoder) AddInt16(key string, v int16) { e.AddInt64(key, int64(v)) }
func (e *logfmtEncoder) AddInt8(key string, v int8)   { e.AddInt64(key, int64(v)) }

func (e *logfmtEncoder) AddUint64(key string, v uint64) {
	e.key(key)
	e.fields.AppendUint(v)
}

func (e *logfmtEncoder) AddUint(key string, v uint)       { e.AddUint64(key, uint64(v)) }
func (e *logfmtEncoder) AddUint32(key string, v uint32)   { e.AddUint64(key, uint64(v)) }
func (e *logfmtEncoder) AddUint16(key string, v uint16)   { e.AddUint64(key, uint64(v)) }
func (e *logfmtEncoder) AddUint8(key string, v uint8)     { e.AddUint64(key, uint64(v)) }
func (e *logfmtEncoder) AddUintptr(key string, v uintptr) { e.AddUint64(key, uint64(v)) }

func (e *logfmtEncoder) AddTime(key string, v time.Time) { e.AddString(key, v.Format(rfc3339Milli)) }
