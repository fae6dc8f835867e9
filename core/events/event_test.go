package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type namedEvent string

func (n namedEvent) EventType() string { return string(n) }

type sink struct{ got []string }

func (s *sink) Emit(evt Event) { s.got = append(s.got, evt.EventType()) }

func TestRecorderFlushPreservesOrder(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(namedEvent("a"))
	rec.Emit(nil)
	rec.Emit(namedEvent("b"))
	require.Len(t, rec.Events(), 2)

	dst := &sink{}
	rec.Flush(dst)
	require.Equal(t, []string{"a", "b"}, dst.got)
	require.Empty(t, rec.Events())

	rec.Emit(namedEvent("c"))
	rec.Reset()
	rec.Flush(dst)
	require.Equal(t, []string{"a", "b"}, dst.got)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.Emit(namedEvent("a"))
	rec.Flush(&sink{})
	rec.Reset()
	require.Nil(t, rec.Events())
	NoopEmitter{}.Emit(namedEvent("ignored"))
}
