package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func BenchmarkTraceLogging(b *testing.B) {
	Root().SetHandler(LvlFilterHandler(LvlInfo, StreamHandler(os.Stderr, TerminalFormat(true))))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Trace("a message", "v", i)
	}
}

type notimeHandler struct {
	next Handler
}

func (n notimeHandler) Log(r *Record) error {
	r.Time = time.Unix(0, 0).UTC()
	return n.next.Log(r)
}

func TestLoggingLevelFilter(t *testing.T) {
	out := new(bytes.Buffer)
	logger := New()
	logger.SetHandler(notimeHandler{LvlFilterHandler(LvlDebug, StreamHandler(out, TerminalFormat(false)))})
	logger.Trace("dropped", "foo", "bar")
	logger.Debug("a message", "foo", "bar")

	want := `DEBUG[01-01|00:00:00.000] a message                                foo=bar
`
	require.Equal(t, want, out.String())
}

func TestLoggingWithOrigins(t *testing.T) {
	PrintOrigins(true)
	defer PrintOrigins(false)

	out := new(bytes.Buffer)
	logger := New()
	logger.SetHandler(notimeHandler{StreamHandler(out, TerminalFormat(false))})
	logger.Info("a message", "foo", "bar")

	have := out.String()
	require.True(t, strings.HasPrefix(have, "INFO [01-01|00:00:00.000|"), "have %q", have)
	require.Contains(t, have, "log/logger_test.go:")
}

func TestLoggerContext(t *testing.T) {
	var recs []*Record
	logger := New("conn", "in")
	logger.SetHandler(FuncHandler(func(r *Record) error {
		recs = append(recs, r)
		return nil
	}))
	child := logger.New("id", "ab")
	child.Info("hello", Ctx{"n": 1})
	child.Warn("odd", "dangling")

	require.Len(t, recs, 2)
	require.Equal(t, []interface{}{"conn", "in", "id", "ab", "n", 1}, recs[0].Ctx)
	require.Equal(t, LvlWarn, recs[1].Lvl)
	require.Equal(t, []interface{}{"conn", "in", "id", "ab", "dangling", nil, errorKey, "Normalized odd number of arguments by adding nil"}, recs[1].Ctx)
}

func TestLazyHandler(t *testing.T) {
	var rec *Record
	calls := 0
	logger := New()
	logger.SetHandler(LazyHandler(FuncHandler(func(r *Record) error {
		rec = r
		return nil
	})))
	logger.Info("lazy", "v", Lazy{Fn: func() int { calls++; return 42 }})

	require.Equal(t, 1, calls)
	require.Equal(t, []interface{}{"v", 42}, rec.Ctx)
}

func TestMultiHandler(t *testing.T) {
	a, b := new(bytes.Buffer), new(bytes.Buffer)
	logger := New()
	logger.SetHandler(MultiHandler(
		LvlFilterHandler(LvlError, StreamHandler(a, LogfmtFormat())),
		StreamHandler(b, LogfmtFormat()),
	))
	logger.Info("only b")
	require.Zero(t, a.Len())
	require.NotZero(t, b.Len())
}

func TestLvlFromString(t *testing.T) {
	for s, want := range map[string]Lvl{"trace": LvlTrace, "dbug": LvlDebug, "info": LvlInfo, "warn": LvlWarn, "error": LvlError, "crit": LvlCrit} {
		lvl, err := LvlFromString(s)
		require.NoError(t, err)
		require.Equal(t, want, lvl)
	}
	_, err := LvlFromString("loud")
	require.Error(t, err)
}
