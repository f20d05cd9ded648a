package log

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/golang/glog"
)

// glogLocationLength is the widest origin seen by GlogFormat.
var glogLocationLength uint32

// GlogFormat renders a record the way glog lines are laid out: the origin of
// the call, the message and the context pairs. Time and level are left out
// because glog writes its own header.
func GlogFormat() Format {
	return FormatFunc(func(r *Record) []byte {
		location := fmt.Sprintf("%+v", r.Call)
		for _, prefix := range locationTrims {
			location = strings.TrimPrefix(location, prefix)
		}
		align := int(atomic.LoadUint32(&glogLocationLength))
		if align < len(location) {
			align = len(location)
			atomic.StoreUint32(&glogLocationLength, uint32(align))
		}
		buf := new(bytes.Buffer)
		buf.WriteString(location)
		buf.WriteString(strings.Repeat(" ", align-len(location)+1))
		buf.WriteString(escapeMessage(r.Msg))
		if len(r.Ctx) > 0 {
			buf.WriteByte(' ')
			logfmt(buf, r.Ctx, 0, false)
		} else {
			buf.WriteByte('\n')
		}
		return buf.Bytes()
	})
}

// GlogHandler writes records through glog. Trace and Debug records are
// logged at glog verbosity 3 and 2, so glog's -v flag has to be raised for
// them to show up. Crit is logged as an error, the logger exits by itself.
func GlogHandler(fmtr Format) Handler {
	return FuncHandler(func(r *Record) error {
		msg := string(bytes.TrimSuffix(fmtr.Format(r), []byte{'\n'}))
		switch r.Lvl {
		case LvlTrace:
			glog.V(3).Info(msg)
		case LvlDebug:
			glog.V(2).Info(msg)
		case LvlInfo:
			glog.Info(msg)
		case LvlWarn:
			glog.Warning(msg)
		default:
			glog.Error(msg)
		}
		return nil
	})
}
