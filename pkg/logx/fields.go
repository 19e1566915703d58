package logx

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Field mutates a zerolog event. Fields are applied in order, so a repeated
// key takes the last value.
type Field func(e *zerolog.Event)

func String(k, v string) Field        { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field       { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field   { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field     { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Any(k string, v any) Field       { return func(e *zerolog.Event) { e.Interface(k, v) } }

func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}

func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }

func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Sender tags the line with the rate-limit/recipient identity.
func Sender(id string) Field { return String("sender", id) }

func ChatID(id int64) Field { return Int64("chat_id", id) }

// Panic records a recovered value and the stack of the recovering
// goroutine. Call it from the deferred recover.
func Panic(p any) Field {
	stack := debug.Stack()
	return func(e *zerolog.Event) {
		e.Str("panic", fmt.Sprint(p)).Bytes("stack", stack)
	}
}
