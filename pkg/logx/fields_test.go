package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFieldsRender(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := logger.Log()
	for _, f := range []Field{
		Sender("anon:7"),
		ChatID(-100),
		Err(nil),
		Panic("boom"),
	} {
		f(e)
	}
	e.Send()

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["sender"] != "anon:7" || got["chat_id"] != float64(-100) || got["panic"] != "boom" {
		t.Fatalf("fields = %v", got)
	}
	if s, _ := got["stack"].(string); !strings.Contains(s, "goroutine") {
		t.Fatalf("stack = %q", got["stack"])
	}
}
