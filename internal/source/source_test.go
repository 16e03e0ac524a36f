package source

import (
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"agenttree/internal/event"
)

func drain(t *testing.T, src Source) []event.Envelope {
	t.Helper()
	var evs []event.Envelope
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-src.Events():
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		case <-timeout:
			t.Fatal("source did not close in time")
		}
	}
}

func TestLinesStreamsEvents(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"system","subtype":"init","model":"claude-sonnet-4"}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1"}]}}`,
		`{"type":"result","subtype":"success"}`,
	}, "\n")

	src := NewLines(strings.NewReader(stream))
	evs := drain(t, src)

	if err := src.Err(); err != nil {
		t.Fatalf("source error: %v", err)
	}
	kinds := make([]event.Kind, len(evs))
	for i, ev := range evs {
		kinds[i] = ev.Kind
	}
	want := []event.Kind{event.KindSessionStart, event.KindToolStart, event.KindToolDone, event.KindSessionEnd}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
}

func TestLinesDegradesGarbageToUnknown(t *testing.T) {
	src := NewLines(strings.NewReader("garbage line\n"))
	evs := drain(t, src)

	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if evs[0].Kind != event.KindUnknown {
		t.Fatalf("kind = %v, want unknown", evs[0].Kind)
	}
	if evs[0].Raw != "garbage line" {
		t.Fatalf("raw = %q", evs[0].Raw)
	}
}

func TestLinesSkipsBlankLines(t *testing.T) {
	src := NewLines(strings.NewReader("\n\n   \n"))
	if evs := drain(t, src); len(evs) != 0 {
		t.Fatalf("blank input produced %d events", len(evs))
	}
}

func TestLinesErrGatedOnClose(t *testing.T) {
	r, w := io.Pipe()
	src := NewLines(r)

	if err := src.Err(); err != nil {
		t.Fatalf("err while streaming = %v, want nil", err)
	}

	w.Close()
	drain(t, src)
	if err := src.Err(); err != nil {
		t.Fatalf("err after clean close = %v", err)
	}
}

func TestSplit(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "claude -p hello", []string{"claude", "-p", "hello"}},
		{"double quotes", `claude -p "fix the bug"`, []string{"claude", "-p", "fix the bug"}},
		{"single quotes", `sh -c 'echo "hi"'`, []string{"sh", "-c", `echo "hi"`}},
		{"escaped space", `cat my\ file.txt`, []string{"cat", "my file.txt"}},
		{"empty", "   ", nil},
		{"unbalanced quote falls back", `echo "oops`, []string{"echo", `"oops`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Split(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Split(%q) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}
