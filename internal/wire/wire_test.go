package wire

import (
	"encoding/json"
	"testing"
)

func TestFrameMarshal(t *testing.T) {
	testCases := []struct {
		name     string
		frame    Frame
		expected string
	}{
		{"raw text", Raw("hello world"), "hello world"},
		{"raw empty", Raw(""), ""},
		{"result string", Result("ok"), `{"result":"ok"}`},
		{"result list", Result([]int{1, 2}), `{"result":[1,2]}`},
		{"result nil", Result(nil), `{"result":null}`},
		{"error", Error("boom"), `{"error":"boom"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.frame.Marshal()
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tc.expected {
				t.Errorf("Marshal() = %q, expected %q", data, tc.expected)
			}
		})
	}
}

func TestFrameMarshalZero(t *testing.T) {
	var f Frame
	if !f.IsZero() {
		t.Fatal("zero frame should report IsZero")
	}
	if _, err := f.Marshal(); err == nil {
		t.Fatal("expected error marshalling zero frame")
	}
}

func TestParseEnvelope(t *testing.T) {
	testCases := []struct {
		name      string
		data      string
		ok        bool
		wantError bool
	}{
		{"result", `{"result":"hi"}`, true, false},
		{"error", `{"error":"bad"}`, true, true},
		{"result null", `{"result":null}`, true, false},
		{"plain text", `streamed chunk`, false, false},
		{"json no keys", `{"other":1}`, false, false},
		{"json array", `[1,2,3]`, false, false},
		{"empty", ``, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, ok := ParseEnvelope([]byte(tc.data))
			if ok != tc.ok {
				t.Fatalf("ParseEnvelope ok = %v, expected %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if (env.Err() != nil) != tc.wantError {
				t.Errorf("Err() = %v, wantError %v", env.Err(), tc.wantError)
			}
		})
	}
}

func TestCommandRoundTrip(t *testing.T) {
	cmd := Command{Name: "vm_execute", Args: map[string]any{"command": "echo hi", "timeout": 5}}
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed Command
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Name != "vm_execute" {
		t.Errorf("Name = %q, expected vm_execute", parsed.Name)
	}
	if parsed.Args["command"] != "echo hi" {
		t.Errorf("Args[command] = %v", parsed.Args["command"])
	}
}
