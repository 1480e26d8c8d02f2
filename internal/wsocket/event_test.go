package wsocket

import "testing"

func TestParseEventExtractsType(t *testing.T) {
	e, err := parseEvent([]byte(`{"type":"mouse_move","dx":1.5,"dy":-2}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Type != "mouse_move" {
		t.Fatalf("expected mouse_move, got %q", e.Type)
	}
	if e.payloadFloat("dx") != 1.5 {
		t.Fatalf("expected dx=1.5, got %v", e.payloadFloat("dx"))
	}
}

func TestParseEventHotkeyStrings(t *testing.T) {
	e, err := parseEvent([]byte(`{"type":"hotkey","keys":["ctrl","alt","del"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys := e.payloadStrings("keys")
	if len(keys) != 3 || keys[2] != "del" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestParseEventRejectsInvalidJSON(t *testing.T) {
	if _, err := parseEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestTextPayloadFallbackOrder(t *testing.T) {
	e, _ := parseEvent([]byte(`{"type":"text","value":"hello"}`))
	if got := e.payloadString("text"); got != "" {
		t.Fatalf("expected empty text field, got %q", got)
	}
	if got := e.payloadString("value"); got != "hello" {
		t.Fatalf("expected value field hello, got %q", got)
	}
}
