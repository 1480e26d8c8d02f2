package inputbackend

import "testing"

func TestKeysymForNamedKey(t *testing.T) {
	if got := KeysymFor("Enter"); got != xkReturn {
		t.Fatalf("expected xkReturn, got %#x", got)
	}
}

func TestKeysymForPrintableRune(t *testing.T) {
	if got := KeysymFor("a"); got != uint('a') {
		t.Fatalf("expected 'a' keysym, got %#x", got)
	}
}

func TestKeysymForUnknownReturnsZero(t *testing.T) {
	if got := KeysymFor("nonsense_key_name_xyz"); got != 0 {
		t.Fatalf("expected 0 for unrecognized key, got %#x", got)
	}
}

func TestMediaKeyMapCoversVolumeActions(t *testing.T) {
	for _, name := range []string{"volumeup", "volumedown", "volumemute"} {
		if _, ok := mediaKeyMap[name]; !ok {
			t.Fatalf("expected media key mapping for %q", name)
		}
	}
}
