package cycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	registered map[Direction]Binding
	fail       map[Direction]error
	resets     int
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: map[Direction]Binding{}, fail: map[Direction]error{}}
}

func (r *fakeRegistrar) Register(dir Direction, b Binding) error {
	if err := r.fail[dir]; err != nil {
		return err
	}
	r.registered[dir] = b
	return nil
}

func (r *fakeRegistrar) UnregisterAll() {
	r.registered = map[Direction]Binding{}
	r.resets++
}

func TestParseBinding(t *testing.T) {
	tests := []struct {
		in      string
		want    Binding
		wantErr bool
	}{
		{"alt+w", Binding{Mods: ModAlt, Key: "W"}, false},
		{"Ctrl+Shift+V", Binding{Mods: ModCtrl | ModShift, Key: "V"}, false},
		{"cmd + 1", Binding{Mods: ModSuper, Key: "1"}, false},
		{"s", Binding{Key: "S"}, false},
		{"alt+f12", Binding{}, true},
		{"hyper+w", Binding{}, true},
		{"alt+", Binding{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBinding(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindingString(t *testing.T) {
	assert.Equal(t, "Ctrl+Alt+W", Binding{Mods: ModAlt | ModCtrl, Key: "W"}.String())
	assert.Equal(t, "S", Binding{Key: "S"}.String())
}

func TestApplyBindings_Both(t *testing.T) {
	r := newFakeRegistrar()
	next := Binding{Mods: ModAlt, Key: "W"}
	prev := Binding{Mods: ModAlt, Key: "S"}

	warnings := ApplyBindings(r, next, prev)
	assert.Empty(t, warnings)
	assert.Equal(t, next, r.registered[Next])
	assert.Equal(t, prev, r.registered[Prev])
	assert.Equal(t, 1, r.resets)
}

func TestApplyBindings_Warnings(t *testing.T) {
	alt := func(k string) Binding { return Binding{Mods: ModAlt, Key: k} }

	tests := []struct {
		name       string
		next, prev Binding
		failPrev   error
		wantCode   WarningCode
		wantDir    Direction
		registered []Direction
	}{
		{"no modifiers", Binding{Key: "W"}, alt("S"), nil, WarnNoModifiers, Next, []Direction{Prev}},
		{"invalid key", alt("W"), alt("F1"), nil, WarnInvalidKey, Prev, []Direction{Next}},
		{"conflict", alt("W"), alt("W"), nil, WarnConflict, Prev, []Direction{Next}},
		{"register failure", alt("W"), alt("S"), errors.New("taken"), WarnRegisterFailed, Prev, []Direction{Next}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRegistrar()
			if tt.failPrev != nil {
				r.fail[Prev] = tt.failPrev
			}

			warnings := ApplyBindings(r, tt.next, tt.prev)
			require.Len(t, warnings, 1)
			assert.Equal(t, tt.wantCode, warnings[0].Code)
			assert.Equal(t, tt.wantDir, warnings[0].Direction)
			assert.Len(t, r.registered, len(tt.registered))
			for _, d := range tt.registered {
				assert.Contains(t, r.registered, d)
			}
		})
	}
}

func TestApplyBindings_ReplacesPrevious(t *testing.T) {
	r := newFakeRegistrar()
	ApplyBindings(r, Binding{Mods: ModAlt, Key: "W"}, Binding{Mods: ModAlt, Key: "S"})
	ApplyBindings(r, Binding{Mods: ModCtrl, Key: "N"}, Binding{Key: "P"})

	assert.Equal(t, 2, r.resets)
	assert.Equal(t, Binding{Mods: ModCtrl, Key: "N"}, r.registered[Next])
	assert.NotContains(t, r.registered, Prev)
}

func TestWarningString(t *testing.T) {
	w := Warning{Direction: Prev, Binding: Binding{Mods: ModAlt, Key: "S"}, Code: WarnRegisterFailed, Err: errors.New("taken")}
	assert.Equal(t, "prev hotkey Alt+S not registered: register failed: taken", w.String())
}
