package wire

import (
	"errors"
	"testing"
)

func TestStartMode_Encode(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		intensity int
		want      string
		wantErr   error
	}{
		{name: "mode only", mode: ModeGeneral, intensity: NoIntensity, want: "inicio:general\n"},
		{name: "mode with intensity", mode: ModeRojo, intensity: 40, want: "inicio:rojo,40\n"},
		{name: "intensity clamped high", mode: ModeAzul, intensity: 150, want: "inicio:azul,100\n"},
		{name: "intensity clamped low", mode: ModeVerde, intensity: -5, want: "inicio:verde,0\n"},
		{name: "cascade reverse", mode: ModeCascRev, intensity: NoIntensity, want: "inicio:cascrev\n"},
		{name: "unknown mode", mode: Mode("morado"), intensity: NoIntensity, wantErr: ErrInvalidMode},
		{name: "empty mode", mode: Mode(""), intensity: 50, wantErr: ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StartMode{Mode: tt.mode, Intensity: tt.intensity}.Encode()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Encode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSimpleCommands_Encode(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{name: "set intensity", cmd: SetIntensity{Value: 55}, want: "intensidad:55\n"},
		{name: "set intensity clamped", cmd: SetIntensity{Value: 999}, want: "intensidad:100\n"},
		{name: "stop", cmd: Stop{}, want: "stop\n"},
		{name: "complete", cmd: Complete{}, want: "completado\n"},
		{name: "self test start", cmd: SelfTestStart{}, want: "test\n"},
		{name: "self test cancel", cmd: SelfTestCancel{}, want: "test:off\n"},
		{name: "raw line gains delimiter", cmd: RawLine{Line: "debug:on"}, want: "debug:on\n"},
		{name: "raw line keeps single delimiter", cmd: RawLine{Line: "debug:on\n"}, want: "debug:on\n"},
		{name: "raw line strips CRLF", cmd: RawLine{Line: "debug:on\r\n"}, want: "debug:on\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRawLine_Empty(t *testing.T) {
	_, err := (RawLine{Line: "\r\n"}).Encode()
	if !errors.Is(err, ErrEmptyLine) {
		t.Errorf("Encode() error = %v, want ErrEmptyLine", err)
	}
}

func TestModeValid(t *testing.T) {
	valid := []Mode{
		ModeGeneral, ModeRojo, ModeVerde, ModeAzul, ModeBlanco,
		ModeIntermitente, ModePausado, ModeCascada, ModeCascRev,
	}
	for _, m := range valid {
		if !m.Valid() {
			t.Errorf("Mode(%q).Valid() = false, want true", m)
		}
	}
	if Mode("amarillo").Valid() {
		t.Error(`Mode("amarillo").Valid() = true, want false`)
	}
}

func TestClampIntensity(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, 0}, {0, 0}, {1, 1}, {50, 50}, {100, 100}, {101, 100},
	}
	for _, tt := range tests {
		if got := ClampIntensity(tt.in); got != tt.want {
			t.Errorf("ClampIntensity(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsBoundaryIntensity(t *testing.T) {
	tests := []struct {
		in   int
		want bool
	}{
		{0, true}, {100, true}, {-3, true}, {180, true}, {1, false}, {99, false}, {50, false},
	}
	for _, tt := range tests {
		if got := IsBoundaryIntensity(tt.in); got != tt.want {
			t.Errorf("IsBoundaryIntensity(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
