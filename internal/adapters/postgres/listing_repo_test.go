package postgres

import "testing"

func TestFormatKey(t *testing.T) {
	tests := []struct {
		name string
		key  any
		want string
	}{
		{"bigint", int64(42), "42"},
		{"text", "abc", "abc"},
		{
			"uuid",
			[16]byte{0x12, 0x3e, 0x45, 0x67, 0xe8, 0x9b, 0x12, 0xd3, 0xa4, 0x56, 0x42, 0x66, 0x14, 0x17, 0x40, 0x00},
			"123e4567-e89b-12d3-a456-426614174000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatKey(tt.key); got != tt.want {
				t.Errorf("formatKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `%50\%\_off\\%` {
		t.Errorf("escapeLike() = %q", got)
	}
}
