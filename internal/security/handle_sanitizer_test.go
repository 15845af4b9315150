package security

import "testing"

func TestHandleSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewHandleSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンなハンドルはそのまま", "@alice", "@alice"},
		{"前後の空白を除去する", "  @alice \n", "@alice"},
		{"タグを除去する", "<b>@alice</b>", "@alice"},
		{"scriptタグは中身ごと除去する", "@bob<script>alert(1)</script>", "@bob"},
		{"アンパサンドはエスケープしない", "Tom & Jerry", "Tom & Jerry"},
		{"空文字列は空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHandleSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewHandleSanitizer()

	inputs := []string{"<i>@carol</i>", "a &amp; b", " @dave "}
	for _, in := range inputs {
		once := sanitizer.Sanitize(in)
		if twice := sanitizer.Sanitize(once); twice != once {
			t.Errorf("Sanitize is not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}
